package asm

import (
	"fmt"
	"strings"

	"layoutc/pkg/vm"
)

type operandKind int

const (
	noOperand       operandKind = iota
	registerOperand             // A is a register
	constantOperand             // A is a constant index
	addressOperand              // A is a heap address
	countOperand                // A is a count
	rangeOperand                // [A, B) is a heap range
	testOperand                 // A is a vm.TestKind
	nameOperand                 // A is a constant index or -1
)

type opInfo struct {
	mnemonic string
	operand  operandKind
}

var opTable = map[vm.Opcode]opInfo{
	vm.OpNop:       {"NOP", noOperand},
	vm.OpPrimitive: {"PRIMITIVE", constantOperand},
	vm.OpFunction:  {"FUNCTION", constantOperand},
	vm.OpConcat:    {"CONCAT", countOperand},
	vm.OpDup:       {"DUP", noOperand},
	vm.OpPop:       {"POP", countOperand},
	vm.OpFetch:     {"FETCH", registerOperand},
	vm.OpLoad:      {"LOAD", registerOperand},
	vm.OpTest:      {"TEST", testOperand},

	vm.OpJump:       {"JUMP", addressOperand},
	vm.OpJumpIf:     {"JUMP_IF", addressOperand},
	vm.OpJumpUnless: {"JUMP_UNLESS", addressOperand},
	vm.OpPushFrame:  {"PUSH_FRAME", noOperand},
	vm.OpPopFrame:   {"POP_FRAME", noOperand},
	vm.OpReturnTo:   {"RETURN_TO", addressOperand},
	vm.OpReturn:     {"RETURN", noOperand},
	vm.OpEnter:      {"ENTER", countOperand},
	vm.OpExit:       {"EXIT", noOperand},

	vm.OpPushArgs: {"PUSH_ARGS", constantOperand},
	vm.OpHelper:   {"HELPER", constantOperand},

	vm.OpPushComponentOperations:   {"PUSH_COMPONENT_OPERATIONS", noOperand},
	vm.OpOpenElement:               {"OPEN_ELEMENT", constantOperand},
	vm.OpOpenElementWithOperations: {"OPEN_ELEMENT_WITH_OPERATIONS", constantOperand},
	vm.OpOpenDynamicElement:        {"OPEN_DYNAMIC_ELEMENT", noOperand},
	vm.OpStaticAttr:                {"STATIC_ATTR", constantOperand},
	vm.OpDynamicAttr:               {"DYNAMIC_ATTR", constantOperand},
	vm.OpFlushElement:              {"FLUSH_ELEMENT", noOperand},
	vm.OpCloseElement:              {"CLOSE_ELEMENT", noOperand},
	vm.OpText:                      {"TEXT", constantOperand},
	vm.OpAppend:                    {"APPEND", noOperand},
	vm.OpDidCreateElement:          {"DID_CREATE_ELEMENT", registerOperand},
	vm.OpDidRenderLayout:           {"DID_RENDER_LAYOUT", registerOperand},

	vm.OpInvokeStatic:                {"INVOKE_STATIC", rangeOperand},
	vm.OpPushComponentManager:        {"PUSH_COMPONENT_MANAGER", constantOperand},
	vm.OpPushDynamicComponentManager: {"PUSH_DYNAMIC_COMPONENT_MANAGER", noOperand},
	vm.OpInvokeComponent:             {"INVOKE_COMPONENT", nameOperand},
}

var byMnemonic = func() map[string]vm.Opcode {
	m := make(map[string]vm.Opcode, len(opTable))
	for op, info := range opTable {
		m[info.mnemonic] = op
	}
	return m
}()

// Mnemonic returns the listing name of op.
func Mnemonic(op vm.Opcode) string {
	if info, ok := opTable[op]; ok {
		return info.mnemonic
	}
	return fmt.Sprintf("OP_%02X", uint8(op))
}

// Disassemble renders r as one instruction per line.
//
//	0004  JUMP_UNLESS 9
func Disassemble(heap *vm.Heap, r vm.Range) string {
	var sb strings.Builder
	for i, instr := range heap.Slice(r) {
		fmt.Fprintf(&sb, "%04d  %s", r.Start+i, Mnemonic(instr.Op))
		if operand := formatOperand(heap, instr); operand != "" {
			sb.WriteByte(' ')
			sb.WriteString(operand)
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}

func formatOperand(heap *vm.Heap, instr vm.Instruction) string {
	info, ok := opTable[instr.Op]
	if !ok {
		return fmt.Sprintf("%d %d", instr.A, instr.B)
	}
	switch info.operand {
	case registerOperand:
		return vm.Register(instr.A).String()
	case constantOperand:
		if instr.Op == vm.OpDynamicAttr {
			if attr, ok := heap.ConstantAt(instr.A); ok {
				if a, ok := attr.(*vm.Attr); ok {
					return a.Name
				}
			}
		}
		return formatConstant(heap, instr.A)
	case addressOperand, countOperand:
		return fmt.Sprintf("%d", instr.A)
	case rangeOperand:
		return vm.Range{Start: int(instr.A), End: int(instr.B)}.String()
	case testOperand:
		return vm.TestKind(instr.A).String()
	case nameOperand:
		if instr.A < 0 {
			return "-"
		}
		return formatConstant(heap, instr.A)
	}
	return ""
}

func formatConstant(heap *vm.Heap, idx int32) string {
	v, ok := heap.ConstantAt(idx)
	if !ok {
		return fmt.Sprintf("#%d?", idx)
	}
	switch c := v.(type) {
	case string:
		return fmt.Sprintf("%q", c)
	case *vm.Attr:
		if c.Namespace != "" {
			return fmt.Sprintf("%s:%s=%q", c.Namespace, c.Name, c.Value)
		}
		return fmt.Sprintf("%s=%q", c.Name, c.Value)
	case vm.ComponentDefinition:
		return fmt.Sprintf("<%s>", c.ComponentName())
	case *vm.ArgsShape:
		return fmt.Sprintf("(%d positional, named %v)", c.Positional, c.Names)
	case nil, bool, int, int32, int64, float64:
		return fmt.Sprintf("%v", c)
	}
	return fmt.Sprintf("#%d(%T)", idx, v)
}
