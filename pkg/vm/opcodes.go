package vm

import "fmt"

// Opcode identifies one instruction of the rendering machine.
type Opcode uint8

const (
	OpNop       Opcode = 0x00
	OpPrimitive Opcode = 0x01 // push constants[A]
	OpFunction  Opcode = 0x02 // push constants[A].(Function)(m)
	OpConcat    Opcode = 0x03 // pop A values, push their concatenation
	OpDup       Opcode = 0x04
	OpPop       Opcode = 0x05 // pop A values
	OpFetch     Opcode = 0x06 // push register A
	OpLoad      Opcode = 0x07 // pop into register A
	OpTest      Opcode = 0x08 // replace top with Truthy(top); A = TestKind

	OpJump       Opcode = 0x10
	OpJumpIf     Opcode = 0x11 // pop condition
	OpJumpUnless Opcode = 0x12 // pop condition
	OpPushFrame  Opcode = 0x13
	OpPopFrame   Opcode = 0x14
	OpReturnTo   Opcode = 0x15 // RA = A
	OpReturn     Opcode = 0x16 // PC = RA
	OpEnter      Opcode = 0x17 // open a region of A branches
	OpExit       Opcode = 0x18

	OpPushArgs Opcode = 0x20 // pop values described by constants[A].(*ArgsShape), push *Arguments
	OpHelper   Opcode = 0x21 // pop *Arguments, push constants[A].(Helper)(m, args)

	OpPushComponentOperations   Opcode = 0x30
	OpOpenElement               Opcode = 0x31 // tag = constants[A]
	OpOpenElementWithOperations Opcode = 0x32 // tag = constants[A]
	OpOpenDynamicElement        Opcode = 0x33 // tag = pop
	OpStaticAttr                Opcode = 0x34 // constants[A].(*Attr)
	OpDynamicAttr               Opcode = 0x35 // constants[A].(*Attr), value = pop
	OpFlushElement              Opcode = 0x36
	OpCloseElement              Opcode = 0x37
	OpText                      Opcode = 0x38 // constants[A]
	OpAppend                    Opcode = 0x39 // pop, append as text
	OpDidCreateElement          Opcode = 0x3A // instance in register A
	OpDidRenderLayout           Opcode = 0x3B // instance in register A

	OpInvokeStatic                Opcode = 0x40 // run [A, B)
	OpPushComponentManager        Opcode = 0x41 // push constants[A].(ComponentDefinition)
	OpPushDynamicComponentManager Opcode = 0x42 // check top is a ComponentDefinition
	OpInvokeComponent             Opcode = 0x43 // pop *Arguments, pop definition; name = constants[A] or absent when A < 0
)

// TestKind selects the truthiness rule applied by OpTest.
type TestKind int32

const (
	TestSimple TestKind = iota
)

func (k TestKind) String() string {
	switch k {
	case TestSimple:
		return "simple"
	default:
		return fmt.Sprintf("test(%d)", int32(k))
	}
}

// Instruction is one decoded unit of a program. Operands are interpreted per opcode:
// constant pool indices, register numbers, absolute heap addresses or counts.
type Instruction struct {
	Op Opcode
	A  int32
	B  int32
}

// Register names one slot of the fixed register file.
//
// PC, RA, FP and SP belong to the machine and are never addressable by
// fetch/load. S0 and S1 are saved registers: any program that keeps a value in
// one of them across a nested invocation must save it first and restore it
// afterwards. T0 and T1 are temporaries with no preservation guarantee.
type Register uint8

const (
	PC Register = iota
	RA
	FP
	SP
	S0
	S1
	T0
	T1

	registerCount
)

var registerNames = [registerCount]string{"pc", "ra", "fp", "sp", "s0", "s1", "t0", "t1"}

func (r Register) String() string {
	if r < registerCount {
		return registerNames[r]
	}
	return fmt.Sprintf("r%d", uint8(r))
}

// IsValue reports whether r can be the operand of fetch or load.
func (r Register) IsValue() bool {
	return r >= S0 && r < registerCount
}

// IsSaved reports whether r follows the save/restore convention.
func (r Register) IsSaved() bool {
	return r == S0 || r == S1
}

// Attr is the constant operand of OpStaticAttr and OpDynamicAttr.
type Attr struct {
	Name      string
	Value     string // unused by OpDynamicAttr
	Namespace string
}
