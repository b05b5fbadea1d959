package compiler

import (
	"fmt"

	"layoutc/pkg/asm"
	"layoutc/pkg/syntax"
	"layoutc/pkg/vm"
)

const (
	labelBody = "BODY"
	labelEnd  = "END"
	labelElse = "ELSE"
)

// compileWrapped emits a layout that creates its own wrapping element.
//
// Dynamic tag:
//
//	       FETCH s1                 ; save the caller's s1
//	       <tag expression>
//	       DUP
//	       LOAD s1
//	       TEST simple
//	       JUMP_UNLESS BODY
//	       FETCH s1
//	       PUSH_COMPONENT_OPERATIONS
//	       OPEN_DYNAMIC_ELEMENT
//	       DID_CREATE_ELEMENT s0
//	       <attributes>
//	       FLUSH_ELEMENT
//	BODY:  INVOKE_STATIC <body>
//	       FETCH s1
//	       TEST simple
//	       JUMP_UNLESS END
//	       CLOSE_ELEMENT
//	END:   DID_RENDER_LAYOUT s0
//	       LOAD s1                  ; restore the caller's s1
//
// Static tag:
//
//	PUSH_COMPONENT_OPERATIONS
//	OPEN_ELEMENT_WITH_OPERATIONS <tag>
//	DID_CREATE_ELEMENT s0
//	<attributes>
//	FLUSH_ELEMENT
//	INVOKE_STATIC <body>
//	CLOSE_ELEMENT
//	DID_RENDER_LAYOUT s0
//
// Without a tag only the body invocation and DID_RENDER_LAYOUT remain.
func compileWrapped(env *asm.Environment, layout Template, tag Tag, attrs []syntax.Attribute) (asm.Program, error) {
	meta := layout.Meta()
	dynamicTag, isDynamic := tag.Dynamic()
	staticTag, isStatic := tag.Static()

	b := asm.New(env, meta)
	b.StartLabels()

	if isDynamic {
		b.SaveRegister(vm.S1)

		if err := syntax.CompileExpression(dynamicTag, b); err != nil {
			return asm.Program{}, fmt.Errorf("dynamic tag: %w", err)
		}

		// the tag must survive the body for the closing test
		b.Dup()
		b.Load(vm.S1)

		b.Test(vm.TestSimple)
		b.JumpUnless(labelBody)

		b.Fetch(vm.S1)
		b.PushComponentOperations()
		b.OpenDynamicElement()
	} else if isStatic {
		b.PushComponentOperations()
		b.OpenElementWithOperations(staticTag)
	}

	if isDynamic || isStatic {
		b.DidCreateElement(vm.S0)

		for i, attr := range attrs {
			if err := syntax.CompileStatement(attr, b); err != nil {
				return asm.Program{}, fmt.Errorf("attribute %d (%s): %w", i, attr.AttrName(), err)
			}
		}

		b.FlushElement()
	}

	b.Label(labelBody)
	b.InvokeStatic(layout.AsBlock())

	if isDynamic {
		b.Fetch(vm.S1)
		b.Test(vm.TestSimple)
		b.JumpUnless(labelEnd)
		b.CloseElement()
	} else if isStatic {
		b.CloseElement()
	}

	b.Label(labelEnd)

	b.DidRenderLayout(vm.S0)

	if isDynamic {
		b.RestoreRegister(vm.S1)
	}

	b.StopLabels()

	start, end, err := b.Finalize()
	if err != nil {
		return asm.Program{}, err
	}

	asm.DebugSlice(env, vm.Range{Start: start, End: end})

	meta.Symbols = append(meta.Symbols, syntax.AttrsBlock)
	return asm.Program{Start: start, End: end, Meta: meta}, nil
}
