package syntax

import (
	"fmt"

	"layoutc/pkg/asm"
)

// CompileExpression emits instructions leaving the value of e on the stack.
func CompileExpression(e Expression, b *asm.Assembler) error {
	switch n := e.(type) {
	case *Literal:
		b.Primitive(n.Value)

	case *FunctionExpression:
		if n.Fn == nil {
			return fmt.Errorf("function expression without a function")
		}
		b.Function(n.Fn)

	case *Concat:
		for _, part := range n.Parts {
			if err := CompileExpression(part, b); err != nil {
				return err
			}
		}
		b.Concat(len(n.Parts))

	case nil:
		return fmt.Errorf("nil expression")

	default:
		return fmt.Errorf("unsupported expression %T", e)
	}
	return b.Err()
}

// CompileStatement emits the instructions of one statement.
func CompileStatement(s Statement, b *asm.Assembler) error {
	switch n := s.(type) {
	case *Text:
		b.Text(n.Value)

	case *Append:
		if err := CompileExpression(n.Value, b); err != nil {
			return err
		}
		b.Append()

	case *OpenElement:
		b.OpenElement(n.Tag)

	case *FlushElement:
		b.FlushElement()

	case *CloseElement:
		b.CloseElement()

	case *StaticAttr:
		b.StaticAttr(n.Name, n.Value, n.Namespace)

	case *DynamicAttr:
		if err := CompileExpression(n.Value, b); err != nil {
			return fmt.Errorf("attribute %q: %w", n.Name, err)
		}
		b.DynamicAttr(n.Name, n.Namespace)

	case *Invoke:
		if n.Emit == nil {
			return fmt.Errorf("component %q: nothing to invoke", n.Name)
		}
		if err := n.Emit(b); err != nil {
			return fmt.Errorf("component %q: %w", n.Name, err)
		}

	case nil:
		return fmt.Errorf("nil statement")

	default:
		return fmt.Errorf("unsupported statement %T", s)
	}
	return b.Err()
}

// CompileStatements compiles body in order, stopping at the first error.
func CompileStatements(body []Statement, b *asm.Assembler) error {
	for i, s := range body {
		if err := CompileStatement(s, b); err != nil {
			return fmt.Errorf("statement %d: %w", i, err)
		}
	}
	return nil
}
