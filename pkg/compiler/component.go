package compiler

import (
	"errors"
	"fmt"

	"layoutc/pkg/asm"
	"layoutc/pkg/syntax"
	"layoutc/pkg/vm"
)

type NamedArg struct {
	Name  string
	Value syntax.Expression
}

// Hash is an ordered list of named arguments.
type Hash []NamedArg

// ComponentArgs are the arguments of one component invocation.
type ComponentArgs struct {
	Params  []syntax.Expression
	Hash    Hash
	Default asm.Block
	Inverse asm.Block
}

// DefinitionArgs are evaluated at render time to choose the component of a
// dynamic invocation.
type DefinitionArgs struct {
	Params []syntax.Expression
	Hash   Hash
}

func (d DefinitionArgs) Empty() bool {
	return len(d.Params) == 0 && len(d.Hash) == 0
}

// Resolver maps the evaluated definition arguments and the invoking
// template's meta to a component. ok is false when nothing matches, which
// renders nothing.
type Resolver func(m *vm.Machine, args *vm.Arguments, templateMeta any) (def vm.ComponentDefinition, ok bool)

// ComponentBuilder emits component invocations into a template's program.
type ComponentBuilder struct {
	b *asm.Assembler
}

func NewComponentBuilder(b *asm.Assembler) *ComponentBuilder {
	return &ComponentBuilder{b: b}
}

// Static invokes a component known at compile time.
func (cb *ComponentBuilder) Static(def vm.ComponentDefinition, args ComponentArgs) error {
	cb.b.PushComponentManager(def)
	return cb.invokeComponent(args)
}

// Dynamic invokes the component that resolve picks from definitionArgs at
// render time:
//
//	       PUSH_FRAME
//	       RETURN_TO END
//	       <definition args>
//	       HELPER resolve
//	       DUP
//	       TEST simple
//	       ENTER 2
//	       JUMP_UNLESS ELSE
//	       PUSH_DYNAMIC_COMPONENT_MANAGER
//	       <args>
//	       INVOKE_COMPONENT
//	ELSE:  EXIT
//	       RETURN
//	END:   POP_FRAME
//
// An unresolved component takes the ELSE branch and renders nothing.
func (cb *ComponentBuilder) Dynamic(definitionArgs DefinitionArgs, resolve Resolver, args ComponentArgs) error {
	b := cb.b

	if definitionArgs.Empty() {
		b.Fail(ErrMissingDefinitionArgs)
		return ErrMissingDefinitionArgs
	}
	if resolve == nil {
		err := errors.New("dynamic component invocation without a resolver")
		b.Fail(err)
		return err
	}

	meta := b.Meta().TemplateMeta
	helper := func(m *vm.Machine, a *vm.Arguments) any {
		def, ok := resolve(m, a, meta)
		if !ok || !usable(def) {
			return nil
		}
		return def
	}

	b.StartLabels()

	b.PushFrame()
	b.ReturnTo(labelEnd)

	if err := cb.compileArgs(definitionArgs.Params, definitionArgs.Hash, nil, nil); err != nil {
		return cb.fail(fmt.Errorf("definition args: %w", err))
	}
	b.Helper(helper)

	b.Dup()
	b.Test(vm.TestSimple)

	b.Enter(2)

	b.JumpUnless(labelElse)

	b.PushDynamicComponentManager()
	if err := cb.invokeComponent(args); err != nil {
		return err
	}

	b.Label(labelElse)
	b.Exit()
	b.Return()

	b.Label(labelEnd)
	b.PopFrame()

	b.StopLabels()

	return b.Err()
}

// usable reports whether def can be invoked. A nil pointer wrapped in the
// interface is not nil, so its manager is looked up here; if that panics the
// definition counts as unresolved.
func usable(def vm.ComponentDefinition) (ok bool) {
	if def == nil {
		return false
	}
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	return def.Manager() != nil
}

func (cb *ComponentBuilder) invokeComponent(args ComponentArgs) error {
	if err := cb.compileArgs(args.Params, args.Hash, args.Default, args.Inverse); err != nil {
		return cb.fail(fmt.Errorf("component args: %w", err))
	}
	cb.b.InvokeComponent("")
	return cb.b.Err()
}

// compileArgs pushes the positional values, then the named values in order,
// and collects them into one argument list.
func (cb *ComponentBuilder) compileArgs(params []syntax.Expression, hash Hash, def, inverse asm.Block) error {
	b := cb.b
	for i, p := range params {
		if err := syntax.CompileExpression(p, b); err != nil {
			return fmt.Errorf("param %d: %w", i, err)
		}
	}
	names := make([]string, len(hash))
	for i, h := range hash {
		names[i] = h.Name
		if err := syntax.CompileExpression(h.Value, b); err != nil {
			return fmt.Errorf("named arg %q: %w", h.Name, err)
		}
	}
	b.PushArgs(&vm.ArgsShape{
		Positional: len(params),
		Names:      names,
		Default:    b.CompileBlock(def),
		Inverse:    b.CompileBlock(inverse),
	})
	return b.Err()
}

func (cb *ComponentBuilder) fail(err error) error {
	cb.b.Fail(err)
	return cb.b.Err()
}
