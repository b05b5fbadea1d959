package compiler

import (
	"fmt"

	"layoutc/pkg/asm"
	"layoutc/pkg/syntax"
)

// Shape selects how a layout owns its element.
type Shape uint8

const (
	// Wrapped layouts render inside one root element owned by the layout.
	Wrapped Shape = iota + 1
	// Unwrapped layouts leave element ownership to the body.
	Unwrapped
)

func (s Shape) String() string {
	switch s {
	case Wrapped:
		return "wrapped"
	case Unwrapped:
		return "unwrapped"
	}
	return "unset"
}

// Template is the body of a layout.
type Template interface {
	Meta() asm.Meta
	AsBlock() asm.Block
	AsLayout(componentName string, attrs []syntax.Attribute) asm.Compilable
}

// Layout is the complete configuration of one layout compilation.
type Layout struct {
	Shape Shape
	// ComponentName is used by unwrapped layouts only.
	ComponentName string
	Template      Template
	// Tag must be NoTag for unwrapped layouts.
	Tag   Tag
	Attrs Attributes
}

// Compile compiles l for env. It is deterministic and keeps no state: two
// calls emit the same instructions into two separate heap ranges.
func Compile(l Layout, env *asm.Environment) (asm.Program, error) {
	if l.Template == nil {
		return asm.Program{}, ErrNoTemplate
	}

	switch l.Shape {
	case Wrapped:
		p, err := compileWrapped(env, l.Template, l.Tag, l.Attrs.Buffer())
		if err != nil {
			return asm.Program{}, fmt.Errorf("wrapped layout: %w", err)
		}
		return p, nil

	case Unwrapped:
		if l.Tag.Kind() != TagNone {
			return asm.Program{}, fmt.Errorf("%w: %s", ErrTagOnUnwrapped, l.Tag)
		}
		p, err := compileUnwrapped(env, l.ComponentName, l.Template, l.Attrs.Buffer())
		if err != nil {
			return asm.Program{}, fmt.Errorf("unwrapped layout %s: %w", l.ComponentName, err)
		}
		return p, nil
	}
	return asm.Program{}, ErrNotConfigured
}
