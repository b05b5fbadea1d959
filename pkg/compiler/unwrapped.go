package compiler

import (
	"layoutc/pkg/asm"
	"layoutc/pkg/syntax"
)

// compileUnwrapped hands the whole layout to the body, which owns its root
// element and splices the forwarded attributes into it.
func compileUnwrapped(env *asm.Environment, componentName string, layout Template, attrs []syntax.Attribute) (asm.Program, error) {
	return layout.AsLayout(componentName, attrs).CompileDynamic(env)
}
