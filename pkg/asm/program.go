package asm

import (
	"io"
	"log"

	"layoutc/pkg/vm"
)

// Environment is the target a program is compiled for: the heap it is
// stored in plus debug output.
type Environment struct {
	Heap   *vm.Heap
	Logger *log.Logger
	// Debug logs the listing of every compiled layout.
	Debug bool
}

func NewEnvironment() *Environment {
	return &Environment{
		Heap:   vm.NewHeap(),
		Logger: log.New(io.Discard, "", 0),
	}
}

// Meta describes the template a program was compiled from.
type Meta struct {
	TemplateMeta any
	Symbols      []string
	HasEval      bool
}

// Program is a finalized instruction range plus its metadata.
type Program struct {
	Start int
	End   int
	Meta  Meta
}

func (p Program) Range() vm.Range { return vm.Range{Start: p.Start, End: p.End} }

func (p Program) Len() int { return p.End - p.Start }

// Block is an invocable block handle.
type Block interface {
	CompileStatic(env *Environment) (Program, error)
}

// Compilable compiles itself as a standalone dynamic program.
type Compilable interface {
	CompileDynamic(env *Environment) (Program, error)
}

// DebugSlice logs the listing of r when env has debugging enabled.
func DebugSlice(env *Environment, r vm.Range) {
	if env == nil || !env.Debug || env.Logger == nil {
		return
	}
	env.Logger.Printf("program %s\n%s", r, Disassemble(env.Heap, r))
}
