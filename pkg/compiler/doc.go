// Package compiler turns component layouts and component invocations into
// programs for the rendering machine.
//
// A Layout names a body template, an optional wrapping tag and the attributes
// forwarded onto the root element. Compile emits it through an asm.Assembler
// into the environment's heap. LayoutBuilder collects the same configuration
// through calls made by the component itself.
package compiler
