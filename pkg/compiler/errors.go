package compiler

import "errors"

// Configuration errors. They mean the template is malformed and abort its
// compilation.
var (
	ErrNotConfigured         = errors.New("layout shape not configured")
	ErrNoTemplate            = errors.New("layout has no template")
	ErrConflictingTag        = errors.New("tag is both static and dynamic")
	ErrTagOnUnwrapped        = errors.New("unwrapped layout cannot have a tag")
	ErrMissingDefinitionArgs = errors.New("dynamic component invocation without an argument")
)
