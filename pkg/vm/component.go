package vm

// Function is a client-side function expression: Go code evaluated by the
// machine in place of a compiled expression.
type Function func(m *Machine) any

// Helper computes a value from evaluated arguments.
type Helper func(m *Machine, args *Arguments) any

// ComponentDefinition identifies what to render.
type ComponentDefinition interface {
	ComponentName() string
	Manager() ComponentManager
}

// ComponentManager knows how to render the components of its definitions.
type ComponentManager interface {
	Render(m *Machine, def ComponentDefinition, args *Arguments) error
}

// ArgsShape describes the values OpPushArgs pops: Positional values pushed
// first, then one value per name in Names, in order.
type ArgsShape struct {
	Positional int
	Names      []string
	Default    *Range
	Inverse    *Range
}

func (s *ArgsShape) size() int { return s.Positional + len(s.Names) }

// Arguments are the evaluated arguments of a helper or component invocation.
type Arguments struct {
	Positional []any
	Named      map[string]any
	Default    *Range
	Inverse    *Range
}

// ElementCreatedObserver is implemented by component instances that want to
// hear about their wrapping element, before attributes are flushed.
type ElementCreatedObserver interface {
	DidCreateElement(m *Machine)
}

// LayoutRenderedObserver is implemented by component instances that want to
// hear when their layout has finished rendering.
type LayoutRenderedObserver interface {
	DidRenderLayout(m *Machine)
}
