// Package layoutfile reads layout descriptions written as YAML, with the
// wrapper element and the body given as HTML markup.
//
//	name: card
//	wrapper: <section class="card">
//	attrs:
//	  - name: title
//	    prop: heading
//	body: |
//	  <h2>{{heading}}</h2>
//	props:
//	  heading: Hello
//
// Other layout files can be used as components inside the body. The
// components map names an element to a file, relative to the layout:
//
//	components:
//	  x-badge: badge.yaml
//	body: |
//	  <x-badge label="{{heading}}"></x-badge>
//	  <component is="{{kind}}" label="new"></component>
//
// Attributes of a component element become the component's props, merged
// over the props of its file. <component is="..."> picks one of the
// declared components at render time and renders nothing when none matches.
package layoutfile

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"gopkg.in/yaml.v3"

	"layoutc/pkg/asm"
	"layoutc/pkg/compiler"
	"layoutc/pkg/syntax"
	"layoutc/pkg/vm"
)

// File is one layout description.
type File struct {
	Name    string         `yaml:"name"`
	Shape   string         `yaml:"shape"`    // "wrapped" (default) or "unwrapped"
	Tag     string         `yaml:"tag"`      // static wrapping tag
	TagProp string         `yaml:"tag_prop"` // wrapping tag read from a prop at render time
	Wrapper string         `yaml:"wrapper"`  // start tag markup, e.g. <div class="box">
	Attrs   []Attr         `yaml:"attrs"`
	Symbols []string       `yaml:"symbols"`
	Body    string         `yaml:"body"`
	Props   map[string]any `yaml:"props"`

	// Components maps element names to layout files.
	Components map[string]string `yaml:"components"`

	components map[string]*File
}

// Attr is a static attribute when Value is set, or reads Prop at render time.
type Attr struct {
	Name      string `yaml:"name"`
	Value     string `yaml:"value"`
	Prop      string `yaml:"prop"`
	Namespace string `yaml:"namespace"`
}

// ErrComponentCycle is returned by Load when a component uses itself.
var ErrComponentCycle = errors.New("component cycle")

// Load reads and parses the layout file at path, and the files of its
// components.
func Load(path string) (*File, error) {
	return load(path, map[string]bool{})
}

func load(path string, loading map[string]bool) (*File, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	if loading[abs] {
		return nil, fmt.Errorf("%s: %w", path, ErrComponentCycle)
	}
	loading[abs] = true
	defer delete(loading, abs)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	f, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	f.components = make(map[string]*File, len(f.Components))
	for name, rel := range f.Components {
		if !filepath.IsAbs(rel) {
			rel = filepath.Join(filepath.Dir(abs), rel)
		}
		c, err := load(rel, loading)
		if err != nil {
			return nil, fmt.Errorf("component %s: %w", name, err)
		}
		f.components[strings.ToLower(name)] = c
	}
	return f, nil
}

// Parse parses a layout file. Components are only read by Load.
func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	if f.Props == nil {
		f.Props = map[string]any{}
	}
	return &f, nil
}

// Layout converts f into a compiler configuration.
func (f *File) Layout() (compiler.Layout, error) {
	tmpl, err := f.Template()
	if err != nil {
		return compiler.Layout{}, err
	}

	l := compiler.Layout{ComponentName: f.Name, Template: tmpl}

	switch strings.ToLower(f.Shape) {
	case "", "wrapped":
		l.Shape = compiler.Wrapped
	case "unwrapped":
		l.Shape = compiler.Unwrapped
	default:
		return compiler.Layout{}, fmt.Errorf("unknown shape %q", f.Shape)
	}

	set := 0
	for _, s := range []string{f.Tag, f.TagProp, f.Wrapper} {
		if s != "" {
			set++
		}
	}
	if set > 1 {
		return compiler.Layout{}, fmt.Errorf("%w: set only one of tag, tag_prop and wrapper", compiler.ErrConflictingTag)
	}

	switch {
	case f.Tag != "":
		l.Tag = compiler.StaticTag(f.Tag)
	case f.TagProp != "":
		l.Tag = compiler.DynamicTagExpr(Prop(f.TagProp))
	case f.Wrapper != "":
		tag, attrs, err := ParseWrapper(f.Wrapper)
		if err != nil {
			return compiler.Layout{}, err
		}
		l.Tag = compiler.StaticTag(tag)
		for _, a := range attrs {
			l.Attrs.Add(a)
		}
	}

	for _, a := range f.Attrs {
		switch {
		case a.Name == "":
			return compiler.Layout{}, errors.New("attribute without a name")
		case a.Prop != "":
			l.Attrs.Add(&syntax.DynamicAttr{Name: a.Name, Value: Prop(a.Prop), Namespace: a.Namespace})
		default:
			l.Attrs.Add(&syntax.StaticAttr{Name: a.Name, Value: a.Value, Namespace: a.Namespace})
		}
	}

	return l, nil
}

// Template parses the body markup.
func (f *File) Template() (*syntax.Template, error) {
	if len(f.Components) != len(f.components) {
		return nil, errors.New("components are not loaded")
	}
	body, err := parser{components: f.components}.parse(f.Body)
	if err != nil {
		return nil, err
	}
	return &syntax.Template{
		TemplateMeta: f.Name,
		Symbols:      f.Symbols,
		Body:         body,
	}, nil
}

// Prop reads name from the machine's scope, which must be a map of props.
func Prop(name string) syntax.Expression {
	return syntax.ClientSide(func(m *vm.Machine) any {
		props, ok := m.Self.(map[string]any)
		if !ok {
			return nil
		}
		return props[name]
	})
}

// ParseWrapper reads the first start tag of markup.
func ParseWrapper(markup string) (string, []syntax.Attribute, error) {
	z := html.NewTokenizer(strings.NewReader(markup))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return "", nil, fmt.Errorf("wrapper %q has no start tag", markup)
		case html.StartTagToken, html.SelfClosingTagToken:
			tok := z.Token()
			var attrs []syntax.Attribute
			for _, a := range tok.Attr {
				attrs = append(attrs, attribute(a))
			}
			return tok.Data, attrs, nil
		}
	}
}

// ParseBody parses markup into statements. {{name}} in text and attribute
// values reads the prop name at render time.
func ParseBody(markup string) ([]syntax.Statement, error) {
	return parser{}.parse(markup)
}

type parser struct {
	components map[string]*File
}

func (p parser) parse(markup string) ([]syntax.Statement, error) {
	if strings.TrimSpace(markup) == "" {
		return nil, nil
	}
	context := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(strings.NewReader(markup), context)
	if err != nil {
		return nil, fmt.Errorf("parsing body: %w", err)
	}
	var body []syntax.Statement
	for _, n := range nodes {
		if body, err = p.appendNode(body, n); err != nil {
			return nil, err
		}
	}
	return body, nil
}

func (p parser) appendNode(body []syntax.Statement, n *html.Node) ([]syntax.Statement, error) {
	switch n.Type {
	case html.ElementNode:
		if n.Data == "component" {
			inv, err := p.dynamicInvoke(n)
			if err != nil {
				return nil, err
			}
			return append(body, inv), nil
		}
		if c, ok := p.components[n.Data]; ok {
			inv, err := staticInvoke(n, c)
			if err != nil {
				return nil, err
			}
			return append(body, inv), nil
		}

		body = append(body, &syntax.OpenElement{Tag: n.Data})
		for _, a := range n.Attr {
			body = append(body, attribute(a))
		}
		body = append(body, &syntax.FlushElement{})
		var err error
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if body, err = p.appendNode(body, c); err != nil {
				return nil, err
			}
		}
		body = append(body, &syntax.CloseElement{})

	case html.TextNode:
		for _, part := range interpolate(n.Data) {
			if lit, ok := part.(*syntax.Literal); ok {
				body = append(body, &syntax.Text{Value: lit.Value.(string)})
				continue
			}
			body = append(body, &syntax.Append{Value: part})
		}
	}
	return body, nil
}

func staticInvoke(n *html.Node, c *File) (*syntax.Invoke, error) {
	hash, err := componentArgs(n, "")
	if err != nil {
		return nil, err
	}
	return &syntax.Invoke{Name: n.Data, Emit: func(b *asm.Assembler) error {
		def, err := compileComponent(n.Data, c, b.Env())
		if err != nil {
			return err
		}
		return compiler.NewComponentBuilder(b).Static(def, compiler.ComponentArgs{Hash: hash})
	}}, nil
}

func (p parser) dynamicInvoke(n *html.Node) (*syntax.Invoke, error) {
	var is syntax.Expression
	for _, a := range n.Attr {
		if a.Key == "is" {
			is = expression(a.Val)
		}
	}
	if is == nil {
		return nil, errors.New(`<component> without an "is" attribute`)
	}
	hash, err := componentArgs(n, "is")
	if err != nil {
		return nil, err
	}

	return &syntax.Invoke{Name: "component", Emit: func(b *asm.Assembler) error {
		defs := make(map[string]vm.ComponentDefinition, len(p.components))
		for _, name := range slices.Sorted(maps.Keys(p.components)) {
			def, err := compileComponent(name, p.components[name], b.Env())
			if err != nil {
				return err
			}
			defs[name] = def
		}
		resolve := func(m *vm.Machine, args *vm.Arguments, _ any) (vm.ComponentDefinition, bool) {
			name, _ := args.Positional[0].(string)
			def, ok := defs[strings.ToLower(name)]
			return def, ok
		}
		return compiler.NewComponentBuilder(b).Dynamic(
			compiler.DefinitionArgs{Params: []syntax.Expression{is}},
			resolve,
			compiler.ComponentArgs{Hash: hash},
		)
	}}, nil
}

// componentArgs turns the attributes of n, except skip, into named
// arguments. Components take no children.
func componentArgs(n *html.Node, skip string) (compiler.Hash, error) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.TextNode || strings.TrimSpace(c.Data) != "" {
			return nil, fmt.Errorf("<%s> does not take children", n.Data)
		}
	}
	var hash compiler.Hash
	for _, a := range n.Attr {
		if a.Key == skip {
			continue
		}
		hash = append(hash, compiler.NamedArg{Name: a.Key, Value: expression(a.Val)})
	}
	return hash, nil
}

func attribute(a html.Attribute) syntax.Attribute {
	parts := interpolate(a.Val)
	if len(parts) == 0 {
		return &syntax.StaticAttr{Name: a.Key, Value: a.Val, Namespace: a.Namespace}
	}
	if lit, ok := parts[0].(*syntax.Literal); ok && len(parts) == 1 {
		return &syntax.StaticAttr{Name: a.Key, Value: lit.Value.(string), Namespace: a.Namespace}
	}
	if len(parts) == 1 {
		return &syntax.DynamicAttr{Name: a.Key, Value: parts[0], Namespace: a.Namespace}
	}
	return &syntax.DynamicAttr{Name: a.Key, Value: &syntax.Concat{Parts: parts}, Namespace: a.Namespace}
}

// expression is the value of an attribute written as s.
func expression(s string) syntax.Expression {
	parts := interpolate(s)
	switch len(parts) {
	case 0:
		return &syntax.Literal{Value: ""}
	case 1:
		return parts[0]
	}
	return &syntax.Concat{Parts: parts}
}

var interpolation = regexp.MustCompile(`\{\{\s*([A-Za-z_][A-Za-z0-9_]*)\s*\}\}`)

// interpolate splits s into string literals and prop reads.
func interpolate(s string) []syntax.Expression {
	var parts []syntax.Expression
	last := 0
	for _, loc := range interpolation.FindAllStringSubmatchIndex(s, -1) {
		if loc[0] > last {
			parts = append(parts, &syntax.Literal{Value: s[last:loc[0]]})
		}
		parts = append(parts, Prop(s[loc[2]:loc[3]]))
		last = loc[1]
	}
	if last < len(s) {
		parts = append(parts, &syntax.Literal{Value: s[last:]})
	}
	return parts
}

// Component is a layout file compiled for use inside another layout.
type Component struct {
	name    string
	props   map[string]any
	program vm.Range
}

func compileComponent(name string, f *File, env *asm.Environment) (*Component, error) {
	l, err := f.Layout()
	if err != nil {
		return nil, err
	}
	prog, err := compiler.Compile(l, env)
	if err != nil {
		return nil, err
	}
	return &Component{name: name, props: f.Props, program: prog.Range()}, nil
}

func (c *Component) ComponentName() string        { return c.name }
func (c *Component) Manager() vm.ComponentManager { return manager{} }
func (c *Component) Program() vm.Range            { return c.program }

// manager renders a component's program with its props as the scope.
type manager struct{}

func (manager) Render(m *vm.Machine, def vm.ComponentDefinition, args *vm.Arguments) error {
	c, ok := def.(*Component)
	if !ok {
		return fmt.Errorf("%T is not a layout component", def)
	}
	props := make(map[string]any, len(c.props)+len(args.Named))
	maps.Copy(props, c.props)
	maps.Copy(props, args.Named)

	saved := m.Self
	m.Self = props
	defer func() { m.Self = saved }()
	return m.Call(c.program)
}
