package vm

import (
	"bytes"
	"errors"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// ElementBuilder is the DOM primitive boundary of the machine.
type ElementBuilder interface {
	OpenElement(tag string, withOperations bool)
	SetAttribute(name, value, namespace string)
	FlushElement()
	CloseElement()
	AppendText(text string)
}

// TreeBuilder builds an html node tree.
type TreeBuilder struct {
	root *html.Node
	open []*html.Node

	// Operations counts elements opened with component operations.
	Operations int
}

func NewTreeBuilder() *TreeBuilder {
	root := &html.Node{Type: html.DocumentNode}
	return &TreeBuilder{root: root, open: []*html.Node{root}}
}

func (t *TreeBuilder) current() *html.Node {
	return t.open[len(t.open)-1]
}

func (t *TreeBuilder) OpenElement(tag string, withOperations bool) {
	n := &html.Node{
		Type:     html.ElementNode,
		Data:     tag,
		DataAtom: atom.Lookup([]byte(tag)),
	}
	t.current().AppendChild(n)
	t.open = append(t.open, n)
	if withOperations {
		t.Operations++
	}
}

// SetAttribute replaces an attribute already set on the element, so later
// attributes win.
func (t *TreeBuilder) SetAttribute(name, value, namespace string) {
	n := t.current()
	for i, a := range n.Attr {
		if a.Key == name && a.Namespace == namespace {
			n.Attr[i].Val = value
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Namespace: namespace, Key: name, Val: value})
}

func (t *TreeBuilder) FlushElement() {}

func (t *TreeBuilder) CloseElement() {
	if len(t.open) > 1 {
		t.open = t.open[:len(t.open)-1]
	}
}

func (t *TreeBuilder) AppendText(text string) {
	t.current().AppendChild(&html.Node{Type: html.TextNode, Data: text})
}

// Depth returns the number of elements still open.
func (t *TreeBuilder) Depth() int {
	return len(t.open) - 1
}

// HTML renders everything built so far.
func (t *TreeBuilder) HTML() (string, error) {
	if t.Depth() != 0 {
		return "", errors.New("unclosed elements")
	}
	var buf bytes.Buffer
	for c := t.root.FirstChild; c != nil; c = c.NextSibling {
		if err := html.Render(&buf, c); err != nil {
			return "", err
		}
	}
	return buf.String(), nil
}
