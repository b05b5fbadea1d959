package compiler

import (
	"fmt"

	"layoutc/pkg/syntax"
	"layoutc/pkg/vm"
)

type TagKind uint8

const (
	TagNone TagKind = iota
	TagStatic
	TagDynamic
)

func (k TagKind) String() string {
	switch k {
	case TagNone:
		return "none"
	case TagStatic:
		return "static"
	case TagDynamic:
		return "dynamic"
	default:
		return fmt.Sprintf("TagKind(%d)", uint8(k))
	}
}

// Tag is the shape of a layout's wrapping element: none, a known tag name,
// or an expression computing the name at render time. The zero value is NoTag.
type Tag struct {
	kind TagKind
	name string
	expr syntax.Expression
}

func NoTag() Tag { return Tag{} }

func StaticTag(name string) Tag {
	return Tag{kind: TagStatic, name: name}
}

// DynamicTag computes the tag name with fn. A falsy result renders the body
// without a wrapping element.
func DynamicTag(fn vm.Function) Tag {
	return DynamicTagExpr(syntax.ClientSide(fn))
}

func DynamicTagExpr(e syntax.Expression) Tag {
	return Tag{kind: TagDynamic, expr: e}
}

func (t Tag) Kind() TagKind { return t.kind }

func (t Tag) Static() (string, bool) {
	return t.name, t.kind == TagStatic
}

func (t Tag) Dynamic() (syntax.Expression, bool) {
	return t.expr, t.kind == TagDynamic
}

func (t Tag) String() string {
	switch t.kind {
	case TagStatic:
		return fmt.Sprintf("static(%s)", t.name)
	case TagDynamic:
		return fmt.Sprintf("dynamic(%s)", t.expr)
	}
	return "none"
}

// TagBuilder collects tag configuration calls on a LayoutBuilder.
// Setting both a static and a dynamic tag is reported by Tag.
type TagBuilder struct {
	isStatic  bool
	isDynamic bool
	static    string
	dynamic   syntax.Expression
}

func (tb *TagBuilder) Static(name string) {
	tb.isStatic = true
	tb.static = name
}

// Dynamic wraps fn as a client-side function expression.
func (tb *TagBuilder) Dynamic(fn vm.Function) {
	tb.isDynamic = true
	tb.dynamic = syntax.ClientSide(fn)
}

func (tb *TagBuilder) GetStatic() (string, bool) {
	return tb.static, tb.isStatic
}

func (tb *TagBuilder) GetDynamic() (syntax.Expression, bool) {
	return tb.dynamic, tb.isDynamic
}

func (tb *TagBuilder) Tag() (Tag, error) {
	switch {
	case tb.isStatic && tb.isDynamic:
		return Tag{}, ErrConflictingTag
	case tb.isStatic:
		return StaticTag(tb.static), nil
	case tb.isDynamic:
		return DynamicTagExpr(tb.dynamic), nil
	}
	return NoTag(), nil
}
