package vm

import "testing"

func TestTreeBuilder(t *testing.T) {
	tb := NewTreeBuilder()
	tb.OpenElement("ul", true)
	tb.SetAttribute("class", "a", "")
	tb.SetAttribute("class", "b", "")
	tb.FlushElement()
	tb.OpenElement("li", false)
	tb.AppendText("1 < 2")
	tb.CloseElement()
	tb.CloseElement()

	got, err := tb.HTML()
	if err != nil {
		t.Fatal(err)
	}
	if want := `<ul class="b"><li>1 &lt; 2</li></ul>`; got != want {
		t.Errorf("HTML = %q, want %q", got, want)
	}
	if tb.Operations != 1 {
		t.Errorf("Operations = %d, want 1", tb.Operations)
	}
}

func TestTreeBuilderUnclosed(t *testing.T) {
	tb := NewTreeBuilder()
	tb.OpenElement("div", false)
	if tb.Depth() != 1 {
		t.Errorf("Depth() = %d, want 1", tb.Depth())
	}
	if _, err := tb.HTML(); err == nil {
		t.Error("HTML() of an open element should fail")
	}

	// closing past the root is ignored
	tb.CloseElement()
	tb.CloseElement()
	if tb.Depth() != 0 {
		t.Errorf("Depth() = %d after extra close, want 0", tb.Depth())
	}
}
