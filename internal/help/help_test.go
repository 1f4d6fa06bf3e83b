package help

import "testing"

func TestRenderPlainHeadingsAndLists(t *testing.T) {
	src := []byte("# Title\n\nSome *text* here.\n\n- one\n- two\n")
	out, err := RenderPlain(src)
	if err != nil {
		t.Fatalf("RenderPlain: %v", err)
	}
	if !contains(out, "# Title") {
		t.Fatalf("expected heading marker in output, got %q", out)
	}
	if !contains(out, "- one") || !contains(out, "- two") {
		t.Fatalf("expected list items in output, got %q", out)
	}
}

func TestFAQRenders(t *testing.T) {
	out, err := FAQ()
	if err != nil {
		t.Fatalf("FAQ: %v", err)
	}
	if len(out) == 0 {
		t.Fatalf("expected non-empty FAQ output")
	}
	if !contains(out, "add song") {
		t.Fatalf("expected FAQ to mention the add song command, got %q", out)
	}
}

func TestRenderCommandTablePreservesOrder(t *testing.T) {
	cmds := []Command{
		{"zeta", "last alphabetically, first in the table"},
		{"alpha", "first alphabetically, second in the table"},
	}
	out := Render(cmds)
	zIdx := indexOf(out, "zeta")
	aIdx := indexOf(out, "alpha")
	if zIdx < 0 || aIdx < 0 || zIdx > aIdx {
		t.Fatalf("expected table to preserve input order, got %q", out)
	}
}

func contains(s, sub string) bool { return indexOf(s, sub) >= 0 }

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}
