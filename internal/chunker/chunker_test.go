package chunker

import (
	"strings"
	"testing"
)

func TestSplit_EmptyInput(t *testing.T) {
	if got := Split("doc", "  \n ", DefaultOptions()); got != nil {
		t.Errorf("expected nil, got %v", got)
	}
}

func TestSplit_ShortDocument(t *testing.T) {
	text := "Refunds are processed within 5 business days."
	got := Split("policy", text, DefaultOptions())
	if len(got) != 1 {
		t.Fatalf("expected 1 passage, got %d", len(got))
	}
	if got[0].Text != text {
		t.Errorf("expected %q, got %q", text, got[0].Text)
	}
	if got[0].ID != "policy#0" || got[0].Source != "policy" {
		t.Errorf("unexpected identity %+v", got[0])
	}
	if got[0].StartLine != 1 || got[0].EndLine != 1 {
		t.Errorf("expected lines 1-1, got %d-%d", got[0].StartLine, got[0].EndLine)
	}
}

func TestSplit_ParagraphsAndHeadings(t *testing.T) {
	para := strings.Repeat("Shipping takes three days. ", 10) // ~270 chars
	text := "# Shipping\n" + para + "\n\n# Returns\n" + para + "\n\n# Billing\n" + para

	got := Split("faq", text, DefaultOptions())
	if len(got) != 3 {
		t.Fatalf("expected 3 passages, got %d", len(got))
	}
	for i, want := range []string{"# Shipping", "# Returns", "# Billing"} {
		if !strings.HasPrefix(got[i].Text, want) {
			t.Errorf("passage %d should start with %q, got %q", i, want, got[i].Text[:20])
		}
		if got[i].Index != i {
			t.Errorf("passage %d has index %d", i, got[i].Index)
		}
	}
	if got[1].StartLine != 4 {
		t.Errorf("expected second passage at line 4, got %d", got[1].StartLine)
	}
}

func TestSplit_MergesSmallParagraphs(t *testing.T) {
	var parts []string
	for i := 0; i < 20; i++ {
		parts = append(parts, "Short line of evidence number.")
	}
	text := strings.Join(parts, "\n\n") // ~640 chars

	got := Split("notes", text, DefaultOptions())
	if len(got) < 2 {
		t.Fatalf("expected more than one passage, got %d", len(got))
	}
	for _, p := range got {
		if len(p.Text) > DefaultTargetSize {
			t.Errorf("merged passage exceeds target: %d", len(p.Text))
		}
	}
}

func TestSplit_LongParagraph(t *testing.T) {
	text := strings.Repeat("This sentence is part of one very long paragraph. ", 40)

	got := Split("long", text, DefaultOptions())
	if len(got) < 3 {
		t.Fatalf("expected several passages, got %d", len(got))
	}
	for _, p := range got {
		if len(p.Text) > DefaultMaxSize {
			t.Errorf("passage exceeds max size: %d", len(p.Text))
		}
		if !strings.HasSuffix(p.Text, ".") {
			t.Errorf("expected sentence boundary, got %q", p.Text[len(p.Text)-10:])
		}
	}
}

func TestSplit_UnbrokenRun(t *testing.T) {
	text := strings.Repeat("word ", 300) // no sentence ends

	got := Split("run", text, Options{TargetSize: 100, MaxSize: 150})
	if len(got) < 5 {
		t.Fatalf("expected many passages, got %d", len(got))
	}
	for _, p := range got {
		if len(p.Text) > 150 {
			t.Errorf("passage exceeds max size: %d", len(p.Text))
		}
	}
}
