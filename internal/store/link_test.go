package store

import (
	"context"
	"errors"
	"testing"
)

func TestLinkCreate(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	a := write(t, s, fact("a", "memory a", 0.9))
	b := write(t, s, fact("b", "memory b", 0.9))

	link, err := s.Link(ctx, a.ID, b.ID, "derived_from")
	if err != nil {
		t.Fatalf("link: %v", err)
	}
	if link.Rel != "derived_from" {
		t.Errorf("expected derived_from, got %s", link.Rel)
	}

	// Duplicate is ignored.
	if _, err := s.Link(ctx, a.ID, b.ID, "derived_from"); err != nil {
		t.Fatalf("relink: %v", err)
	}

	links, err := s.Links(ctx, b.ID)
	if err != nil {
		t.Fatalf("links: %v", err)
	}
	if len(links) != 1 {
		t.Fatalf("expected 1 link, got %d", len(links))
	}
	if links[0].FromID != a.ID || links[0].ToID != b.ID {
		t.Errorf("unexpected link %+v", links[0])
	}
}

func TestLinkRemove(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	a := write(t, s, fact("a", "x", 0.9))
	b := write(t, s, fact("b", "y", 0.9))

	s.Link(ctx, a.ID, b.ID, "contradicts")
	if err := s.Unlink(ctx, a.ID, b.ID, "contradicts"); err != nil {
		t.Fatalf("unlink: %v", err)
	}

	links, _ := s.Links(ctx, a.ID)
	if len(links) != 0 {
		t.Errorf("expected 0 links after remove, got %d", len(links))
	}
}

func TestLinkInvalid(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	a := write(t, s, fact("a", "x", 0.9))

	if _, err := s.Link(ctx, a.ID, a.ID, "depends_on"); err == nil {
		t.Error("expected error for invalid relation")
	}
	if _, err := s.Link(ctx, a.ID, "missing", "relates_to"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for missing target, got %v", err)
	}
}
