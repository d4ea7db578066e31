package adapter

import (
	"context"
	"errors"
	"strings"
	"testing"

	"pkt.systems/judgerelay/schema"
)

type stubAdapter struct {
	source schema.Source
	host   string
}

func (s stubAdapter) Source() schema.Source { return s.source }
func (s stubAdapter) Matches(url string) bool {
	return strings.Contains(url, s.host)
}
func (s stubAdapter) SubmitURL(problemID string) string {
	return "https://" + s.host + "/submit/" + problemID
}
func (stubAdapter) CheckLoginStatus(context.Context, Page) (bool, error) { return true, nil }
func (stubAdapter) Submit(context.Context, Page, string, schema.Language) (bool, error) {
	return true, nil
}
func (stubAdapter) IsResultPage(context.Context, Page) (bool, error) { return true, nil }
func (stubAdapter) Progress(context.Context, Page) (*schema.ProgressReport, error) {
	return nil, nil
}

func TestRegistryLookup(t *testing.T) {
	reg := NewRegistry(stubAdapter{source: "A", host: "a.example"}, stubAdapter{source: "B", host: "b.example"})
	a, err := reg.Lookup("A")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if a.Source() != "A" {
		t.Fatalf("expected adapter A, got %q", a.Source())
	}
	if _, err := reg.Lookup("C"); !errors.Is(err, schema.ErrUnsupportedSource) {
		t.Fatalf("expected unsupported source, got %v", err)
	}
	var nilReg *Registry
	if _, err := nilReg.Lookup("A"); !errors.Is(err, schema.ErrUnsupportedSource) {
		t.Fatalf("expected unsupported source on nil registry, got %v", err)
	}
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	reg := NewRegistry(stubAdapter{source: "A", host: "a.example"})
	if err := reg.Register(stubAdapter{source: "A", host: "other.example"}); err == nil {
		t.Fatalf("expected duplicate registration error")
	}
	if err := reg.Register(nil); err == nil {
		t.Fatalf("expected nil adapter error")
	}
}

func TestNewRegistryPanicsOnBadSeed(t *testing.T) {
	for name, seed := range map[string][]Adapter{
		"duplicate": {stubAdapter{source: "A", host: "a.example"}, stubAdapter{source: "A", host: "other.example"}},
		"nil":       {stubAdapter{source: "A", host: "a.example"}, nil},
	} {
		func() {
			defer func() {
				if recover() == nil {
					t.Fatalf("%s: expected NewRegistry to panic", name)
				}
			}()
			NewRegistry(seed...)
		}()
	}
}

func TestRegistryMatchAndSources(t *testing.T) {
	reg := NewRegistry(stubAdapter{source: "B", host: "b.example"}, stubAdapter{source: "A", host: "a.example"})
	a, ok := reg.Match("https://b.example/status?user=x")
	if !ok || a.Source() != "B" {
		t.Fatalf("expected match for B, got %v %v", a, ok)
	}
	if _, ok := reg.Match("https://elsewhere.example/"); ok {
		t.Fatalf("expected no match")
	}
	sources := reg.Sources()
	if len(sources) != 2 || sources[0] != "A" || sources[1] != "B" {
		t.Fatalf("unexpected sources: %v", sources)
	}
}

func TestSubmitURLDeterministic(t *testing.T) {
	reg := NewRegistry(stubAdapter{source: "A", host: "a.example"})
	for _, source := range reg.Sources() {
		a, _ := reg.Lookup(source)
		first := a.SubmitURL("1000")
		if first != a.SubmitURL("1000") || !strings.Contains(first, "1000") {
			t.Fatalf("submit url for %s not deterministic or missing id: %q", source, first)
		}
	}
}
