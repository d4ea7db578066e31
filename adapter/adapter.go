// Package adapter defines the per-judge capability set the coordinator and page
// agents are written against.
package adapter

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"pkt.systems/judgerelay/schema"
)

// Page is the live document of a tab as seen by an adapter.
type Page interface {
	// URL returns the current document location.
	URL(ctx context.Context) (string, error)
	// Exists reports whether a CSS selector matches at least one element.
	Exists(ctx context.Context, selector string) (bool, error)
	// Click dispatches a click on the first element matching selector.
	Click(ctx context.Context, selector string) error
	// Evaluate runs a JavaScript expression and decodes its JSON value into out.
	Evaluate(ctx context.Context, expression string, out any) error
}

// Adapter implements judge interaction for one site.
//
// Page-level operations report a missing element as false or a nil report rather
// than an error; errors are reserved for a page that cannot be reached at all.
type Adapter interface {
	Source() schema.Source
	// Matches reports whether a page URL belongs to this judge.
	Matches(url string) bool
	SubmitURL(problemID string) string
	CheckLoginStatus(ctx context.Context, page Page) (bool, error)
	Submit(ctx context.Context, page Page, code string, language schema.Language) (bool, error)
	IsResultPage(ctx context.Context, page Page) (bool, error)
	// Progress returns nil while the status element is not on the page yet.
	Progress(ctx context.Context, page Page) (*schema.ProgressReport, error)
}

// Registry resolves adapters by source key.
type Registry struct {
	mu       sync.RWMutex
	adapters map[schema.Source]Adapter
}

// NewRegistry constructs a registry seeded with the given adapters. It panics
// on a nil adapter or a duplicate source; use Register to handle those as errors.
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[schema.Source]Adapter, len(adapters))}
	for _, a := range adapters {
		if err := r.Register(a); err != nil {
			panic("adapter: " + err.Error())
		}
	}
	return r
}

// Register adds an adapter. Registering the same source twice is an error.
func (r *Registry) Register(a Adapter) error {
	if a == nil {
		return fmt.Errorf("%w: nil adapter", schema.ErrInvalidRequest)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.adapters[a.Source()]; exists {
		return fmt.Errorf("adapter %q already registered", a.Source())
	}
	r.adapters[a.Source()] = a
	return nil
}

// Lookup returns the adapter for source or ErrUnsupportedSource.
func (r *Registry) Lookup(source schema.Source) (Adapter, error) {
	if r == nil {
		return nil, fmt.Errorf("%w: %q", schema.ErrUnsupportedSource, source)
	}
	r.mu.RLock()
	a, ok := r.adapters[source]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", schema.ErrUnsupportedSource, source)
	}
	return a, nil
}

// Match returns the adapter whose site serves url.
func (r *Registry) Match(url string) (Adapter, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, a := range r.adapters {
		if a.Matches(url) {
			return a, true
		}
	}
	return nil, false
}

// Sources lists registered sources in sorted order.
func (r *Registry) Sources() []schema.Source {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	out := make([]schema.Source, 0, len(r.adapters))
	for source := range r.adapters {
		out = append(out, source)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
