package processor

import (
	"strings"
	"sync"
)

// Registry maps payment method strings to processors. Methods without a
// registered processor fall back to the manual processor so out-of-band
// settlements still produce authorized transactions.
type Registry struct {
	mu       sync.RWMutex
	byMethod map[string]Processor
	fallback Processor
}

// NewRegistry builds a registry with the manual processor as fallback.
func NewRegistry() *Registry {
	return &Registry{
		byMethod: make(map[string]Processor),
		fallback: NewManual(),
	}
}

// Register binds one or more payment method strings to a processor.
func (r *Registry) Register(p Processor, methods ...string) {
	if r == nil || p == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, method := range methods {
		method = normalizeMethod(method)
		if method == "" {
			continue
		}
		r.byMethod[method] = p
	}
}

// SetFallback overrides the processor used for unrecognized methods. Passing
// nil restores the manual processor.
func (r *Registry) SetFallback(p Processor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p == nil {
		p = NewManual()
	}
	r.fallback = p
}

// ForMethod resolves the processor for the supplied payment method.
func (r *Registry) ForMethod(method string) Processor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if p, ok := r.byMethod[normalizeMethod(method)]; ok {
		return p
	}
	return r.fallback
}

func normalizeMethod(method string) string {
	return strings.ToLower(strings.TrimSpace(method))
}
