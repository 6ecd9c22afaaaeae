package rpc

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

// MaxMethodNameLen is the method field size on the wire, including the terminator.
const MaxMethodNameLen = 32

var (
	ErrInvalidMethodName = errors.New("rpc: invalid method name")
	ErrMethodExists      = errors.New("rpc: method already registered")
	ErrHandlerNil        = errors.New("rpc: handler is nil")
)

// Handler serves one method. It drains parameters from in and seals out.
type Handler interface {
	ServeRPC(ctx context.Context, in *Cursor, out *Results)
}

type HandlerFunc func(ctx context.Context, in *Cursor, out *Results)

func (f HandlerFunc) ServeRPC(ctx context.Context, in *Cursor, out *Results) {
	f(ctx, in, out)
}

// Method binds a wire name to its handler.
type Method struct {
	Name    string
	Handler Handler
}

// Registry is the immutable method-name to handler mapping.
type Registry struct {
	handlers map[string]Handler
	limits   Limits
}

// NewRegistry validates methods and freezes them into a registry.
func NewRegistry(limits Limits, methods ...Method) (*Registry, error) {
	handlers := make(map[string]Handler, len(methods))
	for _, m := range methods {
		if err := ValidateMethodName(m.Name); err != nil {
			return nil, err
		}
		if m.Handler == nil {
			return nil, fmt.Errorf("%w: %s", ErrHandlerNil, m.Name)
		}
		if _, ok := handlers[m.Name]; ok {
			return nil, fmt.Errorf("%w: %s", ErrMethodExists, m.Name)
		}
		handlers[m.Name] = m.Handler
	}
	return &Registry{handlers: handlers, limits: limits}, nil
}

// ValidateMethodName checks that name fits the wire method field.
func ValidateMethodName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty", ErrInvalidMethodName)
	}
	if len(name) >= MaxMethodNameLen {
		return fmt.Errorf("%w: %q exceeds %d bytes", ErrInvalidMethodName, name, MaxMethodNameLen-1)
	}
	for i := 0; i < len(name); i++ {
		if name[i] == 0 {
			return fmt.Errorf("%w: embedded NUL", ErrInvalidMethodName)
		}
	}
	return nil
}

func (r *Registry) Lookup(name string) (Handler, bool) {
	h, ok := r.handlers[name]
	return h, ok
}

// Methods returns the registered names in deterministic order.
func (r *Registry) Methods() []string {
	out := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (r *Registry) Len() int {
	return len(r.handlers)
}
