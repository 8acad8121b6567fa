// Package pipeline sequences the daily content run. The stage registry fixes
// the execution order, the runner walks it through the stage executor and
// routes failures by severity, and the pre-publish decision engine turns the
// accumulated quality context into a publish verdict.
package pipeline

import (
	"fmt"
	"slices"

	"github.com/zerodaily/nexus/internal/pipeline/core"
)

// Registration binds a stage name to its implementation and execution
// budget.
type Registration struct {
	Name   string
	Stage  core.Stage
	Config core.StageConfig
}

// Registry fixes the stage set and order for a run. Registration order is
// execution order. Not safe for concurrent mutation; wire it up front.
type Registry struct {
	order   []string
	entries map[string]Registration
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]Registration)}
}

// Register appends a stage to the run order.
func (r *Registry) Register(reg Registration) error {
	if reg.Name == "" {
		return fmt.Errorf("stage name is required")
	}
	if reg.Stage == nil {
		return fmt.Errorf("stage %q: nil implementation", reg.Name)
	}
	if _, dup := r.entries[reg.Name]; dup {
		return fmt.Errorf("stage %q already registered", reg.Name)
	}
	r.entries[reg.Name] = reg
	r.order = append(r.order, reg.Name)
	return nil
}

// MustRegister is Register for wiring code, panicking on error.
func (r *Registry) MustRegister(reg Registration) {
	if err := r.Register(reg); err != nil {
		panic(err)
	}
}

// Order returns the execution order.
func (r *Registry) Order() []string {
	return slices.Clone(r.order)
}

// Lookup returns the registration for a stage name.
func (r *Registry) Lookup(name string) (Registration, bool) {
	reg, ok := r.entries[name]
	return reg, ok
}

// Has reports whether a stage name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.entries[name]
	return ok
}

// Index returns the position of name in the run order, -1 when absent.
func (r *Registry) Index(name string) int {
	return slices.Index(r.order, name)
}

// Len returns the number of registered stages.
func (r *Registry) Len() int {
	return len(r.order)
}
