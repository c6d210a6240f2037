package tool

import (
	"errors"
	"fmt"
	"regexp"
	"sync"
)

var (
	// ErrDuplicateToolName is returned when a name is registered twice.
	ErrDuplicateToolName = errors.New("duplicate tool name")
	// ErrInvalidSpec is returned for an unusable tool declaration.
	ErrInvalidSpec = errors.New("invalid tool spec")
	// ErrToolNotFound is returned by Get for an unregistered name.
	ErrToolNotFound = errors.New("tool not found")
	// ErrRegistryFrozen is returned by Register after Freeze.
	ErrRegistryFrozen = errors.New("tool registry is frozen")
)

var toolNamePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)

// Registry is the catalog of tools offered to the model. Iteration order is
// registration order. Once frozen the registry is immutable.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]Tool
	order  []string
	frozen bool
}

// NewRegistry creates a registry pre-populated with tools. It fails on the
// first invalid or duplicate declaration.
func NewRegistry(tools ...Tool) (*Registry, error) {
	r := &Registry{tools: make(map[string]Tool)}
	for _, t := range tools {
		if err := r.Register(t); err != nil {
			return nil, err
		}
	}

	return r, nil
}

// Register validates and adds t.
func (r *Registry) Register(t Tool) error {
	if err := validateTool(t); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return ErrRegistryFrozen
	}

	if r.tools == nil {
		r.tools = make(map[string]Tool)
	}

	name := t.Name()
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateToolName, name)
	}

	r.tools[name] = t
	r.order = append(r.order, name)

	return nil
}

// Freeze makes the registry immutable.
func (r *Registry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.frozen = true
}

// Get returns the tool registered under name.
func (r *Registry) Get(name string) (Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}

	return t, nil
}

// List returns every declaration in registration order.
func (r *Registry) List() []Spec {
	r.mu.RLock()
	defer r.mu.RUnlock()

	specs := make([]Spec, 0, len(r.order))
	for _, name := range r.order {
		specs = append(specs, SpecOf(r.tools[name]))
	}

	return specs
}

// Tools returns the registered tools in registration order.
func (r *Registry) Tools() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Tool, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name])
	}

	return out
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.order)
}

func validateTool(t Tool) error {
	if t == nil {
		return fmt.Errorf("%w: nil tool", ErrInvalidSpec)
	}

	if !toolNamePattern.MatchString(t.Name()) {
		return fmt.Errorf("%w: name %q must match %s", ErrInvalidSpec, t.Name(), toolNamePattern)
	}

	schema := t.Parameters()
	if schema == nil {
		return fmt.Errorf("%w: %s has no input schema", ErrInvalidSpec, t.Name())
	}

	if typ, _ := schema["type"].(string); typ != "object" {
		return fmt.Errorf("%w: %s input schema must be of type object", ErrInvalidSpec, t.Name())
	}

	return nil
}
