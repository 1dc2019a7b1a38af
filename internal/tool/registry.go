package tool

import "fmt"

// Card is the capability description the planner grounds its plans in.
type Card struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
}

// Registry is a fixed, named collection of tools, built once at startup and
// read-only afterwards.
type Registry struct {
	order []string
	tools map[string]Tool
}

// NewRegistry builds a registry from a fixed tool list. Duplicate names are
// a construction error.
func NewRegistry(tools ...Tool) (*Registry, error) {
	r := &Registry{tools: make(map[string]Tool, len(tools))}
	for _, t := range tools {
		name := t.Name()
		if name == "" {
			return nil, fmt.Errorf("tool with empty name")
		}
		if _, exists := r.tools[name]; exists {
			return nil, fmt.Errorf("duplicate tool name: %s", name)
		}
		r.tools[name] = t
		r.order = append(r.order, name)
	}
	return r, nil
}

// Lookup returns the tool registered under name.
func (r *Registry) Lookup(name string) (Tool, bool) {
	if r == nil {
		return nil, false
	}
	t, ok := r.tools[name]
	return t, ok
}

// DescribeAll returns capability cards in registration order.
func (r *Registry) DescribeAll() []Card {
	if r == nil {
		return nil
	}
	cards := make([]Card, 0, len(r.order))
	for _, name := range r.order {
		t := r.tools[name]
		cards = append(cards, Card{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.ParameterSchema(),
		})
	}
	return cards
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.order)
}
