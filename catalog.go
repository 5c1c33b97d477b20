package chatflow

import (
	"fmt"
)

// Catalog is the static registry of workflow definitions. It is loaded once
// during process initialization and never mutated at runtime.
type Catalog struct {
	byID  map[string]WorkflowDefinition
	order []string
}

// NewCatalog creates a catalog from a fixed set of definitions. Duplicate
// workflow ids are rejected.
func NewCatalog(defs ...WorkflowDefinition) (*Catalog, error) {
	c := &Catalog{
		byID:  make(map[string]WorkflowDefinition, len(defs)),
		order: make([]string, 0, len(defs)),
	}
	for _, def := range defs {
		if def.ID == "" {
			return nil, fmt.Errorf("workflow definition %q has no id", def.Name)
		}
		if _, exists := c.byID[def.ID]; exists {
			return nil, fmt.Errorf("duplicate workflow definition %s", def.ID)
		}
		c.byID[def.ID] = def
		c.order = append(c.order, def.ID)
	}
	return c, nil
}

// MustNewCatalog creates a catalog, panicking on error. Intended for
// compiled-in catalogs assembled at process start.
func MustNewCatalog(defs ...WorkflowDefinition) *Catalog {
	c, err := NewCatalog(defs...)
	if err != nil {
		panic(fmt.Sprintf("invalid workflow catalog: %v", err))
	}
	return c
}

// Get retrieves a workflow definition by id
func (c *Catalog) Get(id string) (WorkflowDefinition, bool) {
	def, ok := c.byID[id]
	return def, ok
}

// All returns every definition in registration order
func (c *Catalog) All() []WorkflowDefinition {
	out := make([]WorkflowDefinition, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.byID[id])
	}
	return out
}

// Active returns the active definitions in registration order
func (c *Catalog) Active() []WorkflowDefinition {
	var out []WorkflowDefinition
	for _, id := range c.order {
		if def := c.byID[id]; def.Active {
			out = append(out, def)
		}
	}
	return out
}
