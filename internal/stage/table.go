package stage

import (
	"context"
	"fmt"
)

// Table maps stage names to their transforms. It is built once at startup
// and read concurrently afterwards.
type Table struct {
	transforms map[string]Transform
}

// NewTable registers transforms by their Name. Duplicate or unknown names
// are rejected.
func NewTable(transforms ...Transform) (*Table, error) {
	table := &Table{transforms: make(map[string]Transform, len(transforms))}
	for _, t := range transforms {
		if t == nil {
			continue
		}
		name := t.Name()
		if err := checkName(name); err != nil {
			return nil, err
		}
		if _, exists := table.transforms[name]; exists {
			return nil, fmt.Errorf("stage %s registered twice", name)
		}
		table.transforms[name] = t
	}
	return table, nil
}

// Lookup returns the transform for name.
func (t *Table) Lookup(name string) (Transform, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}
	if t == nil {
		return nil, fmt.Errorf("%w: %s has no transform", ErrUnknownStage, name)
	}
	transform, ok := t.transforms[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s has no transform", ErrUnknownStage, name)
	}
	return transform, nil
}

// Complete reports whether every pipeline stage has a transform.
func (t *Table) Complete() bool {
	if t == nil {
		return false
	}
	for _, name := range order {
		if _, ok := t.transforms[name]; !ok {
			return false
		}
	}
	return true
}

// Health returns each stage's health in pipeline order. Missing transforms
// are reported unhealthy.
func (t *Table) Health(ctx context.Context) []Health {
	out := make([]Health, 0, len(order))
	for _, name := range order {
		transform, err := t.Lookup(name)
		if err != nil {
			out = append(out, Unhealthy(name, "not registered"))
			continue
		}
		out = append(out, transform.HealthCheck(ctx))
	}
	return out
}
