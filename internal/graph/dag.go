package graph

import (
	"errors"
	"fmt"
	"strings"

	"github.com/fentz26/aiorg/internal/org"
)

var (
	// ErrCycle indicates a circular dependency was found in a template.
	ErrCycle = errors.New("circular dependency detected")
	// ErrUnknownStep indicates a step depends on a key the template does not define.
	ErrUnknownStep = errors.New("unknown template step")
	// ErrDuplicateStep indicates two steps share a key.
	ErrDuplicateStep = errors.New("duplicate template step")
)

// validateSteps checks keys are unique, every dependency resolves, and the
// dependency relation is acyclic.
func validateSteps(steps []org.Step) error {
	index := make(map[string]int, len(steps))
	for i, s := range steps {
		if s.Key == "" {
			return fmt.Errorf("step %d (%q) has no key: %w", i, s.Title, ErrUnknownStep)
		}
		if _, dup := index[s.Key]; dup {
			return fmt.Errorf("step %s: %w", s.Key, ErrDuplicateStep)
		}
		index[s.Key] = i
	}

	for _, s := range steps {
		for _, dep := range s.DependsOn {
			if _, ok := index[dep]; !ok {
				return fmt.Errorf("step %s depends on %s: %w", s.Key, dep, ErrUnknownStep)
			}
		}
	}

	// Color states: 0 = unvisited, 1 = on the current path, 2 = done.
	colors := make(map[string]int, len(steps))
	var path []string
	var visit func(key string) error
	visit = func(key string) error {
		colors[key] = 1
		path = append(path, key)
		for _, dep := range steps[index[key]].DependsOn {
			switch colors[dep] {
			case 1:
				return fmt.Errorf("%s -> %s: %w", strings.Join(path, " -> "), dep, ErrCycle)
			case 0:
				if err := visit(dep); err != nil {
					return err
				}
			}
		}
		path = path[:len(path)-1]
		colors[key] = 2
		return nil
	}

	// Steps are walked in declaration order so the reported cycle is stable.
	for _, s := range steps {
		if colors[s.Key] == 0 {
			if err := visit(s.Key); err != nil {
				return err
			}
		}
	}
	return nil
}
