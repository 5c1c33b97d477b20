package chatflow

import (
	"sort"
)

// DependencyResolver orders a workflow's steps so that every step appears
// after all entries in its DependsOn list
type DependencyResolver struct{}

// NewDependencyResolver creates a resolver
func NewDependencyResolver() *DependencyResolver {
	return &DependencyResolver{}
}

// Sort returns the steps in dependency order. Steps are visited depth-first
// in ascending Order; a step's dependencies are fully resolved before the
// step itself is appended. Returns a CircularDependencyError naming the
// offending step when the DependsOn edges form a cycle; no partial ordering
// is returned in that case.
func (r *DependencyResolver) Sort(steps []WorkflowStep) ([]WorkflowStep, error) {
	byID := make(map[string]WorkflowStep, len(steps))
	for _, s := range steps {
		byID[s.ID] = s
	}

	ordered := make([]WorkflowStep, len(steps))
	copy(ordered, steps)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Order < ordered[j].Order
	})

	visited := make(map[string]bool, len(steps))
	visiting := make(map[string]bool, len(steps))
	result := make([]WorkflowStep, 0, len(steps))

	var visit func(step WorkflowStep) error
	visit = func(step WorkflowStep) error {
		if visited[step.ID] {
			return nil
		}
		if visiting[step.ID] {
			return &CircularDependencyError{StepID: step.ID}
		}

		visiting[step.ID] = true
		for _, depID := range step.DependsOn {
			dep, ok := byID[depID]
			if !ok {
				// Unknown dependency ids are tolerated here; the step
				// executor skips the dependent step at run time.
				continue
			}
			if err := visit(dep); err != nil {
				return err
			}
		}
		delete(visiting, step.ID)

		visited[step.ID] = true
		result = append(result, step)
		return nil
	}

	for _, step := range ordered {
		if err := visit(step); err != nil {
			return nil, err
		}
	}

	return result, nil
}
