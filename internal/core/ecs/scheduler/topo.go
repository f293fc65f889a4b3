package scheduler

import (
	"fmt"

	"simkernel/internal/core/ecs"
)

// buildExecutionOrders groups systems by phase and topologically sorts
// each phase's run-after/run-before graph via Kahn's algorithm,
// failing with CircularDependency at registration time (before the
// first frame) if any phase's graph has a cycle.
//
// Grounded on the teacher's SystemManagerImpl dependency/dependents
// maps (system_manager.go), generalized from its ad hoc DFS
// cycle-check to the in-degree queue Kahn's algorithm spec.md names
// explicitly.
func buildExecutionOrders(systems []System) (map[ecs.Phase][]System, error) {
	byPhase := make(map[ecs.Phase][]System)
	for _, s := range systems {
		byPhase[s.Phase] = append(byPhase[s.Phase], s)
	}

	orders := make(map[ecs.Phase][]System, len(byPhase))
	for phase, phaseSystems := range byPhase {
		sorted, err := topoSortPhase(phaseSystems)
		if err != nil {
			return nil, fmt.Errorf("phase %s: %w", phase, err)
		}
		orders[phase] = sorted
	}
	return orders, nil
}

func topoSortPhase(systems []System) ([]System, error) {
	byName := make(map[string]System, len(systems))
	for _, s := range systems {
		byName[s.Name] = s
	}

	// dependencies[x] = systems that must run before x.
	dependencies := make(map[string]map[string]bool, len(systems))
	for _, s := range systems {
		dependencies[s.Name] = make(map[string]bool)
	}
	for _, s := range systems {
		for _, after := range s.RunAfter {
			if _, ok := byName[after]; ok {
				dependencies[s.Name][after] = true
			}
		}
		for _, before := range s.RunBefore {
			if _, ok := byName[before]; ok {
				dependencies[before][s.Name] = true
			}
		}
	}

	inDegree := make(map[string]int, len(systems))
	dependents := make(map[string][]string, len(systems))
	for name, deps := range dependencies {
		inDegree[name] = len(deps)
		for dep := range deps {
			dependents[dep] = append(dependents[dep], name)
		}
	}

	var queue []string
	for _, s := range systems {
		if inDegree[s.Name] == 0 {
			queue = append(queue, s.Name)
		}
	}

	var order []System
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		order = append(order, byName[name])
		for _, dependent := range dependents[name] {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				queue = append(queue, dependent)
			}
		}
	}

	if len(order) != len(systems) {
		return nil, ecs.ErrCircularDependency
	}
	return order, nil
}
