// Package graph implements the Kahn's-algorithm level-sort shared by the
// subtask decomposer and the orchestrator: both need to turn a node set
// with "depends on" edges into topologically ordered levels where every
// node in a level depends only on nodes in earlier levels.
package graph

import (
	"fmt"
	"sort"
)

// Node is one item in a dependency graph: ID must be unique within the set
// passed to Sort, and DependsOn must name only IDs present in that set.
type Node struct {
	ID        string
	DependsOn []string
}

// CycleError reports that the node set contains a dependency cycle, naming
// the nodes that could never be scheduled because of it.
type CycleError struct {
	Remaining []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("graph: dependency cycle detected among nodes %v", e.Remaining)
}

// Sort partitions nodes into levels: level k contains every node whose
// dependencies are all satisfied by levels < k. Each level's IDs are
// sorted for determinism. An unknown dependency or a cycle is an error.
func Sort(nodes []Node) ([][]string, error) {
	if len(nodes) == 0 {
		return nil, nil
	}

	indegree := make(map[string]int, len(nodes))
	dependents := make(map[string][]string, len(nodes))
	known := make(map[string]bool, len(nodes))

	for _, n := range nodes {
		if n.ID == "" {
			return nil, fmt.Errorf("graph: node id cannot be empty")
		}
		if known[n.ID] {
			return nil, fmt.Errorf("graph: duplicate node id %q", n.ID)
		}
		known[n.ID] = true
		indegree[n.ID] = 0
	}

	for _, n := range nodes {
		for _, dep := range n.DependsOn {
			if dep == "" || dep == n.ID {
				continue
			}
			if !known[dep] {
				return nil, fmt.Errorf("graph: node %q depends on unknown node %q", n.ID, dep)
			}
			indegree[n.ID]++
			dependents[dep] = append(dependents[dep], n.ID)
		}
	}

	var ready []string
	for id, deg := range indegree {
		if deg == 0 {
			ready = append(ready, id)
		}
	}
	sort.Strings(ready)

	var levels [][]string
	processed := 0
	for len(ready) > 0 {
		level := append([]string(nil), ready...)
		levels = append(levels, level)

		var next []string
		for _, id := range level {
			processed++
			for _, dependent := range dependents[id] {
				indegree[dependent]--
				if indegree[dependent] == 0 {
					next = append(next, dependent)
				}
			}
		}
		sort.Strings(next)
		ready = next
	}

	if processed != len(nodes) {
		var remaining []string
		for id, deg := range indegree {
			if deg > 0 {
				remaining = append(remaining, id)
			}
		}
		sort.Strings(remaining)
		return nil, &CycleError{Remaining: remaining}
	}

	return levels, nil
}
