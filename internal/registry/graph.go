// graph implements cycle detection over a composition's dependency
// adjacency list as an iterative stack-based DFS, per spec.md §9's
// explicit direction to avoid unbounded recursion depth for large
// compositions (replacing the source's recursive three-color DFS).
package registry

import aerrors "github.com/PayRpc/a2a-fabric/internal/errors"

type visitState int

const (
	unvisited visitState = iota
	inProgress
	done
)

// frame is one entry on the explicit DFS stack: the node being visited and
// how far through its neighbor list the walk has progressed.
type frame struct {
	node     string
	nextEdge int
}

// detectCycle walks adj (capability id -> dependency ids) iteratively,
// returning the first cycle found as a path of capability ids, or nil if
// the graph is acyclic.
func detectCycle(adj map[string][]string) []string {
	state := make(map[string]visitState, len(adj))

	roots := make([]string, 0, len(adj))
	for n := range adj {
		roots = append(roots, n)
	}

	var stack []frame
	for _, root := range roots {
		if state[root] != unvisited {
			continue
		}
		stack = append(stack, frame{node: root})
		state[root] = inProgress

		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			neighbors := adj[top.node]

			if top.nextEdge >= len(neighbors) {
				state[top.node] = done
				stack = stack[:len(stack)-1]
				continue
			}

			next := neighbors[top.nextEdge]
			top.nextEdge++

			switch state[next] {
			case unvisited:
				state[next] = inProgress
				stack = append(stack, frame{node: next})
			case inProgress:
				// Found a back-edge: reconstruct the cycle from the stack.
				path := make([]string, 0, len(stack)+1)
				start := 0
				for i, f := range stack {
					if f.node == next {
						start = i
						break
					}
				}
				for _, f := range stack[start:] {
					path = append(path, f.node)
				}
				path = append(path, next)
				return path
			case done:
				// already fully explored, no cycle through here
			}
		}
	}
	return nil
}

// validateAcyclic returns a validation error naming the cycle if adj
// contains one.
func validateAcyclic(adj map[string][]string) error {
	if cycle := detectCycle(adj); cycle != nil {
		return aerrors.New(aerrors.TypeValidation, "registry.graph", "dependency graph contains a cycle").
			WithContext("cycle", cycle)
	}
	return nil
}
