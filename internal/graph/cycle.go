package graph

type color uint8

const (
	white color = iota // unvisited
	grey               // on the current path
	black              // finished
)

// frame is one level of the explicit DFS stack: a vertex and the index of
// the next outgoing edge to follow.
type frame[K comparable] struct {
	key  K
	next int
}

// HasCycle reports whether any directed cycle exists. Self-edges count.
func (g *Graph[K, V]) HasCycle() bool {
	return g.FindCycle() != nil
}

// FindCycle returns the vertices of one cycle in path order, with the first
// vertex repeated at the end, or nil when the graph is acyclic. Roots are
// tried in insertion order, so the result is deterministic.
func (g *Graph[K, V]) FindCycle() []K {
	colors := make(map[K]color, len(g.order))
	for _, root := range g.order {
		if colors[root] != white {
			continue
		}
		stack := []frame[K]{{key: root}}
		colors[root] = grey
		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			succ := g.adj[top.key]
			if top.next == len(succ) {
				colors[top.key] = black
				stack = stack[:len(stack)-1]
				continue
			}
			to := succ[top.next]
			top.next++
			switch colors[to] {
			case grey:
				return cyclePath(stack, to)
			case white:
				colors[to] = grey
				stack = append(stack, frame[K]{key: to})
			}
		}
	}
	return nil
}

// cyclePath extracts the cycle closed by an edge back to the grey vertex to.
func cyclePath[K comparable](stack []frame[K], to K) []K {
	start := len(stack) - 1
	for start > 0 && stack[start].key != to {
		start--
	}
	path := make([]K, 0, len(stack)-start+1)
	for _, f := range stack[start:] {
		path = append(path, f.key)
	}
	return append(path, to)
}
