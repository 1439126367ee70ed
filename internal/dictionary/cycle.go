package dictionary

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/noderepo/internal/ir"
)

// CycleWarning reports aspects that mandate each other.
//
// These are warnings, not errors: aspect composition runs as a worklist
// with a visited set, so a mandatory-aspect cycle terminates. It usually
// still means the model is not what the author intended.
type CycleWarning struct {
	Path    []string `json:"path"`
	Message string   `json:"message"`
	Level   string   `json:"level"`
}

// AnalyzeMandatoryAspects finds cycles in the mandatory-aspect graph
// (class -> aspects it mandates) using Tarjan's algorithm.
//
// An acyclic graph returns an empty list.
func AnalyzeMandatoryAspects(d *Dictionary) []CycleWarning {
	graph := make(aspectGraph)
	for _, q := range d.order {
		c := d.classes[q]
		if !c.Aspect {
			continue
		}
		graph[q] = append(graph[q], d.MandatoryAspectsOf(q)...)
	}

	var warnings []CycleWarning
	for _, scc := range tarjanSCC(graph, d.order) {
		if len(scc) == 1 && !slices.Contains(graph[scc[0]], scc[0]) {
			continue
		}
		path := make([]string, 0, len(scc)+1)
		for _, q := range scc {
			path = append(path, d.Prefixed(q))
		}
		slices.Sort(path)
		path = append(path, path[0])
		warnings = append(warnings, CycleWarning{
			Path:    path,
			Message: fmt.Sprintf("mandatory aspect cycle: %s", strings.Join(path, " → ")),
			Level:   "warning",
		})
	}
	return warnings
}

type aspectGraph map[ir.QName][]ir.QName

// tarjanSCC finds strongly connected components. Roots are visited in
// order so the result is deterministic.
func tarjanSCC(graph aspectGraph, order []ir.QName) [][]ir.QName {
	var (
		index   = 0
		stack   []ir.QName
		indices = make(map[ir.QName]int)
		lowlink = make(map[ir.QName]int)
		onStack = make(map[ir.QName]bool)
		sccs    [][]ir.QName
	)

	var strongConnect func(ir.QName)
	strongConnect = func(v ir.QName) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range graph[v] {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		if lowlink[v] == indices[v] {
			var scc []ir.QName
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			sccs = append(sccs, scc)
		}
	}

	for _, node := range order {
		if _, ok := graph[node]; !ok {
			continue
		}
		if _, visited := indices[node]; !visited {
			strongConnect(node)
		}
	}

	return sccs
}
