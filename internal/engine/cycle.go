package engine

import "slices"

// lineage is the chain of instance ids from the root down to the current
// instance. A workflow starting a child whose id is already in its lineage
// would wait on itself forever.
type lineage []string

// child returns the lineage of a child of the last element.
func (l lineage) child(id string) lineage {
	out := make(lineage, len(l), len(l)+1)
	copy(out, l)
	return append(out, id)
}

// wouldCycle reports whether starting id under this lineage is a cycle.
func (l lineage) wouldCycle(id string) bool {
	return slices.Contains(l, id)
}

// root returns the top-level instance id.
func (l lineage) root() string {
	if len(l) == 0 {
		return ""
	}
	return l[0]
}
