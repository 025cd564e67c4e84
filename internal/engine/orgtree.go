package engine

import (
	"github.com/acarin/missionmind/internal/store"
)

// OrgTree is an arena of org units addressed by ID. Parent references are
// followed by explicit iteration with a visited-set guard, so a cyclic input
// surfaces as a StructuralError instead of an infinite walk.
type OrgTree struct {
	units map[string]*store.OrgUnit
}

func NewOrgTree(units []*store.OrgUnit) *OrgTree {
	arena := make(map[string]*store.OrgUnit, len(units))
	for _, u := range units {
		arena[u.ID] = u
	}
	return &OrgTree{units: arena}
}

// Unit returns the org unit with the given ID, or nil if absent.
func (t *OrgTree) Unit(id string) *store.OrgUnit {
	return t.units[id]
}

// AncestorChain returns the IDs from id up to the root, starting with id
// itself. An unknown ID yields a single-element chain so callers degrade
// gracefully on partial snapshots.
func (t *OrgTree) AncestorChain(id string) ([]string, error) {
	chain := []string{id}
	visited := map[string]bool{id: true}

	current := t.units[id]
	for current != nil && current.ParentID != "" {
		parentID := current.ParentID
		if visited[parentID] {
			return nil, &StructuralError{Reason: "org hierarchy cycle at unit " + parentID}
		}
		visited[parentID] = true
		chain = append(chain, parentID)
		current = t.units[parentID]
	}
	return chain, nil
}

// AncestorDistance returns how many steps up the chain from id the unit
// ancestorID sits: 0 for id itself, -1 when ancestorID is not an ancestor.
func (t *OrgTree) AncestorDistance(id, ancestorID string) (int, error) {
	chain, err := t.AncestorChain(id)
	if err != nil {
		return 0, err
	}
	for i, u := range chain {
		if u == ancestorID {
			return i, nil
		}
	}
	return -1, nil
}

// IsAncestorOrSelf reports whether ancestorID appears on the parent chain of
// id, id included.
func (t *OrgTree) IsAncestorOrSelf(id, ancestorID string) (bool, error) {
	d, err := t.AncestorDistance(id, ancestorID)
	if err != nil {
		return false, err
	}
	return d >= 0, nil
}

// SubtreeIDs returns the IDs of rootID and every unit below it. The guard
// against revisiting handles malformed parent data the same way the upward
// walk does.
func (t *OrgTree) SubtreeIDs(rootID string) ([]string, error) {
	children := make(map[string][]string, len(t.units))
	for _, u := range t.units {
		if u.ParentID != "" {
			children[u.ParentID] = append(children[u.ParentID], u.ID)
		}
	}

	var out []string
	visited := make(map[string]bool)
	stack := []string{rootID}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[id] {
			return nil, &StructuralError{Reason: "org hierarchy cycle at unit " + id}
		}
		visited[id] = true
		out = append(out, id)
		stack = append(stack, children[id]...)
	}
	return out, nil
}
