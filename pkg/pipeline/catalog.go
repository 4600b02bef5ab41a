package pipeline

import (
	"cmp"
	"slices"
)

// StateCatalog is an ordered, read-only view of a tenant's state definitions.
// Order is (DisplayOrder ASC NULLS LAST, ID ASC).
type StateCatalog struct {
	states   []StateDefinition
	position map[uint]int
}

// NewStateCatalog copies and orders the given definitions.
func NewStateCatalog(defs []StateDefinition) *StateCatalog {
	states := slices.Clone(defs)
	slices.SortStableFunc(states, compareDefinitions)

	position := make(map[uint]int, len(states))
	for i, s := range states {
		position[s.ID] = i
	}
	return &StateCatalog{states: states, position: position}
}

func compareDefinitions(a, b StateDefinition) int {
	switch {
	case a.DisplayOrder == nil && b.DisplayOrder == nil:
		return cmp.Compare(a.ID, b.ID)
	case a.DisplayOrder == nil:
		return 1
	case b.DisplayOrder == nil:
		return -1
	}
	if c := cmp.Compare(*a.DisplayOrder, *b.DisplayOrder); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}

// States returns the ordered definitions.
func (c *StateCatalog) States() []StateDefinition {
	if c == nil {
		return nil
	}
	return slices.Clone(c.states)
}

// Len returns the number of states in the catalog.
func (c *StateCatalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.states)
}

// Get looks up a state by ID.
func (c *StateCatalog) Get(id uint) (StateDefinition, bool) {
	if c == nil {
		return StateDefinition{}, false
	}
	i, ok := c.position[id]
	if !ok {
		return StateDefinition{}, false
	}
	return c.states[i], true
}

// Position returns the index of a state in catalog order, or -1.
func (c *StateCatalog) Position(id uint) int {
	if c == nil {
		return -1
	}
	if i, ok := c.position[id]; ok {
		return i
	}
	return -1
}

// Compare orders two states by catalog position. Unknown states sort last.
func (c *StateCatalog) Compare(a, b uint) int {
	pa, pb := c.Position(a), c.Position(b)
	if pa < 0 {
		pa = c.Len()
	}
	if pb < 0 {
		pb = c.Len()
	}
	return cmp.Compare(pa, pb)
}

// Category returns the category of a state, defaulting to normal for unknown IDs.
func (c *StateCatalog) Category(id uint) StateCategory {
	if s, ok := c.Get(id); ok {
		return s.Category
	}
	return CategoryNormal
}
