// Package contractstatus runs contract statuses through the transition
// engine. A contract status is either open or terminal, so the catalog only
// ever holds normal and won states and no commitment is ever recorded.
package contractstatus

import (
	"fmt"

	"github.com/kazuma-ddci/stella-crm-sub002/pkg/pipeline"
)

// StatusDefinition is one contract status as administrators see it.
type StatusDefinition struct {
	ID           uint   `json:"id"`
	Name         string `json:"name"`
	DisplayOrder *int   `json:"displayOrder,omitempty"`
	IsTerminal   bool   `json:"isTerminal"`
	IsActive     bool   `json:"isActive"`
}

// ToState maps a status to its catalog state.
func ToState(s StatusDefinition) pipeline.StateDefinition {
	category := pipeline.CategoryNormal
	if s.IsTerminal {
		category = pipeline.CategoryWon
	}
	return pipeline.StateDefinition{
		ID:           s.ID,
		Name:         s.Name,
		DisplayOrder: s.DisplayOrder,
		Category:     category,
		IsActive:     s.IsActive,
	}
}

// FromState maps a catalog state back to a status. States outside the binary
// machine are rejected.
func FromState(d pipeline.StateDefinition) (StatusDefinition, error) {
	switch d.Category {
	case pipeline.CategoryNormal, pipeline.CategoryWon:
	default:
		return StatusDefinition{}, fmt.Errorf("contract status %q has category %q: %w", d.Name, d.Category, pipeline.ErrInvalidRequest)
	}
	return StatusDefinition{
		ID:           d.ID,
		Name:         d.Name,
		DisplayOrder: d.DisplayOrder,
		IsTerminal:   d.Category == pipeline.CategoryWon,
		IsActive:     d.IsActive,
	}, nil
}

// ValidateSeeds checks that a contract catalog seed only uses open and
// terminal states.
func ValidateSeeds(seeds []pipeline.StateSeed) error {
	for _, s := range seeds {
		switch s.Category {
		case "", pipeline.CategoryNormal, pipeline.CategoryWon:
		default:
			return fmt.Errorf("contract status %q: category %q is not allowed", s.Name, s.Category)
		}
		if s.Checkpoint || s.StaleAfterDays != nil {
			return fmt.Errorf("contract status %q: checkpoint and staleness are not supported", s.Name)
		}
	}
	return nil
}
