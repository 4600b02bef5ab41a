package contractstatus

import (
	"context"
	"fmt"
	"strings"

	"github.com/kazuma-ddci/stella-crm-sub002/pkg/pipeline"
)

// Service changes contract statuses.
type Service struct {
	engine *pipeline.Engine
}

// NewService creates a Service on top of engine.
func NewService(engine *pipeline.Engine) *Service {
	return &Service{engine: engine}
}

// ChangeRequest moves one contract to a status.
type ChangeRequest struct {
	Namespace  string
	ContractID uint
	StatusID   uint
	Note       string
	Actor      *string
	// AlertAcknowledged records that the caller saw the re-open warning.
	AlertAcknowledged bool
}

// Statuses returns the contract statuses of a namespace in display order.
func (s *Service) Statuses(ctx context.Context, namespace string, includeInactive bool) ([]StatusDefinition, error) {
	states, err := s.engine.ListStates(ctx, namespace, pipeline.KindContract, includeInactive)
	if err != nil {
		return nil, err
	}
	out := make([]StatusDefinition, 0, len(states))
	for _, st := range states {
		def, err := FromState(st)
		if err != nil {
			return nil, err
		}
		out = append(out, def)
	}
	return out, nil
}

// AddStatus adds a status to the namespace's contract catalog.
func (s *Service) AddStatus(ctx context.Context, namespace string, def StatusDefinition) (*StatusDefinition, error) {
	created, err := s.engine.CreateState(ctx, namespace, pipeline.KindContract, ToState(def))
	if err != nil {
		return nil, err
	}
	out, err := FromState(*created)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Create registers a contract at its first status.
func (s *Service) Create(ctx context.Context, namespace, name string, statusID uint, actor *string) (*pipeline.ApplyResult, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("contract name is required: %w", pipeline.ErrInvalidRequest)
	}
	return s.engine.CreateSubject(ctx, pipeline.CreateSubjectRequest{
		Namespace: namespace,
		Kind:      pipeline.KindContract,
		Name:      name,
		Proposal:  pipeline.Proposal{StateID: statusID},
		Actor:     actor,
	})
}

// ChangeStatus moves a contract to req.StatusID. Re-opening a terminal
// contract needs a note; the engine blocks it otherwise.
func (s *Service) ChangeStatus(ctx context.Context, req ChangeRequest) (*pipeline.ApplyResult, error) {
	return s.engine.Apply(ctx, pipeline.ApplyRequest{
		Namespace: req.Namespace,
		Kind:      pipeline.KindContract,
		SubjectID: req.ContractID,
		Proposal: pipeline.Proposal{
			StateID: req.StatusID,
			Note:    req.Note,
		},
		Actor:             req.Actor,
		AlertAcknowledged: req.AlertAcknowledged,
	})
}

// History returns a contract's status history, newest first.
func (s *Service) History(ctx context.Context, namespace string, contractID uint) ([]pipeline.HistoryRecord, error) {
	return s.engine.History(ctx, namespace, pipeline.KindContract, contractID, false)
}
