package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kazuma-ddci/stella-crm-sub002/pkg/cache"
)

// Engine owns every write to subjects and their history.
type Engine struct {
	repo     Repository
	cfg      *EngineConfig
	excluded mapset.Set[EventType]
	logger   *zap.Logger
	metrics  *Metrics
	now      func() time.Time
	catalogs *cache.LRUCache[catalogKey, *StateCatalog]
}

type catalogKey struct {
	namespace string
	kind      SubjectKind
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithMetrics sets the engine collectors.
func WithMetrics(m *Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithCatalogCache keeps active catalogs in memory for ttl. Catalog edits made
// through the engine invalidate the entry at once; edits made elsewhere show
// up after ttl.
func WithCatalogCache(ttl time.Duration, maxSize int) Option {
	return func(e *Engine) { e.catalogs = cache.NewLRUCache[catalogKey, *StateCatalog](maxSize, ttl) }
}

// NewEngine creates an engine on repo. A nil cfg uses DefaultEngineConfig.
func NewEngine(repo Repository, cfg *EngineConfig, opts ...Option) *Engine {
	if cfg == nil {
		cfg = DefaultEngineConfig()
	}
	e := &Engine{
		repo:     repo,
		cfg:      cfg,
		excluded: cfg.ExcludedSet(),
		logger:   zap.NewNop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ApplyRequest asks the engine to move a subject to a proposed position.
type ApplyRequest struct {
	Namespace         string
	Kind              SubjectKind
	SubjectID         uint
	Proposal          Proposal
	Actor             *string
	AlertAcknowledged bool
}

// ApplyResult is the outcome of a write that reached the decision stage.
type ApplyResult struct {
	Success bool            `json:"success"`
	Outcome Outcome         `json:"outcome"`
	Events  []DetectedEvent `json:"events"`
	Alerts  []Alert         `json:"alerts"`
	Error   string          `json:"error,omitempty"`
	Subject *SubjectRecord  `json:"-"`
	History []HistoryRecord `json:"-"`
}

// Err returns the result as a TransitionError, or nil when it was applied.
func (r *ApplyResult) Err() error {
	switch r.Outcome {
	case OutcomeNoChange:
		return &TransitionError{Code: CodeNoChange, Message: r.Error}
	case OutcomeValidationBlocked:
		return &TransitionError{Code: CodeValidationBlocked, Message: r.Error, Alerts: r.Alerts}
	}
	return nil
}

// PreviewResult is the detector and validator output for a proposal without
// any write.
type PreviewResult struct {
	Detection  DetectionResult  `json:"detection"`
	Validation ValidationResult `json:"validation"`
}

const noChangeMessage = "nothing changed"

// evaluation is one pass of detector plus validator over loaded data.
type evaluation struct {
	detection  DetectionResult
	validation ValidationResult
}

func (e *Engine) evaluate(prev Snapshot, prop Proposal, catalog *StateCatalog, history []HistoryRecord, now time.Time) evaluation {
	det := DetectEvents(DetectInput{Previous: prev, Proposed: prop, Catalog: catalog, Now: now})
	val := ValidateTransition(ValidateInput{
		Previous:          prev,
		Proposed:          prop,
		Catalog:           catalog,
		Detection:         det,
		History:           history,
		Now:               now,
		RequireLostReason: e.cfg.RequireLostReason,
	})
	return evaluation{detection: det, validation: val}
}

// Apply runs the detector and validator and, when the proposal is accepted,
// writes one history row per event and the new subject projection in one
// transaction. NoChange and ValidationBlocked are returned as results with
// a nil error; lookups, conflicts and storage failures are errors.
func (e *Engine) Apply(ctx context.Context, req ApplyRequest) (*ApplyResult, error) {
	var result *ApplyResult
	err := e.repo.Transaction(ctx, func(repo Repository) error {
		subject, err := repo.GetSubject(ctx, req.Namespace, req.Kind, req.SubjectID)
		if err != nil {
			return err
		}
		history, err := repo.ListHistory(ctx, req.Namespace, subject.ID, false)
		if err != nil {
			return err
		}
		catalog, err := e.loadCatalog(ctx, repo, req.Namespace, req.Kind)
		if err != nil {
			return err
		}
		if err := resolveProposal(catalog, req.Proposal); err != nil {
			return err
		}

		now := e.now()
		prev := subject.Snapshot()
		ev := e.evaluate(prev, req.Proposal, catalog, history, now)
		if res := e.decide(ev); res != nil {
			result = res
			return nil
		}

		rows := e.buildRows(req.Namespace, subject.ID, ev, req.Proposal.Note, req.Actor, req.AlertAcknowledged, now)
		if err := repo.AppendHistory(ctx, rows); err != nil {
			return err
		}
		version := subject.Version
		applySideEffects(subject, prev, req.Proposal, ev.detection, catalog)
		if err := repo.UpdateSubject(ctx, subject, version); err != nil {
			return err
		}
		result = appliedResult(ev, subject, rows)
		return nil
	})
	if err != nil {
		return nil, e.failed("transition", req.Kind, req.SubjectID, err)
	}
	e.record("transition", req.Kind, req.SubjectID, result)
	return result, nil
}

// Preview returns what Apply would detect and validate, without writing.
func (e *Engine) Preview(ctx context.Context, namespace string, kind SubjectKind, subjectID uint, prop Proposal) (*PreviewResult, error) {
	subject, err := e.repo.GetSubject(ctx, namespace, kind, subjectID)
	if err != nil {
		return nil, storageFailure("preview", err)
	}
	history, err := e.repo.ListHistory(ctx, namespace, subject.ID, false)
	if err != nil {
		return nil, storageFailure("preview", err)
	}
	catalog, err := e.loadCatalog(ctx, e.repo, namespace, kind)
	if err != nil {
		return nil, storageFailure("preview", err)
	}
	if err := resolveProposal(catalog, prop); err != nil {
		return nil, err
	}
	ev := e.evaluate(subject.Snapshot(), prop, catalog, history, e.now())
	return &PreviewResult{Detection: ev.detection, Validation: ev.validation}, nil
}

// CreateSubjectRequest creates a subject at its first position.
type CreateSubjectRequest struct {
	Namespace         string
	Kind              SubjectKind
	Name              string
	Proposal          Proposal
	Actor             *string
	AlertAcknowledged bool
}

// CreateSubject inserts a subject together with its created row and, when a
// commitment is supplied, its committed row.
func (e *Engine) CreateSubject(ctx context.Context, req CreateSubjectRequest) (*ApplyResult, error) {
	if strings.TrimSpace(req.Name) == "" {
		return nil, fmt.Errorf("subject name is required: %w", ErrInvalidRequest)
	}
	if !req.Kind.Valid() {
		return nil, fmt.Errorf("unknown subject kind %q: %w", req.Kind, ErrInvalidRequest)
	}

	var result *ApplyResult
	err := e.repo.Transaction(ctx, func(repo Repository) error {
		catalog, err := e.loadCatalog(ctx, repo, req.Namespace, req.Kind)
		if err != nil {
			return err
		}
		if err := resolveProposal(catalog, req.Proposal); err != nil {
			return err
		}

		now := e.now()
		ev := e.evaluate(Snapshot{}, req.Proposal, catalog, nil, now)
		if res := e.decide(ev); res != nil {
			result = res
			return nil
		}

		subject := &SubjectRecord{Namespace: req.Namespace, Kind: req.Kind, Name: req.Name}
		applySideEffects(subject, Snapshot{}, req.Proposal, ev.detection, catalog)
		if err := repo.CreateSubject(ctx, subject); err != nil {
			return err
		}
		rows := e.buildRows(req.Namespace, subject.ID, ev, req.Proposal.Note, req.Actor, req.AlertAcknowledged, now)
		if err := repo.AppendHistory(ctx, rows); err != nil {
			return err
		}
		result = appliedResult(ev, subject, rows)
		return nil
	})
	if err != nil {
		return nil, e.failed("create", req.Kind, 0, err)
	}
	var id uint
	if result.Subject != nil {
		id = result.Subject.ID
	}
	e.record("create", req.Kind, id, result)
	return result, nil
}

// GetSubject loads one subject.
func (e *Engine) GetSubject(ctx context.Context, namespace string, kind SubjectKind, id uint) (*SubjectRecord, error) {
	subject, err := e.repo.GetSubject(ctx, namespace, kind, id)
	if err != nil {
		return nil, storageFailure("get subject", err)
	}
	return subject, nil
}

// History returns a subject's rows, newest first.
func (e *Engine) History(ctx context.Context, namespace string, kind SubjectKind, subjectID uint, includeVoided bool) ([]HistoryRecord, error) {
	if _, err := e.repo.GetSubject(ctx, namespace, kind, subjectID); err != nil {
		return nil, storageFailure("list history", err)
	}
	rows, err := e.repo.ListHistory(ctx, namespace, subjectID, includeVoided)
	if err != nil {
		return nil, storageFailure("list history", err)
	}
	return rows, nil
}

// VoidRequest retracts one history row.
type VoidRequest struct {
	Namespace string
	HistoryID uint
	Actor     *string
}

// VoidHistory flags exactly one row as voided. The subject projection is not
// recomputed. Voiding an already voided row reports ErrNotFound.
func (e *Engine) VoidHistory(ctx context.Context, req VoidRequest) (*HistoryRecord, error) {
	var row *HistoryRecord
	err := e.repo.Transaction(ctx, func(repo Repository) error {
		existing, err := repo.GetHistory(ctx, req.Namespace, req.HistoryID)
		if err != nil {
			return err
		}
		if existing.IsVoided {
			return notFound("active history record", req.HistoryID)
		}
		actor := e.actor(req.Actor)
		at := e.now()
		if err := repo.VoidHistory(ctx, req.Namespace, req.HistoryID, actor, at); err != nil {
			return err
		}
		existing.IsVoided = true
		existing.VoidedAt = &at
		existing.VoidedBy = &actor
		row = existing
		return nil
	})
	if err != nil {
		e.metrics.observeMutation("void", "", "error")
		return nil, storageFailure("void history", err)
	}
	e.metrics.observeMutation("void", "", string(OutcomeApplied))
	e.logger.Info("history voided",
		zap.Uint("history_id", row.ID),
		zap.Uint("subject_id", row.SubjectID),
		zap.String("event_type", string(row.EventType)),
		zap.String("voided_by", *row.VoidedBy))
	return row, nil
}

// Statistics loads a subject and reconstructs its statistics.
func (e *Engine) Statistics(ctx context.Context, namespace string, kind SubjectKind, subjectID uint) (*Statistics, error) {
	subject, err := e.repo.GetSubject(ctx, namespace, kind, subjectID)
	if err != nil {
		return nil, storageFailure("statistics", err)
	}
	history, err := e.repo.ListHistory(ctx, namespace, subject.ID, false)
	if err != nil {
		return nil, storageFailure("statistics", err)
	}
	st := ComputeStatistics(StatisticsInput{
		History:        history,
		CurrentStateID: subject.CurrentStateID,
		Excluded:       e.excluded,
		Now:            e.now(),
	})
	return &st, nil
}

// StaleSubject is a subject whose staleness alert fired.
type StaleSubject struct {
	Subject SubjectRecord
	Alert   Alert
}

// StaleSubjects lists the subjects of a kind that sit in a state with a
// staleness threshold for at least that many days.
func (e *Engine) StaleSubjects(ctx context.Context, namespace string, kind SubjectKind) ([]StaleSubject, error) {
	catalog, err := e.loadCatalog(ctx, e.repo, namespace, kind)
	if err != nil {
		return nil, storageFailure("stale subjects", err)
	}
	var watched []uint
	for _, s := range catalog.States() {
		if s.StaleAfterDays != nil {
			watched = append(watched, s.ID)
		}
	}
	subjects, err := e.repo.ListSubjectsInStates(ctx, namespace, kind, watched)
	if err != nil {
		return nil, storageFailure("stale subjects", err)
	}

	now := e.now()
	out := []StaleSubject{}
	for _, subj := range subjects {
		history, err := e.repo.ListHistory(ctx, namespace, subj.ID, false)
		if err != nil {
			return nil, storageFailure("stale subjects", err)
		}
		alert, ok := StalenessAlert(StalenessInput{
			CurrentStateID: subj.CurrentStateID,
			Catalog:        catalog,
			History:        history,
			Now:            now,
		})
		if ok {
			out = append(out, StaleSubject{Subject: subj, Alert: alert})
		}
	}
	return out, nil
}

// ListStates returns a catalog in display order.
func (e *Engine) ListStates(ctx context.Context, namespace string, kind SubjectKind, includeInactive bool) ([]StateDefinition, error) {
	recs, err := e.repo.ListStates(ctx, namespace, kind, includeInactive)
	if err != nil {
		return nil, storageFailure("list states", err)
	}
	defs := make([]StateDefinition, len(recs))
	for i, r := range recs {
		defs[i] = r.Definition()
	}
	return defs, nil
}

// CreateState adds a state to a catalog.
func (e *Engine) CreateState(ctx context.Context, namespace string, kind SubjectKind, def StateDefinition) (*StateDefinition, error) {
	if strings.TrimSpace(def.Name) == "" {
		return nil, fmt.Errorf("state name is required: %w", ErrInvalidRequest)
	}
	if def.Category == "" {
		def.Category = CategoryNormal
	}
	rec := &StateDefinitionRecord{
		Namespace:      namespace,
		Kind:           kind,
		Name:           def.Name,
		DisplayOrder:   def.DisplayOrder,
		Category:       def.Category,
		IsActive:       def.IsActive,
		Checkpoint:     def.Checkpoint,
		StaleAfterDays: def.StaleAfterDays,
	}
	if err := e.repo.CreateState(ctx, rec); err != nil {
		return nil, storageFailure("create state", err)
	}
	if e.catalogs != nil {
		e.catalogs.Invalidate(catalogKey{namespace: normalizeNamespace(namespace), kind: kind})
	}
	out := rec.Definition()
	return &out, nil
}

// decide turns a no-op or blocked evaluation into its result.
func (e *Engine) decide(ev evaluation) *ApplyResult {
	if !ev.detection.HasChanges {
		return &ApplyResult{
			Outcome: OutcomeNoChange,
			Events:  ev.detection.Events,
			Alerts:  ev.validation.Alerts,
			Error:   noChangeMessage,
		}
	}
	if !ev.validation.IsValid {
		return &ApplyResult{
			Outcome: OutcomeValidationBlocked,
			Events:  ev.detection.Events,
			Alerts:  ev.validation.Alerts,
			Error:   ev.validation.BlockingMessage(),
		}
	}
	return nil
}

func appliedResult(ev evaluation, subject *SubjectRecord, rows []HistoryRecord) *ApplyResult {
	return &ApplyResult{
		Success: true,
		Outcome: OutcomeApplied,
		Events:  ev.detection.Events,
		Alerts:  ev.validation.Alerts,
		Subject: subject,
		History: rows,
	}
}

// buildRows produces one history row per detected event. Every row of one
// call shares the correlation id, timestamp, actor and note.
func (e *Engine) buildRows(namespace string, subjectID uint, ev evaluation, note string, actor *string, acknowledged bool, now time.Time) []HistoryRecord {
	correlationID := uuid.New().String()
	changedBy := e.actor(actor)
	noteAck := acknowledged && ev.validation.HasWarnings

	rows := make([]HistoryRecord, 0, len(ev.detection.Events))
	for _, d := range ev.detection.Events {
		rows = append(rows, HistoryRecord{
			CorrelationID:    correlationID,
			Namespace:        namespace,
			SubjectID:        subjectID,
			EventType:        d.Type,
			FromStateID:      d.FromStateID,
			ToStateID:        d.ToStateID,
			TargetDate:       d.TargetDate,
			RecordedAt:       now,
			ChangedBy:        &changedBy,
			Note:             optionalText(note),
			NoteAcknowledged: noteAck,
			OutcomeReason:    optionalText(d.OutcomeReason),
			SubType:          optionalText(d.SubType),
		})
	}
	return rows
}

// applySideEffects projects the detected events onto the subject.
func applySideEffects(subject *SubjectRecord, prev Snapshot, prop Proposal, det DetectionResult, catalog *StateCatalog) {
	stateID := prop.StateID
	subject.CurrentStateID = &stateID

	commitment, outcome := false, false
	for _, ev := range det.Events {
		outcome = outcome || ev.Type.IsOutcome()
		switch ev.Type {
		case EventCommitted, EventRecommitted:
			commitment = true
			subject.CommittedTargetStateID = cloneUint(prop.TargetStateID)
			subject.CommittedTargetDate = cloneTime(prop.TargetDate)
		case EventCancelled:
			subject.CommittedTargetStateID = nil
			subject.CommittedTargetDate = nil
		case EventLost:
			if strings.TrimSpace(ev.OutcomeReason) != "" {
				subject.LostReasonText = ev.OutcomeReason
			}
		case EventSuspended:
			if strings.TrimSpace(ev.OutcomeReason) != "" {
				subject.PendingReasonText = ev.OutcomeReason
			}
			subject.PendingResponseDueDate = cloneTime(prop.PendingResponseDueDate)
		case EventCreated, EventProgress, EventBack, EventAchieved, EventWon,
			EventResumed, EventRevived, EventReopened, EventReasonUpdated:
		}
	}
	// An outcome closes an open commitment unless a new one was made in the same call.
	if outcome && !commitment {
		subject.CommittedTargetStateID = nil
		subject.CommittedTargetDate = nil
	}
	if prev.StateID != nil && catalog.Category(*prev.StateID) == CategoryPending && catalog.Category(stateID) != CategoryPending {
		subject.PendingResponseDueDate = nil
	}
}

func (e *Engine) actor(actor *string) string {
	if actor == nil || strings.TrimSpace(*actor) == "" {
		return e.cfg.SystemActor
	}
	return *actor
}

func (e *Engine) record(operation string, kind SubjectKind, subjectID uint, res *ApplyResult) {
	e.metrics.observeMutation(operation, kind, string(res.Outcome))
	e.metrics.observeAlerts(res.Alerts)
	switch res.Outcome {
	case OutcomeApplied:
		e.metrics.observeRows(kind, res.History)
		types := make([]string, len(res.Events))
		for i, ev := range res.Events {
			types[i] = string(ev.Type)
		}
		e.logger.Info("subject updated",
			zap.String("operation", operation),
			zap.String("kind", string(kind)),
			zap.Uint("subject_id", subjectID),
			zap.Strings("events", types),
			zap.Int("alerts", len(res.Alerts)))
	default:
		e.logger.Debug("subject update not applied",
			zap.String("operation", operation),
			zap.String("kind", string(kind)),
			zap.Uint("subject_id", subjectID),
			zap.String("outcome", string(res.Outcome)),
			zap.String("reason", res.Error))
	}
}

func (e *Engine) failed(operation string, kind SubjectKind, subjectID uint, err error) error {
	err = storageFailure(operation, err)
	e.metrics.observeMutation(operation, kind, "error")
	fields := []zap.Field{
		zap.String("operation", operation),
		zap.String("kind", string(kind)),
		zap.Uint("subject_id", subjectID),
		zap.Error(err),
	}
	if errors.Is(err, ErrStorage) {
		e.logger.Error("subject update failed", fields...)
	} else {
		e.logger.Debug("subject update rejected", fields...)
	}
	return err
}

// loadCatalog returns the full catalog of (namespace, kind), retired states
// included so a subject sitting in one keeps its category. It is served from
// the cache when one is configured.
func (e *Engine) loadCatalog(ctx context.Context, repo Repository, namespace string, kind SubjectKind) (*StateCatalog, error) {
	key := catalogKey{namespace: normalizeNamespace(namespace), kind: kind}
	if e.catalogs != nil {
		if c, ok := e.catalogs.Get(key); ok {
			return c, nil
		}
	}
	recs, err := repo.ListStates(ctx, namespace, kind, true)
	if err != nil {
		return nil, err
	}
	defs := make([]StateDefinition, len(recs))
	for i, r := range recs {
		defs[i] = r.Definition()
	}
	catalog := NewStateCatalog(defs)
	if e.catalogs != nil {
		e.catalogs.Set(key, catalog)
	}
	return catalog, nil
}

// resolveProposal checks that the proposed and target states are active
// members of the catalog.
func resolveProposal(catalog *StateCatalog, prop Proposal) error {
	if def, ok := catalog.Get(prop.StateID); !ok || !def.IsActive {
		return notFound("state", prop.StateID)
	}
	if prop.TargetStateID != nil {
		if def, ok := catalog.Get(*prop.TargetStateID); !ok || !def.IsActive {
			return notFound("target state", *prop.TargetStateID)
		}
	}
	return nil
}

func optionalText(s string) *string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return &s
}

func cloneUint(p *uint) *uint {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneTime(p *time.Time) *time.Time {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
