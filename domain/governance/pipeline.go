package governance

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/concord-kg/concord/domain/audit"
	"github.com/concord-kg/concord/domain/events"
	"github.com/concord-kg/concord/domain/graphstore"
	"github.com/concord-kg/concord/domain/proposal"
	"github.com/concord-kg/concord/domain/reasoning"
	"github.com/concord-kg/concord/domain/review"
	"github.com/concord-kg/concord/domain/rules"
	"github.com/concord-kg/concord/internal/config"
	"github.com/concord-kg/concord/pkg/apperror"
	"github.com/concord-kg/concord/pkg/logger"
)

// ErrQueueFull is returned when the submission queue cannot accept more
// proposals; callers should back off and resubmit.
var ErrQueueFull = apperror.New(http.StatusTooManyRequests, "queue_full", "Submission queue is full")

// Pipeline accepts mutation proposals and drives each through
// classification, validation, conflict detection and resolution, commit,
// and reasoning. Proposals are independent units of work dispatched to a
// bounded worker pool; the commit token table is the only serialization
// point.
type Pipeline struct {
	log      *slog.Logger
	cfg      config.GovernanceConfig
	store    graphstore.Store
	rules    *rules.Set
	classify *Classifier
	validate *Validator
	detect   *Detector
	resolve  *Resolver
	tokens   *TokenTable
	inFlight *InFlightRegistry
	auditLog audit.Log
	reviews  review.Queue
	reasoner *reasoning.Engine
	bus      *events.Service

	queue  chan *proposal.Proposal
	wg     sync.WaitGroup
	cancel context.CancelFunc

	mu        sync.Mutex
	states    map[uuid.UUID]proposal.State
	withdrawn map[uuid.UUID]bool
}

// NewPipeline wires the governance pipeline. Call Start before submitting.
func NewPipeline(
	log *slog.Logger,
	cfg *config.Config,
	store graphstore.Store,
	set *rules.Set,
	classifier *Classifier,
	validator *Validator,
	detector *Detector,
	resolver *Resolver,
	tokens *TokenTable,
	registry *InFlightRegistry,
	auditLog audit.Log,
	reviews review.Queue,
	reasoner *reasoning.Engine,
	bus *events.Service,
) *Pipeline {
	return &Pipeline{
		log:       log.With(logger.Scope("governance.pipeline")),
		cfg:       cfg.Governance,
		store:     store,
		rules:     set,
		classify:  classifier,
		validate:  validator,
		detect:    detector,
		resolve:   resolver,
		tokens:    tokens,
		inFlight:  registry,
		auditLog:  auditLog,
		reviews:   reviews,
		reasoner:  reasoner,
		bus:       bus,
		queue:     make(chan *proposal.Proposal, cfg.Governance.QueueSize),
		states:    make(map[uuid.UUID]proposal.State),
		withdrawn: make(map[uuid.UUID]bool),
	}
}

// Start launches the worker pool.
func (pl *Pipeline) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	pl.cancel = cancel
	for i := 0; i < pl.cfg.Workers; i++ {
		pl.wg.Add(1)
		go pl.worker(ctx)
	}
	pl.log.Info("pipeline started", slog.Int("workers", pl.cfg.Workers), slog.Int("queue_size", pl.cfg.QueueSize))
}

// Stop drains the worker pool. Queued proposals that no worker picked up
// remain Submitted; the decision log records nothing false about them.
func (pl *Pipeline) Stop() {
	if pl.cancel != nil {
		pl.cancel()
	}
	pl.wg.Wait()
	pl.log.Info("pipeline stopped")
}

// Submit enqueues a proposal. Malformed proposals are rejected here, before
// classification, with a terminal audit record and no retry.
func (pl *Pipeline) Submit(ctx context.Context, p *proposal.Proposal) error {
	if err := p.CheckShape(); err != nil {
		appErr := apperror.ErrMalformedProposal.WithMessage(err.Error())
		rec := audit.NewTerminalRecord(p, audit.DecisionRejected, map[string]any{
			"code":   appErr.Code,
			"reason": err.Error(),
		})
		if appendErr := pl.auditLog.Append(ctx, rec); appendErr != nil {
			pl.log.Error("failed to record malformed proposal", logger.Error(appendErr))
		}
		proposalsTotal.WithLabelValues(string(audit.DecisionRejected), "none").Inc()
		return appErr
	}

	select {
	case pl.queue <- p:
		pl.setState(p.ID, proposal.StateSubmitted)
		queueDepth.Inc()
		return nil
	default:
		return ErrQueueFull
	}
}

// Withdraw cancels a proposal that has not entered validation. Past that
// point withdrawal must be a compensating proposal, which keeps the audit
// trail truthful.
func (pl *Pipeline) Withdraw(id uuid.UUID) error {
	pl.mu.Lock()
	defer pl.mu.Unlock()

	state, ok := pl.states[id]
	if !ok {
		return apperror.NewNotFound("proposal", id.String())
	}
	switch state {
	case proposal.StateSubmitted, proposal.StateClassified:
		pl.withdrawn[id] = true
		return nil
	default:
		return apperror.ErrBadRequest.WithMessage("proposal is past classification; submit a compensating proposal instead")
	}
}

// State returns a proposal's current lifecycle state.
func (pl *Pipeline) State(id uuid.UUID) (proposal.State, bool) {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	state, ok := pl.states[id]
	return state, ok
}

// QueueDepth returns how many proposals are waiting for a worker.
func (pl *Pipeline) QueueDepth() int {
	return len(pl.queue)
}

func (pl *Pipeline) worker(ctx context.Context) {
	defer pl.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case p := <-pl.queue:
			queueDepth.Dec()
			pl.process(ctx, p)
		}
	}
}

func (pl *Pipeline) process(ctx context.Context, p *proposal.Proposal) {
	start := time.Now()

	if err := pl.auditLog.Append(ctx, audit.NewRecord(p, proposal.StateSubmitted, nil)); err != nil {
		pl.log.Error("failed to record submission", slog.String("proposal_id", p.ID.String()), logger.Error(err))
	}

	if pl.isWithdrawn(p.ID) {
		pl.finishRejected(ctx, p, "", nil, map[string]any{"reason": "withdrawn"}, nil, nil)
		pipelineDuration.WithLabelValues(string(audit.DecisionRejected)).Observe(time.Since(start).Seconds())
		proposalsTotal.WithLabelValues(string(audit.DecisionRejected), "none").Inc()
		return
	}

	escalation := pl.classify.Classify(p)
	pl.setState(p.ID, proposal.StateClassified)
	if err := pl.auditLog.Append(ctx, audit.NewRecord(p, proposal.StateClassified, map[string]any{
		"escalation": string(escalation),
	})); err != nil {
		pl.log.Error("failed to record classification", slog.String("proposal_id", p.ID.String()), logger.Error(err))
	}

	if pl.isWithdrawn(p.ID) {
		pl.finishRejected(ctx, p, escalation, nil, map[string]any{"reason": "withdrawn"}, nil, nil)
		pipelineDuration.WithLabelValues(string(audit.DecisionRejected)).Observe(time.Since(start).Seconds())
		proposalsTotal.WithLabelValues(string(audit.DecisionRejected), string(escalation)).Inc()
		return
	}

	var decision audit.Decision
	if escalation == EscalationLocal {
		decision = pl.commitLocal(ctx, p)
	} else {
		decision = pl.commitGoverned(ctx, p)
	}

	pipelineDuration.WithLabelValues(string(decision)).Observe(time.Since(start).Seconds())
	proposalsTotal.WithLabelValues(string(decision), string(escalation)).Inc()
}

// commitLocal is the fast path for mutations that cannot collide with other
// agents' data. It skips validation, conflict detection, and reasoning but
// still serializes on the commit token and still writes a terminal audit
// record before publishing its event.
func (pl *Pipeline) commitLocal(ctx context.Context, p *proposal.Proposal) audit.Decision {
	release, err := pl.acquireToken(ctx, p)
	if err != nil {
		pl.finishRejected(ctx, p, EscalationLocal, apperror.ErrStaleVersion,
			map[string]any{"reason": "timed out waiting for the commit token"}, nil, nil)
		return audit.DecisionRejected
	}
	defer release()

	// A create whose id is already committed is not leaf data, whatever
	// the classifier saw: overwriting it would destroy another agent's
	// entity. Route it through the governed path so the duplicate merges
	// and the prior state reaches the audit record.
	var existing *graphstore.Entity
	err = pl.withStoreRetry(ctx, func() error {
		var getErr error
		existing, getErr = pl.store.Get(ctx, p.Payload.EntityID)
		if errors.Is(getErr, graphstore.ErrNotFound) {
			existing = nil
			return nil
		}
		return getErr
	})
	if err != nil {
		pl.rejectOnApplyError(ctx, p, EscalationLocal, err, nil, nil)
		return audit.DecisionRejected
	}
	if existing != nil {
		release()
		return pl.commitGoverned(ctx, p)
	}

	detail, err := pl.apply(ctx, p, nil, nil)
	if err != nil {
		pl.rejectOnApplyError(ctx, p, EscalationLocal, err, nil, nil)
		return audit.DecisionRejected
	}

	pl.finishCommitted(ctx, p, EscalationLocal, detail, nil, nil, nil)
	return audit.DecisionCommitted
}

func (pl *Pipeline) commitGoverned(ctx context.Context, p *proposal.Proposal) audit.Decision {
	snap, err := pl.snapshot(ctx)
	if err != nil {
		pl.finishRejected(ctx, p, EscalationGoverned, apperror.ErrStoreUnavailable.WithInternal(err), nil, nil, nil)
		return audit.DecisionRejected
	}

	result := pl.validate.Validate(p, snap)
	if !result.Pass() {
		appErr := apperror.ErrValidationFailure
		if result.PermissionDenied() {
			appErr = apperror.ErrPermissionDenied
		}
		pl.finishRejected(ctx, p, EscalationGoverned, appErr, map[string]any{
			"violations": result.Blocking(),
			"warnings":   result.Warnings(),
		}, nil, nil)
		return audit.DecisionRejected
	}

	pl.setState(p.ID, proposal.StateValidated)
	validatedDetail := map[string]any{}
	if warnings := result.Warnings(); len(warnings) > 0 {
		validatedDetail["warnings"] = warnings
	}
	if err := pl.auditLog.Append(ctx, audit.NewRecord(p, proposal.StateValidated, validatedDetail)); err != nil {
		pl.log.Error("failed to record validation", slog.String("proposal_id", p.ID.String()), logger.Error(err))
	}

	pl.inFlight.Register(p)
	inFlightGauge.Inc()
	defer func() {
		pl.inFlight.Unregister(p.ID)
		inFlightGauge.Dec()
	}()

	conflicts := pl.detect.Detect(p, snap, pl.inFlight.Others(p.ID))
	for _, c := range conflicts {
		conflictsTotal.WithLabelValues(string(c.Kind)).Inc()
	}
	plans := pl.resolve.Resolve(p, conflicts, snap)

	if RequiresManualReview(plans) {
		return pl.escalate(ctx, p, conflicts, plans)
	}
	if rejecting := Rejections(plans); len(rejecting) > 0 {
		pl.rejectOnPlans(ctx, p, conflicts, plans, rejecting, result.Warnings())
		return audit.DecisionRejected
	}

	pl.setState(p.ID, proposal.StateConflictChecked)
	if err := pl.auditLog.Append(ctx, audit.NewRecord(p, proposal.StateConflictChecked, map[string]any{
		"conflicts": auditConflicts(conflicts, plans),
	})); err != nil {
		pl.log.Error("failed to record conflict check", slog.String("proposal_id", p.ID.String()), logger.Error(err))
	}

	release, err := pl.acquireToken(ctx, p)
	if err != nil {
		pl.finishRejected(ctx, p, EscalationGoverned, apperror.ErrStaleVersion,
			map[string]any{"reason": "timed out waiting for the commit token"},
			conflicts, plans)
		return audit.DecisionRejected
	}
	defer release()

	// Holding the token, re-check against the latest snapshot. A proposal
	// that lost a race for a contested id retries here instead of failing
	// outright, up to the configured bound.
	for attempt := 0; ; attempt++ {
		snap, err = pl.snapshot(ctx)
		if err != nil {
			pl.finishRejected(ctx, p, EscalationGoverned, apperror.ErrStoreUnavailable.WithInternal(err), nil, conflicts, plans)
			return audit.DecisionRejected
		}

		conflicts = pl.detect.Detect(p, snap, pl.inFlight.Others(p.ID))
		plans = pl.resolve.Resolve(p, conflicts, snap)

		if RequiresManualReview(plans) {
			return pl.escalate(ctx, p, conflicts, plans)
		}
		if rejecting := Rejections(plans); len(rejecting) > 0 {
			if attempt < pl.cfg.MaxConflictRetries && retryableRejection(rejecting) {
				commitRetriesTotal.Inc()
				select {
				case <-time.After(pl.cfg.StoreRetryBackoff):
					continue
				case <-ctx.Done():
				}
			}
			pl.rejectOnPlans(ctx, p, conflicts, plans, rejecting, result.Warnings())
			return audit.DecisionRejected
		}

		detail, err := pl.apply(ctx, p, plans, snap)
		if err != nil {
			pl.rejectOnApplyError(ctx, p, EscalationGoverned, err, conflicts, plans)
			return audit.DecisionRejected
		}

		pl.finishCommitted(ctx, p, EscalationGoverned, detail, conflicts, plans, result.Warnings())
		return audit.DecisionCommitted
	}
}

// escalate parks the proposal for manual review. Escalated is terminal for
// this proposal; an approved review re-enters as a new proposal on the same
// correlation.
func (pl *Pipeline) escalate(ctx context.Context, p *proposal.Proposal, conflicts []Conflict, plans []ResolutionPlan) audit.Decision {
	item := review.NewItem(p, auditConflicts(conflicts, plans))
	if err := pl.reviews.Park(ctx, item); err != nil {
		pl.finishRejected(ctx, p, EscalationGoverned, apperror.ErrStoreUnavailable.WithInternal(err), nil, conflicts, plans)
		return audit.DecisionRejected
	}

	pl.setState(p.ID, proposal.StateEscalated)
	rec := audit.NewTerminalRecord(p, audit.DecisionEscalated, map[string]any{
		"code":           apperror.ErrUnresolvedConflict.Code,
		"review_item_id": item.ID.String(),
		"conflicts":      auditConflicts(conflicts, plans),
	})
	if err := pl.auditLog.Append(ctx, rec); err != nil {
		if !errors.Is(err, audit.ErrTerminalExists) {
			pl.log.Error("failed to record escalation", slog.String("proposal_id", p.ID.String()), logger.Error(err))
		}
		return audit.DecisionEscalated
	}

	pl.publish(p, audit.DecisionEscalated, string(EscalationGoverned), conflicts, plans, nil, nil)
	pl.log.Info("proposal escalated for manual review",
		slog.String("proposal_id", p.ID.String()),
		slog.String("review_item_id", item.ID.String()),
		slog.Int("conflicts", len(conflicts)),
	)
	return audit.DecisionEscalated
}

// rejectOnPlans turns rejecting resolution plans into a terminal rejection
// with the appropriate error class.
func (pl *Pipeline) rejectOnPlans(ctx context.Context, p *proposal.Proposal, conflicts []Conflict, plans, rejecting []ResolutionPlan, warnings []string) {
	appErr := apperror.ErrUnresolvedConflict
	for _, plan := range rejecting {
		if plan.Kind == ConflictStaleVersion {
			appErr = apperror.ErrStaleVersion
			break
		}
	}
	detail := map[string]any{"conflicts": auditConflicts(conflicts, plans)}
	if len(warnings) > 0 {
		detail["warnings"] = warnings
	}
	pl.finishRejected(ctx, p, EscalationGoverned, appErr, detail, conflicts, plans)
}

// rejectOnApplyError maps a failed store write to a terminal rejection.
// Exhausted infrastructure retries are flagged so operators can tell them
// apart from business rejections.
func (pl *Pipeline) rejectOnApplyError(ctx context.Context, p *proposal.Proposal, escalation Escalation, err error, conflicts []Conflict, plans []ResolutionPlan) {
	appErr := apperror.ErrInternal.WithInternal(err)
	detail := map[string]any{"reason": err.Error()}

	var known *apperror.Error
	if errors.As(err, &known) {
		appErr = known
	}
	if apperror.IsInfrastructure(err) {
		appErr = apperror.ErrStoreUnavailable.WithInternal(err)
		detail["infrastructure"] = true
	}
	pl.finishRejected(ctx, p, escalation, appErr, detail, conflicts, plans)
}

func (pl *Pipeline) finishRejected(ctx context.Context, p *proposal.Proposal, escalation Escalation, appErr *apperror.Error, detail map[string]any, conflicts []Conflict, plans []ResolutionPlan) {
	pl.setState(p.ID, proposal.StateRejected)

	if detail == nil {
		detail = map[string]any{}
	}
	if appErr != nil {
		detail["code"] = appErr.Code
	}
	rec := audit.NewTerminalRecord(p, audit.DecisionRejected, detail)
	if err := pl.auditLog.Append(ctx, rec); err != nil {
		if !errors.Is(err, audit.ErrTerminalExists) {
			pl.log.Error("failed to record rejection", slog.String("proposal_id", p.ID.String()), logger.Error(err))
		}
		return
	}

	pl.publish(p, audit.DecisionRejected, string(escalation), conflicts, plans, nil, nil)
	pl.log.Info("proposal rejected",
		slog.String("proposal_id", p.ID.String()),
		slog.String("operation", string(p.Operation)),
		slog.Any("detail", detail),
	)
}

func (pl *Pipeline) finishCommitted(ctx context.Context, p *proposal.Proposal, escalation Escalation, detail map[string]any, conflicts []Conflict, plans []ResolutionPlan, warnings []string) {
	pl.setState(p.ID, proposal.StateCommitted)

	if detail == nil {
		detail = map[string]any{}
	}
	detail["escalation"] = string(escalation)
	if len(conflicts) > 0 {
		detail["conflicts"] = auditConflicts(conflicts, plans)
	}
	if len(warnings) > 0 {
		detail["warnings"] = warnings
	}

	rec := audit.NewTerminalRecord(p, audit.DecisionCommitted, detail)
	if err := pl.auditLog.Append(ctx, rec); err != nil {
		// Without a durable decision there is no event; a duplicate
		// terminal means another writer already closed the proposal.
		if !errors.Is(err, audit.ErrTerminalExists) {
			pl.log.Error("failed to record commit", slog.String("proposal_id", p.ID.String()), logger.Error(err))
		}
		return
	}

	var factsPayload map[string]any
	if escalation == EscalationGoverned && !p.Derived {
		factsPayload = pl.runReasoning(ctx, p)
	}

	pl.publish(p, audit.DecisionCommitted, string(escalation), conflicts, plans, warnings, factsPayload)
	pl.log.Info("proposal committed",
		slog.String("proposal_id", p.ID.String()),
		slog.String("operation", string(p.Operation)),
		slog.String("escalation", string(escalation)),
	)
}

// runReasoning infers follow-up facts from a committed mutation and
// resubmits the deterministic ones as derived proposals on the same
// correlation. Failures here never affect the committed decision.
func (pl *Pipeline) runReasoning(ctx context.Context, p *proposal.Proposal) map[string]any {
	snap, err := pl.snapshot(ctx)
	if err != nil {
		pl.log.Warn("skipping inference, snapshot unavailable", slog.String("proposal_id", p.ID.String()), logger.Error(err))
		return nil
	}

	facts := pl.reasoner.Infer(p, snap)
	if facts.Empty() {
		return nil
	}

	for _, derived := range reasoning.FactsToProposals(facts, snap, p.CorrelationID) {
		if err := pl.Submit(ctx, derived); err != nil {
			pl.log.Warn("derived proposal not accepted",
				slog.String("proposal_id", derived.ID.String()),
				slog.String("source_proposal_id", p.ID.String()),
				logger.Error(err),
			)
		}
	}
	return facts.EventPayload()
}

func (pl *Pipeline) publish(p *proposal.Proposal, decision audit.Decision, escalation string, conflicts []Conflict, plans []ResolutionPlan, warnings []string, facts map[string]any) {
	pl.bus.Publish(events.DecisionEvent{
		ProposalID:    p.ID,
		CorrelationID: p.CorrelationID,
		Operation:     string(p.Operation),
		EntityID:      p.Payload.EntityID,
		Decision:      string(decision),
		Escalation:    escalation,
		Conflicts:     eventConflicts(conflicts, plans),
		Warnings:      warnings,
		InferredFacts: facts,
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
	})
}

// apply executes the proposal's store writes under the commit token. The
// returned detail becomes part of the terminal audit record, including the
// prior state of anything replaced or removed.
func (pl *Pipeline) apply(ctx context.Context, p *proposal.Proposal, plans []ResolutionPlan, snap graphstore.Snapshot) (map[string]any, error) {
	extra := map[string]any{}
	for _, plan := range plans {
		switch {
		case plan.Kind == ConflictDuplicateEntity && plan.Strategy != StrategyRejectIncoming:
			return pl.applyMerge(ctx, p, plan, snap)
		case plan.Kind == ConflictStaleVersion && plan.Strategy == StrategyMerge:
			return pl.applyMerge(ctx, p, plan, snap)
		case plan.Kind == ConflictContradictoryCardinality && plan.Strategy == StrategyPreferNewest:
			replaced, err := pl.replaceConflictingEdges(ctx, p, snap)
			if err != nil {
				return nil, err
			}
			for k, v := range replaced {
				extra[k] = v
			}
		}
	}

	detail, err := pl.applyOperation(ctx, p, snap)
	if err != nil {
		return nil, err
	}
	if len(extra) > 0 {
		if detail == nil {
			detail = map[string]any{}
		}
		for k, v := range extra {
			detail[k] = v
		}
	}
	return detail, nil
}

// applyMerge settles a duplicate or a merge-safe stale update: properties
// union into the surviving entity and, when the dropped id exists in the
// store, its edges are relabeled onto the survivor.
func (pl *Pipeline) applyMerge(ctx context.Context, p *proposal.Proposal, plan ResolutionPlan, snap graphstore.Snapshot) (map[string]any, error) {
	existing, ok := snap.Entity(plan.KeepID)
	if !ok {
		// The winning side of an in-flight duplicate never reached the
		// store; the incoming create proceeds unchanged.
		return pl.applyOperation(ctx, p, snap)
	}

	merged := existing.Clone()
	merged.Properties = mergedProperties(plan.Strategy, existing, p.Payload, pl.rules)

	var stored *graphstore.Entity
	err := pl.withStoreRetry(ctx, func() error {
		var putErr error
		stored, putErr = pl.store.PutEntity(ctx, merged)
		return putErr
	})
	if err != nil {
		return nil, err
	}

	detail := map[string]any{
		"merged_into":      plan.KeepID,
		"strategy":         string(plan.Strategy),
		"previous_version": existing.Version,
		"version":          stored.Version,
	}

	if plan.DropID != "" && plan.DropID != plan.KeepID {
		if _, dropped := snap.Entity(plan.DropID); dropped {
			var relabeled int
			err = pl.withStoreRetry(ctx, func() error {
				var relErr error
				relabeled, relErr = pl.store.RelabelRelationships(ctx, plan.DropID, plan.KeepID)
				return relErr
			})
			if err != nil {
				return detail, err
			}
			err = pl.withStoreRetry(ctx, func() error {
				_, delErr := pl.store.DeleteEntity(ctx, plan.DropID)
				return delErr
			})
			if err != nil && !errors.Is(err, graphstore.ErrNotFound) {
				return detail, err
			}
			detail["dropped_id"] = plan.DropID
			detail["relabeled_edges"] = relabeled
		}
	}

	return detail, nil
}

// replaceConflictingEdges removes the committed edges a manually approved
// relationship contradicts, so the newer edge can take their place.
func (pl *Pipeline) replaceConflictingEdges(ctx context.Context, p *proposal.Proposal, snap graphstore.Snapshot) (map[string]any, error) {
	removed := make([]map[string]any, 0)
	for _, edge := range pl.detect.ConflictingEdges(p, snap) {
		err := pl.withStoreRetry(ctx, func() error {
			_, delErr := pl.store.DeleteRelationship(ctx, edge.SourceID, edge.TargetID, edge.Type)
			return delErr
		})
		if err != nil && !errors.Is(err, graphstore.ErrNotFound) {
			return nil, err
		}
		removed = append(removed, map[string]any{
			"source_id": edge.SourceID,
			"target_id": edge.TargetID,
			"type":      edge.Type,
		})
	}
	if len(removed) == 0 {
		return nil, nil
	}
	return map[string]any{"replaced_edges": removed}, nil
}

func (pl *Pipeline) applyOperation(ctx context.Context, p *proposal.Proposal, snap graphstore.Snapshot) (map[string]any, error) {
	switch p.Operation {
	case proposal.OpCreateEntity:
		entity := &graphstore.Entity{
			ID:         p.Payload.EntityID,
			Type:       p.Payload.EntityType,
			Properties: p.Payload.Properties,
			Domain:     p.Payload.Domain,
			Source:     p.Payload.Source,
		}
		var stored *graphstore.Entity
		err := pl.withStoreRetry(ctx, func() error {
			var putErr error
			stored, putErr = pl.store.PutEntity(ctx, entity)
			return putErr
		})
		if err != nil {
			return nil, err
		}
		return map[string]any{"version": stored.Version}, nil

	case proposal.OpUpdateEntity:
		current := pl.currentEntity(ctx, p.Payload.EntityID, snap)
		if current == nil {
			return nil, apperror.ErrStaleVersion.WithMessage("entity was removed before the update committed")
		}
		updated := current.Clone()
		if updated.Properties == nil {
			updated.Properties = map[string]any{}
		}
		for key, value := range p.Payload.Properties {
			updated.Properties[key] = value
		}
		if p.Payload.Source != "" {
			updated.Source = p.Payload.Source
		}
		var stored *graphstore.Entity
		err := pl.withStoreRetry(ctx, func() error {
			var putErr error
			stored, putErr = pl.store.PutEntity(ctx, updated)
			return putErr
		})
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"previous_version": current.Version,
			"version":          stored.Version,
		}, nil

	case proposal.OpDeleteEntity:
		var prior *graphstore.Entity
		err := pl.withStoreRetry(ctx, func() error {
			var delErr error
			prior, delErr = pl.store.DeleteEntity(ctx, p.Payload.EntityID)
			return delErr
		})
		if errors.Is(err, graphstore.ErrNotFound) {
			return nil, apperror.ErrStaleVersion.WithMessage("entity was removed before the delete committed")
		}
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"previous_state": map[string]any{
				"type":       prior.Type,
				"version":    prior.Version,
				"properties": prior.Properties,
			},
		}, nil

	case proposal.OpCreateRelationship:
		edge := &graphstore.Relationship{
			SourceID:   p.Payload.SourceID,
			TargetID:   p.Payload.TargetID,
			Type:       p.Payload.RelType,
			Properties: p.Payload.Properties,
			Source:     p.Payload.Source,
		}
		err := pl.withStoreRetry(ctx, func() error {
			return pl.store.PutRelationship(ctx, edge)
		})
		if err != nil {
			return nil, err
		}
		return nil, nil

	case proposal.OpDeleteRelationship:
		var prior *graphstore.Relationship
		err := pl.withStoreRetry(ctx, func() error {
			var delErr error
			prior, delErr = pl.store.DeleteRelationship(ctx, p.Payload.SourceID, p.Payload.TargetID, p.Payload.RelType)
			return delErr
		})
		if errors.Is(err, graphstore.ErrNotFound) {
			return nil, apperror.ErrValidationFailure.WithMessage("relationship does not exist")
		}
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"previous_state": map[string]any{
				"source_id": prior.SourceID,
				"target_id": prior.TargetID,
				"type":      prior.Type,
			},
		}, nil
	}

	return nil, apperror.ErrInternal.WithMessage("unhandled operation")
}

// currentEntity prefers the token-held snapshot but falls back to a direct
// read when the caller has none (the local fast path).
func (pl *Pipeline) currentEntity(ctx context.Context, id string, snap graphstore.Snapshot) *graphstore.Entity {
	if snap != nil {
		if entity, ok := snap.Entity(id); ok {
			return entity
		}
		return nil
	}
	entity, err := pl.store.Get(ctx, id)
	if err != nil {
		return nil
	}
	return entity
}

// acquireToken takes the commit token for every id the proposal touches,
// plus the natural-key slot for entity creates, so two concurrent creates
// of the same natural key serialize even though their entity ids differ.
func (pl *Pipeline) acquireToken(ctx context.Context, p *proposal.Proposal) (func(), error) {
	keys := p.TouchedIDs()
	if p.Operation == proposal.OpCreateEntity {
		if key := pl.rules.NaturalKey(p.Payload.EntityType, p.Payload.Properties); key != "" {
			keys = append(keys, "nk:"+p.Payload.EntityType+":"+key)
		}
	}

	tokenCtx, cancel := context.WithTimeout(ctx, pl.cfg.CommitTokenTimeout)
	defer cancel()
	return pl.tokens.Acquire(tokenCtx, keys)
}

func (pl *Pipeline) snapshot(ctx context.Context) (graphstore.Snapshot, error) {
	var snap graphstore.Snapshot
	err := pl.withStoreRetry(ctx, func() error {
		var snapErr error
		snap, snapErr = pl.store.Snapshot(ctx)
		return snapErr
	})
	return snap, err
}

// withStoreRetry retries infrastructure failures with linear backoff up to
// the configured bound. Business errors return immediately.
func (pl *Pipeline) withStoreRetry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 0; attempt <= pl.cfg.StoreRetryAttempts; attempt++ {
		if attempt > 0 {
			storeRetriesTotal.Inc()
			select {
			case <-time.After(time.Duration(attempt) * pl.cfg.StoreRetryBackoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		err = fn()
		if err == nil || !apperror.IsInfrastructure(err) {
			return err
		}
	}
	return err
}

func (pl *Pipeline) setState(id uuid.UUID, state proposal.State) {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	pl.states[id] = state
}

func (pl *Pipeline) isWithdrawn(id uuid.UUID) bool {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	return pl.withdrawn[id]
}
