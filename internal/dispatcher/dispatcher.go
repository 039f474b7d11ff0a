// Package dispatcher assigns escalated conversations to the least-loaded
// eligible operator and drives each escalation through its status lifecycle.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/converge-ai/support-platform/internal/model"
	"github.com/converge-ai/support-platform/internal/operator"
	"github.com/converge-ai/support-platform/pkg/logger"
	"github.com/converge-ai/support-platform/pkg/metrics"
)

var (
	// ErrNoOperatorAvailable reports that no online operator has spare
	// capacity. It is a legitimate steady state, not a failure: the
	// escalation stays pending and the caller may poll.
	ErrNoOperatorAvailable = errors.New("no operator available")

	// ErrEscalationNotFound is returned when a conversation has no
	// escalation record.
	ErrEscalationNotFound = errors.New("escalation not found")

	// ErrAuthorizationDenied is returned when an operator touches an
	// escalation assigned to someone else. No state is mutated.
	ErrAuthorizationDenied = errors.New("escalation not assigned to caller")

	// ErrInvalidTransition is returned for a status transition outside the
	// state machine.
	ErrInvalidTransition = errors.New("invalid escalation transition")
)

// Actor identifies who requests a transition. Elevated callers bypass the
// assigned-operator equality check; privilege itself is established upstream.
type Actor struct {
	UserID   string
	Elevated bool
}

// EventPublisher receives escalation lifecycle events. May be nil.
type EventPublisher interface {
	PublishEscalationEvent(ctx context.Context, event *model.EscalationEvent) (uint64, error)
}

// Dispatcher owns escalation records and operator load accounting.
//
// Records are kept in memory guarded by a single mutex; the lock is never
// held across an operator-pool call. The status write is the serialization
// point for load accounting: exactly one caller can win a transition, so the
// paired load adjustment runs exactly once.
type Dispatcher struct {
	pool   operator.Pool
	events EventPublisher
	logger *logger.Logger

	mu           sync.Mutex
	escalations  map[string]*model.Escalation // by escalation ID
	activeByConv map[string]string            // tenant/conversation -> escalation ID
	lastByConv   map[string]string            // tenant/conversation -> most recent escalation ID
}

// New creates a Dispatcher.
func New(pool operator.Pool, events EventPublisher, log *logger.Logger) *Dispatcher {
	return &Dispatcher{
		pool:         pool,
		events:       events,
		logger:       log,
		escalations:  make(map[string]*model.Escalation),
		activeByConv: make(map[string]string),
		lastByConv:   make(map[string]string),
	}
}

func convKey(tenantID, conversationID string) string {
	return tenantID + "/" + conversationID
}

// Request opens an escalation for a conversation and immediately attempts
// assignment. Idempotent: while an escalation is active for the conversation
// the existing record is returned unchanged. After a resolved or closed
// escalation a fresh one is created (re-escalation).
func (d *Dispatcher) Request(ctx context.Context, tenantID string, req *model.EscalationRequest, autoDetected bool, keywords []string) (*model.Escalation, error) {
	priority := req.Priority
	if priority == "" {
		priority = model.PriorityNormal
	}
	if !model.ValidPriority(priority) {
		return nil, fmt.Errorf("unknown escalation priority %q", priority)
	}

	key := convKey(tenantID, req.ConversationID)

	d.mu.Lock()
	if id, ok := d.activeByConv[key]; ok {
		existing := *d.escalations[id]
		d.mu.Unlock()
		return &existing, nil
	}

	esc := &model.Escalation{
		ID:               uuid.Must(uuid.NewV7()).String(),
		ConversationID:   req.ConversationID,
		TenantID:         tenantID,
		Reason:           req.Reason,
		Priority:         priority,
		Status:           model.EscalationPending,
		AutoDetected:     autoDetected,
		DetectedKeywords: keywords,
		RequestedAt:      time.Now(),
	}
	d.escalations[esc.ID] = esc
	d.activeByConv[key] = esc.ID
	d.lastByConv[key] = esc.ID
	d.mu.Unlock()

	d.logger.Info("escalation requested",
		zap.String("tenant_id", tenantID),
		zap.String("conversation_id", req.ConversationID),
		zap.String("escalation_id", esc.ID),
		zap.String("priority", string(priority)),
		zap.Bool("auto_detected", autoDetected),
	)
	metrics.EscalationTransitionsTotal.WithLabelValues(tenantID, string(model.EscalationPending)).Inc()
	d.publish(ctx, esc, model.EventEscalationRequested)

	// Best effort immediate assignment; pending is a valid resting state.
	assigned, err := d.Assign(ctx, tenantID, req.ConversationID)
	if err != nil {
		if !errors.Is(err, ErrNoOperatorAvailable) {
			d.logger.Error("escalation auto-assignment failed",
				zap.String("escalation_id", esc.ID),
				zap.Error(err),
			)
		}
		snapshot := d.snapshot(esc.ID)
		return snapshot, nil
	}
	return assigned, nil
}

// Assign moves a pending escalation to assigned by reserving the least-loaded
// eligible operator. The reserve is a bound-checked atomic increment; a
// concurrent winner on the escalation record is rolled back by releasing the
// reservation. Returns ErrNoOperatorAvailable when every candidate is
// saturated; the escalation remains pending and the call never blocks waiting
// for capacity.
func (d *Dispatcher) Assign(ctx context.Context, tenantID, conversationID string) (*model.Escalation, error) {
	key := convKey(tenantID, conversationID)

	d.mu.Lock()
	id, ok := d.activeByConv[key]
	if !ok {
		d.mu.Unlock()
		return nil, ErrEscalationNotFound
	}
	esc := d.escalations[id]
	if esc.Status != model.EscalationPending {
		// Already assigned by a concurrent dispatch; return it as-is.
		existing := *esc
		d.mu.Unlock()
		return &existing, nil
	}
	d.mu.Unlock()

	candidates, err := d.pool.ListAvailable(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list operators: %w", err)
	}
	sortCandidates(candidates)

	for _, candidate := range candidates {
		reserved, err := d.pool.AdjustLoad(ctx, candidate.ID, +1)
		if err != nil {
			if errors.Is(err, operator.ErrSaturated) || errors.Is(err, operator.ErrNotFound) {
				continue // lost the race for this operator, try the next
			}
			return nil, fmt.Errorf("failed to reserve operator: %w", err)
		}

		d.mu.Lock()
		if esc.Status != model.EscalationPending {
			// Another dispatch assigned this escalation between our reads;
			// give the reservation back.
			existing := *esc
			d.mu.Unlock()
			d.release(ctx, reserved.ID)
			return &existing, nil
		}
		now := time.Now()
		opID := reserved.ID
		esc.Status = model.EscalationAssigned
		esc.AssignedOperatorID = &opID
		esc.AssignedAt = &now
		assigned := *esc
		d.mu.Unlock()

		d.logger.Info("escalation assigned",
			zap.String("tenant_id", tenantID),
			zap.String("escalation_id", assigned.ID),
			zap.String("operator_id", opID),
			zap.Int("operator_load", reserved.CurrentLoad),
		)
		metrics.EscalationTransitionsTotal.WithLabelValues(tenantID, string(model.EscalationAssigned)).Inc()
		d.publish(ctx, &assigned, model.EventEscalationAssigned)

		return &assigned, nil
	}

	return nil, ErrNoOperatorAvailable
}

// Start moves an assigned escalation to in_progress. Operator-initiated; no
// load change.
func (d *Dispatcher) Start(ctx context.Context, tenantID, conversationID string, actor Actor) (*model.Escalation, error) {
	return d.transition(ctx, tenantID, conversationID, actor, model.EscalationInProgress, nil)
}

// Hold parks an in-progress escalation.
func (d *Dispatcher) Hold(ctx context.Context, tenantID, conversationID string, actor Actor) (*model.Escalation, error) {
	return d.transition(ctx, tenantID, conversationID, actor, model.EscalationOnHold, nil)
}

// Resume returns an on-hold escalation to in_progress.
func (d *Dispatcher) Resume(ctx context.Context, tenantID, conversationID string, actor Actor) (*model.Escalation, error) {
	esc, err := d.getActive(tenantID, conversationID)
	if err != nil {
		return nil, err
	}
	if esc.Status != model.EscalationOnHold {
		return nil, ErrInvalidTransition
	}
	return d.transition(ctx, tenantID, conversationID, actor, model.EscalationInProgress, nil)
}

// Resolve terminates an escalation with resolution notes and releases the
// operator's load slot.
func (d *Dispatcher) Resolve(ctx context.Context, tenantID, conversationID string, actor Actor, notes string) (*model.Escalation, error) {
	return d.transition(ctx, tenantID, conversationID, actor, model.EscalationResolved, &notes)
}

// Close terminates an escalation without resolution and releases the
// operator's load slot.
func (d *Dispatcher) Close(ctx context.Context, tenantID, conversationID string, actor Actor, notes string) (*model.Escalation, error) {
	return d.transition(ctx, tenantID, conversationID, actor, model.EscalationClosed, &notes)
}

// transition applies one state-machine edge. The status write happens under
// the record lock and is the single point of serialization: only the winner
// of a terminal transition performs the paired load decrement, so the
// decrement cannot run twice.
func (d *Dispatcher) transition(ctx context.Context, tenantID, conversationID string, actor Actor, to model.EscalationStatus, notes *string) (*model.Escalation, error) {
	key := convKey(tenantID, conversationID)

	d.mu.Lock()
	id, ok := d.activeByConv[key]
	if !ok {
		d.mu.Unlock()
		return nil, ErrEscalationNotFound
	}
	esc := d.escalations[id]

	if err := authorize(esc, actor); err != nil {
		d.mu.Unlock()
		return nil, err
	}
	if !model.CanTransition(esc.Status, to) {
		d.mu.Unlock()
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, esc.Status, to)
	}

	now := time.Now()
	from := esc.Status
	esc.Status = to
	switch to {
	case model.EscalationInProgress:
		if esc.StartedAt == nil {
			esc.StartedAt = &now
		}
	case model.EscalationOnHold:
		esc.HeldAt = &now
	case model.EscalationResolved:
		esc.ResolvedAt = &now
		esc.ResolutionNotes = notes
	case model.EscalationClosed:
		esc.ClosedAt = &now
		esc.ResolutionNotes = notes
	}

	var releaseOperator string
	if to.Terminal() {
		delete(d.activeByConv, key)
		if esc.AssignedOperatorID != nil {
			releaseOperator = *esc.AssignedOperatorID
		}
	}
	updated := *esc
	d.mu.Unlock()

	if releaseOperator != "" {
		d.release(ctx, releaseOperator)
	}

	d.logger.Info("escalation transitioned",
		zap.String("tenant_id", tenantID),
		zap.String("escalation_id", updated.ID),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
		zap.String("actor", actor.UserID),
	)
	metrics.EscalationTransitionsTotal.WithLabelValues(tenantID, string(to)).Inc()
	d.publish(ctx, &updated, eventTypeFor(from, to))

	return &updated, nil
}

// Status returns the most recent escalation for a conversation.
func (d *Dispatcher) Status(ctx context.Context, tenantID, conversationID string) (*model.Escalation, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	id, ok := d.lastByConv[convKey(tenantID, conversationID)]
	if !ok {
		return nil, ErrEscalationNotFound
	}
	esc := *d.escalations[id]
	return &esc, nil
}

// Queue returns a tenant's escalations, critical first and oldest request
// first within a priority, optionally filtered by status, with per-status
// counts computed over the whole tenant.
func (d *Dispatcher) Queue(ctx context.Context, tenantID string, status model.EscalationStatus) (*model.EscalationQueue, error) {
	d.mu.Lock()
	queue := &model.EscalationQueue{}
	for _, esc := range d.escalations {
		if esc.TenantID != tenantID {
			continue
		}
		switch esc.Status {
		case model.EscalationPending:
			queue.Pending++
		case model.EscalationAssigned:
			queue.Assigned++
		case model.EscalationInProgress:
			queue.InProgress++
		case model.EscalationOnHold:
			queue.OnHold++
		case model.EscalationResolved:
			queue.Resolved++
		case model.EscalationClosed:
			queue.Closed++
		}
		if status != "" && esc.Status != status {
			continue
		}
		queue.Escalations = append(queue.Escalations, *esc)
	}
	d.mu.Unlock()

	sort.Slice(queue.Escalations, func(i, j int) bool {
		a, b := queue.Escalations[i], queue.Escalations[j]
		if pa, pb := priorityRank(a.Priority), priorityRank(b.Priority); pa != pb {
			return pa > pb
		}
		return a.RequestedAt.Before(b.RequestedAt)
	})

	return queue, nil
}

func (d *Dispatcher) getActive(tenantID, conversationID string) (model.Escalation, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	id, ok := d.activeByConv[convKey(tenantID, conversationID)]
	if !ok {
		return model.Escalation{}, ErrEscalationNotFound
	}
	return *d.escalations[id], nil
}

func (d *Dispatcher) snapshot(escalationID string) *model.Escalation {
	d.mu.Lock()
	defer d.mu.Unlock()
	esc := *d.escalations[escalationID]
	return &esc
}

// release gives an operator's load slot back. A failure here is logged, not
// propagated: the escalation transition already committed.
func (d *Dispatcher) release(ctx context.Context, operatorID string) {
	if _, err := d.pool.AdjustLoad(ctx, operatorID, -1); err != nil {
		d.logger.Error("failed to release operator load",
			zap.String("operator_id", operatorID),
			zap.Error(err),
		)
	}
}

func (d *Dispatcher) publish(ctx context.Context, esc *model.Escalation, eventType model.EscalationEventType) {
	if d.events == nil {
		return
	}
	event := &model.EscalationEvent{
		ID:             uuid.Must(uuid.NewV7()).String(),
		EscalationID:   esc.ID,
		ConversationID: esc.ConversationID,
		TenantID:       esc.TenantID,
		Type:           eventType,
		Status:         esc.Status,
		OperatorID:     esc.AssignedOperatorID,
		CreatedAt:      time.Now(),
	}
	if _, err := d.events.PublishEscalationEvent(ctx, event); err != nil {
		d.logger.Warn("failed to publish escalation event",
			zap.String("escalation_id", esc.ID),
			zap.Error(err),
		)
	}
}

// authorize enforces the assigned-operator equality check. Elevated callers
// pass unconditionally.
func authorize(esc *model.Escalation, actor Actor) error {
	if actor.Elevated {
		return nil
	}
	if esc.AssignedOperatorID == nil || *esc.AssignedOperatorID != actor.UserID {
		return ErrAuthorizationDenied
	}
	return nil
}

// sortCandidates orders operators by load ascending with deterministic ties:
// earliest creation, then lowest ID. Pools already return this order; sorting
// again keeps the guarantee independent of the pool implementation.
func sortCandidates(ops []model.Operator) {
	sort.SliceStable(ops, func(i, j int) bool {
		a, b := ops[i], ops[j]
		if a.CurrentLoad != b.CurrentLoad {
			return a.CurrentLoad < b.CurrentLoad
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}

func priorityRank(p model.EscalationPriority) int {
	switch p {
	case model.PriorityCritical:
		return 2
	case model.PriorityHigh:
		return 1
	default:
		return 0
	}
}

func eventTypeFor(from, to model.EscalationStatus) model.EscalationEventType {
	switch to {
	case model.EscalationInProgress:
		if from == model.EscalationOnHold {
			return model.EventEscalationResumed
		}
		return model.EventEscalationStarted
	case model.EscalationOnHold:
		return model.EventEscalationHeld
	case model.EscalationResolved:
		return model.EventEscalationResolved
	default:
		return model.EventEscalationClosed
	}
}
