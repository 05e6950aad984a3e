package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spacearena/lead-pipeline/schemas"
	"go.mongodb.org/mongo-driver/v2/bson"
)

const (
	DEFAULT_CHARGE_TIMEOUT = 5 * time.Second
	DEFAULT_LOCK_WAIT      = 10 * time.Second
)

// Engine applies single-contact stage transitions.
type Engine struct {
	registry      *Registry
	contacts      ContactStore
	history       HistoryStore
	charges       ChargeGateway
	locker        Locker
	observers     []Observer
	chargeTimeout time.Duration
	lockWait      time.Duration
	now           func() time.Time
	newID         func() bson.ObjectID
	logger        *slog.Logger
}

type EngineOption func(*Engine)

func WithLocker(locker Locker) EngineOption {
	return func(e *Engine) {
		e.locker = locker
	}
}

func WithObservers(observers ...Observer) EngineOption {
	return func(e *Engine) {
		e.observers = append(e.observers, observers...)
	}
}

func WithChargeTimeout(timeout time.Duration) EngineOption {
	return func(e *Engine) {
		e.chargeTimeout = timeout
	}
}

func WithLockWait(wait time.Duration) EngineOption {
	return func(e *Engine) {
		e.lockWait = wait
	}
}

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		e.now = now
	}
}

func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = logger
	}
}

func NewEngine(registry *Registry, contacts ContactStore, history HistoryStore, charges ChargeGateway, opts ...EngineOption) *Engine {
	e := &Engine{
		registry:      registry,
		contacts:      contacts,
		history:       history,
		charges:       charges,
		locker:        NewKeyedLocker(),
		chargeTimeout: DEFAULT_CHARGE_TIMEOUT,
		lockWait:      DEFAULT_LOCK_WAIT,
		now:           time.Now,
		newID:         bson.NewObjectID,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With("component", "transition_engine")
	return e
}

func (e *Engine) Registry() *Registry {
	return e.registry
}

// Transition moves contact to targetStageID. The contact value is the caller's
// view: if the stored contact has moved since it was read, the request fails
// with ErrConcurrencyConflict and nothing is written.
func (e *Engine) Transition(ctx context.Context, contact schemas.EnrolledContact, targetStageID bson.ObjectID, opts schemas.TransitionOptions) (schemas.TransitionOutcome, error) {
	return e.apply(ctx, contact.CampaignID, contact.ID, &contact, targetStageID, opts)
}

// TransitionByID resolves the contact under its lock and moves it to targetStageID.
func (e *Engine) TransitionByID(ctx context.Context, campaignID, contactID, targetStageID bson.ObjectID, opts schemas.TransitionOptions) (schemas.TransitionOutcome, error) {
	return e.apply(ctx, campaignID, contactID, nil, targetStageID, opts)
}

func contactLockKey(contactID bson.ObjectID) string {
	return "contact:" + contactID.Hex()
}

func (e *Engine) apply(ctx context.Context, campaignID, contactID bson.ObjectID, expected *schemas.EnrolledContact, targetStageID bson.ObjectID, opts schemas.TransitionOptions) (schemas.TransitionOutcome, error) {
	if opts.Automatic {
		opts.ActorID = ""
	}

	lockCtx, cancel := context.WithTimeout(ctx, e.lockWait)
	unlock, err := e.locker.Lock(lockCtx, contactLockKey(contactID))
	cancel()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = &Error{Code: CodeCancelled, Message: "request cancelled", Err: ctxErr}
		}
		e.rejected(ctx, err)
		return schemas.TransitionOutcome{}, err
	}

	outcome, target, err := e.commit(ctx, campaignID, contactID, expected, targetStageID, opts)
	unlock()
	if err != nil {
		e.rejected(ctx, err)
		return schemas.TransitionOutcome{}, err
	}

	// The charge runs outside the contact lock; it never reads or writes contact state.
	if target.ChargeOnEntry {
		outcome.ChargeWarning = e.charge(ctx, outcome, target)
		for _, observer := range e.observers {
			if co, ok := observer.(ChargeObserver); ok {
				co.ChargeAttempted(ctx, outcome, outcome.ChargeWarning == nil)
			}
		}
	}

	for _, observer := range e.observers {
		observer.TransitionApplied(ctx, outcome)
	}
	return outcome, nil
}

// commit runs validation, the contact update and the history append while the
// contact lock is held.
func (e *Engine) commit(ctx context.Context, campaignID, contactID bson.ObjectID, expected *schemas.EnrolledContact, targetStageID bson.ObjectID, opts schemas.TransitionOptions) (schemas.TransitionOutcome, schemas.Stage, error) {
	target, err := e.registry.GetStage(ctx, campaignID, targetStageID)
	if err != nil {
		return schemas.TransitionOutcome{}, schemas.Stage{}, err
	}

	contact, err := e.contacts.GetContact(ctx, campaignID, contactID)
	if err != nil {
		return schemas.TransitionOutcome{}, schemas.Stage{}, err
	}

	if expected != nil && !sameView(*expected, contact) {
		return schemas.TransitionOutcome{}, schemas.Stage{}, ConflictErr("contact %s changed since it was read", contactID.Hex())
	}

	var from *schemas.Stage
	if contact.CurrentStageID != nil {
		current, found, err := e.registry.lookup(ctx, campaignID, *contact.CurrentStageID)
		if err != nil {
			return schemas.TransitionOutcome{}, schemas.Stage{}, err
		}
		if !found {
			current = schemas.Stage{ID: *contact.CurrentStageID, CampaignID: campaignID}
		}
		from = &current
	}

	if err := CheckTransition(from, target); err != nil {
		return schemas.TransitionOutcome{}, schemas.Stage{}, err
	}

	now := e.now().UTC().Truncate(time.Millisecond)

	var duration *float64
	if from != nil {
		hours := now.Sub(contact.StageEnteredAt()).Hours()
		if hours < 0 {
			hours = 0
		}
		duration = &hours
	}

	status := contact.EnrollmentStatus
	if target.IsFinal {
		status = schemas.ENROLLMENT_STATUS_COMPLETED
	}

	newStageID := target.ID
	change := StageChange{
		CampaignID:               campaignID,
		ContactID:                contactID,
		ExpectedStageID:          contact.CurrentStageID,
		ExpectedLastTransitionAt: contact.LastTransitionAt,
		NewStageID:               &newStageID,
		NewLastTransitionAt:      &now,
		NewEnrollmentStatus:      status,
	}
	if err := e.contacts.CompareAndSetStage(ctx, change); err != nil {
		return schemas.TransitionOutcome{}, schemas.Stage{}, err
	}

	record := schemas.StageTransitionRecord{
		ID:                           e.newID(),
		CampaignID:                   campaignID,
		EnrolledContactID:            contactID,
		FromStageID:                  contact.CurrentStageID,
		ToStageID:                    target.ID,
		Reason:                       opts.Reason,
		Automatic:                    opts.Automatic,
		ActorID:                      opts.ActorID,
		DurationInPreviousStageHours: duration,
		OccurredAt:                   now,
	}
	if err := e.history.AppendTransition(ctx, record); err != nil {
		e.revert(ctx, change, contact)
		return schemas.TransitionOutcome{}, schemas.Stage{}, fmt.Errorf("failed to append transition: %w", err)
	}

	e.logger.Info("transition applied",
		"campaign_id", campaignID.Hex(),
		"contact_id", contactID.Hex(),
		"to_stage", target.Name,
		"automatic", opts.Automatic,
	)

	return schemas.TransitionOutcome{
		CampaignID:      campaignID,
		ContactID:       contactID,
		PreviousStageID: contact.CurrentStageID,
		NewStageID:      target.ID,
		OccurredAt:      now,
		DurationHours:   duration,
		Automatic:       opts.Automatic,
		ActorID:         opts.ActorID,
		Record:          &record,
	}, target, nil
}

func (e *Engine) rejected(ctx context.Context, err error) {
	code := CodeOf(err)
	for _, observer := range e.observers {
		if ro, ok := observer.(RejectionObserver); ok {
			ro.TransitionRejected(ctx, code)
		}
	}
}

func (e *Engine) revert(ctx context.Context, applied StageChange, previous schemas.EnrolledContact) {
	undo := StageChange{
		CampaignID:               applied.CampaignID,
		ContactID:                applied.ContactID,
		ExpectedStageID:          applied.NewStageID,
		ExpectedLastTransitionAt: applied.NewLastTransitionAt,
		NewStageID:               previous.CurrentStageID,
		NewLastTransitionAt:      previous.LastTransitionAt,
		NewEnrollmentStatus:      previous.EnrollmentStatus,
	}
	if err := e.contacts.CompareAndSetStage(context.WithoutCancel(ctx), undo); err != nil {
		e.logger.Error("failed to revert contact after history write error",
			"contact_id", applied.ContactID.Hex(),
			"error", err,
		)
	}
}

func (e *Engine) charge(ctx context.Context, outcome schemas.TransitionOutcome, stage schemas.Stage) *schemas.ChargeWarning {
	description := stage.ChargeDescription
	if description == "" {
		description = fmt.Sprintf("Entrada no estágio %s", stage.Name)
	}

	chargeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.chargeTimeout)
	defer cancel()

	result, err := e.callGateway(chargeCtx, schemas.ChargeRequest{
		CampaignID:  outcome.CampaignID,
		ContactID:   outcome.ContactID,
		StageID:     stage.ID,
		AmountCents: stage.ChargeAmountCents,
		Description: description,
	})

	var message string
	switch {
	case errors.Is(err, context.DeadlineExceeded) || (err == nil && chargeCtx.Err() != nil && !result.Success):
		message = fmt.Sprintf("cobrança não concluída em %s", e.chargeTimeout)
	case err != nil:
		message = fmt.Sprintf("falha ao contactar o serviço de cobrança: %v", err)
	case !result.Success:
		message = result.Message
		if message == "" {
			message = "cobrança recusada"
		}
	default:
		return nil
	}

	e.logger.Warn("charge failed after transition",
		"campaign_id", outcome.CampaignID.Hex(),
		"contact_id", outcome.ContactID.Hex(),
		"amount_cents", stage.ChargeAmountCents,
		"reason", message,
	)
	return &schemas.ChargeWarning{AmountCents: stage.ChargeAmountCents, Message: message}
}

type chargeReply struct {
	result schemas.ChargeResult
	err    error
}

// callGateway returns when the gateway answers or ctx is done, whichever comes first.
func (e *Engine) callGateway(ctx context.Context, req schemas.ChargeRequest) (schemas.ChargeResult, error) {
	replies := make(chan chargeReply, 1)
	go func() {
		result, err := e.charges.Charge(ctx, req)
		replies <- chargeReply{result: result, err: err}
	}()

	select {
	case reply := <-replies:
		return reply.result, reply.err
	case <-ctx.Done():
		return schemas.ChargeResult{}, ctx.Err()
	}
}

func sameView(a, b schemas.EnrolledContact) bool {
	return sameStage(a.CurrentStageID, b.CurrentStageID) && sameInstant(a.LastTransitionAt, b.LastTransitionAt)
}

func sameStage(a, b *bson.ObjectID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func sameInstant(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}
