package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/spacearena/lead-pipeline/schemas"
	"go.mongodb.org/mongo-driver/v2/bson"
	"golang.org/x/sync/errgroup"
)

const (
	DEFAULT_BULK_CONCURRENCY  = 8
	DEFAULT_BULK_MAX_CONTACTS = 5000
)

type BulkRequest struct {
	JobID         string
	CampaignID    bson.ObjectID
	ContactIDs    []string
	TargetStageID bson.ObjectID
	Reason        string
	Automatic     bool
	ActorID       string
}

// BulkObserver is told about every finished bulk request.
type BulkObserver interface {
	BulkCompleted(ctx context.Context, result schemas.BulkTransitionResult)
}

// BulkProcessor fans one target stage out over many contacts. Each contact is
// an independent transition; one failure never stops the others.
type BulkProcessor struct {
	engine      *Engine
	jobs        JobStore
	observers   []BulkObserver
	concurrency int
	maxContacts int
	newJobID    func() string
	logger      *slog.Logger

	mu      sync.Mutex
	running map[string]context.CancelFunc
}

type BulkOption func(*BulkProcessor)

func WithJobStore(jobs JobStore) BulkOption {
	return func(p *BulkProcessor) {
		p.jobs = jobs
	}
}

func WithConcurrency(n int) BulkOption {
	return func(p *BulkProcessor) {
		if n > 0 {
			p.concurrency = n
		}
	}
}

func WithMaxContacts(n int) BulkOption {
	return func(p *BulkProcessor) {
		if n > 0 {
			p.maxContacts = n
		}
	}
}

func WithBulkObservers(observers ...BulkObserver) BulkOption {
	return func(p *BulkProcessor) {
		p.observers = append(p.observers, observers...)
	}
}

func WithBulkLogger(logger *slog.Logger) BulkOption {
	return func(p *BulkProcessor) {
		p.logger = logger
	}
}

func NewBulkProcessor(engine *Engine, opts ...BulkOption) *BulkProcessor {
	p := &BulkProcessor{
		engine:      engine,
		concurrency: DEFAULT_BULK_CONCURRENCY,
		maxContacts: DEFAULT_BULK_MAX_CONTACTS,
		newJobID:    func() string { return uuid.NewString() },
		logger:      slog.Default(),
		running:     make(map[string]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With("component", "bulk_processor")
	return p
}

type itemResult struct {
	contactID string
	outcome   *schemas.TransitionOutcome
	err       error
}

// Run applies the request. The returned error is only set when the batch
// itself is rejected; per-contact failures are reported in the result and
// SuccessCount+FailedCount always equals TotalRequested.
func (p *BulkProcessor) Run(ctx context.Context, req BulkRequest) (schemas.BulkTransitionResult, error) {
	if len(req.ContactIDs) == 0 {
		return schemas.BulkTransitionResult{}, InvalidArgumentf("contactIds must not be empty")
	}
	if len(req.ContactIDs) > p.maxContacts {
		return schemas.BulkTransitionResult{}, InvalidArgumentf("at most %d contacts per request", p.maxContacts)
	}

	jobID := req.JobID
	if jobID == "" {
		jobID = p.newJobID()
	}

	jobCtx, err := p.register(ctx, jobID)
	if err != nil {
		return schemas.BulkTransitionResult{}, err
	}
	defer p.unregister(jobID)

	completed := map[string]bool{}
	if p.jobs != nil {
		target := jobTarget(req)
		bound, err := p.jobs.BindTarget(ctx, jobID, target)
		if err != nil {
			return schemas.BulkTransitionResult{}, err
		}
		if bound != target {
			return schemas.BulkTransitionResult{}, InvalidArgumentf("bulk job %s was started for another campaign or stage", jobID)
		}
		completed, err = p.jobs.Completed(ctx, jobID)
		if err != nil {
			return schemas.BulkTransitionResult{}, err
		}
	}

	opts := schemas.TransitionOptions{Reason: req.Reason, Automatic: req.Automatic, ActorID: req.ActorID}
	results := make([]itemResult, len(req.ContactIDs))

	var g errgroup.Group
	g.SetLimit(p.concurrency)
	for i, rawID := range req.ContactIDs {
		results[i].contactID = rawID
		if completed[rawID] {
			continue
		}
		if jobCtx.Err() != nil {
			results[i].err = ErrCancelled
			continue
		}
		g.Go(func() error {
			results[i].outcome, results[i].err = p.one(jobCtx, jobID, req, rawID, opts)
			return nil
		})
	}
	_ = g.Wait()

	result := schemas.BulkTransitionResult{
		JobID:          jobID,
		CampaignID:     req.CampaignID.Hex(),
		TotalRequested: len(req.ContactIDs),
		Errors:         []schemas.BulkTransitionError{},
		ChargeWarnings: []schemas.BulkChargeWarning{},
	}
	for _, item := range results {
		if item.err != nil {
			result.FailedCount++
			result.Errors = append(result.Errors, schemas.BulkTransitionError{
				ContactID: item.contactID,
				Code:      string(CodeOf(item.err)),
				Error:     MessageOf(item.err),
			})
			continue
		}
		result.SuccessCount++
		if item.outcome != nil && item.outcome.ChargeWarning != nil {
			result.ChargeWarnings = append(result.ChargeWarnings, schemas.BulkChargeWarning{
				ContactID: item.contactID,
				Warning:   *item.outcome.ChargeWarning,
			})
		}
	}

	p.logger.Info("bulk transition finished",
		"job_id", jobID,
		"campaign_id", req.CampaignID.Hex(),
		"requested", result.TotalRequested,
		"succeeded", result.SuccessCount,
		"failed", result.FailedCount,
	)
	for _, observer := range p.observers {
		observer.BulkCompleted(ctx, result)
	}
	return result, nil
}

func jobTarget(req BulkRequest) string {
	return req.CampaignID.Hex() + ":" + req.TargetStageID.Hex()
}

func (p *BulkProcessor) one(ctx context.Context, jobID string, req BulkRequest, rawID string, opts schemas.TransitionOptions) (*schemas.TransitionOutcome, error) {
	if ctx.Err() != nil {
		return nil, ErrCancelled
	}

	contactID, err := bson.ObjectIDFromHex(rawID)
	if err != nil {
		return nil, NotFoundf("contact %q not found", rawID)
	}

	outcome, err := p.engine.TransitionByID(ctx, req.CampaignID, contactID, req.TargetStageID, opts)
	if err != nil {
		if ctx.Err() != nil && (errors.Is(err, ErrCancelled) || errors.Is(err, context.Canceled)) {
			return nil, ErrCancelled
		}
		return nil, err
	}

	if p.jobs != nil {
		if err := p.jobs.MarkCompleted(context.WithoutCancel(ctx), jobID, rawID); err != nil {
			p.logger.Error("failed to record bulk progress", "job_id", jobID, "contact_id", rawID, "error", err)
		}
	}
	return &outcome, nil
}

func (p *BulkProcessor) register(ctx context.Context, jobID string) (context.Context, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.running[jobID]; ok {
		return nil, ConflictErr("bulk job %s is already running", jobID)
	}
	jobCtx, cancel := context.WithCancel(ctx)
	p.running[jobID] = cancel
	return jobCtx, nil
}

func (p *BulkProcessor) unregister(jobID string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if cancel, ok := p.running[jobID]; ok {
		cancel()
		delete(p.running, jobID)
	}
}

// Cancel stops a running job. Contacts already moved stay moved.
func (p *BulkProcessor) Cancel(jobID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	cancel, ok := p.running[jobID]
	if ok {
		cancel()
	}
	return ok
}
