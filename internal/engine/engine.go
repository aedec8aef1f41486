// Package engine drives a single application attempt through its lifecycle:
// discovery, form filling, review, submission. It is the only component that
// mutates ApplicationAttempt records, and it persists every transition before
// issuing the remote action that depends on it, so a crash at any point
// leaves a resumable record.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/tla-bot/tla-go/internal/browser"
	"github.com/tla-bot/tla-go/internal/metrics"
	"github.com/tla-bot/tla-go/internal/models"
	"github.com/tla-bot/tla-go/internal/parser"
)

// Gateway is the persistence surface the engine writes through. All writes
// are idempotent; Unavailable errors block progress rather than losing data.
// GetAttempt returns nil, nil when the job has never been attempted.
type Gateway interface {
	UpsertJob(ctx context.Context, job models.JobPosting) error
	UpsertAttempt(ctx context.Context, a models.ApplicationAttempt) error
	GetAttempt(ctx context.Context, jobID string) (*models.ApplicationAttempt, error)
	AppendAnswer(ctx context.Context, a models.Answer) error
	AppendRunEvent(ctx context.Context, ev models.RunEvent) error
}

// Session is the paced browser session the engine acts through.
type Session interface {
	BeginAttempt()
	Navigate(ctx context.Context, url string) (*browser.Snapshot, error)
	Act(ctx context.Context, ref, value string) (*browser.Snapshot, error)
}

// StepResolver produces answers for one form step's questions.
type StepResolver interface {
	ResolveStep(ctx context.Context, attemptID string, questions []models.Question) ([]models.Answer, error)
}

// Options tune one engine instance.
type Options struct {
	// RunID tags run events for this process lifetime.
	RunID string
	// MaxSteps caps the fill loop so a cyclic form cannot spin forever.
	MaxSteps int
	// ApplicationMethod is recorded on attempts this engine creates.
	ApplicationMethod string
	// Metrics, when set, records parse, resolve and persist timings.
	Metrics *metrics.Collector
}

// DefaultOptions returns the standard engine settings.
func DefaultOptions() Options {
	return Options{
		RunID:             uuid.New().String(),
		MaxSteps:          20,
		ApplicationMethod: "easy_apply",
	}
}

// Engine is the flow state machine. One attempt is in flight at a time.
type Engine struct {
	gateway  Gateway
	session  Session
	resolver StepResolver
	logger   *slog.Logger
	opts     Options

	// currentAttempt is the attempt in flight, for retry event tagging.
	currentAttempt string
	currentStep    int
}

// New builds an engine around its collaborators.
func New(gateway Gateway, session Session, stepResolver StepResolver, logger *slog.Logger, opts Options) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.MaxSteps <= 0 {
		opts.MaxSteps = 20
	}
	if opts.RunID == "" {
		opts.RunID = uuid.New().String()
	}
	if opts.Metrics != nil {
		gateway = &timedGateway{inner: gateway, collector: opts.Metrics}
	}
	return &Engine{gateway: gateway, session: session, resolver: stepResolver, logger: logger, opts: opts}
}

// timedGateway records the duration of every persistence write.
type timedGateway struct {
	inner     Gateway
	collector *metrics.Collector
}

func (g *timedGateway) UpsertJob(ctx context.Context, job models.JobPosting) error {
	defer g.timed()()
	return g.inner.UpsertJob(ctx, job)
}

func (g *timedGateway) UpsertAttempt(ctx context.Context, a models.ApplicationAttempt) error {
	defer g.timed()()
	return g.inner.UpsertAttempt(ctx, a)
}

func (g *timedGateway) GetAttempt(ctx context.Context, jobID string) (*models.ApplicationAttempt, error) {
	return g.inner.GetAttempt(ctx, jobID)
}

func (g *timedGateway) AppendAnswer(ctx context.Context, a models.Answer) error {
	defer g.timed()()
	return g.inner.AppendAnswer(ctx, a)
}

func (g *timedGateway) AppendRunEvent(ctx context.Context, ev models.RunEvent) error {
	defer g.timed()()
	return g.inner.AppendRunEvent(ctx, ev)
}

func (g *timedGateway) timed() func() {
	start := time.Now()
	return func() { g.collector.RecordTiming(metrics.OpPersist, time.Since(start)) }
}

// OnSessionRetry records a retried navigation for the attempt in flight.
// Wire it as the session controller's retry callback.
func (e *Engine) OnSessionRetry(attempt int, err error) {
	if e.currentAttempt == "" {
		return
	}
	e.event(context.Background(), e.currentAttempt, models.EventRetry,
		fmt.Sprintf("retry %d: %v", attempt, err), e.currentStep)
}

// Apply drives one job posting to a terminal outcome. A previously
// interrupted attempt resumes from its persisted step cursor; a terminal
// attempt is returned unchanged.
func (e *Engine) Apply(ctx context.Context, job models.JobPosting) (*models.ApplicationAttempt, error) {
	if !job.Valid() {
		return nil, fmt.Errorf("apply: incomplete job posting %q", job.JobID)
	}
	if err := e.gateway.UpsertJob(ctx, job); err != nil {
		return nil, fmt.Errorf("persist job %s: %w", job.JobID, err)
	}

	attempt, resumed, err := e.loadOrCreate(ctx, job.JobID)
	if err != nil {
		return nil, err
	}
	if attempt.Status.Terminal() {
		e.logger.Info("attempt already terminal", "job", job.JobID, "status", attempt.Status)
		return attempt, nil
	}

	e.currentAttempt = attempt.JobID
	e.currentStep = attempt.StepCursor
	defer func() { e.currentAttempt = "" }()

	e.session.BeginAttempt()

	// Discovered -> Opening. The transition is persisted before the
	// navigation it authorizes.
	if err := e.transition(ctx, attempt, models.StatusInProgress, attempt.StepCursor, "opening"); err != nil {
		return nil, err
	}
	snap, err := e.session.Navigate(ctx, job.JobLink)
	if err != nil {
		return e.fail(ctx, attempt, models.ReasonNavigation, err.Error(), false)
	}
	if resumed {
		e.logger.Info("resuming attempt", "job", job.JobID, "step", attempt.StepCursor)
	}

	return e.fill(ctx, attempt, snap)
}

// fill runs the step loop until review, a terminal marker, or failure.
func (e *Engine) fill(ctx context.Context, attempt *models.ApplicationAttempt, snap *browser.Snapshot) (*models.ApplicationAttempt, error) {
	for i := 0; i < e.opts.MaxSteps; i++ {
		step, err := e.parseStep(snap)
		if err != nil {
			return e.fail(ctx, attempt, models.ReasonParse, err.Error(), false)
		}

		switch step.Kind {
		case parser.StepTerminal:
			// External redirect, already-applied marker, or an
			// otherwise unsupported flow shape.
			return e.skip(ctx, attempt, step.Detail)

		case parser.StepReview:
			return e.submit(ctx, attempt, step)

		case parser.StepFill:
			snap, err = e.fillStep(ctx, attempt, step)
			if err != nil {
				var terminal *terminalOutcome
				if errors.As(err, &terminal) {
					return terminal.attempt, terminal.err
				}
				return nil, err
			}
		}
	}
	return e.fail(ctx, attempt, models.ReasonParse,
		fmt.Sprintf("form exceeded %d steps", e.opts.MaxSteps), false)
}

// parseStep classifies one snapshot, timing the classification.
func (e *Engine) parseStep(snap *browser.Snapshot) (*parser.Step, error) {
	start := time.Now()
	step, err := parser.ParseStep(snap)
	e.opts.Metrics.RecordTiming(metrics.OpParse, time.Since(start))
	return step, err
}

// fillStep resolves and enters one step's answers, then advances the form.
func (e *Engine) fillStep(ctx context.Context, attempt *models.ApplicationAttempt, step *parser.Step) (*browser.Snapshot, error) {
	start := time.Now()
	answers, err := e.resolver.ResolveStep(ctx, attempt.JobID, step.Questions)
	e.opts.Metrics.RecordTiming(metrics.OpResolve, time.Since(start))
	if err != nil {
		a, fErr := e.fail(ctx, attempt, models.ReasonResolution, err.Error(), false)
		return nil, &terminalOutcome{attempt: a, err: fErr}
	}

	// Answers are durable before any of them touch the page.
	for _, ans := range answers {
		if err := e.gateway.AppendAnswer(ctx, ans); err != nil {
			return nil, fmt.Errorf("persist answer for %q: %w", ans.NormalizedText, err)
		}
	}

	for i, ans := range answers {
		if ans.Blank {
			continue
		}
		if _, err := e.session.Act(ctx, step.Questions[i].ElementRef, ans.Value); err != nil {
			a, fErr := e.fail(ctx, attempt, models.ReasonNavigation, err.Error(), false)
			return nil, &terminalOutcome{attempt: a, err: fErr}
		}
	}

	// Advance: persist the new cursor before clicking the control.
	if err := e.transition(ctx, attempt, models.StatusInProgress, attempt.StepCursor+1, "step complete"); err != nil {
		return nil, err
	}
	snap, err := e.session.Act(ctx, step.ControlRef, "")
	if err != nil {
		a, fErr := e.fail(ctx, attempt, models.ReasonNavigation, err.Error(), false)
		return nil, &terminalOutcome{attempt: a, err: fErr}
	}
	return snap, nil
}

// submit performs the final confirmation action and verifies the post-submit
// page. A verification mismatch is recorded as a confirmation failure and
// flagged for manual review, since the remote side may have succeeded.
func (e *Engine) submit(ctx context.Context, attempt *models.ApplicationAttempt, step *parser.Step) (*models.ApplicationAttempt, error) {
	if err := e.transition(ctx, attempt, models.StatusInProgress, attempt.StepCursor, "submitting"); err != nil {
		return nil, err
	}
	snap, err := e.session.Act(ctx, step.ControlRef, "")
	if err != nil {
		return e.fail(ctx, attempt, models.ReasonConfirmation,
			fmt.Sprintf("submit action failed: %v", err), true)
	}

	post, err := e.parseStep(snap)
	if err != nil || post.Kind != parser.StepTerminal {
		return e.fail(ctx, attempt, models.ReasonConfirmation,
			fmt.Sprintf("post-submit page did not confirm: %s", snap.URL), true)
	}

	now := time.Now().UTC()
	attempt.Status = models.StatusSubmitted
	attempt.EndedAt = &now
	if n := extractConfirmation(post.Detail); n != "" {
		attempt.ConfirmationNumber = &n
	}
	if err := e.gateway.UpsertAttempt(ctx, *attempt); err != nil {
		return nil, fmt.Errorf("persist submitted attempt %s: %w", attempt.JobID, err)
	}
	e.event(ctx, attempt.JobID, models.EventTerminal, "submitted: "+post.Detail, attempt.StepCursor)
	e.logger.Info("application submitted", "job", attempt.JobID, "steps", attempt.StepCursor)
	return attempt, nil
}

// loadOrCreate fetches the persisted attempt for a job or creates a fresh
// one in Discovered.
func (e *Engine) loadOrCreate(ctx context.Context, jobID string) (*models.ApplicationAttempt, bool, error) {
	existing, err := e.gateway.GetAttempt(ctx, jobID)
	if err != nil {
		return nil, false, fmt.Errorf("load attempt %s: %w", jobID, err)
	}
	if existing != nil {
		return existing, !existing.Status.Terminal(), nil
	}

	attempt := &models.ApplicationAttempt{
		JobID:             jobID,
		Status:            models.StatusDiscovered,
		StartedAt:         time.Now().UTC(),
		ApplicationMethod: e.opts.ApplicationMethod,
	}
	if err := e.gateway.UpsertAttempt(ctx, *attempt); err != nil {
		return nil, false, fmt.Errorf("persist attempt %s: %w", jobID, err)
	}
	e.event(ctx, jobID, models.EventTransition, "discovered", 0)
	return attempt, false, nil
}

// transition persists a status/cursor change. It must complete before the
// remote action it precedes.
func (e *Engine) transition(ctx context.Context, attempt *models.ApplicationAttempt, status models.AttemptStatus, cursor int, detail string) error {
	attempt.Status = status
	attempt.StepCursor = cursor
	e.currentStep = cursor
	if err := e.gateway.UpsertAttempt(ctx, *attempt); err != nil {
		return fmt.Errorf("persist transition for %s: %w", attempt.JobID, err)
	}
	e.event(ctx, attempt.JobID, models.EventTransition, detail, cursor)
	return nil
}

// fail marks the attempt Failed with a reason code. needsReview flags the
// ambiguous post-submit case for manual reconciliation.
func (e *Engine) fail(ctx context.Context, attempt *models.ApplicationAttempt, reason models.FailureReason, detail string, needsReview bool) (*models.ApplicationAttempt, error) {
	now := time.Now().UTC()
	attempt.Status = models.StatusFailed
	attempt.EndedAt = &now
	attempt.FailureReason = &reason
	attempt.FailureDetail = &detail
	attempt.NeedsReview = needsReview
	if err := e.gateway.UpsertAttempt(ctx, *attempt); err != nil {
		return nil, fmt.Errorf("persist failed attempt %s: %w", attempt.JobID, err)
	}
	e.event(ctx, attempt.JobID, models.EventTerminal,
		fmt.Sprintf("failed (%s): %s", reason, detail), attempt.StepCursor)
	e.logger.Warn("attempt failed", "job", attempt.JobID, "reason", reason, "detail", detail)
	return attempt, nil
}

// skip marks the attempt Skipped: unsupported flow shape, external redirect
// or an already-applied marker.
func (e *Engine) skip(ctx context.Context, attempt *models.ApplicationAttempt, detail string) (*models.ApplicationAttempt, error) {
	now := time.Now().UTC()
	attempt.Status = models.StatusSkipped
	attempt.EndedAt = &now
	attempt.FailureDetail = &detail
	if err := e.gateway.UpsertAttempt(ctx, *attempt); err != nil {
		return nil, fmt.Errorf("persist skipped attempt %s: %w", attempt.JobID, err)
	}
	e.event(ctx, attempt.JobID, models.EventTerminal, "skipped: "+detail, attempt.StepCursor)
	e.logger.Info("attempt skipped", "job", attempt.JobID, "detail", detail)
	return attempt, nil
}

// event appends a run event. Event logging never fails an attempt.
func (e *Engine) event(ctx context.Context, attemptID string, kind models.EventKind, detail string, step int) {
	ev := models.RunEvent{
		ID:        uuid.New().String(),
		RunID:     e.opts.RunID,
		AttemptID: attemptID,
		Kind:      kind,
		Detail:    detail,
		Step:      step,
		At:        time.Now().UTC(),
	}
	if err := e.gateway.AppendRunEvent(ctx, ev); err != nil {
		e.logger.Warn("run event not recorded", "attempt", attemptID, "kind", kind, "error", err)
	}
}

// terminalOutcome carries a terminal attempt out of the fill loop.
type terminalOutcome struct {
	attempt *models.ApplicationAttempt
	err     error
}

func (t *terminalOutcome) Error() string {
	if t.err != nil {
		return t.err.Error()
	}
	return "attempt reached terminal state"
}

var confirmationPattern = regexp.MustCompile(`(?i)confirmation(?:\s+(?:number|no\.?|code))?\s*[:#]?\s*([A-Za-z0-9-]{4,})`)

// extractConfirmation pulls a confirmation number out of a post-submit
// marker, if the site shows one.
func extractConfirmation(detail string) string {
	m := confirmationPattern.FindStringSubmatch(detail)
	if len(m) < 2 {
		return ""
	}
	return m[1]
}
