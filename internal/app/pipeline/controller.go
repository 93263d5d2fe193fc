package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/PabloGalante/oneiros/internal/domain"
	"github.com/PabloGalante/oneiros/internal/errorsx"
	"github.com/PabloGalante/oneiros/internal/observability"
)

// FailureNotice is shown when a run fails for any reason other than credentials.
const FailureNotice = "The dream was too elusive. Please try again."

var ErrBusy = errorsx.New(errorsx.ReasonBusy, "pipeline: a dream is already being processed")

// Outcome is how the last run ended.
type Outcome string

const (
	OutcomeNone       Outcome = ""
	OutcomeSucceeded  Outcome = "succeeded"
	OutcomeFailed     Outcome = "failed"
	OutcomeCredential Outcome = "credential_required"
)

// Result is delivered once per run started with Start.
type Result struct {
	Entry *domain.DreamEntry
	Err   error
}

// State is a point-in-time view of the controller.
type State struct {
	Phase       Phase   `json:"phase"`
	Stage       string  `json:"stage,omitempty"`
	Status      string  `json:"status"`
	Processing  bool    `json:"processing"`
	LastOutcome Outcome `json:"last_outcome,omitempty"`
}

type Options struct {
	Stages   []Stage
	Store    domain.DreamStore
	Selector domain.KeySelector
	Events   domain.EventPublisher
}

// Controller runs the stages of one recording at a time.
type Controller struct {
	stages   []Stage
	store    domain.DreamStore
	selector domain.KeySelector
	events   domain.EventPublisher
	now      func() time.Time
	newID    func() domain.EntryID

	mu      sync.Mutex
	running bool
	state   State
}

func NewController(opts Options) *Controller {
	events := opts.Events
	if events == nil {
		events = domain.DiscardEvents{}
	}
	return &Controller{
		stages:   opts.Stages,
		store:    opts.Store,
		selector: opts.Selector,
		events:   events,
		now:      time.Now,
		newID:    func() domain.EntryID { return domain.EntryID(uuid.NewString()) },
		state:    State{Phase: PhaseIdle},
	}
}

// Run processes the clip synchronously and returns the stored entry.
func (c *Controller) Run(ctx context.Context, clip domain.AudioClip, tier domain.ImageSize) (*domain.DreamEntry, error) {
	if err := c.acquire(); err != nil {
		return nil, err
	}
	return c.execute(ctx, clip, tier)
}

// Start takes the guard before returning and processes the clip in the
// background. The channel receives exactly one Result.
func (c *Controller) Start(ctx context.Context, clip domain.AudioClip, tier domain.ImageSize) (<-chan Result, error) {
	if err := c.acquire(); err != nil {
		return nil, err
	}

	out := make(chan Result, 1)
	go func() {
		entry, err := c.execute(ctx, clip, tier)
		out <- Result{Entry: entry, Err: err}
		close(out)
	}()
	return out, nil
}

// Processing reports whether a run holds the guard.
func (c *Controller) Processing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.state
	s.Processing = c.running
	return s
}

func (c *Controller) acquire() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return ErrBusy
	}
	if len(c.stages) == 0 {
		return fmt.Errorf("no stages configured in pipeline")
	}
	c.running = true
	return nil
}

func (c *Controller) execute(ctx context.Context, clip domain.AudioClip, tier domain.ImageSize) (*domain.DreamEntry, error) {
	if !tier.Valid() {
		tier = domain.DefaultImageSize
	}

	log := observability.LoggerFromContext(ctx).With("tier", tier)
	log.Info("pipeline started", "stages_count", len(c.stages))

	w := Work{Audio: clip, Tier: tier}

	for _, st := range c.stages {
		c.enter(st)

		start := time.Now()
		log.Info("stage run start", "stage", st.Name())

		next, err := st.Run(ctx, w)
		if err != nil {
			log.Error("stage failed",
				"stage", st.Name(),
				"reason", errorsx.Reason(err),
				"error", err)
			return nil, c.fail(ctx, fmt.Errorf("stage %s failed: %w", st.Name(), err))
		}

		log.Info("stage run end", "stage", st.Name(), "elapsed_ms", time.Since(start).Milliseconds())
		w = next
	}

	entry := &domain.DreamEntry{
		ID:            c.newID(),
		Timestamp:     c.now(),
		Transcription: w.Transcription,
		Analysis:      w.Analysis,
		ImageURL:      w.ImageURL,
		ImageSize:     tier,
	}
	if !entry.Complete() {
		return nil, c.fail(ctx, errors.New("pipeline finished without analysis or image"))
	}

	if err := c.store.Prepend(entry); err != nil {
		log.Error("failed to store entry", "error", err)
		return nil, c.fail(ctx, fmt.Errorf("store entry: %w", err))
	}

	c.finish(OutcomeSucceeded)
	c.events.Publish(domain.Event{Type: domain.EventEntryAdded, EntryID: entry.ID, At: c.now()})
	log.Info("pipeline end", "entry_id", entry.ID)

	return entry.Clone(), nil
}

func (c *Controller) enter(st Stage) {
	c.mu.Lock()
	c.state = State{Phase: st.Phase(), Stage: st.Name(), Status: st.Status()}
	c.mu.Unlock()

	c.events.Publish(domain.Event{
		Type:   domain.EventStatus,
		Stage:  string(st.Phase()),
		Status: st.Status(),
		At:     c.now(),
	})
}

// fail routes credential errors to key selection and everything else to the
// generic notice, then returns the controller to idle.
func (c *Controller) fail(ctx context.Context, err error) error {
	log := observability.LoggerFromContext(ctx)

	if errorsx.IsCredential(err) {
		c.finish(OutcomeCredential)
		if c.selector != nil {
			if selErr := c.selector.OpenSelectKey(ctx); selErr != nil {
				log.Error("key selection failed", "error", selErr)
			}
		}
		return errorsx.Wrap(err, errorsx.ReasonCredentialMissing)
	}

	c.finish(OutcomeFailed)
	c.events.Publish(domain.Event{Type: domain.EventNotice, Notice: FailureNotice, At: c.now()})
	return err
}

func (c *Controller) finish(outcome Outcome) {
	c.mu.Lock()
	c.state = State{Phase: PhaseIdle, LastOutcome: outcome}
	c.running = false
	c.mu.Unlock()

	c.events.Publish(domain.Event{Type: domain.EventStatus, Stage: string(PhaseIdle), At: c.now()})
}
