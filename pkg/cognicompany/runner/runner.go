// Package runner drives a persona run on a remote thread to completion.
//
// The loop polls the run status. Queued and in-progress runs are polled
// again after PollInterval; a run requiring action has every pending tool
// call dispatched concurrently and all outputs submitted in one batch; a
// completed run yields the newest assistant message; any other terminal
// status is a RunError. The loop ends early when its context is cancelled,
// when MaxWait elapses or when the channel's runs are cancelled. An aborted
// run is cancelled remotely on a best-effort basis.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jholhewres/cognicompany/pkg/cognicompany/llm"
	"github.com/jholhewres/cognicompany/pkg/cognicompany/retry"
)

const (
	// DefaultPollInterval is the sleep between status checks.
	DefaultPollInterval = time.Second

	// remoteCancelTimeout bounds the best-effort remote cancellation.
	remoteCancelTimeout = 10 * time.Second
)

var (
	// ErrMaxWait is the cause of runs stopped after Config.MaxWait.
	ErrMaxWait = errors.New("run exceeded max wait")

	// ErrAborted is the cause of runs stopped through Cancel or CancelAll.
	ErrAborted = errors.New("run aborted")
)

// RunError reports a run that reached a terminal status other than completed.
type RunError struct {
	RunID  string
	Status llm.RunStatus
	Reason string
}

func (e *RunError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("run %s %s", e.RunID, e.Status)
	}
	return fmt.Sprintf("run %s %s: %s", e.RunID, e.Status, e.Reason)
}

// Thread starts runs on a remote thread.
type Thread interface {
	ID() string
	StartRun(ctx context.Context, personaID string) (string, error)
}

// RunAPI is the subset of the assistant service the loop needs.
type RunAPI interface {
	RetrieveRun(ctx context.Context, threadID, runID string) (*llm.Run, error)
	SubmitToolOutputs(ctx context.Context, threadID, runID string, outputs []llm.ToolOutput) error
	CancelRun(ctx context.Context, threadID, runID string) error
	LatestAssistantMessage(ctx context.Context, threadID, runID string) ([]llm.ContentBlock, error)
}

// Dispatcher executes one tool call. It must always return an output.
type Dispatcher interface {
	Dispatch(ctx context.Context, call llm.ToolCall) llm.ToolOutput
}

// Config tunes the polling loop.
type Config struct {
	PollInterval time.Duration
	MaxWait      time.Duration // 0 = until terminal
	PollRetry    retry.Config
}

// DefaultConfig returns a one-second poll with no max wait.
func DefaultConfig() Config {
	return Config{
		PollInterval: DefaultPollInterval,
		PollRetry:    retry.DefaultConfig(),
	}
}

// Request names the run to drive.
type Request struct {
	ChannelID string
	Thread    Thread
	PersonaID string
}

// Result is the outcome of a completed run.
type Result struct {
	RunID     string
	Content   []llm.ContentBlock
	Polls     int
	ToolCalls int
	Duration  time.Duration
}

// Runner drives runs and tracks the in-flight ones per channel.
type Runner struct {
	api    RunAPI
	tools  Dispatcher
	cfg    Config
	logger *slog.Logger

	mu     sync.Mutex
	active map[string]map[uint64]context.CancelCauseFunc
	nextID uint64
}

// New creates a Runner.
func New(api RunAPI, tools Dispatcher, cfg Config, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	return &Runner{
		api:    api,
		tools:  tools,
		cfg:    cfg,
		logger: logger.With("component", "runner"),
		active: make(map[string]map[uint64]context.CancelCauseFunc),
	}
}

// Run starts a run of req.PersonaID on req.Thread and drives it until it
// reaches a terminal status.
func (r *Runner) Run(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	if r.cfg.MaxWait > 0 {
		var stop context.CancelFunc
		ctx, stop = context.WithTimeoutCause(ctx, r.cfg.MaxWait, ErrMaxWait)
		defer stop()
	}

	id := r.track(req.ChannelID, cancel)
	defer r.untrack(req.ChannelID, id)

	threadID := req.Thread.ID()
	runID, err := req.Thread.StartRun(ctx, req.PersonaID)
	if err != nil {
		// No run id yet, so there is nothing to cancel remotely.
		return nil, fmt.Errorf("starting run: %w", stopCause(ctx, err))
	}

	logger := r.logger.With(
		"channel_id", req.ChannelID,
		"thread_id", threadID,
		"persona", req.PersonaID,
		"run_id", runID,
	)
	logger.Info("run started")

	result := &Result{RunID: runID}
	for {
		run, err := r.retrieve(ctx, threadID, runID, logger)
		if err != nil {
			return nil, r.abort(ctx, threadID, runID, err, logger)
		}
		result.Polls++

		switch run.Status {
		case llm.StatusCompleted:
			content, err := r.api.LatestAssistantMessage(ctx, threadID, runID)
			if err != nil {
				return nil, fmt.Errorf("reading reply of run %s: %w", runID, stopCause(ctx, err))
			}
			result.Content = content
			result.Duration = time.Since(start)
			logger.Info("run completed",
				"polls", result.Polls,
				"tool_calls", result.ToolCalls,
				"duration_ms", result.Duration.Milliseconds(),
			)
			return result, nil

		case llm.StatusFailed, llm.StatusExpired, llm.StatusCancelled, llm.StatusIncomplete:
			logger.Warn("run ended", "status", run.Status, "reason", run.LastError)
			return nil, &RunError{RunID: runID, Status: run.Status, Reason: run.LastError}

		case llm.StatusRequiresAction:
			if len(run.ToolCalls) > 0 {
				outputs := r.dispatch(ctx, run.ToolCalls)
				result.ToolCalls += len(outputs)
				logger.Info("submitting tool outputs", "count", len(outputs))

				if err := r.api.SubmitToolOutputs(ctx, threadID, runID, outputs); err != nil {
					return nil, r.abort(ctx, threadID, runID, err, logger)
				}
				continue
			}
			// Nothing to answer yet; wait like any other pending status.
			fallthrough

		default:
			if err := sleep(ctx, r.cfg.PollInterval); err != nil {
				return nil, r.abort(ctx, threadID, runID, err, logger)
			}
		}
	}
}

// retrieve reads the run status, retrying transient failures.
func (r *Runner) retrieve(ctx context.Context, threadID, runID string, logger *slog.Logger) (*llm.Run, error) {
	var run *llm.Run
	res := retry.Do(ctx, r.cfg.PollRetry, func(ctx context.Context) error {
		var err error
		run, err = r.api.RetrieveRun(ctx, threadID, runID)
		return err
	}, logger)
	if res.Err != nil {
		return nil, fmt.Errorf("polling run %s: %w", runID, res.Err)
	}
	return run, nil
}

// dispatch executes every call concurrently, one goroutine per call, and
// returns the outputs in call order.
func (r *Runner) dispatch(ctx context.Context, calls []llm.ToolCall) []llm.ToolOutput {
	outputs := make([]llm.ToolOutput, len(calls))

	g, gctx := errgroup.WithContext(ctx)
	for i, call := range calls {
		i, call := i, call
		g.Go(func() error {
			out := r.tools.Dispatch(gctx, call)
			out.CallID = call.ID
			outputs[i] = out
			return nil
		})
	}
	_ = g.Wait()

	return outputs
}

// abort converts a loop failure into the returned error and, when the loop
// was stopped rather than failed, cancels the run remotely.
func (r *Runner) abort(ctx context.Context, threadID, runID string, err error, logger *slog.Logger) error {
	if ctx.Err() == nil {
		return err
	}

	cause := context.Cause(ctx)
	logger.Info("run stopped, cancelling remotely", "cause", cause)

	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), remoteCancelTimeout)
	defer cancel()
	if cerr := r.api.CancelRun(cctx, threadID, runID); cerr != nil {
		logger.Warn("remote cancel failed", "error", cerr)
	}

	return fmt.Errorf("run %s: %w", runID, cause)
}

// stopCause returns the cancel cause in place of err once ctx is done, so
// aborts surface as ErrAborted or ErrMaxWait.
func stopCause(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return context.Cause(ctx)
	}
	return err
}

func (r *Runner) track(channelID string, cancel context.CancelCauseFunc) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	runs, ok := r.active[channelID]
	if !ok {
		runs = make(map[uint64]context.CancelCauseFunc)
		r.active[channelID] = runs
	}
	runs[r.nextID] = cancel
	return r.nextID
}

func (r *Runner) untrack(channelID string, id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.active[channelID], id)
	if len(r.active[channelID]) == 0 {
		delete(r.active, channelID)
	}
}

// CancelChannel aborts every in-flight run of channelID and returns how
// many were signalled.
func (r *Runner) CancelChannel(channelID string) int {
	r.mu.Lock()
	runs := r.active[channelID]
	delete(r.active, channelID)
	r.mu.Unlock()

	for _, cancel := range runs {
		cancel(ErrAborted)
	}
	return len(runs)
}

// CancelAll aborts every in-flight run.
func (r *Runner) CancelAll() int {
	r.mu.Lock()
	active := r.active
	r.active = make(map[string]map[uint64]context.CancelCauseFunc)
	r.mu.Unlock()

	n := 0
	for _, runs := range active {
		for _, cancel := range runs {
			cancel(ErrAborted)
			n++
		}
	}
	return n
}

// Active returns the number of in-flight runs.
func (r *Runner) Active() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, runs := range r.active {
		n += len(runs)
	}
	return n
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
