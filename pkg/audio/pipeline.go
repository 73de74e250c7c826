package audio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/voxwire/voxwire/internal/observe"
	"github.com/voxwire/voxwire/internal/resilience"
	"github.com/voxwire/voxwire/pkg/events"
)

// ErrInitializeInProgress is returned by [Pipeline.Initialize] when another
// Initialize call has not finished yet.
var ErrInitializeInProgress = errors.New("audio: initialize already in progress")

// ErrAlreadyActive is returned by [Pipeline.Initialize] when the pipeline
// already holds a capture stream. Call [Pipeline.Cleanup] first.
var ErrAlreadyActive = errors.New("audio: pipeline already active")

// defaultRetryPolicy matches the capture recovery schedule: 1s doubling to a
// 30s cap, ±25% jitter, three attempts.
var defaultRetryPolicy = resilience.Policy{
	Initial:     1 * time.Second,
	Max:         30 * time.Second,
	MaxAttempts: 3,
	Jitter:      0.25,
}

// Pipeline owns exactly one capture stream at a time and turns it into a
// series of measured [Block] values. Device failures drive the recovery
// automaton: recoverable errors are retried with exponential backoff and
// surfaced as events, fatal errors (or an exhausted retry budget) park the
// pipeline in [StatusError] until the next explicit Initialize.
//
// Construct with [NewPipeline]; a pipeline instance must not be shared
// between independent capture sessions. All methods are safe for concurrent
// use.
type Pipeline struct {
	device    Device
	blockSize int
	retry     *resilience.Retrier
	obs       *observe.Metrics

	statusEvents  *events.Dispatcher[Status]
	errorEvents   *events.Dispatcher[*Error]
	metricsEvents *events.Dispatcher[Metrics]
	blockEvents   *events.Dispatcher[Block]

	mu        sync.Mutex
	status    Status
	cfg       Config
	stream    Stream
	runCtx    context.Context
	runCancel context.CancelFunc
	gen       int
}

// PipelineOption is a functional option for configuring a [Pipeline].
type PipelineOption func(*Pipeline)

// WithBlockSize overrides the fixed block size (default 4096 samples).
func WithBlockSize(n int) PipelineOption {
	return func(p *Pipeline) {
		if n > 0 {
			p.blockSize = n
		}
	}
}

// WithRetryPolicy overrides the recovery backoff schedule. Primarily used in
// tests to avoid multi-second waits.
func WithRetryPolicy(policy resilience.Policy) PipelineOption {
	return func(p *Pipeline) { p.retry = resilience.NewRetrier(policy) }
}

// WithObserver wires OTel instruments into the pipeline. A nil Metrics is
// valid and records nothing.
func WithObserver(m *observe.Metrics) PipelineOption {
	return func(p *Pipeline) { p.obs = m }
}

// NewPipeline creates an inactive pipeline that will capture through dev.
func NewPipeline(dev Device, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		device:        dev,
		blockSize:     DefaultBlockSize,
		retry:         resilience.NewRetrier(defaultRetryPolicy),
		statusEvents:  events.NewDispatcher[Status]("audio.statusChange"),
		errorEvents:   events.NewDispatcher[*Error]("audio.error"),
		metricsEvents: events.NewDispatcher[Metrics]("audio.metricsUpdate"),
		blockEvents:   events.NewDispatcher[Block]("audio.audioData"),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// StatusEvents returns the dispatcher for status transitions.
func (p *Pipeline) StatusEvents() *events.Dispatcher[Status] { return p.statusEvents }

// ErrorEvents returns the dispatcher for classified pipeline errors.
func (p *Pipeline) ErrorEvents() *events.Dispatcher[*Error] { return p.errorEvents }

// MetricsEvents returns the dispatcher for per-block metrics.
func (p *Pipeline) MetricsEvents() *events.Dispatcher[Metrics] { return p.metricsEvents }

// BlockEvents returns the dispatcher for captured blocks.
func (p *Pipeline) BlockEvents() *events.Dispatcher[Block] { return p.blockEvents }

// Status returns the current lifecycle state.
func (p *Pipeline) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// Config returns the configuration of the current (or last) run.
func (p *Pipeline) Config() Config {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cfg
}

// BlockSize returns the fixed per-block sample count.
func (p *Pipeline) BlockSize() int { return p.blockSize }

// Initialize merges cfg over the defaults, acquires a capture stream and
// starts block processing. Recoverable acquisition failures are retried with
// backoff; a fatal failure or an exhausted retry budget transitions the
// pipeline to [StatusError] and returns the error. The ctx governs the whole
// acquisition sequence including backoff waits; [Pipeline.Cleanup] also
// aborts it.
func (p *Pipeline) Initialize(ctx context.Context, cfg Config) error {
	p.mu.Lock()
	switch p.status {
	case StatusInitializing:
		p.mu.Unlock()
		return ErrInitializeInProgress
	case StatusActive, StatusRecovering:
		p.mu.Unlock()
		return ErrAlreadyActive
	}
	merged := cfg.merged()
	p.cfg = merged
	p.retry.Reset()
	if p.runCancel != nil {
		// Stale run left behind by a terminal error state.
		p.runCancel()
	}
	runCtx, cancel := context.WithCancel(context.Background())
	p.runCtx, p.runCancel = runCtx, cancel
	p.status = StatusInitializing
	p.mu.Unlock()
	p.statusEvents.Emit(StatusInitializing)

	// Tie the acquisition sequence to both the caller's ctx and the run
	// lifetime, so Cleanup aborts an in-flight backoff wait.
	actx, acancel := context.WithCancel(ctx)
	defer acancel()
	stop := context.AfterFunc(runCtx, acancel)
	defer stop()

	actx, span := observe.StartSpan(actx, "audio.initialize")
	defer span.End()

	stream, err := p.device.Open(actx, merged)
	if err == nil {
		p.activate(stream, merged)
		return nil
	}
	span.RecordError(err)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	aerr := Classify(err)
	p.errorEvents.Emit(aerr)
	p.obs.RecordPipelineError(actx, aerr.Kind.String())
	return p.recoverAfter(actx, merged, aerr)
}

// recoverAfter drives the recovery automaton: release resources, back off,
// re-acquire. It returns nil once a stream is active again, the triggering
// error when the budget is exhausted or the failure is fatal, and the context
// error when cancelled.
func (p *Pipeline) recoverAfter(ctx context.Context, cfg Config, trigger *Error) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !trigger.Recoverable() {
			p.setStatus(StatusError)
			return trigger
		}

		p.setStatus(StatusRecovering)
		p.releaseStream()

		if werr := p.retry.Wait(ctx); werr != nil {
			if errors.Is(werr, resilience.ErrBudgetExhausted) {
				slog.Error("capture recovery gave up",
					"attempts", p.retry.Attempt(),
					"err", trigger,
				)
				p.setStatus(StatusError)
				return trigger
			}
			return werr
		}

		slog.Info("retrying capture acquisition", "attempt", p.retry.Attempt())
		stream, err := p.device.Open(ctx, cfg)
		if err == nil {
			p.obs.RecordPipelineRecovery(ctx)
			p.activate(stream, cfg)
			return nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		trigger = Classify(err)
		p.errorEvents.Emit(trigger)
		p.obs.RecordPipelineError(ctx, trigger.Kind.String())
	}
}

// activate installs stream and starts the processing goroutine. If Cleanup
// ran while the stream was being acquired, the stream is stopped instead.
func (p *Pipeline) activate(stream Stream, cfg Config) {
	p.mu.Lock()
	if p.runCtx == nil || p.runCtx.Err() != nil {
		p.mu.Unlock()
		_ = stream.Stop()
		return
	}
	p.stream = stream
	p.gen++
	gen := p.gen
	runCtx := p.runCtx
	p.mu.Unlock()

	p.retry.Reset()
	p.setStatus(StatusActive)
	go p.processLoop(runCtx, stream, cfg, gen)
}

// processLoop consumes blocks until the stream closes or the run is
// cancelled. An unexpected stream end hands off to background recovery.
func (p *Pipeline) processLoop(ctx context.Context, stream Stream, cfg Config, gen int) {
	for {
		select {
		case <-ctx.Done():
			return
		case samples, ok := <-stream.Blocks():
			if !ok {
				p.handleStreamEnd(ctx, stream, cfg, gen)
				return
			}
			p.processBlock(ctx, samples, cfg)
		}
	}
}

// processBlock computes metrics over one block and emits the metricsUpdate
// and audioData events. A panic during processing is converted into a
// recoverable Unknown error event so the capture stream keeps running.
func (p *Pipeline) processBlock(ctx context.Context, samples []float32, cfg Config) {
	defer func() {
		if r := recover(); r != nil {
			aerr := NewError(KindUnknown, fmt.Errorf("block processing panic: %v", r))
			slog.Error("block processing failed", "panic", r)
			p.errorEvents.Emit(aerr)
			p.obs.RecordPipelineError(ctx, aerr.Kind.String())
		}
	}()

	start := time.Now()
	m := ComputeMetrics(samples)
	p.metricsEvents.Emit(m)
	p.blockEvents.Emit(Block{
		Samples:   samples,
		Metrics:   m,
		Timestamp: start,
		Channels:  cfg.Channels,
	})
	p.obs.RecordBlock(ctx, time.Since(start).Seconds(), m.Clipping)
}

// handleStreamEnd reacts to the block channel closing. A clean Stop (or a
// concurrent Cleanup) is ignored; anything else is a recoverable StreamEnded
// failure that drives background recovery.
func (p *Pipeline) handleStreamEnd(ctx context.Context, stream Stream, cfg Config, gen int) {
	p.mu.Lock()
	if p.gen != gen || p.stream != stream {
		p.mu.Unlock()
		return
	}
	p.stream = nil
	p.mu.Unlock()

	if ctx.Err() != nil {
		return
	}

	cause := stream.Err()
	if cause == nil {
		cause = errors.New("capture stream ended")
	}
	aerr := NewError(KindStreamEnded, cause)
	slog.Warn("capture stream ended unexpectedly", "err", cause)
	p.errorEvents.Emit(aerr)
	p.obs.RecordPipelineError(ctx, aerr.Kind.String())

	// Background recovery: failures here surface as events only — there is
	// no caller to re-raise to.
	if err := p.recoverAfter(ctx, cfg, aerr); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("capture recovery failed", "err", err)
	}
}

// Cleanup releases the capture stream, detaches all subscribers, resets the
// retry counter and returns the pipeline to [StatusInactive]. Idempotent and
// safe to call from any state, including while an Initialize or recovery
// sequence is in flight — the sequence observes the cancellation at its next
// suspension point.
func (p *Pipeline) Cleanup() {
	p.mu.Lock()
	if p.runCancel != nil {
		p.runCancel()
		p.runCancel = nil
		p.runCtx = nil
	}
	stream := p.stream
	p.stream = nil
	p.gen++
	p.status = StatusInactive
	p.mu.Unlock()

	p.statusEvents.Reset()
	p.errorEvents.Reset()
	p.metricsEvents.Reset()
	p.blockEvents.Reset()

	if stream != nil {
		if err := stream.Stop(); err != nil {
			slog.Warn("capture stream stop", "err", err)
		}
	}
	p.retry.Reset()
}

// releaseStream stops and drops the current stream, if any, without touching
// subscribers or the retry counter. Used between recovery attempts.
func (p *Pipeline) releaseStream() {
	p.mu.Lock()
	stream := p.stream
	p.stream = nil
	p.mu.Unlock()
	if stream != nil {
		_ = stream.Stop()
	}
}

// setStatus records a transition and emits the statusChange event. The write
// is skipped when the owning run has been cleaned up, so a pending recovery
// continuation cannot clobber the state Cleanup installed. No-op if the
// status is unchanged.
func (p *Pipeline) setStatus(s Status) {
	p.mu.Lock()
	if p.runCtx == nil || p.runCtx.Err() != nil || p.status == s {
		p.mu.Unlock()
		return
	}
	p.status = s
	p.mu.Unlock()
	p.statusEvents.Emit(s)
}

// Classify maps an arbitrary error to a classified [*Error]. Errors that are
// already classified pass through; everything else counts as a stream
// creation failure (the device refused or lost the stream).
func Classify(err error) *Error {
	var aerr *Error
	if errors.As(err, &aerr) {
		return aerr
	}
	return NewError(KindStreamCreationFailed, err)
}
