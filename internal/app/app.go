// Package app is the orchestration facade: it wires the audio pipeline's
// block output into the streaming session's audio input and owns the
// lifecycle of both engines. Consumers subscribe to component events through
// the [App.Pipeline] and [App.Session] accessors; the facade adds no event
// layer of its own.
package app

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/voxwire/voxwire/pkg/audio"
	"github.com/voxwire/voxwire/pkg/session"
)

// App owns one audio pipeline and one streaming session.
type App struct {
	pipeline *audio.Pipeline
	manager  *session.Manager

	captureCfg audio.Config
	sessionCfg session.Config
}

// New creates a facade around the given engines. The configurations are
// applied by [App.Start].
func New(p *audio.Pipeline, m *session.Manager, captureCfg audio.Config, sessionCfg session.Config) *App {
	return &App{
		pipeline:   p,
		manager:    m,
		captureCfg: captureCfg,
		sessionCfg: sessionCfg,
	}
}

// Pipeline returns the audio engine for event subscription and inspection.
func (a *App) Pipeline() *audio.Pipeline { return a.pipeline }

// Session returns the session engine for event subscription and inspection.
func (a *App) Session() *session.Manager { return a.manager }

// Start brings both engines up: the session connects and the pipeline starts
// capturing, in parallel. Captured blocks are framed as little-endian PCM16
// and forwarded to the session; a send rejected by the rate limiter drops the
// block, since stale audio is worthless once the window reopens.
//
// If either engine fails to start, the ctx of the other is cancelled and the
// first error is returned. Start must not be called again before Stop.
func (a *App) Start(ctx context.Context) error {
	// Subscribed here, not in New: Stop detaches all subscribers, so a
	// restarted facade needs a fresh bridge.
	a.pipeline.BlockEvents().Subscribe(func(b audio.Block) {
		if err := a.manager.SendAudio(audio.PCM16Bytes(b.Samples)); err != nil {
			slog.Warn("dropping audio block", "err", err)
		}
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.manager.Connect(gctx, a.sessionCfg)
	})
	g.Go(func() error {
		return a.pipeline.Initialize(gctx, a.captureCfg)
	})
	return g.Wait()
}

// Stop tears both engines down. Idempotent; safe to call while Start is in
// flight, in which case Start returns a cancellation error.
func (a *App) Stop() {
	a.pipeline.Cleanup()
	a.manager.Cleanup()
}
