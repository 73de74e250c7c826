// Package rawfile implements [audio.Device] on top of a little-endian int16
// PCM byte source, read from a file or stdin at the capture cadence. It is
// the production capture adapter for environments without a hardware device
// boundary, and doubles as a replay harness for recorded sessions.
package rawfile

import (
	"context"
	"errors"
	"io"
	"os"
	"sync"
	"time"

	"github.com/voxwire/voxwire/pkg/audio"
)

// Compile-time assertions that the adapter satisfies the audio interfaces.
var _ audio.Device = (*Device)(nil)
var _ audio.Stream = (*stream)(nil)

// Device reads PCM from a file path, or stdin when the path is empty.
type Device struct {
	path      string
	blockSize int
}

// New creates a device that reads from path; an empty path means stdin.
// blockSize is the per-block sample count (0 uses the pipeline default).
func New(path string, blockSize int) *Device {
	if blockSize <= 0 {
		blockSize = audio.DefaultBlockSize
	}
	return &Device{path: path, blockSize: blockSize}
}

// Open implements [audio.Device]. A missing or unreadable file surfaces as a
// stream creation failure, which the pipeline treats as recoverable.
func (d *Device) Open(ctx context.Context, cfg audio.Config) (audio.Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var src io.ReadCloser
	if d.path == "" {
		src = io.NopCloser(os.Stdin)
	} else {
		f, err := os.Open(d.path)
		if err != nil {
			return nil, audio.NewError(audio.KindStreamCreationFailed, err)
		}
		src = f
	}

	s := &stream{
		src:    src,
		blocks: make(chan []float32, 4),
		done:   make(chan struct{}),
	}
	go s.readLoop(cfg, d.blockSize)
	return s, nil
}

type stream struct {
	src    io.ReadCloser
	blocks chan []float32
	done   chan struct{}

	mu       sync.Mutex
	err      error
	stopOnce sync.Once
}

// Blocks implements [audio.Stream].
func (s *stream) Blocks() <-chan []float32 { return s.blocks }

// Err implements [audio.Stream]. Returns nil after a clean end of input.
func (s *stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Stop implements [audio.Stream]. Closes the source; the read loop exits and
// closes the block channel.
func (s *stream) Stop() error {
	s.stopOnce.Do(func() {
		close(s.done)
		_ = s.src.Close()
	})
	return nil
}

// readLoop delivers one block per cadence tick until the source drains or
// Stop is called. It owns the block channel and closes it on exit.
func (s *stream) readLoop(cfg audio.Config, blockSize int) {
	defer close(s.blocks)

	rate := cfg.SampleRate
	if rate <= 0 {
		rate = audio.DefaultSampleRate
	}
	channels := cfg.Channels
	if channels <= 0 {
		channels = audio.DefaultChannels
	}

	// One tick per block of interleaved frames.
	interval := time.Second * time.Duration(blockSize) / time.Duration(rate*channels)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	buf := make([]byte, blockSize*2)
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
		}

		n, err := io.ReadFull(s.src, buf)
		if n > 0 {
			select {
			case s.blocks <- audio.SamplesFromPCM16(buf[:n]):
			case <-s.done:
				return
			}
		}
		if err != nil {
			// Read errors caused by Stop closing the source are not failures.
			select {
			case <-s.done:
				return
			default:
			}
			// A clean EOF leaves Err nil; a short final block still counts
			// as a clean end.
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
				s.mu.Lock()
				s.err = err
				s.mu.Unlock()
			}
			return
		}
	}
}
