package ingest

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/pkg/errors"
)

// bufferResetter is implemented by serial ports
type bufferResetter interface {
	ResetInputBuffer() error
	ResetOutputBuffer() error
}

// Link talks to the radio coordinator: sends sampling requests and reads sensor packets
type Link struct {
	rw         io.ReadWriter
	maxRetries int
	// Bytes to discard while looking for start delimiter
	maxSkip int
	pause   time.Duration
	logger  *slog.Logger
}

// LinkOption configures optional parameters of Link
type LinkOption func(*Link)

// WithLinkLogger sets logger. Link is silent by default
func WithLinkLogger(logger *slog.Logger) LinkOption {
	return func(link *Link) {
		if logger != nil {
			link.logger = logger
		}
	}
}

// WithRequestPause sets pause between stop and start requests. Default 100ms
func WithRequestPause(pause time.Duration) LinkOption {
	return func(link *Link) {
		link.pause = pause
	}
}

// NewLink creates link over the given port. maxRetries bounds number of consecutive malformed frames tolerated by Next
func NewLink(rw io.ReadWriter, maxRetries int, options ...LinkOption) *Link {
	if maxRetries <= 0 {
		maxRetries = 1
	}
	link := &Link{
		rw:         rw,
		maxRetries: maxRetries,
		maxSkip:    1024,
		pause:      100 * time.Millisecond,
		logger:     slog.New(slog.DiscardHandler),
	}
	for _, option := range options {
		option(link)
	}
	return link
}

// Send writes a single frame
func (link *Link) Send(frame APIFrame) error {
	raw, err := frame.MarshalBinary()
	if err != nil {
		return err
	}
	if _, err = link.rw.Write(raw); err != nil {
		return errors.Wrapf(err, "Can't write frame 0x%02X", frame.Type)
	}
	return nil
}

// Request resets the nodes and asks them to start sampling
func (link *Link) Request(ctx context.Context) error {
	link.resetBuffers()
	if err := link.Send(StopRequest()); err != nil {
		return errors.Wrap(err, "Can't send stop request")
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(link.pause):
	}
	if err := link.Send(StartRequest()); err != nil {
		return errors.Wrap(err, "Can't send start request")
	}
	link.logger.Info("ingest: sampling requested")
	return nil
}

// Stop asks the nodes to stop sampling
func (link *Link) Stop() error {
	link.resetBuffers()
	if err := link.Send(StopRequest()); err != nil {
		return errors.Wrap(err, "Can't send stop request")
	}
	link.logger.Info("ingest: sampling stopped")
	return nil
}

func (link *Link) resetBuffers() {
	port, ok := link.rw.(bufferResetter)
	if !ok {
		return
	}
	if err := port.ResetInputBuffer(); err != nil {
		link.logger.Warn("ingest: can't reset input buffer", "error", err)
	}
	if err := port.ResetOutputBuffer(); err != nil {
		link.logger.Warn("ingest: can't reset output buffer", "error", err)
	}
}

// Next returns next decoded sensor packet. Frames of other types are skipped,
// malformed frames are retried up to maxRetries times in a row.
// ErrNoData means the link timed out and nodes should be requested again
func (link *Link) Next(ctx context.Context) (Reading, error) {
	failures := 0
	var lastErr error
	for failures < link.maxRetries {
		if err := ctx.Err(); err != nil {
			return Reading{}, err
		}
		frame, err := ReadAPIFrame(link.rw, link.maxSkip)
		if err != nil {
			if errors.Is(err, ErrNoData) {
				return Reading{}, err
			}
			failures++
			lastErr = err
			link.logger.Warn("ingest: malformed frame", "attempt", failures, "error", err)
			continue
		}
		if frame.Type != FrameTypeReceive {
			link.logger.Debug("ingest: frame skipped", "type", frame.Type, "bytes", len(frame.Data))
			continue
		}
		reading, err := Decode(frame)
		if err != nil {
			failures++
			lastErr = err
			link.logger.Warn("ingest: can't decode packet", "attempt", failures, "error", err)
			continue
		}
		return reading, nil
	}
	return Reading{}, errors.Wrapf(lastErr, "giving up after %d malformed frames", failures)
}
