package ingest

import "github.com/pkg/errors"

var (
	// ErrChecksum is returned for API frame with wrong checksum
	ErrChecksum = errors.New("bad checksum")
	// ErrShortPayload is returned when packet is too short for its kind
	ErrShortPayload = errors.New("payload is too short")
	// ErrNoData is returned when the link times out without a single byte
	ErrNoData = errors.New("no data received")
	// ErrNoStartDelimiter is returned when start delimiter is not found within allowed number of bytes
	ErrNoStartDelimiter = errors.New("start delimiter not found")
	// ErrUnexpectedFrame is returned when decoding frame of unsupported type
	ErrUnexpectedFrame = errors.New("unexpected frame type")
)
