package ingest

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

const (
	// StartDelimiter opens every API frame
	StartDelimiter = 0x7E
	// FrameTypeReceive is "receive packet" frame carrying sensor payload
	FrameTypeReceive = 0x90
	// FrameTypeRemoteAT is "remote AT command request" frame
	FrameTypeRemoteAT = 0x17
	// FrameTypeNodeIdentification is reply to node discovery
	FrameTypeNodeIdentification = 0x97
)

// APIFrame is a single XBee API frame: type byte followed by frame-specific data
type APIFrame struct {
	Type byte
	Data []byte
}

// Checksum returns 0xFF minus the low byte of the sum of frame type and data
func Checksum(frameType byte, data []byte) byte {
	total := int(frameType)
	for _, b := range data {
		total += int(b)
	}
	return 0xFF - byte(total&0xFF)
}

// MarshalBinary encodes frame with delimiter, length and checksum
func (frame APIFrame) MarshalBinary() ([]byte, error) {
	length := len(frame.Data) + 1
	if length > 0xFFFF {
		return nil, errors.Errorf("frame data is too long: %d bytes", len(frame.Data))
	}
	buf := make([]byte, 0, length+4)
	buf = append(buf, StartDelimiter)
	buf = binary.BigEndian.AppendUint16(buf, uint16(length))
	buf = append(buf, frame.Type)
	buf = append(buf, frame.Data...)
	buf = append(buf, Checksum(frame.Type, frame.Data))
	return buf, nil
}

// ReadAPIFrame reads next frame from r. Bytes before the start delimiter are discarded, but no more than maxSkip of them.
// Timed out read without any byte returns ErrNoData
func ReadAPIFrame(r io.Reader, maxSkip int) (APIFrame, error) {
	one := make([]byte, 1)
	skipped := 0
	for {
		if err := readExactly(r, one); err != nil {
			if skipped == 0 {
				return APIFrame{}, err
			}
			return APIFrame{}, errors.Wrapf(err, "after skipping %d bytes", skipped)
		}
		if one[0] == StartDelimiter {
			break
		}
		skipped++
		if skipped > maxSkip {
			return APIFrame{}, errors.Wrapf(ErrNoStartDelimiter, "skipped %d bytes", skipped)
		}
	}

	header := make([]byte, 2)
	if err := readExactly(r, header); err != nil {
		return APIFrame{}, errors.Wrap(err, "Can't read frame length")
	}
	length := int(binary.BigEndian.Uint16(header))
	if length == 0 {
		return APIFrame{}, errors.Wrap(ErrShortPayload, "zero frame length")
	}
	// Frame type + data + checksum
	body := make([]byte, length+1)
	if err := readExactly(r, body); err != nil {
		return APIFrame{}, errors.Wrapf(err, "Can't read frame body of %d bytes", length)
	}
	frame := APIFrame{
		Type: body[0],
		Data: body[1:length],
	}
	if expected := Checksum(frame.Type, frame.Data); expected != body[length] {
		return frame, errors.Wrapf(ErrChecksum, "frame type 0x%02X: expected 0x%02X, got 0x%02X", frame.Type, expected, body[length])
	}
	return frame, nil
}

// readExactly fills buf. Serial ports report read timeout as zero bytes without error, that is ErrNoData here
func readExactly(r io.Reader, buf []byte) error {
	read := 0
	for read < len(buf) {
		n, err := r.Read(buf[read:])
		read += n
		if err != nil {
			if err == io.EOF {
				if read == 0 {
					return ErrNoData
				}
				return errors.Wrapf(io.ErrUnexpectedEOF, "read %d of %d bytes", read, len(buf))
			}
			return errors.Wrap(err, "Can't read from link")
		}
		if n == 0 {
			if read == 0 {
				return ErrNoData
			}
			return errors.Wrapf(ErrShortPayload, "read %d of %d bytes", read, len(buf))
		}
	}
	return nil
}
