package ingest

import (
	"encoding/binary"
	"time"

	"github.com/pkg/errors"

	"github.com/LdDl/occupancy-go/thermal"
)

const (
	// Offset of RF data inside receive packet: 64-bit address, 16-bit address, options
	rfDataOffset = 11

	tagInactiveCalibration = 0xDF
	tagActiveCalibration   = 0xEF

	// Calibration payload: tag, node, reserved, grid
	calibrationGridOffset = 3
	// Data payload: node, CO2, humidity (2), temperature (2), PIR, grid
	dataGridOffset = 7

	gridBytes = thermal.CellsCount * 2

	// Cells warmer than this (Celsius) set the trigger flag of a reading
	triggerTemperature = 25.0
)

// Reading is a decoded sensor packet
type Reading struct {
	NodeID int
	Kind   thermal.FrameKind
	Grid   thermal.Grid
	// Environment sensors, data packets only
	CO2PPM      float64
	Humidity    float64
	Temperature float64
	PIR         int
	// At least one cell is warmer than 25C
	Trigger bool
}

// Frame converts reading into thermal frame taken at the given time
func (reading Reading) Frame(timestamp time.Time) thermal.Frame {
	return thermal.Frame{
		NodeID:    reading.NodeID,
		Timestamp: timestamp,
		Kind:      reading.Kind,
		Grid:      reading.Grid,
	}
}

// Decode parses receive packet frame into reading
func Decode(frame APIFrame) (Reading, error) {
	if frame.Type != FrameTypeReceive {
		return Reading{}, errors.Wrapf(ErrUnexpectedFrame, "got 0x%02X", frame.Type)
	}
	if len(frame.Data) <= rfDataOffset {
		return Reading{}, errors.Wrapf(ErrShortPayload, "receive packet of %d bytes has no RF data", len(frame.Data))
	}
	return DecodePayload(frame.Data[rfDataOffset:])
}

// DecodePayload parses RF data of receive packet
func DecodePayload(payload []byte) (Reading, error) {
	if len(payload) == 0 {
		return Reading{}, errors.Wrap(ErrShortPayload, "empty payload")
	}
	switch payload[0] {
	case tagInactiveCalibration, tagActiveCalibration:
		if len(payload) < calibrationGridOffset+gridBytes {
			return Reading{}, errors.Wrapf(ErrShortPayload, "calibration payload of %d bytes", len(payload))
		}
		kind := thermal.FrameInactiveCalibration
		if payload[0] == tagActiveCalibration {
			kind = thermal.FrameActiveCalibration
		}
		reading := Reading{
			NodeID: int(payload[1]),
			Kind:   kind,
			Grid:   decodeGrid(payload[calibrationGridOffset:]),
		}
		reading.Trigger = hasTrigger(reading.Grid)
		return reading, nil
	default:
		if len(payload) < dataGridOffset+gridBytes {
			return Reading{}, errors.Wrapf(ErrShortPayload, "data payload of %d bytes", len(payload))
		}
		reading := Reading{
			NodeID:      int(payload[0]),
			Kind:        thermal.FrameData,
			CO2PPM:      float64(payload[1]) * 200,
			Humidity:    float64(binary.BigEndian.Uint16(payload[2:4])) / 10,
			Temperature: float64(binary.BigEndian.Uint16(payload[4:6])) / 10,
			PIR:         int(payload[6]),
			Grid:        decodeGrid(payload[dataGridOffset:]),
		}
		reading.Trigger = hasTrigger(reading.Grid)
		return reading, nil
	}
}

// decodeGrid reads 64 big-endian cells in quarter degrees
func decodeGrid(data []byte) thermal.Grid {
	grid := thermal.Grid{}
	for i := 0; i < thermal.CellsCount; i++ {
		raw := binary.BigEndian.Uint16(data[2*i : 2*i+2])
		grid[i/thermal.GridSize][i%thermal.GridSize] = float64(raw) / 4
	}
	return grid
}

func hasTrigger(grid thermal.Grid) bool {
	for row := range grid {
		for col := range grid[row] {
			if grid[row][col] > triggerTemperature {
				return true
			}
		}
	}
	return false
}

// EncodeGrid is the inverse of grid decoding. Values are rounded down to quarter degrees
func EncodeGrid(grid thermal.Grid) []byte {
	buf := make([]byte, 0, gridBytes)
	for row := range grid {
		for col := range grid[row] {
			buf = binary.BigEndian.AppendUint16(buf, uint16(grid[row][col]*4))
		}
	}
	return buf
}
