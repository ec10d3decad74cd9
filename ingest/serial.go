package ingest

import (
	"time"

	"github.com/pkg/errors"
	"go.bug.st/serial"
)

// OpenSerial opens the coordinator's serial port in 8N1 mode. Reads return no data after timeout
func OpenSerial(portName string, baud int, timeout time.Duration) (serial.Port, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, errors.Wrapf(err, "Can't open serial port %s", portName)
	}
	if timeout > 0 {
		if err = port.SetReadTimeout(timeout); err != nil {
			port.Close()
			return nil, errors.Wrapf(err, "Can't set read timeout on %s", portName)
		}
	}
	return port, nil
}
