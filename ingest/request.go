package ingest

const (
	// D1 pin states toggling sampling on the sensor nodes
	pinSamplingOn  = 0x05
	pinSamplingOff = 0x04

	remoteOptionApply = 0x02
)

// broadcast64 is the 64-bit broadcast address, broadcast16 means "unknown 16-bit address"
var (
	broadcast64 = []byte{0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0xFF, 0xFF}
	broadcast16 = []byte{0xFF, 0xFE}
)

// RemoteATRequest builds broadcast remote AT command frame setting the parameter of the command
func RemoteATRequest(command [2]byte, parameter byte) APIFrame {
	data := make([]byte, 0, 15)
	// Frame ID 0: no response requested
	data = append(data, 0x00)
	data = append(data, broadcast64...)
	data = append(data, broadcast16...)
	data = append(data, remoteOptionApply)
	data = append(data, command[0], command[1])
	data = append(data, parameter)
	return APIFrame{
		Type: FrameTypeRemoteAT,
		Data: data,
	}
}

// StartRequest asks every node to start sending samples
func StartRequest() APIFrame {
	return RemoteATRequest([2]byte{'D', '1'}, pinSamplingOn)
}

// StopRequest asks every node to stop sending samples
func StopRequest() APIFrame {
	return RemoteATRequest([2]byte{'D', '1'}, pinSamplingOff)
}
