package mot

// Detection is the interface for objects found on a single frame.
// Tracker follows detections between frames and accumulates them into tracks.
type Detection interface {
	// Geometry
	GetCenter() Point
	GetSize() int

	// Thermal properties
	GetAvgTemp() float64
}
