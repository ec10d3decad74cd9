package mot

import (
	"math"
)

// Point is a position on the sensor grid.
// X grows with the column index and Y grows with the row index.
type Point struct {
	X float64
	Y float64
}

func NewPoint(x, y float64) Point {
	return Point{
		X: x,
		Y: y,
	}
}

// NewPointFromCell returns the point for the given grid cell
func NewPointFromCell(row, col int) Point {
	return Point{
		X: float64(col),
		Y: float64(row),
	}
}

func euclideanDistance(p1, p2 Point) float64 {
	return math.Sqrt(math.Pow(p1.X-p2.X, 2) + math.Pow(p1.Y-p2.Y, 2))
}

// bearingDegrees returns direction of vector (dx, dy) in degrees in range (-180; 180]
func bearingDegrees(dx, dy float64) float64 {
	return math.Atan2(dy, dx) * 180.0 / math.Pi
}

// headingStep returns point shifted from origin by distance in the direction of bearing (degrees)
func headingStep(origin Point, bearing, distance float64) Point {
	rad := bearing * math.Pi / 180.0
	return Point{
		X: origin.X + distance*math.Cos(rad),
		Y: origin.Y + distance*math.Sin(rad),
	}
}
