package sqlite

import (
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/LdDl/occupancy-go/mot"
	"github.com/LdDl/occupancy-go/thermal"
)

// Arrays are stored as comma-delimited numeric strings, points as "x:y" items

func formatFloats(values []float64) string {
	var sb strings.Builder
	for i, value := range values {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.FormatFloat(value, 'g', -1, 64))
	}
	return sb.String()
}

func parseFloats(s string) ([]float64, error) {
	if s == "" {
		return []float64{}, nil
	}
	parts := strings.Split(s, ",")
	values := make([]float64, len(parts))
	for i, part := range parts {
		value, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return nil, errors.Wrapf(err, "item %d", i)
		}
		values[i] = value
	}
	return values, nil
}

func formatCells(cells [thermal.CellsCount]float64) string {
	return formatFloats(cells[:])
}

func parseCells(s string) ([thermal.CellsCount]float64, error) {
	cells := [thermal.CellsCount]float64{}
	values, err := parseFloats(s)
	if err != nil {
		return cells, err
	}
	if len(values) != thermal.CellsCount {
		return cells, errors.Wrapf(thermal.ErrWrongCellsCount, "got %d values", len(values))
	}
	copy(cells[:], values)
	return cells, nil
}

func formatGrid(grid thermal.Grid) string {
	return formatCells(grid.Flatten())
}

func parseGrid(s string) (thermal.Grid, error) {
	values, err := parseFloats(s)
	if err != nil {
		return thermal.Grid{}, err
	}
	return thermal.GridFromSlice(values)
}

func formatPoints(points []mot.Point) string {
	var sb strings.Builder
	for i, point := range points {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.FormatFloat(point.X, 'g', -1, 64))
		sb.WriteByte(':')
		sb.WriteString(strconv.FormatFloat(point.Y, 'g', -1, 64))
	}
	return sb.String()
}

func parsePoints(s string) ([]mot.Point, error) {
	if s == "" {
		return []mot.Point{}, nil
	}
	parts := strings.Split(s, ",")
	points := make([]mot.Point, len(parts))
	for i, part := range parts {
		xy := strings.SplitN(part, ":", 2)
		if len(xy) != 2 {
			return nil, errors.Errorf("item %d: '%s' is not a point", i, part)
		}
		x, err := strconv.ParseFloat(xy[0], 64)
		if err != nil {
			return nil, errors.Wrapf(err, "item %d", i)
		}
		y, err := strconv.ParseFloat(xy[1], 64)
		if err != nil {
			return nil, errors.Wrapf(err, "item %d", i)
		}
		points[i] = mot.NewPoint(x, y)
	}
	return points, nil
}

func formatTimes(times []time.Time) string {
	var sb strings.Builder
	for i, t := range times {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.FormatInt(t.UnixNano(), 10))
	}
	return sb.String()
}
