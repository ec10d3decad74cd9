package thermal

import (
	"github.com/LdDl/occupancy-go/mot"
)

// Cell is a single above-threshold cell of a blob
type Cell struct {
	Row  int
	Col  int
	Temp float64
}

// Blob is one 8-connected region of above-threshold cells on a single frame
type Blob struct {
	Size int
	// Temperature-weighted center. X is column, Y is row
	Centroid mot.Point
	// Unweighted mean temperature of cells
	AvgTemp float64
	Cells   []Cell
}

// GetCenter returns weighted centroid (implements mot.Detection)
func (blob Blob) GetCenter() mot.Point {
	return blob.Centroid
}

// GetSize returns number of cells (implements mot.Detection)
func (blob Blob) GetSize() int {
	return blob.Size
}

// GetAvgTemp returns mean temperature of cells (implements mot.Detection)
func (blob Blob) GetAvgTemp() float64 {
	return blob.AvgTemp
}

// King-move neighbourhood in fixed order
var neighbours = [8][2]int{
	{-1, -1}, {-1, 0}, {-1, 1},
	{0, -1}, {0, 1},
	{1, -1}, {1, 0}, {1, 1},
}

// Segment extracts blobs of cells hotter than their threshold.
// Blobs are returned in row-major order of their first cell; every above-threshold cell belongs to exactly one blob
func Segment(grid, threshold Grid) []Blob {
	visited := [GridSize][GridSize]bool{}
	blobs := make([]Blob, 0)
	for row := 0; row < GridSize; row++ {
		for col := 0; col < GridSize; col++ {
			if visited[row][col] || grid[row][col] <= threshold[row][col] {
				continue
			}
			blobs = append(blobs, floodFill(grid, threshold, &visited, row, col))
		}
	}
	return blobs
}

// floodFill collects the region containing (row, col) breadth-first
func floodFill(grid, threshold Grid, visited *[GridSize][GridSize]bool, row, col int) Blob {
	queue := make([]Cell, 0, CellsCount)
	queue = append(queue, Cell{Row: row, Col: col, Temp: grid[row][col]})
	visited[row][col] = true
	cells := make([]Cell, 0)
	for len(queue) > 0 {
		cell := queue[0]
		queue = queue[1:]
		cells = append(cells, cell)
		for _, dir := range neighbours {
			r := cell.Row + dir[0]
			c := cell.Col + dir[1]
			if r < 0 || r >= GridSize || c < 0 || c >= GridSize {
				continue
			}
			if visited[r][c] || grid[r][c] <= threshold[r][c] {
				continue
			}
			visited[r][c] = true
			queue = append(queue, Cell{Row: r, Col: c, Temp: grid[r][c]})
		}
	}
	return newBlob(cells)
}

func newBlob(cells []Cell) Blob {
	weightSum := 0.0
	rowSum, colSum := 0.0, 0.0
	tempSum := 0.0
	for _, cell := range cells {
		weightSum += cell.Temp
		rowSum += cell.Temp * float64(cell.Row)
		colSum += cell.Temp * float64(cell.Col)
		tempSum += cell.Temp
	}
	n := float64(len(cells))
	var center mot.Point
	if weightSum != 0 {
		center = mot.NewPoint(colSum/weightSum, rowSum/weightSum)
	} else {
		// Weights cancel out: plain geometric center
		rowSum, colSum = 0, 0
		for _, cell := range cells {
			rowSum += float64(cell.Row)
			colSum += float64(cell.Col)
		}
		center = mot.NewPoint(colSum/n, rowSum/n)
	}
	return Blob{
		Size:     len(cells),
		Centroid: center,
		AvgTemp:  tempSum / n,
		Cells:    cells,
	}
}

// ActiveCells returns number of cells hotter than their threshold
func ActiveCells(grid, threshold Grid) int {
	count := 0
	for row := 0; row < GridSize; row++ {
		for col := 0; col < GridSize; col++ {
			if grid[row][col] > threshold[row][col] {
				count++
			}
		}
	}
	return count
}
