package mot

import "math"

// hungarianAssign solves the rectangular minimum-cost assignment problem for an n×m cost
// matrix with Kuhn-Munkres (potentials, Jonker-Volgenant variant) in O(dim³).
// It returns assignments[i] = column assigned to row i, or -1 when row i is left unassigned
// (only possible when n > m).
//
// The matrix is padded to a square with zero cost. Every padded row (or column) costs the same
// against all real columns (or rows), so padding never changes which real pairs are optimal.
func hungarianAssign(cost [][]float64) []int {
	n := len(cost)
	if n == 0 {
		return nil
	}
	m := len(cost[0])
	result := make([]int, n)
	if m == 0 {
		for i := range result {
			result[i] = -1
		}
		return result
	}

	dim := max(n, m)
	c := make([][]float64, dim)
	for i := 0; i < dim; i++ {
		c[i] = make([]float64, dim)
		if i < n {
			copy(c[i], cost[i][:m])
		}
	}

	// 1-indexed internally, index 0 is the virtual column
	const inf = math.MaxFloat64 / 2
	u := make([]float64, dim+1) // row potentials
	v := make([]float64, dim+1) // column potentials
	p := make([]int, dim+1)     // p[j] = row assigned to column j
	way := make([]int, dim+1)   // way[j] = previous column on the augmenting path
	minv := make([]float64, dim+1)
	used := make([]bool, dim+1)

	for i := 1; i <= dim; i++ {
		p[0] = i
		j0 := 0
		for j := 1; j <= dim; j++ {
			minv[j] = inf
			used[j] = false
		}
		for {
			used[j0] = true
			i0 := p[j0]
			delta := inf
			j1 := -1
			for j := 1; j <= dim; j++ {
				if used[j] {
					continue
				}
				cur := c[i0-1][j-1] - u[i0] - v[j]
				if cur < minv[j] {
					minv[j] = cur
					way[j] = j0
				}
				if minv[j] < delta {
					delta = minv[j]
					j1 = j
				}
			}
			if j1 < 0 {
				break
			}
			for j := 0; j <= dim; j++ {
				if used[j] {
					u[p[j]] += delta
					v[j] -= delta
				} else {
					minv[j] -= delta
				}
			}
			j0 = j1
			if p[j0] == 0 {
				break
			}
		}
		// Augment along the path
		for j0 != 0 {
			p[j0] = p[way[j0]]
			j0 = way[j0]
		}
	}

	for i := range result {
		result[i] = -1
	}
	for j := 1; j <= dim; j++ {
		row := p[j] - 1
		col := j - 1
		// Pairs with padding are not real
		if row >= 0 && row < n && col < m {
			result[row] = col
		}
	}
	return result
}
