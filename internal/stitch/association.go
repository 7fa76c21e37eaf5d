package stitch

import (
	"math"

	"github.com/halcyon-data/stormtrack/internal/detect"
	"github.com/halcyon-data/stormtrack/internal/grid"
)

// forbiddenCost stands in for infinity in the assignment cost matrix.
// Entries at or above it are never selected.
const forbiddenCost = 1e18

// link pairs an open trajectory slot with a candidate index for one
// time step.
type link struct {
	slot int // index into the step's open slot list
	cand int // index into the step's candidate slice
}

// associate resolves one-to-one links between open trajectories and a
// step's candidates. slots are the open arena entries, gates[k] is the
// displacement gate for slots[k] at this step. Returned links are in
// ascending slot order.
func associate(mode AssociationMode, slots []*trackSlot, cands []detect.Candidate, gates []float64) []link {
	if len(slots) == 0 || len(cands) == 0 {
		return nil
	}
	if mode == AssocOptimal {
		return associateOptimal(slots, cands, gates)
	}
	return associateNearest(slots, cands, gates)
}

// associateNearest is the default greedy rule. Every open trajectory
// proposes its nearest in-gate candidate (equidistant candidates break
// toward the smaller per-step ordinal). When two trajectories claim
// the same candidate the smaller displacement wins, an exact tie going
// to the earlier-created trajectory; the loser takes a miss this step
// rather than falling back to its second choice.
func associateNearest(slots []*trackSlot, cands []detect.Candidate, gates []float64) []link {
	winner := make([]int, len(cands)) // candidate -> winning slot, -1 free
	winDist := make([]float64, len(cands))
	for c := range winner {
		winner[c] = -1
	}

	for k, slot := range slots {
		h := slot.head()
		best := -1
		bestDist := math.Inf(1)
		for c := range cands {
			d := grid.GreatCircleDeg(h.Lat, h.Lon, cands[c].Lat, cands[c].Lon)
			if d > gates[k] {
				continue
			}
			if d < bestDist || (d == bestDist && best >= 0 && cands[c].Seq < cands[best].Seq) {
				best = c
				bestDist = d
			}
		}
		if best < 0 {
			continue
		}
		prev := winner[best]
		if prev < 0 || bestDist < winDist[best] ||
			(bestDist == winDist[best] && slot.seq < slots[prev].seq) {
			winner[best] = k
			winDist[best] = bestDist
		}
	}

	var links []link
	assigned := make(map[int]int, len(cands)) // slot -> candidate
	for c, k := range winner {
		if k >= 0 {
			assigned[k] = c
		}
	}
	for k := range slots {
		if c, ok := assigned[k]; ok {
			links = append(links, link{slot: k, cand: c})
		}
	}
	return links
}

// associateOptimal solves the same gated one-to-one problem globally
// with the Kuhn-Munkres assignment, minimizing the total displacement
// instead of resolving conflicts pairwise.
func associateOptimal(slots []*trackSlot, cands []detect.Candidate, gates []float64) []link {
	cost := make([][]float64, len(slots))
	for k := range slots {
		cost[k] = make([]float64, len(cands))
		h := slots[k].head()
		for c := range cands {
			d := grid.GreatCircleDeg(h.Lat, h.Lon, cands[c].Lat, cands[c].Lon)
			if d > gates[k] {
				cost[k][c] = forbiddenCost
			} else {
				cost[k][c] = d
			}
		}
	}

	assign := hungarianAssign(cost)
	var links []link
	for k, c := range assign {
		if c >= 0 {
			links = append(links, link{slot: k, cand: c})
		}
	}
	return links
}

// hungarianAssign solves the rectangular assignment problem for an n×m
// cost matrix in O(dim³). It returns assign[i] = column for row i, or
// -1 when unassigned. Costs at or above forbiddenCost are rejected.
func hungarianAssign(cost [][]float64) []int {
	n := len(cost)
	if n == 0 {
		return nil
	}
	m := len(cost[0])
	if m == 0 {
		result := make([]int, n)
		for i := range result {
			result[i] = -1
		}
		return result
	}

	dim := n
	if m > dim {
		dim = m
	}

	// Padded square matrix; padding entries are forbidden so excess
	// rows or columns stay unmatched.
	c := make([][]float64, dim)
	for i := 0; i < dim; i++ {
		c[i] = make([]float64, dim)
		for j := 0; j < dim; j++ {
			if i < n && j < m {
				c[i][j] = cost[i][j]
			} else {
				c[i][j] = forbiddenCost
			}
		}
	}

	// Kuhn-Munkres with potentials (Jonker-Volgenant variant), using
	// 1-indexed arrays internally for cleaner index arithmetic.
	const inf = math.MaxFloat64 / 2

	u := make([]float64, dim+1)
	v := make([]float64, dim+1)
	p := make([]int, dim+1)   // p[j] = row assigned to column j
	way := make([]int, dim+1) // way[j] = previous column in augmenting path
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

		for j0 != 0 {
			p[j0] = p[way[j0]]
			j0 = way[j0]
		}
	}

	rowAssign := make([]int, dim)
	for i := range rowAssign {
		rowAssign[i] = -1
	}
	for j := 1; j <= dim; j++ {
		if p[j] > 0 && p[j] <= dim {
			rowAssign[p[j]-1] = j - 1
		}
	}

	result := make([]int, n)
	for i := 0; i < n; i++ {
		col := rowAssign[i]
		if col < 0 || col >= m || cost[i][col] >= forbiddenCost {
			result[i] = -1
		} else {
			result[i] = col
		}
	}
	return result
}
