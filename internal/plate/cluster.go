package plate

import "sort"

// MinGroupSize is the smallest number of mutually compatible candidates
// that can be considered a plate.
const MinGroupSize = 3

// Group is a set of candidates judged to belong to the same plate.
type Group []Candidate

// FindGroups partitions candidates into groups of at least MinGroupSize.
//
// The scan walks the working set in input order. For the first candidate
// whose trial group (every other working candidate compatible with it,
// followed by the candidate itself) is large enough, the group is emitted,
// its members leave the working set and the scan restarts on what is left.
// Input order decides which groups are found first.
//
// Each returned group is sorted left to right and has had overlapping
// duplicates removed.
func FindGroups(candidates []Candidate) []Group {
	working := make([]int, len(candidates))
	for i := range working {
		working[i] = i
	}

	var groups []Group
	for len(working) >= MinGroupSize {
		trial := nextTrialGroup(candidates, working)
		if trial == nil {
			break
		}

		group := make(Group, len(trial))
		for i, idx := range trial {
			group[i] = candidates[idx]
		}
		groups = append(groups, RemoveOverlapping(SortByCenterX(group)))

		working = without(working, trial)
	}

	return groups
}

// nextTrialGroup returns the arena indices of the first acceptable trial
// group in the working set, or nil when none reaches MinGroupSize.
func nextTrialGroup(candidates []Candidate, working []int) []int {
	for _, ref := range working {
		trial := matchesFor(candidates, ref, working)
		trial = append(trial, ref)
		if len(trial) >= MinGroupSize {
			return trial
		}
	}
	return nil
}

// matchesFor returns the working indices compatible with candidates[ref],
// never including ref itself.
func matchesFor(candidates []Candidate, ref int, working []int) []int {
	var matches []int
	for _, idx := range working {
		if idx == ref {
			continue
		}
		if Compatible(candidates[ref], candidates[idx]) {
			matches = append(matches, idx)
		}
	}
	return matches
}

// without returns working minus removed, keeping the order of working.
func without(working, removed []int) []int {
	drop := make(map[int]struct{}, len(removed))
	for _, idx := range removed {
		drop[idx] = struct{}{}
	}

	rest := make([]int, 0, len(working))
	for _, idx := range working {
		if _, ok := drop[idx]; !ok {
			rest = append(rest, idx)
		}
	}
	return rest
}

// SortByCenterX returns a copy of g ordered left to right. Ties keep their
// relative order.
func SortByCenterX(g Group) Group {
	sorted := make(Group, len(g))
	copy(sorted, g)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CenterX < sorted[j].CenterX
	})
	return sorted
}

// RemoveOverlapping drops the smaller of any two members whose centers are
// closer than the first member's diagonal times MinDiagSizeMultipleAway.
// Such pairs are one glyph seen twice, e.g. the inner and outer contour of
// an "O". Equal areas drop the later member. Removal is idempotent and the
// survivors keep their order.
func RemoveOverlapping(g Group) Group {
	removed := make([]bool, len(g))

	for i := range g {
		for j := range g {
			if i == j {
				continue
			}
			if Distance(g[i], g[j]) >= g[i].Diagonal*MinDiagSizeMultipleAway {
				continue
			}

			// Equal areas drop j here and i on the reversed pair, so two
			// coincident boxes of the same size both go.
			if g[i].Area < g[j].Area {
				removed[i] = true
			} else {
				removed[j] = true
			}
		}
	}

	out := make(Group, 0, len(g))
	for i, c := range g {
		if !removed[i] {
			out = append(out, c)
		}
	}
	return out
}

// Longest returns the index of the group with the most members, preferring
// the first on ties. It returns -1 for an empty slice.
func Longest(groups []Group) int {
	best := -1
	bestLen := 0
	for i, g := range groups {
		if best == -1 || len(g) > bestLen {
			best = i
			bestLen = len(g)
		}
	}
	return best
}
