package pairing

import "slices"

// Arena pairs the lobby in waiting order. The longest-waiting player takes the closest-rated
// candidate that was not their last opponent, falling back to the closest rating overall.
// An odd player out is returned in waiting and stays in the lobby.
func Arena(pool []Candidate) (pairs []Pair, waiting []Candidate) {
	queue := slices.Clone(pool)
	slices.SortStableFunc(queue, func(a, b Candidate) int {
		return a.LobbySince.Compare(b.LobbySince)
	})

	for len(queue) >= 2 {
		head, rest := queue[0], queue[1:]

		pick := closest(head, rest, true)
		if pick < 0 {
			pick = closest(head, rest, false)
		}

		pairs = append(pairs, Pair{A: head, B: rest[pick]})
		queue = slices.Delete(rest, pick, pick+1)
	}

	repair(pairs, lastOpponents, len(pairs))
	return pairs, queue
}

// closest returns the index in rest with the smallest rating gap to head. Ties go to the
// earlier (longer waiting) candidate.
func closest(head Candidate, rest []Candidate, avoidRepeat bool) int {
	best, bestGap := -1, 0
	for i, c := range rest {
		if avoidRepeat && lastOpponents(head, c) {
			continue
		}
		gap := ratingGap(head, c)
		if best < 0 || gap < bestGap {
			best, bestGap = i, gap
		}
	}
	return best
}
