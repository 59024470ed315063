// Package pairing holds the arena and swiss pairing algorithms. Both are pure: they take a
// snapshot of eligible participants and return pairs without touching storage.
package pairing

import (
	"cmp"
	"slices"
	"time"
)

type Candidate struct {
	ID             string
	Rating         int
	Score          int
	LastOpponentID string
	LobbySince     time.Time
	Opponents      map[string]bool // swiss: every prior opponent
	Byes           int
}

type Pair struct {
	A Candidate
	B Candidate
}

type repeatFunc func(a, b Candidate) bool

func lastOpponents(a, b Candidate) bool {
	return a.LastOpponentID == b.ID || b.LastOpponentID == a.ID
}

func playedBefore(a, b Candidate) bool {
	return a.Opponents[b.ID] || b.Opponents[a.ID]
}

// repair swaps partners between a repeated pair and a nearby pair when the swap removes the
// repeat without introducing a new one. window bounds how far apart the two pairs may be.
func repair(pairs []Pair, repeat repeatFunc, window int) {
	for i := range pairs {
		if !repeat(pairs[i].A, pairs[i].B) {
			continue
		}
		for j := max(0, i-window); j <= min(len(pairs)-1, i+window); j++ {
			if j == i {
				continue
			}
			x, y := pairs[i].A, pairs[i].B
			u, v := pairs[j].A, pairs[j].B
			if !repeat(x, u) && !repeat(y, v) {
				pairs[i], pairs[j] = Pair{A: x, B: u}, Pair{A: y, B: v}
				break
			}
			if !repeat(x, v) && !repeat(y, u) {
				pairs[i], pairs[j] = Pair{A: x, B: v}, Pair{A: y, B: u}
				break
			}
		}
	}
}

func ratingGap(a, b Candidate) int {
	d := a.Rating - b.Rating
	if d < 0 {
		return -d
	}
	return d
}

// SortByStanding orders by score desc, rating desc, id asc.
func SortByStanding(cs []Candidate) {
	slices.SortStableFunc(cs, func(a, b Candidate) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		if c := cmp.Compare(b.Rating, a.Rating); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}
