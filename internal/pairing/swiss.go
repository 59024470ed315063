package pairing

import "slices"

type SwissResult struct {
	Pairs []Pair
	Bye   *Candidate
}

// Swiss pairs one round. Players are ranked by score then rating and paired with the next
// rank down, sliding at most lookahead places to avoid a prior opponent. A repeat is accepted
// when no unplayed opponent is in reach. With an odd count the lowest-ranked player among
// those with the fewest byes sits out with a bye.
func Swiss(players []Candidate, lookahead int) SwissResult {
	if lookahead < 1 {
		lookahead = 1
	}

	ranked := slices.Clone(players)
	SortByStanding(ranked)

	var res SwissResult
	if len(ranked)%2 == 1 {
		idx := byeIndex(ranked)
		bye := ranked[idx]
		res.Bye = &bye
		ranked = slices.Delete(ranked, idx, idx+1)
	}

	for len(ranked) >= 2 {
		top := ranked[0]
		pick := 1
		for i := 1; i < len(ranked) && i <= lookahead; i++ {
			if !playedBefore(top, ranked[i]) {
				pick = i
				break
			}
		}
		res.Pairs = append(res.Pairs, Pair{A: top, B: ranked[pick]})
		ranked = slices.Delete(ranked, pick, pick+1)[1:]
	}

	repair(res.Pairs, playedBefore, 1)
	return res
}

func byeIndex(ranked []Candidate) int {
	fewest := ranked[0].Byes
	for _, c := range ranked {
		fewest = min(fewest, c.Byes)
	}
	for i := len(ranked) - 1; i >= 0; i-- {
		if ranked[i].Byes == fewest {
			return i
		}
	}
	return len(ranked) - 1
}
