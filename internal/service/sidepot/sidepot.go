// Package sidepot partitions a hand's contributions into pots and splits
// them among showdown winners. Everything here is pure and deterministic.
package sidepot

import "sort"

type Status string

const (
	StatusActive     Status = "active"
	StatusAllIn      Status = "all_in"
	StatusFolded     Status = "folded"
	StatusEliminated Status = "eliminated"
)

// Contributor is one player's cumulative commitment for a hand.
type Contributor struct {
	PlayerID int64  `json:"playerId"`
	TotalBet int64  `json:"totalBet"`
	Status   Status `json:"status"`
}

type Pot struct {
	Amount            int64   `json:"amount"`
	EligiblePlayerIDs []int64 `json:"eligiblePlayerIds"`
}

// Ranking is a showdown strength score, higher is better.
type Ranking struct {
	PlayerID int64 `json:"playerId"`
	Score    int64 `json:"score"`
}

// CalculateSidePots layers contributions at every all-in level, smallest
// first, and finishes with the main pot above the highest all-in level.
// Pots with no chips or no eligible player are dropped.
func CalculateSidePots(contributors []Contributor) []Pot {
	live := make([]Contributor, 0, len(contributors))
	for _, c := range contributors {
		if c.TotalBet > 0 {
			live = append(live, c)
		}
	}
	if len(live) == 0 {
		return []Pot{}
	}

	levels := allInLevels(live)
	pots := make([]Pot, 0, len(levels)+1)

	var prev int64
	for _, level := range levels {
		pot := Pot{EligiblePlayerIDs: []int64{}}
		for _, c := range live {
			pot.Amount += layer(c.TotalBet, prev, level)
			if c.Status != StatusFolded && c.TotalBet >= level {
				pot.EligiblePlayerIDs = append(pot.EligiblePlayerIDs, c.PlayerID)
			}
		}
		pots = appendPot(pots, pot)
		prev = level
	}

	main := Pot{EligiblePlayerIDs: []int64{}}
	for _, c := range live {
		if c.TotalBet <= prev {
			continue
		}
		main.Amount += c.TotalBet - prev
		if c.Status != StatusFolded {
			main.EligiblePlayerIDs = append(main.EligiblePlayerIDs, c.PlayerID)
		}
	}
	return appendPot(pots, main)
}

// DistributeSidePots awards every pot to the best-scoring eligible players.
// Ties split by integer division; the odd chips go to the first tied winner
// in rankings order.
func DistributeSidePots(pots []Pot, rankings []Ranking) map[int64]int64 {
	won := make(map[int64]int64)
	for _, pot := range pots {
		eligible := make(map[int64]struct{}, len(pot.EligiblePlayerIDs))
		for _, id := range pot.EligiblePlayerIDs {
			eligible[id] = struct{}{}
		}

		var (
			winners []int64
			best    int64
		)
		for _, r := range rankings {
			if _, ok := eligible[r.PlayerID]; !ok {
				continue
			}
			switch {
			case len(winners) == 0 || r.Score > best:
				best = r.Score
				winners = []int64{r.PlayerID}
			case r.Score == best:
				winners = append(winners, r.PlayerID)
			}
		}
		// An unranked pot still has to land somewhere.
		if len(winners) == 0 {
			if len(pot.EligiblePlayerIDs) == 0 {
				continue
			}
			winners = []int64{pot.EligiblePlayerIDs[0]}
		}

		share := pot.Amount / int64(len(winners))
		remainder := pot.Amount % int64(len(winners))
		for i, id := range winners {
			amount := share
			if i == 0 {
				amount += remainder
			}
			won[id] += amount
		}
	}
	return won
}

// TotalAmount sums the chips held in pots.
func TotalAmount(pots []Pot) int64 {
	var total int64
	for _, p := range pots {
		total += p.Amount
	}
	return total
}

func allInLevels(contributors []Contributor) []int64 {
	seen := make(map[int64]struct{})
	levels := make([]int64, 0)
	for _, c := range contributors {
		if c.Status != StatusAllIn {
			continue
		}
		if _, ok := seen[c.TotalBet]; ok {
			continue
		}
		seen[c.TotalBet] = struct{}{}
		levels = append(levels, c.TotalBet)
	}
	sort.Slice(levels, func(i, j int) bool { return levels[i] < levels[j] })
	return levels
}

// layer is the slice of bet that falls between (prev, level].
func layer(bet, prev, level int64) int64 {
	if bet <= prev {
		return 0
	}
	if bet > level {
		bet = level
	}
	return bet - prev
}

func appendPot(pots []Pot, pot Pot) []Pot {
	if pot.Amount <= 0 || len(pot.EligiblePlayerIDs) == 0 {
		return pots
	}
	return append(pots, pot)
}
