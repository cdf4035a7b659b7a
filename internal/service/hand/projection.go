package hand

import (
	"sort"

	"pokertable-service/internal/model"
	"pokertable-service/internal/service/sidepot"
)

// PlayerState is one participant folded out of the action log.
type PlayerState struct {
	SeatNumber    int
	PlayerID      int64
	StartingStack int64
	TotalBet      int64 // whole hand
	RoundBet      int64 // current phase only
	Folded        bool
	LastActSeq    int // last voluntary action in the current phase
}

func (p PlayerState) Remaining() int64 {
	return p.StartingStack - p.TotalBet
}

func (p PlayerState) AllIn() bool {
	return !p.Folded && p.Remaining() == 0
}

func (p PlayerState) CanBet() bool {
	return !p.Folded && p.Remaining() > 0
}

func (p PlayerState) Status() sidepot.Status {
	switch {
	case p.Folded:
		return sidepot.StatusFolded
	case p.Remaining() == 0:
		return sidepot.StatusAllIn
	default:
		return sidepot.StatusActive
	}
}

// Projection is the derived state of a hand at one phase. Nothing in it is
// stored; it is rebuilt from participants and actions on every read.
type Projection struct {
	Phase             Phase
	Players           []PlayerState // ascending seat number
	CurrentBet        int64
	MinRaise          int64
	LastAggressionSeq int
	LastSequence      int
}

// Project replays actions for the given phase. Contributions from earlier
// phases count toward TotalBet only.
func Project(participants []model.HandParticipant, actions []model.HandAction, phase Phase, bigBlind int64) Projection {
	proj := Projection{Phase: phase, MinRaise: bigBlind}
	if phase == PhasePreflop {
		proj.CurrentBet = bigBlind
	}

	bySeat := make(map[int]int, len(participants))
	for _, p := range participants {
		proj.Players = append(proj.Players, PlayerState{
			SeatNumber:    p.SeatNumber,
			PlayerID:      p.PlayerID,
			StartingStack: p.StartingStack,
		})
	}
	sort.Slice(proj.Players, func(i, j int) bool {
		return proj.Players[i].SeatNumber < proj.Players[j].SeatNumber
	})
	for i, p := range proj.Players {
		bySeat[p.SeatNumber] = i
	}

	ordered := append([]model.HandAction(nil), actions...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Sequence < ordered[j].Sequence })

	for _, a := range ordered {
		if a.Sequence > proj.LastSequence {
			proj.LastSequence = a.Sequence
		}
		idx, ok := bySeat[a.SeatNumber]
		if !ok {
			continue
		}
		ps := &proj.Players[idx]
		ps.TotalBet += a.Amount
		if ActionKind(a.Kind) == ActionAnte {
			continue
		}
		if Phase(a.Phase) != phase {
			if ActionKind(a.Kind) == ActionFold {
				ps.Folded = true
			}
			continue
		}

		ps.RoundBet += a.Amount
		kind := ActionKind(a.Kind)
		switch kind {
		case ActionFold:
			ps.Folded = true
		case ActionPost:
			if ps.RoundBet > proj.CurrentBet {
				proj.CurrentBet = ps.RoundBet
			}
			continue
		}
		ps.LastActSeq = a.Sequence

		if ps.RoundBet > proj.CurrentBet {
			raise := ps.RoundBet - proj.CurrentBet
			if raise >= proj.MinRaise {
				proj.MinRaise = raise
			}
			proj.CurrentBet = ps.RoundBet
			proj.LastAggressionSeq = a.Sequence
		}
	}
	return proj
}

func (p Projection) Player(seat int) (PlayerState, bool) {
	for _, ps := range p.Players {
		if ps.SeatNumber == seat {
			return ps, true
		}
	}
	return PlayerState{}, false
}

// Live are the players who have not folded.
func (p Projection) Live() []PlayerState {
	out := make([]PlayerState, 0, len(p.Players))
	for _, ps := range p.Players {
		if !ps.Folded {
			out = append(out, ps)
		}
	}
	return out
}

// Bettors are live players with chips behind.
func (p Projection) Bettors() []PlayerState {
	out := make([]PlayerState, 0, len(p.Players))
	for _, ps := range p.Players {
		if ps.CanBet() {
			out = append(out, ps)
		}
	}
	return out
}

func (p Projection) needsAction(ps PlayerState) bool {
	if !ps.CanBet() {
		return false
	}
	acted := ps.LastActSeq > 0 && ps.LastActSeq >= p.LastAggressionSeq
	return !acted || ps.RoundBet < p.CurrentBet
}

// RoundComplete reports whether nobody is left to act this phase.
func (p Projection) RoundComplete() bool {
	bettors := p.Bettors()
	if len(bettors) == 0 {
		return true
	}
	if len(bettors) == 1 && bettors[0].RoundBet >= p.CurrentBet {
		return true
	}
	for _, ps := range bettors {
		if p.needsAction(ps) {
			return false
		}
	}
	return true
}

// NextActor is the first seat clockwise after seat that still has to act,
// or -1.
func (p Projection) NextActor(after int) int {
	seats := make([]int, 0, len(p.Players))
	for _, ps := range p.Players {
		seats = append(seats, ps.SeatNumber)
	}
	for _, seat := range seatsFrom(seats, after) {
		if ps, _ := p.Player(seat); p.needsAction(ps) {
			return seat
		}
	}
	return -1
}

// Contributors converts the projection for the side-pot engine.
func (p Projection) Contributors() []sidepot.Contributor {
	out := make([]sidepot.Contributor, 0, len(p.Players))
	for _, ps := range p.Players {
		out = append(out, sidepot.Contributor{
			PlayerID: ps.PlayerID,
			TotalBet: ps.TotalBet,
			Status:   ps.Status(),
		})
	}
	return out
}

// seatsFrom orders seats clockwise starting after the given seat.
func seatsFrom(seats []int, after int) []int {
	sorted := append([]int(nil), seats...)
	sort.Ints(sorted)
	out := make([]int, 0, len(sorted))
	for _, s := range sorted {
		if s > after {
			out = append(out, s)
		}
	}
	for _, s := range sorted {
		if s <= after {
			out = append(out, s)
		}
	}
	return out
}
