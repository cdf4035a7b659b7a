package hand

import (
	"pokertable-service/internal/model"
	"pokertable-service/internal/service/sidepot"
	appErr "pokertable-service/pkg/errors"

	"gorm.io/gorm"
)

// settle builds pots from the action log, ranks live players and pays out.
// It runs at most once per hand.
func (s *Service) settle(ht *handTx) error {
	h := ht.hand
	if Phase(h.Phase) == PhaseComplete || h.SettledAt != nil {
		return appErr.ErrHandAlreadySettled
	}

	proj := ht.projection()
	pots := sidepot.CalculateSidePots(proj.Contributors())

	var committed int64
	for _, ps := range proj.Players {
		committed += ps.TotalBet
	}
	// chips above every eligible layer (a folded overbet) join the last pot
	if leftover := committed - sidepot.TotalAmount(pots); leftover > 0 && len(pots) > 0 {
		pots[len(pots)-1].Amount += leftover
	}

	live := proj.Live()
	showdown := len(live) > 1

	seats := make([]int, 0, len(proj.Players))
	for _, ps := range proj.Players {
		seats = append(seats, ps.SeatNumber)
	}

	type shown struct {
		score int64
		name  string
		hole  []string
	}
	shownBySeat := make(map[int]shown)
	rankings := make([]sidepot.Ranking, 0, len(live))
	for _, seat := range seatsFrom(seats, h.DealerSeat) {
		ps, _ := proj.Player(seat)
		if ps.Folded {
			continue
		}
		var sh shown
		if showdown {
			sh.hole = ht.holeCards(seat)
			score, name, err := Evaluate(sh.hole, ht.board)
			if err != nil {
				return err
			}
			sh.score, sh.name = score, name
			shownBySeat[seat] = sh
		}
		rankings = append(rankings, sidepot.Ranking{PlayerID: ps.PlayerID, Score: sh.score})
	}

	won := sidepot.DistributeSidePots(pots, rankings)

	results := make([]PlayerResult, 0, len(proj.Players))
	busted := make([]BustedPlayer, 0)
	for _, ps := range proj.Players {
		amount := won[ps.PlayerID]
		if amount > 0 {
			if err := adjustStack(ht.tx, h.TableID, ps.SeatNumber, amount); err != nil {
				return err
			}
		}
		res := PlayerResult{
			PlayerID:   ps.PlayerID,
			SeatNumber: ps.SeatNumber,
			TotalBet:   ps.TotalBet,
			Won:        amount,
			Folded:     ps.Folded,
		}
		if sh, ok := shownBySeat[ps.SeatNumber]; ok {
			res.Score, res.HandName, res.HoleCards = sh.score, sh.name, sh.hole
		}
		results = append(results, res)
		if ps.Remaining()+amount == 0 {
			busted = append(busted, BustedPlayer{
				PlayerID:      ps.PlayerID,
				SeatNumber:    ps.SeatNumber,
				StartingStack: ps.StartingStack,
			})
		}
	}

	h.Pots = mustJSON(pots)
	h.Results = mustJSON(results)
	markComplete(h, ht)

	ht.summary = &Summary{
		TableID:    h.TableID,
		HandID:     h.ID,
		HandNumber: h.HandNumber,
		Results:    results,
		Busted:     busted,
		Contested:  contested(ht.actions),
	}
	return nil
}

func contested(actions []model.HandAction) bool {
	for _, a := range actions {
		if k := ActionKind(a.Kind); k != ActionAnte && k != ActionPost {
			return true
		}
	}
	return false
}

func markComplete(h *model.Hand, ht *handTx) {
	now := ht.now
	h.Phase = string(PhaseComplete)
	h.SettledAt = &now
	h.CurrentActorSeat = -1
	h.ActionDeadline = nil
	h.CurrentBet = 0
	h.MinRaise = 0
}

// ForceCompleteTx ends the table's open hand without a showdown and returns
// every contribution to its owner. It is meant for table teardown and joins
// the caller's transaction. It returns nil when no hand is open.
func (s *Service) ForceCompleteTx(tx *gorm.DB, tableID int64) (*model.Hand, error) {
	open, err := OpenHand(tx, tableID)
	if err != nil || open == nil {
		return nil, err
	}
	ht, err := s.loadLocked(tx, tableID, open.ID)
	if err != nil {
		return nil, err
	}
	h := ht.hand
	if h.SettledAt != nil {
		return nil, appErr.ErrHandAlreadySettled
	}

	proj := ht.projection()
	results := make([]PlayerResult, 0, len(proj.Players))
	for _, ps := range proj.Players {
		if ps.TotalBet > 0 {
			if err := adjustStack(tx, tableID, ps.SeatNumber, ps.TotalBet); err != nil {
				return nil, err
			}
		}
		results = append(results, PlayerResult{
			PlayerID:   ps.PlayerID,
			SeatNumber: ps.SeatNumber,
			TotalBet:   ps.TotalBet,
			Won:        ps.TotalBet,
			Folded:     ps.Folded,
			Refunded:   true,
		})
	}
	h.Pots = mustJSON([]sidepot.Pot{})
	h.Results = mustJSON(results)
	markComplete(h, ht)
	if err := ht.save(); err != nil {
		return nil, err
	}
	return h, nil
}
