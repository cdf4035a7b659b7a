package hand

import (
	"fmt"
	"strings"

	"pokertable-service/pkg/utils/random"

	"github.com/paulhankin/poker"
)

const (
	rankChars = "A23456789TJQK" // index+1 is the evaluator rank, ace low
	suitChars = "cdhs"          // club, diamond, heart, spade
)

// NewDeck returns a shuffled 52-card deck of "As"-style cards.
func NewDeck() ([]string, error) {
	deck := make([]string, 0, 52)
	for _, s := range suitChars {
		for _, r := range rankChars {
			deck = append(deck, string(r)+string(s))
		}
	}
	if err := random.Shuffle(deck); err != nil {
		return nil, fmt.Errorf("shuffle deck: %w", err)
	}
	return deck, nil
}

func toPokerCard(c string) (poker.Card, error) {
	var zero poker.Card
	if len(c) != 2 {
		return zero, fmt.Errorf("invalid card %q", c)
	}
	r := strings.IndexByte(rankChars, c[0])
	s := strings.IndexByte(suitChars, c[1])
	if r < 0 || s < 0 {
		return zero, fmt.Errorf("invalid card %q", c)
	}
	return poker.MakeCard(poker.Suit(s), poker.Rank(r+1))
}

// Evaluate scores the best five of seven cards; higher wins.
func Evaluate(hole, board []string) (int64, string, error) {
	if len(hole)+len(board) != 7 {
		return 0, "", fmt.Errorf("need 7 cards, got %d", len(hole)+len(board))
	}
	var all [7]poker.Card
	for i, c := range append(append([]string{}, board...), hole...) {
		pc, err := toPokerCard(c)
		if err != nil {
			return 0, "", err
		}
		all[i] = pc
	}
	desc, err := poker.Describe(all[:])
	if err != nil {
		desc = ""
	}
	return int64(poker.Eval7(&all)), desc, nil
}
