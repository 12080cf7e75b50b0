// internal/game/integrity.go
package game

import (
	"github.com/sirupsen/logrus"
)

// Census counts every card the game can see: deck, hands, revealed cards and any exchange buffer.
func Census(g *Game) map[Card]int {
	counts := make(map[Card]int, len(AllCards))
	for _, c := range g.Deck {
		counts[c]++
	}
	for _, id := range g.Seats {
		if p := g.Players[id]; p != nil {
			for _, c := range p.Cards {
				counts[c]++
			}
		}
	}
	for _, cards := range g.Revealed {
		for _, c := range cards {
			counts[c]++
		}
	}
	if g.Pending != nil {
		for _, c := range g.Pending.DrawnCards {
			counts[c]++
		}
	}
	return counts
}

// CensusValid reports whether counts is exactly three of each kind and nothing else.
func CensusValid(counts map[Card]int) bool {
	total := 0
	for c, n := range counts {
		if !c.Valid() {
			return false
		}
		total += n
	}
	if total != DeckSize {
		return false
	}
	for _, c := range AllCards {
		if counts[c] != CopiesPerCard {
			return false
		}
	}
	return true
}

// VerifyDeckIntegrity checks the card census after a deck-mutating transition.
// A failure is a card-movement bug: it is logged for operators and never interrupts play.
func VerifyDeckIntegrity(g *Game, where string, logger logrus.FieldLogger) bool {
	counts := Census(g)
	ok := CensusValid(counts)
	if logger == nil {
		return ok
	}

	total := 0
	for _, n := range counts {
		total += n
	}
	fields := logrus.Fields{
		"room":    g.RoomCode,
		"context": where,
		"deck":    len(g.Deck),
		"total":   total,
	}
	if ok {
		logger.WithFields(fields).Debug("deck check passed")
		return true
	}

	for _, c := range AllCards {
		fields["count_"+string(c)] = counts[c]
	}
	fields["deck_contents"] = CardStrings(g.Deck)
	for _, id := range g.Seats {
		if p := g.Players[id]; p != nil {
			fields["hand_"+p.Name] = CardStrings(p.Cards)
		}
	}
	if g.Pending != nil && len(g.Pending.DrawnCards) > 0 {
		fields["drawn"] = CardStrings(g.Pending.DrawnCards)
	}
	logger.WithFields(fields).Error("deck integrity check failed")
	return false
}
