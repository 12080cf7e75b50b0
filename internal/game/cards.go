// internal/game/cards.go
package game

import (
	"math/rand"
	"sync"
	"time"
)

// Card is one of the five character kinds. A player's concealed cards are their influence.
type Card string

const (
	CardDuke       Card = "duke"
	CardAssassin   Card = "assassin"
	CardCaptain    Card = "captain"
	CardAmbassador Card = "ambassador"
	CardContessa   Card = "contessa"
)

// AllCards lists every card kind in census order.
var AllCards = []Card{CardDuke, CardAssassin, CardCaptain, CardAmbassador, CardContessa}

// Valid reports whether c is one of the five known kinds.
func (c Card) Valid() bool {
	switch c {
	case CardDuke, CardAssassin, CardCaptain, CardAmbassador, CardContessa:
		return true
	}
	return false
}

// Action is a turn action a player may declare.
type Action string

const (
	ActionIncome      Action = "income"
	ActionForeignAid  Action = "foreign_aid"
	ActionCoup        Action = "coup"
	ActionTax         Action = "tax"
	ActionAssassinate Action = "assassinate"
	ActionSteal       Action = "steal"
	ActionExchange    Action = "exchange"
)

// Valid reports whether a is a known action.
func (a Action) Valid() bool {
	switch a {
	case ActionIncome, ActionForeignAid, ActionCoup, ActionTax, ActionAssassinate, ActionSteal, ActionExchange:
		return true
	}
	return false
}

// Targeted reports whether the action needs a target player.
func (a Action) Targeted() bool {
	return a == ActionCoup || a == ActionAssassinate || a == ActionSteal
}

// Blockable reports whether any card can block the action.
func (a Action) Blockable() bool {
	return a == ActionForeignAid || a == ActionSteal || a == ActionAssassinate
}

// Game configuration.
const (
	StartingCoins   = 2
	CoupCost        = 7
	AssassinateCost = 3
	MustCoupAt      = 10
	CardsPerPlayer  = 2
	CopiesPerCard   = 3
	DeckSize        = CopiesPerCard * 5
	MinPlayers      = 2
	MaxPlayers      = 6
)

var (
	rngMu sync.Mutex
	rng   = rand.New(rand.NewSource(time.Now().UnixNano()))
)

// NewShuffledDeck returns the full 15 card census, shuffled.
func NewShuffledDeck() []Card {
	deck := make([]Card, 0, DeckSize)
	for _, c := range AllCards {
		for i := 0; i < CopiesPerCard; i++ {
			deck = append(deck, c)
		}
	}
	shuffleCards(deck)
	return deck
}

// shuffleCards does an in-place Fisher-Yates shuffle.
func shuffleCards(cards []Card) {
	rngMu.Lock()
	defer rngMu.Unlock()
	rng.Shuffle(len(cards), func(i, j int) {
		cards[i], cards[j] = cards[j], cards[i]
	})
}

// CanAfford reports whether the player has the coins the action costs.
func CanAfford(p *Player, action Action) bool {
	switch action {
	case ActionCoup:
		return p.Coins >= CoupCost
	case ActionAssassinate:
		return p.Coins >= AssassinateCost
	default:
		return true
	}
}

// RequiredCardFor returns the character a player must claim to take the action, or "" if none.
func RequiredCardFor(action Action) Card {
	switch action {
	case ActionTax:
		return CardDuke
	case ActionAssassinate:
		return CardAssassin
	case ActionSteal:
		return CardCaptain
	case ActionExchange:
		return CardAmbassador
	default:
		return ""
	}
}

// CanBlockWith reports whether claiming card blocks action.
func CanBlockWith(card Card, action Action) bool {
	switch action {
	case ActionForeignAid:
		return card == CardDuke
	case ActionSteal:
		return card == CardCaptain || card == CardAmbassador
	case ActionAssassinate:
		return card == CardContessa
	default:
		return false
	}
}

// indexOfCard returns the first index of c in cards, or -1.
func indexOfCard(cards []Card, c Card) int {
	for i, x := range cards {
		if x == c {
			return i
		}
	}
	return -1
}

// removeCardAt returns cards without the element at idx. The backing array is not shared.
func removeCardAt(cards []Card, idx int) []Card {
	out := make([]Card, 0, len(cards)-1)
	out = append(out, cards[:idx]...)
	return append(out, cards[idx+1:]...)
}

// CardStrings converts cards to their string names for persistence.
func CardStrings(cards []Card) []string {
	out := make([]string, len(cards))
	for i, c := range cards {
		out[i] = string(c)
	}
	return out
}

// ParseCards converts persisted names back to cards, dropping unknown names.
func ParseCards(names []string) []Card {
	out := make([]Card, 0, len(names))
	for _, n := range names {
		if c := Card(n); c.Valid() {
			out = append(out, c)
		}
	}
	return out
}
