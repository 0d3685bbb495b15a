// Package cards provides playing cards, blackjack hand valuation, and the
// dealer abstraction the card games draw from.
package cards

import (
	"math/rand"
	"strings"
)

// Rank is a card rank, A through K.
type Rank string

// Suit is a card suit rendered as an emoji.
type Suit string

// Ranks in deck order.
var Ranks = []Rank{"A", "2", "3", "4", "5", "6", "7", "8", "9", "10", "J", "Q", "K"}

// Suits in deck order.
var Suits = []Suit{"♠️", "♥️", "♦️", "♣️"}

// rankValues maps each rank to its base blackjack value, counting aces high.
var rankValues = map[Rank]int{
	"A": 11, "2": 2, "3": 3, "4": 4, "5": 5, "6": 6, "7": 7, "8": 8,
	"9": 9, "10": 10, "J": 10, "Q": 10, "K": 10,
}

// Card is a single playing card.
type Card struct {
	Rank Rank
	Suit Suit
}

// String returns the display form of the card, e.g. "A♠️".
func (c Card) String() string {
	return string(c.Rank) + string(c.Suit)
}

// IsAce reports whether the card is an ace.
func (c Card) IsAce() bool {
	return c.Rank == "A"
}

// Value returns the card's blackjack value with aces counted as 11.
func (c Card) Value() int {
	return rankValues[c.Rank]
}

// HandValue returns the best blackjack value of hand. Aces start at 11 and
// are demoted to 1 one at a time while the total exceeds 21. aceLow reports
// whether a non-busted hand had to demote at least one ace, which the games
// surface as an "(ace low)" marker.
func HandValue(hand []Card) (value int, aceLow bool) {
	aces := 0
	for _, c := range hand {
		value += c.Value()
		if c.IsAce() {
			aces++
		}
	}
	demoted := 0
	for value > 21 && aces > 0 {
		value -= 10
		aces--
		demoted++
	}
	return value, value <= 21 && demoted > 0
}

// FormatHand renders a hand for display, e.g. "A♠️ 10♥️".
func FormatHand(hand []Card) string {
	parts := make([]string, len(hand))
	for i, c := range hand {
		parts[i] = c.String()
	}
	return strings.Join(parts, " ")
}

// Dealer deals cards. Draws are independent and uniform over the 52 card
// kinds, so any rank can repeat without limit.
type Dealer interface {
	Deal() Card
}

// RandomDealer deals uniformly random cards from an injected source.
type RandomDealer struct {
	rng *rand.Rand
}

// NewRandomDealer creates a dealer backed by rng.
func NewRandomDealer(rng *rand.Rand) *RandomDealer {
	return &RandomDealer{rng: rng}
}

func (d *RandomDealer) Deal() Card {
	return Card{
		Rank: Ranks[d.rng.Intn(len(Ranks))],
		Suit: Suits[d.rng.Intn(len(Suits))],
	}
}

// ScriptedDealer deals a fixed sequence of cards, for tests.
type ScriptedDealer struct {
	cards []Card
	next  int
}

// NewScriptedDealer creates a dealer that deals cards in order and panics
// when the script runs out.
func NewScriptedDealer(cards ...Card) *ScriptedDealer {
	return &ScriptedDealer{cards: cards}
}

func (d *ScriptedDealer) Deal() Card {
	if d.next >= len(d.cards) {
		panic("cards: scripted dealer exhausted")
	}
	c := d.cards[d.next]
	d.next++
	return c
}
