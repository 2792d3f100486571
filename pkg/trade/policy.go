package trade

import (
	"fmt"
	"math/rand/v2"
)

// Offer is one trade slot of an open villager window.
type Offer struct {
	Index       int        `json:"index"`
	Input       ItemStack  `json:"input"`
	SecondInput *ItemStack `json:"second_input,omitempty"`
	Output      ItemStack  `json:"output"`
	Disabled    bool       `json:"disabled"`
}

// Cost is the quantity of the primary input the offer consumes.
func (o Offer) Cost() int {
	return o.Input.Count
}

func (o Offer) String() string {
	return fmt.Sprintf("#%d %s -> %s", o.Index, o.Input, o.Output)
}

// Order controls the sequence in which offers are evaluated.
type Order string

const (
	OrderDeterministic Order = "deterministic"
	OrderShuffled      Order = "shuffled"
)

// ParseOrder maps a config value onto an Order.
func ParseOrder(s string) (Order, error) {
	switch Order(s) {
	case "", OrderDeterministic:
		return OrderDeterministic, nil
	case OrderShuffled:
		return OrderShuffled, nil
	default:
		return "", fmt.Errorf("unknown trade order %q", s)
	}
}

// Policy decides which offers to execute.
type Policy struct {
	Matcher Matcher
	Order   Order
	// Rand is used for shuffled ordering. A nil Rand uses the global source.
	Rand *rand.Rand
}

// Select returns the accepted offers in execution order.
func (p Policy) Select(offers []Offer, balance int) []Offer {
	ordered := offers
	if p.Order == OrderShuffled {
		ordered = append([]Offer(nil), offers...)
		shuffle := rand.Shuffle
		if p.Rand != nil {
			shuffle = p.Rand.Shuffle
		}
		shuffle(len(ordered), func(i, j int) { ordered[i], ordered[j] = ordered[j], ordered[i] })
	}
	return SelectTrades(ordered, balance, p.Matcher)
}

// SelectTrades walks offers in the given order. Disabled offers are skipped.
// The walk stops entirely at the first offer whose cost exceeds the remaining
// balance, even if later offers would be affordable. Matching offers are
// accepted and their cost is deducted from the remaining balance.
func SelectTrades(offers []Offer, balance int, m Matcher) []Offer {
	var accepted []Offer
	for _, o := range offers {
		if o.Disabled {
			continue
		}
		if balance < o.Cost() {
			break
		}
		if !m.Match(o.Output.Kind) {
			continue
		}
		accepted = append(accepted, o)
		balance -= o.Cost()
	}
	return accepted
}
