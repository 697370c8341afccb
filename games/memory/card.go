/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package memory

// Card is a single cell of the grid. Exactly one other card in the deck
// shares its ID.
type Card struct {
	id       int
	revealed bool
}

func newCard(id int) *Card {
	return &Card{id: id}
}

func (c *Card) ID() int {
	return c.id
}

// Reveal flips the card face up and reports whether anything changed.
func (c *Card) Reveal() bool {
	if c.revealed {
		return false
	}

	c.revealed = true

	return true
}

func (c *Card) Hide() {
	c.revealed = false
}

func (c *Card) Revealed() bool {
	return c.revealed
}
