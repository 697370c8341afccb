/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package memory

import (
	"math"
	"time"
)

const staggerStep = 100 * time.Millisecond

// Stagger returns the reveal-animation delay of every cell, growing with
// the distance from the centre of a rows x columns grid.
func Stagger(rows, columns int, step time.Duration) []time.Duration {
	if rows <= 0 || columns <= 0 {
		return nil
	}

	centerX := float64(columns-1) / 2
	centerY := float64(rows-1) / 2

	delays := make([]time.Duration, rows*columns)

	for i := range delays {
		x := float64(i % columns)
		y := float64(i / columns)

		distance := math.Hypot(centerX-x, centerY-y)

		delays[i] = time.Duration(distance * float64(step))
	}

	return delays
}
