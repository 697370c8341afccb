/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package memory

import "math/rand/v2"

// GenerateIDs returns total identifiers in which every value in
// [0, total/2) appears exactly twice. total must be even.
func GenerateIDs(rng *rand.Rand, total int) []int {
	pairs := total / 2
	if pairs <= 0 {
		return []int{}
	}

	seen := make(map[int]struct{}, pairs)
	drawn := make([]int, 0, pairs)

	for len(drawn) < pairs {
		id := rng.IntN(pairs)
		if _, ok := seen[id]; ok {
			continue
		}

		seen[id] = struct{}{}
		drawn = append(drawn, id)
	}

	first := shuffled(rng, drawn)
	second := shuffled(rng, drawn)

	return append(first, second...)
}

func shuffled(rng *rand.Rand, in []int) []int {
	out := append([]int(nil), in...)

	rng.Shuffle(len(out), func(i, j int) {
		out[i], out[j] = out[j], out[i]
	})

	return out
}
