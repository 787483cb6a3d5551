/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

// Role and order assignment for one round. These are kept as pure
// functions over the random provider so the fairness rules can be
// exercised directly, without spinning up a whole match.

// assignImposters shuffles all player indices and takes the first
// imposterCount as imposters. Roles are drawn independently of any
// ordering concerns, so turn position never leaks a role.
func assignImposters(rnd *Rand, playerCount, imposterCount int) map[int]bool {
	order := rnd.Shuffle(playerCount)

	imposters := make(map[int]bool, imposterCount)
	for _, idx := range order[:imposterCount] {
		imposters[idx] = true
	}
	return imposters
}

// buildRevealOrder shuffles player indices independently of role
// assignment, then applies two fairness adjustments to the first slot:
//
//  1. An imposter never reveals first. Hesitation while reading a
//     different (or missing) word is a tell, and the first reveal is
//     the one everyone watches.
//  2. The player who revealed first last round is not handed the first
//     slot again when another non-imposter is available.
func buildRevealOrder(rnd *Rand, playerCount int, imposters map[int]bool, lastFirst int) []int {
	order := rnd.Shuffle(playerCount)

	nonImposters := playerCount - len(imposters)
	if nonImposters == 0 {
		return order
	}

	if imposters[order[0]] {
		swapFirstWith(rnd, order, func(idx int) bool {
			return !imposters[idx]
		})
	}

	if order[0] == lastFirst && nonImposters > 1 {
		swapFirstWith(rnd, order, func(idx int) bool {
			return !imposters[idx] && idx != lastFirst
		})
	}

	return order
}

// swapFirstWith swaps order[0] with a uniformly chosen later position
// whose index satisfies ok. No-op if no position qualifies.
func swapFirstWith(rnd *Rand, order []int, ok func(int) bool) {
	candidates := make([]int, 0, len(order))
	for pos := 1; pos < len(order); pos++ {
		if ok(order[pos]) {
			candidates = append(candidates, pos)
		}
	}
	if len(candidates) == 0 {
		return
	}

	pos := candidates[rnd.Intn(len(candidates))]
	order[0], order[pos] = order[pos], order[0]
}

// buildPlayerOrder shuffles indices once more for the discussion-phase
// display, decoupled from both roles and reveal order.
func buildPlayerOrder(rnd *Rand, playerCount int) []int {
	return rnd.Shuffle(playerCount)
}

// clampImposterCount bounds a requested imposter count so every
// imposter faces at least two non-imposters, and at least one imposter
// always exists.
func clampImposterCount(requested, playerCount int) int {
	limit := playerCount / 3
	if limit < 1 {
		limit = 1
	}
	if requested < 1 {
		return 1
	}
	if requested > limit {
		return limit
	}
	return requested
}
