/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"fmt"
	"sync"
)

const minPlayers = 3

// Match owns the full lifecycle of one party-game session, from roster
// building through repeated rounds. All mutation flows through its
// methods; each one clones the current snapshot, applies the change,
// and commits the clone, so a reader always sees a fully-applied state.
//
// Operations with unmet preconditions are silent no-ops. The UI is
// expected to gate its controls on the same conditions, so hitting one
// is defensive, not an error. Indexing a player that does not exist is
// a caller bug and panics.
type Match struct {
	mu         sync.Mutex
	state      MatchState
	rnd        *Rand
	categories *Categories
}

func newMatch(rnd *Rand, categories *Categories) *Match {
	return &Match{
		state:      newMatchState(),
		rnd:        rnd,
		categories: categories,
	}
}

// State returns a deep copy of the current snapshot.
func (m *Match) State() MatchState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.clone()
}

// AddPlayer appends a new roster entry with a fresh id and zero score,
// in any phase. An empty name gets a placeholder. Returns the new id.
func (m *Match) AddPlayer(name string) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	next := m.state.clone()

	if name == "" {
		name = fmt.Sprintf("Player %d", len(next.Players)+1)
	}

	id := m.rnd.NewID()
	next.Players = append(next.Players, Player{
		ID:   id,
		Name: name,
	})
	next.Config.ImposterCount = clampImposterCount(next.Config.ImposterCount, len(next.Players))

	// A mid-round joiner takes the last reveal slot as a regular
	// player. Roles are only reassigned at the next round setup.
	idx := len(next.Players) - 1
	if len(next.Round.RevealedPlayers) == idx {
		next.Round.RevealedPlayers = append(next.Round.RevealedPlayers, false)
	}
	if len(next.Round.RevealOrder) == idx {
		next.Round.RevealOrder = append(next.Round.RevealOrder, idx)
	}
	if len(next.Round.PlayerOrder) == idx {
		next.Round.PlayerOrder = append(next.Round.PlayerOrder, idx)
	}

	m.state = next
	return id
}

// RemovePlayer drops a roster entry, but never shrinks the roster
// below the playable minimum.
func (m *Match) RemovePlayer(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.state.Players) <= minPlayers {
		return
	}

	next := m.state.clone()

	dst := next.Players[:0]
	removedAt := -1
	for i, p := range next.Players {
		if p.ID == id {
			removedAt = i
			continue
		}
		dst = append(dst, p)
	}
	if removedAt < 0 {
		return
	}
	next.Players = dst
	next.Config.ImposterCount = clampImposterCount(next.Config.ImposterCount, len(next.Players))

	next.Round.dropPlayerIndex(removedAt)
	delete(next.Round.Votes, id)
	for voter, target := range next.Round.Votes {
		if target == id {
			delete(next.Round.Votes, voter)
		}
	}
	switch {
	case next.LastFirstPlayerIndex == removedAt:
		next.LastFirstPlayerIndex = -1
	case next.LastFirstPlayerIndex > removedAt:
		next.LastFirstPlayerIndex--
	}

	m.state = next
}

// RenamePlayer updates a roster entry's display name.
func (m *Match) RenamePlayer(id, name string) {
	if name == "" {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	idx := m.state.playerIndex(id)
	if idx < 0 {
		return
	}

	next := m.state.clone()
	next.Players[idx].Name = name
	m.state = next
}

// ToggleCategory adds or removes a category from the selected set.
func (m *Match) ToggleCategory(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state.Phase != PhaseSetup {
		return
	}

	next := m.state.clone()
	if next.Config.SelectedCategories[id] {
		delete(next.Config.SelectedCategories, id)
	} else {
		next.Config.SelectedCategories[id] = true
	}
	m.state = next
}

// SetImposterCount stores a requested imposter count, silently clamped
// to what the current roster can sustain.
func (m *Match) SetImposterCount(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	next := m.state.clone()
	next.Config.ImposterCount = clampImposterCount(n, len(next.Players))
	m.state = next
}

// SetImposterWordMode selects what imposters see during reveal.
func (m *Match) SetImposterWordMode(mode ImposterWordMode) {
	switch mode {
	case ModeHidden, ModeNoHint, ModeCategoryHint, ModeUserHint:
	default:
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	next := m.state.clone()
	next.Config.ImposterWordMode = mode
	m.state = next
}

// SetVotingEnabled toggles the voting phase on or off.
func (m *Match) SetVotingEnabled(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	next := m.state.clone()
	next.Config.VotingEnabled = enabled
	m.state = next
}

// SetRandomizeStartingPlayer toggles random starting-player selection
// for the discussion phase.
func (m *Match) SetRandomizeStartingPlayer(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	next := m.state.clone()
	next.Config.RandomizeStartingPlayer = enabled
	m.state = next
}

// CompletePlayerSetup moves from roster building to match setup.
func (m *Match) CompletePlayerSetup() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state.Phase != PhasePlayerSetup {
		return
	}

	next := m.state.clone()
	next.Phase = PhaseSetup
	m.state = next
}

// StartGame runs round setup and enters the reveal phase. No-op
// without at least one selected category and three players.
func (m *Match) StartGame() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state.Phase != PhaseSetup || len(m.state.Players) < minPlayers {
		return
	}

	next := m.state.clone()
	if !m.setupRound(&next) {
		return
	}

	next.Phase = PhaseReveal
	next.RoundNumber = 1
	m.state = next
}

// NextRound re-runs round setup for a fresh round, preserving scores
// and configuration.
func (m *Match) NextRound() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state.Phase != PhaseResults {
		return
	}

	next := m.state.clone()
	if !m.setupRound(&next) {
		return
	}

	next.Phase = PhaseReveal
	next.RoundNumber++
	m.state = next
}

// RevealWord marks a player's word as seen. Calling it again for the
// same index changes nothing.
func (m *Match) RevealWord(playerIndex int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state.Phase != PhaseReveal {
		return
	}
	if playerIndex < 0 || playerIndex >= len(m.state.Round.RevealedPlayers) {
		return
	}

	next := m.state.clone()
	next.Round.RevealedPlayers[playerIndex] = true
	next.Round.HandoverComplete = false
	m.state = next
}

// NextPlayerReveal advances the pass-the-phone cursor. Once every slot
// in the reveal order has been visited, the match moves to discussion.
func (m *Match) NextPlayerReveal() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state.Phase != PhaseReveal {
		return
	}

	next := m.state.clone()
	next.Round.CurrentPlayerIndex++
	next.Round.HandoverComplete = false

	if next.Round.CurrentPlayerIndex >= len(next.Players) {
		next.Round.CurrentPlayerIndex = 0
		next.Phase = PhaseDiscussion
	}

	m.state = next
}

// SetHandoverComplete records that the device has changed hands, so
// the next private screen may be shown.
func (m *Match) SetHandoverComplete(done bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	next := m.state.clone()
	next.Round.HandoverComplete = done
	m.state = next
}

// AddHint appends a player-written hint to the round's pool during
// reveal. The pool is append-only; which hint an imposter is shown is
// a presentation choice, never engine state.
func (m *Match) AddHint(text string) {
	if text == "" {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state.Phase != PhaseReveal {
		return
	}

	next := m.state.clone()
	next.Round.AllHints = append(next.Round.AllHints, text)
	m.state = next
}

// EndDiscussion leaves the discussion phase: into voting when voting
// is enabled, straight to results otherwise.
func (m *Match) EndDiscussion() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state.Phase != PhaseDiscussion {
		return
	}

	next := m.state.clone()
	if next.Config.VotingEnabled {
		next.Phase = PhaseVoting
		next.Round.CurrentVoterIndex = 0
	} else {
		next.Phase = PhaseResults
		next.LastResult = nil
	}
	m.state = next
}

// CastVote records (or overwrites) a voter's pick. Votes stay open
// until SubmitVotes.
func (m *Match) CastVote(voterID, targetID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state.Phase != PhaseVoting {
		return
	}
	if m.state.playerIndex(voterID) < 0 || m.state.playerIndex(targetID) < 0 {
		return
	}

	next := m.state.clone()
	next.Round.Votes[voterID] = targetID
	m.state = next
}

// NextVoter advances the pass-the-phone voting cursor and reports
// whether more voters remain. It never changes phase; the UI decides
// when to submit.
func (m *Match) NextVoter() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state.Phase != PhaseVoting {
		return false
	}

	next := m.state.clone()
	next.Round.CurrentVoterIndex++
	more := next.Round.CurrentVoterIndex < len(next.Players)
	m.state = next

	return more
}

// SubmitVotes closes voting, applies the scoring rules, and enters the
// results phase.
func (m *Match) SubmitVotes() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state.Phase != PhaseVoting {
		return
	}

	next := m.state.clone()

	result := scoreVotes(next.Round.Votes, next.imposterIDs(), next.Config.ImposterCount)
	for i := range next.Players {
		next.Players[i].Score += result.Deltas[next.Players[i].ID]
	}

	next.Round.VotesSubmitted = true
	next.LastResult = &result
	next.Phase = PhaseResults

	m.state = next
}

// EndGame finishes the session but keeps the table together: the
// roster and configuration survive, scores and roles do not.
func (m *Match) EndGame() {
	m.mu.Lock()
	defer m.mu.Unlock()

	next := m.state.clone()

	for i := range next.Players {
		next.Players[i].Score = 0
		next.Players[i].IsImposter = false
		next.Players[i].IsDead = false
	}

	next.Round = newRoundState(len(next.Players))
	next.RoundNumber = 0
	next.LastFirstPlayerIndex = -1
	next.LastResult = nil
	next.Phase = PhaseSetup

	m.state = next
}

// StartNewGame resets everything, roster included.
func (m *Match) StartNewGame() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state = newMatchState()
}

// PlayerWord returns what the given player is allowed to read during
// reveal: the real word for the town, and for imposters whatever the
// configured mode grants (HIDDEN hands them the decoy word; the other
// modes return an empty string and let the display layer substitute a
// hint or a no-information screen). Panics on an out-of-range index.
func (m *Match) PlayerWord(playerIndex int) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	if playerIndex < 0 || playerIndex >= len(m.state.Players) {
		panic(fmt.Sprintf("engine: player index %d out of range", playerIndex))
	}

	if !m.state.Round.ImposterIndices[playerIndex] {
		return m.state.Round.RealWord
	}

	if m.state.Config.ImposterWordMode == ModeHidden {
		return m.state.Round.ImposterWord
	}
	return ""
}

// ImposterHint returns the display hint for an imposter under the
// current mode. USER_HINT draws from the hint pool at call time, so
// repeated calls may show different hints; that is a presentation
// concern and deliberately not part of the stored state.
func (m *Match) ImposterHint() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.state.Config.ImposterWordMode {
	case ModeCategoryHint:
		return m.state.Round.HintWord
	case ModeUserHint:
		if len(m.state.Round.AllHints) == 0 {
			return ""
		}
		return m.state.Round.AllHints[m.rnd.Intn(len(m.state.Round.AllHints))]
	default:
		return ""
	}
}

// HintPool returns the round's hints in a shuffled order. The stored
// pool keeps insertion order, which tracks the reveal order and would
// give away who wrote what.
func (m *Match) HintPool() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rnd.ShuffleStrings(m.state.Round.AllHints)
}

// setupRound runs the shared round-setup algorithm on a cloned
// snapshot. Returns false (leaving the caller to abandon the clone)
// when no selected category is usable.
func (m *Match) setupRound(next *MatchState) bool {
	category, ok := m.pickCategory(next.Config.SelectedCategories)
	if !ok {
		return false
	}

	playerCount := len(next.Players)
	pair := randomWordPair(m.rnd, category)

	next.Config.ImposterCount = clampImposterCount(next.Config.ImposterCount, playerCount)
	imposters := assignImposters(m.rnd, playerCount, next.Config.ImposterCount)
	revealOrder := buildRevealOrder(m.rnd, playerCount, imposters, next.LastFirstPlayerIndex)

	for i := range next.Players {
		next.Players[i].IsImposter = imposters[i]
		next.Players[i].IsDead = false
	}

	round := newRoundState(playerCount)
	round.RealWord = pair.RealWord
	round.ImposterWord = pair.ImposterWord
	round.CategoryName = category.Name
	round.ImposterIndices = imposters
	round.RevealOrder = revealOrder
	round.PlayerOrder = buildPlayerOrder(m.rnd, playerCount)
	if next.Config.RandomizeStartingPlayer {
		round.StartingPlayerIndex = m.rnd.Intn(playerCount)
	}
	if next.Config.ImposterWordMode == ModeCategoryHint {
		round.HintWord = category.Name
	}

	next.Round = round
	next.LastResult = nil
	next.LastFirstPlayerIndex = revealOrder[0]

	return true
}

// pickCategory draws one category uniformly from the selected set,
// skipping ids the provider no longer knows (a custom category deleted
// mid-session, for instance).
func (m *Match) pickCategory(selected map[string]bool) (Category, bool) {
	usable := make([]Category, 0, len(selected))
	for id := range selected {
		if cat, ok := m.categories.ByID(id); ok && len(cat.Words) >= 2 {
			usable = append(usable, cat)
		}
	}
	if len(usable) == 0 {
		return Category{}, false
	}

	return usable[m.rnd.Intn(len(usable))], true
}
