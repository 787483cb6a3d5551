package main

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testHub(t *testing.T) *Hub {
	t.Helper()

	rnd := newRand()
	return newHub("testgame", rnd, newCategories(&Config{}, rnd, nil))
}

func act(h *Hub, msg ClientMessage) {
	h.handleAction(&Config{}, actionRequest{msg: msg})
}

func startHubGame(t *testing.T, h *Hub, names ...string) {
	t.Helper()

	for _, name := range names {
		act(h, ClientMessage{Type: "add_player", Name: name})
	}
	act(h, ClientMessage{Type: "complete_player_setup"})
	act(h, ClientMessage{Type: "toggle_category", CategoryID: "animals"})
	act(h, ClientMessage{Type: "start_game"})

	require.Equal(t, PhaseReveal, h.match.State().Phase)
}

func TestHubActionsDriveEngine(t *testing.T) {
	h := testHub(t)

	startHubGame(t, h, "a", "b", "c")

	state := h.match.State()
	assert.Len(t, state.Players, 3)
	assert.Equal(t, 1, state.RoundNumber)
}

func TestStateMessageHidesRolesMidRound(t *testing.T) {
	h := testHub(t)
	startHubGame(t, h, "a", "b", "c")

	msg := h.stateMessage()

	assert.Equal(t, "state", msg.Type)
	assert.Nil(t, msg.LastResult)
	for _, p := range msg.Players {
		assert.False(t, p.IsImposter, "roles must stay hidden until results")
	}
}

func TestStateMessageNeverCarriesSecretWords(t *testing.T) {
	h := testHub(t)
	startHubGame(t, h, "a", "b", "c")

	state := h.match.State()
	require.NotEmpty(t, state.Round.RealWord)

	raw, err := json.Marshal(h.stateMessage())
	require.NoError(t, err)

	assert.NotContains(t, string(raw), state.Round.RealWord)
	assert.NotContains(t, string(raw), state.Round.ImposterWord)
}

func TestStateMessageShowsRolesAfterSubmit(t *testing.T) {
	h := testHub(t)
	startHubGame(t, h, "a", "b", "c")

	for i := 0; i < 3; i++ {
		act(h, ClientMessage{Type: "next_reveal"})
	}
	act(h, ClientMessage{Type: "end_discussion"})
	act(h, ClientMessage{Type: "submit_votes"})

	msg := h.stateMessage()
	require.Equal(t, PhaseResults.String(), msg.Phase)

	imposters := 0
	for _, p := range msg.Players {
		if p.IsImposter {
			imposters++
		}
	}
	assert.Equal(t, 1, imposters)
}

func TestStateMessageShowsRolesWithoutVoting(t *testing.T) {
	h := testHub(t)

	off := false
	for _, name := range []string{"a", "b", "c"} {
		act(h, ClientMessage{Type: "add_player", Name: name})
	}
	act(h, ClientMessage{Type: "set_voting", Enabled: &off})
	act(h, ClientMessage{Type: "complete_player_setup"})
	act(h, ClientMessage{Type: "toggle_category", CategoryID: "animals"})
	act(h, ClientMessage{Type: "start_game"})

	for i := 0; i < 3; i++ {
		act(h, ClientMessage{Type: "next_reveal"})
	}
	act(h, ClientMessage{Type: "end_discussion"})

	msg := h.stateMessage()
	require.Equal(t, PhaseResults.String(), msg.Phase)
	assert.Nil(t, msg.LastResult, "no tally exists without voting")

	imposters := 0
	for _, p := range msg.Players {
		if p.IsImposter {
			imposters++
		}
	}
	assert.Equal(t, 1, imposters, "results disclose roles even when no votes were cast")
}

func TestNewGameIDFormat(t *testing.T) {
	gm := newGameManager(0, newRand(), newCategories(&Config{}, newRand(), nil))

	seen := make(map[string]bool)
	for trial := 0; trial < 100; trial++ {
		id := gm.newGameID()
		assert.Len(t, id, 8)
		assert.False(t, seen[id])
		seen[id] = true
	}
}
