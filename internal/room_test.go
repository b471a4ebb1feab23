package internal_test

import (
	"fmt"
	"testing"

	"github.com/jeegaar/pvp-trainer/internal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDuelRoom(t *testing.T) (room *internal.Room, alice, bob string) {
	t.Helper()
	room = internal.NewRoom("r1", 3)
	alice, bob = "conn-alice", "conn-bob"
	require.NoError(t, room.AddPlayer(alice, "Alice"))
	require.NoError(t, room.AddPlayer(bob, "Bob"))
	return room, alice, bob
}

// startRound drives the ready handshake and fires the countdown transition
// directly, skipping the scheduler.
func startRound(t *testing.T, room *internal.Room, alice, bob string) internal.RoundStartEvent {
	t.Helper()
	_, ok := room.SetReady(alice)
	require.True(t, ok)
	out, ok := room.SetReady(bob)
	require.True(t, ok)
	require.True(t, out.ArmCountdown)

	ev, started := room.StartRound(out.Generation)
	require.True(t, started)
	return ev
}

func placeAt(t *testing.T, room *internal.Room, connID string, pos internal.Position) {
	t.Helper()
	_, ok := room.CompleteMove(connID, pos)
	require.True(t, ok)
}

func TestRoom_AddPlayer(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(room *internal.Room)
		connID   string
		nickname string
		wantErr  error
		validate func(t *testing.T, room *internal.Room)
	}{
		{
			name:     "first player initialized fresh",
			setup:    func(room *internal.Room) {},
			connID:   "c1",
			nickname: "Alice",
			validate: func(t *testing.T, room *internal.Room) {
				assert.Equal(t, 1, room.Count())
				hp, ok := room.HP("c1")
				require.True(t, ok)
				assert.Equal(t, internal.MaxHP, hp)
				wins, ok := room.Wins("c1")
				require.True(t, ok)
				assert.Zero(t, wins)
				assert.False(t, room.IsReady("c1"))
				pos, ok := room.PositionOf("c1")
				require.True(t, ok)
				assert.GreaterOrEqual(t, pos.X, 0)
				assert.Less(t, pos.X, internal.GridSize)
				assert.GreaterOrEqual(t, pos.Y, 0)
				assert.Less(t, pos.Y, internal.GridSize)
				assert.Nil(t, room.AnticipatedOf("c1"))
			},
		},
		{
			name: "third player rejected",
			setup: func(room *internal.Room) {
				require.NoError(t, room.AddPlayer("c1", "Alice"))
				require.NoError(t, room.AddPlayer("c2", "Bob"))
			},
			connID:   "c3",
			nickname: "Carol",
			wantErr:  internal.ErrRoomFull,
			validate: func(t *testing.T, room *internal.Room) {
				assert.Equal(t, 2, room.Count())
			},
		},
		{
			name: "duplicate member rejected",
			setup: func(room *internal.Room) {
				require.NoError(t, room.AddPlayer("c1", "Alice"))
			},
			connID:   "c1",
			nickname: "Alice",
			wantErr:  internal.ErrAlreadyBound,
			validate: func(t *testing.T, room *internal.Room) {
				assert.Equal(t, 1, room.Count())
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			room := internal.NewRoom("r1", 3)
			tt.setup(room)

			err := room.AddPlayer(tt.connID, tt.nickname)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
			}
			tt.validate(t, room)
		})
	}
}

func TestRoom_RemovePlayer(t *testing.T) {
	room, alice, bob := newDuelRoom(t)

	remaining, empty := room.RemovePlayer(bob)
	assert.Equal(t, alice, remaining)
	assert.False(t, empty)
	assert.Equal(t, 1, room.Count())

	// Every per-player map entry goes with the member.
	_, ok := room.HP(bob)
	assert.False(t, ok)
	_, ok = room.Wins(bob)
	assert.False(t, ok)
	_, ok = room.PositionOf(bob)
	assert.False(t, ok)

	remaining, empty = room.RemovePlayer(alice)
	assert.Empty(t, remaining)
	assert.True(t, empty)
	assert.Equal(t, 0, room.Count())
}

func TestRoom_OpponentOf(t *testing.T) {
	room, alice, bob := newDuelRoom(t)

	opp, ok := room.OpponentOf(alice)
	require.True(t, ok)
	assert.Equal(t, bob, opp)

	room.RemovePlayer(bob)
	_, ok = room.OpponentOf(alice)
	assert.False(t, ok, "no opponent in a half-empty room")
}

func TestRoom_Moves(t *testing.T) {
	room, alice, bob := newDuelRoom(t)

	opp, ok := room.BeginMove(alice, internal.Position{X: 5, Y: 5})
	require.True(t, ok)
	assert.Equal(t, bob, opp)

	ant := room.AnticipatedOf(alice)
	require.NotNil(t, ant)
	assert.Equal(t, internal.Position{X: 5, Y: 5}, *ant)

	_, ok = room.CompleteMove(alice, internal.Position{X: 5, Y: 5})
	require.True(t, ok)
	pos, _ := room.PositionOf(alice)
	assert.Equal(t, internal.Position{X: 5, Y: 5}, pos)
	assert.Nil(t, room.AnticipatedOf(alice), "anticipated slot clears on arrival")
}

func TestRoom_Moves_Rejected(t *testing.T) {
	room, alice, _ := newDuelRoom(t)

	_, ok := room.BeginMove(alice, internal.Position{X: -1, Y: 5})
	assert.False(t, ok, "out-of-bounds move accepted")
	_, ok = room.CompleteMove(alice, internal.Position{X: 3, Y: internal.GridSize})
	assert.False(t, ok)

	solo := internal.NewRoom("solo", 3)
	require.NoError(t, solo.AddPlayer("c1", "Loner"))
	_, ok = solo.BeginMove("c1", internal.Position{X: 1, Y: 1})
	assert.False(t, ok, "moves need a full room")

	_, ok = room.BeginMove("stranger", internal.Position{X: 1, Y: 1})
	assert.False(t, ok)
}

func TestRoom_CastRune_HitViaAnticipated(t *testing.T) {
	room, alice, bob := newDuelRoom(t)
	startRound(t, room, alice, bob)
	placeAt(t, room, alice, internal.Position{X: 0, Y: 0})
	placeAt(t, room, bob, internal.Position{X: 2, Y: 2})

	// Bob is mid-transit toward (5,5); his confirmed position is elsewhere.
	_, ok := room.BeginMove(bob, internal.Position{X: 5, Y: 5})
	require.True(t, ok)

	out, ok := room.CastRune(alice, internal.RuneBolt, internal.Position{X: 5, Y: 5})
	require.True(t, ok)
	assert.True(t, out.Event.Hit)
	assert.Equal(t, []string{bob}, out.Event.HitIDs)
	assert.Equal(t, internal.MaxHP-internal.DamageBolt, out.Event.HP[bob])
	assert.Equal(t, internal.MaxHP, out.Event.HP[alice])

	// The confirmed tile still counts too while the move is in flight.
	out, ok = room.CastRune(alice, internal.RuneBolt, internal.Position{X: 2, Y: 2})
	require.True(t, ok)
	assert.Equal(t, []string{bob}, out.Event.HitIDs)
}

func TestRoom_CastRune_Miss(t *testing.T) {
	room, alice, bob := newDuelRoom(t)
	placeAt(t, room, alice, internal.Position{X: 0, Y: 0})
	placeAt(t, room, bob, internal.Position{X: 9, Y: 9})

	out, ok := room.CastRune(alice, internal.RuneBolt, internal.Position{X: 4, Y: 4})
	require.True(t, ok)
	assert.False(t, out.Event.Hit)
	assert.Empty(t, out.Event.HitIDs)
	assert.Equal(t, internal.MaxHP, out.Event.HP[bob])
}

func TestRoom_CastRune_MendClampsAtFull(t *testing.T) {
	room, alice, bob := newDuelRoom(t)
	placeAt(t, room, alice, internal.Position{X: 3, Y: 3})
	placeAt(t, room, bob, internal.Position{X: 7, Y: 7})

	// Self-heal at full health changes nothing.
	out, ok := room.CastRune(alice, internal.RuneMend, internal.Position{X: 3, Y: 3})
	require.True(t, ok)
	assert.Equal(t, []string{alice}, out.Event.HitIDs)
	assert.Equal(t, internal.MaxHP, out.Event.HP[alice])

	// After taking a bolt, a mend restores part of it.
	_, ok = room.CastRune(bob, internal.RuneBolt, internal.Position{X: 3, Y: 3})
	require.True(t, ok)
	out, ok = room.CastRune(alice, internal.RuneMend, internal.Position{X: 3, Y: 3})
	require.True(t, ok)
	assert.Equal(t, internal.MaxHP-internal.DamageBolt+internal.HealMend, out.Event.HP[alice])
}

func TestRoom_CastRune_Nova(t *testing.T) {
	room, alice, bob := newDuelRoom(t)
	placeAt(t, room, alice, internal.Position{X: 9, Y: 9})
	placeAt(t, room, bob, internal.Position{X: 0, Y: 1})

	// Corner nova at (0,0) reaches (0,1) but not the far corner.
	out, ok := room.CastRune(alice, internal.RuneNova, internal.Position{X: 0, Y: 0})
	require.True(t, ok)
	assert.Equal(t, []string{bob}, out.Event.HitIDs)
	assert.Equal(t, internal.MaxHP-internal.DamageNova, out.Event.HP[bob])
}

func TestRoom_CastRune_NovaHitsBoth(t *testing.T) {
	room, alice, bob := newDuelRoom(t)
	placeAt(t, room, alice, internal.Position{X: 4, Y: 5})
	placeAt(t, room, bob, internal.Position{X: 5, Y: 4})

	out, ok := room.CastRune(alice, internal.RuneNova, internal.Position{X: 5, Y: 5})
	require.True(t, ok)
	assert.ElementsMatch(t, []string{alice, bob}, out.Event.HitIDs)
	assert.Equal(t, internal.MaxHP-internal.DamageNova, out.Event.HP[alice])
	assert.Equal(t, internal.MaxHP-internal.DamageNova, out.Event.HP[bob])
}

func TestRoom_CastRune_Rejected(t *testing.T) {
	room, alice, _ := newDuelRoom(t)

	_, ok := room.CastRune(alice, internal.RuneBolt, internal.Position{X: -1, Y: 0})
	assert.False(t, ok, "out-of-bounds target accepted")
	_, ok = room.CastRune(alice, "meteor", internal.Position{X: 1, Y: 1})
	assert.False(t, ok, "unknown rune accepted")
	_, ok = room.CastRune("stranger", internal.RuneBolt, internal.Position{X: 1, Y: 1})
	assert.False(t, ok, "non-member cast accepted")

	solo := internal.NewRoom("solo", 3)
	require.NoError(t, solo.AddPlayer("c1", "Loner"))
	_, ok = solo.CastRune("c1", internal.RuneBolt, internal.Position{X: 1, Y: 1})
	assert.False(t, ok, "cast in a half-empty room accepted")
}

func TestRoom_CastRune_RoundOver(t *testing.T) {
	room, alice, bob := newDuelRoom(t)
	startRound(t, room, alice, bob)
	placeAt(t, room, alice, internal.Position{X: 0, Y: 0})
	placeAt(t, room, bob, internal.Position{X: 5, Y: 5})

	casts := internal.MaxHP / internal.DamageBolt
	var out internal.CastOutcome
	for i := 0; i < casts; i++ {
		var ok bool
		out, ok = room.CastRune(alice, internal.RuneBolt, internal.Position{X: 5, Y: 5})
		require.True(t, ok)
		if i < casts-1 {
			assert.False(t, out.RoundOver, "round ended after cast %d", i+1)
		}
	}

	require.True(t, out.RoundOver)
	assert.Equal(t, alice, out.WinnerID)
	assert.Equal(t, 1, out.Wins[alice])
	assert.Equal(t, 0, out.Wins[bob])
	assert.False(t, out.MatchOver)

	hp, _ := room.HP(bob)
	assert.Equal(t, 0, hp, "loser's health ends exactly at zero")
	assert.False(t, room.InRound())
	assert.False(t, room.IsReady(alice))
	assert.False(t, room.IsReady(bob))

	// Further damage on a downed player stays clamped at zero.
	out2, ok := room.CastRune(alice, internal.RuneBolt, internal.Position{X: 5, Y: 5})
	require.True(t, ok)
	assert.Equal(t, 0, out2.Event.HP[bob])
	assert.False(t, out2.RoundOver, "no round to end outside a round")
}

func TestRoom_CastRune_SelfKOAwardsOpponent(t *testing.T) {
	room, alice, bob := newDuelRoom(t)
	startRound(t, room, alice, bob)
	placeAt(t, room, alice, internal.Position{X: 0, Y: 0})
	placeAt(t, room, bob, internal.Position{X: 5, Y: 5})

	casts := internal.MaxHP / internal.DamageBolt
	var out internal.CastOutcome
	for i := 0; i < casts; i++ {
		var ok bool
		out, ok = room.CastRune(alice, internal.RuneBolt, internal.Position{X: 0, Y: 0})
		require.True(t, ok)
	}

	require.True(t, out.RoundOver)
	assert.Equal(t, bob, out.WinnerID, "zeroing yourself hands the round to the opponent")
	assert.Equal(t, 1, out.Wins[bob])
}

func TestRoom_CastRune_DoubleKOAwardsOpponent(t *testing.T) {
	room, alice, bob := newDuelRoom(t)
	startRound(t, room, alice, bob)
	placeAt(t, room, alice, internal.Position{X: 5, Y: 5})
	placeAt(t, room, bob, internal.Position{X: 5, Y: 6})

	// Every nova at (5,5) catches both players, so they hit zero on the
	// same cast.
	var out internal.CastOutcome
	for i := 0; i < 10 && !out.RoundOver; i++ {
		var ok bool
		out, ok = room.CastRune(alice, internal.RuneNova, internal.Position{X: 5, Y: 5})
		require.True(t, ok)
	}

	require.True(t, out.RoundOver)
	assert.Equal(t, 0, out.Event.HP[alice])
	assert.Equal(t, 0, out.Event.HP[bob])
	assert.Equal(t, bob, out.WinnerID, "a double KO goes to the caster's opponent")
	assert.Equal(t, 1, out.Wins[bob])
	assert.Zero(t, out.Wins[alice])
}

func TestRoom_MatchEnd(t *testing.T) {
	room := internal.NewRoom("r1", 1)
	alice, bob := "conn-alice", "conn-bob"
	require.NoError(t, room.AddPlayer(alice, "Alice"))
	require.NoError(t, room.AddPlayer(bob, "Bob"))
	startRound(t, room, alice, bob)
	placeAt(t, room, alice, internal.Position{X: 0, Y: 0})
	placeAt(t, room, bob, internal.Position{X: 5, Y: 5})

	var out internal.CastOutcome
	for i := 0; i < internal.MaxHP/internal.DamageBolt; i++ {
		out, _ = room.CastRune(alice, internal.RuneBolt, internal.Position{X: 5, Y: 5})
	}

	require.True(t, out.RoundOver)
	require.True(t, out.MatchOver)
	assert.Equal(t, alice, out.WinnerID)
	assert.Equal(t, 1, out.Wins[alice], "round_over carries the winning score")

	// Match reset: scores back to zero, both players still in the room.
	wins, _ := room.Wins(alice)
	assert.Zero(t, wins)
	wins, _ = room.Wins(bob)
	assert.Zero(t, wins)
	assert.Equal(t, 2, room.Count())
}

func TestRoom_SetReady_ArmsExactlyOnce(t *testing.T) {
	room, alice, bob := newDuelRoom(t)

	out, ok := room.SetReady(alice)
	require.True(t, ok)
	assert.False(t, out.ArmCountdown, "one ready player armed the countdown")
	assert.Equal(t, bob, out.OpponentID)

	out, ok = room.SetReady(bob)
	require.True(t, ok)
	assert.True(t, out.ArmCountdown)

	// Re-readying while the countdown is pending must not re-arm.
	out, ok = room.SetReady(alice)
	require.True(t, ok)
	assert.False(t, out.ArmCountdown)
}

func TestRoom_StartRound(t *testing.T) {
	room, alice, bob := newDuelRoom(t)
	room.SetReady(alice)
	out, _ := room.SetReady(bob)
	require.True(t, out.ArmCountdown)

	ev, started := room.StartRound(out.Generation)
	require.True(t, started)
	require.Len(t, ev.Players, 2)
	for _, p := range ev.Players {
		assert.Equal(t, internal.MaxHP, p.HP)
		assert.True(t, p.X >= 0 && p.X < internal.GridSize)
		assert.True(t, p.Y >= 0 && p.Y < internal.GridSize)
	}
	assert.True(t, room.InRound())
	assert.False(t, room.IsReady(alice), "ready flags reset at round start")

	// Re-firing into a running round is a no-op.
	_, started = room.StartRound(out.Generation)
	assert.False(t, started)
}

func TestRoom_StartRound_StaleGeneration(t *testing.T) {
	room, alice, bob := newDuelRoom(t)
	room.SetReady(alice)
	out, _ := room.SetReady(bob)
	require.True(t, out.ArmCountdown)

	// Membership changed between arming and firing.
	room.RemovePlayer(bob)
	require.NoError(t, room.AddPlayer("conn-carol", "Carol"))

	_, started := room.StartRound(out.Generation)
	assert.False(t, started, "stale countdown started a round")
	assert.False(t, room.InRound())
}

func TestRoom_CapacityInvariant(t *testing.T) {
	room := internal.NewRoom("r1", 3)
	for i := 0; i < 10; i++ {
		err := room.AddPlayer(fmt.Sprintf("c%d", i), fmt.Sprintf("P%d", i))
		if i < internal.MaxOccupants {
			require.NoError(t, err)
		} else {
			require.ErrorIs(t, err, internal.ErrRoomFull)
		}
		assert.LessOrEqual(t, room.Count(), internal.MaxOccupants)
	}
}
