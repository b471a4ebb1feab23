package internal

import (
	"errors"
	"math/rand/v2"
	"sync"
	"time"
)

// MaxOccupants is fixed by the game: a room is a duel.
const MaxOccupants = 2

var (
	ErrRoomTaken    = errors.New("room id already taken")
	ErrRoomNotFound = errors.New("room not found")
	ErrRoomFull     = errors.New("room is full")
	ErrAlreadyBound = errors.New("connection already in a room")
)

// Room holds one duel: up to two players, their per-round state, and the
// running match score.
//
// All mutation happens under mu, one exclusive critical section per event,
// released before any broadcast goes out. Different rooms never contend.
// Membership bookkeeping (players plus every per-player map) changes
// atomically inside a single section, so a key in any map always
// corresponds to a current member.
type Room struct {
	ID string

	mu          sync.Mutex
	players     []string // insertion order, len <= MaxOccupants
	nicknames   map[string]string
	positions   map[string]Position
	anticipated map[string]*Position // nil entry = move settled
	hp          map[string]int
	ready       map[string]bool
	roundWins   map[string]int

	inRound          bool
	countdownPending bool
	roundsToWin      int

	// generation bumps on every membership change. A countdown timer armed
	// under an older generation fires into a no-op.
	generation uint64
	timer      *time.Timer

	rng *rand.Rand
}

// NewRoom creates an empty room. roundsToWin is the best-of-N threshold;
// values below 1 fall back to 3.
func NewRoom(id string, roundsToWin int) *Room {
	if roundsToWin < 1 {
		roundsToWin = 3
	}
	return &Room{
		ID:          id,
		nicknames:   make(map[string]string),
		positions:   make(map[string]Position),
		anticipated: make(map[string]*Position),
		hp:          make(map[string]int),
		ready:       make(map[string]bool),
		roundWins:   make(map[string]int),
		roundsToWin: roundsToWin,
		rng:         rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), uint64(time.Now().UnixNano())>>16)),
	}
}

// AddPlayer adds a connection as an occupant with a fresh spawn, full
// health, zero score and not ready.
func (r *Room) AddPlayer(connID, nickname string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.players) >= MaxOccupants {
		return ErrRoomFull
	}
	if _, exists := r.nicknames[connID]; exists {
		return ErrAlreadyBound
	}

	r.players = append(r.players, connID)
	r.nicknames[connID] = nickname
	r.positions[connID] = r.spawnLocked()
	r.anticipated[connID] = nil
	r.hp[connID] = MaxHP
	r.ready[connID] = false
	r.roundWins[connID] = 0
	r.generation++

	return nil
}

// RemovePlayer removes a connection and all of its per-player state,
// cancels any pending round timer, and reports the remaining occupant (if
// any) and whether the room is now empty.
func (r *Room) RemovePlayer(connID string) (remaining string, empty bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := -1
	for i, id := range r.players {
		if id == connID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return "", len(r.players) == 0
	}

	r.players = append(r.players[:idx], r.players[idx+1:]...)
	delete(r.nicknames, connID)
	delete(r.positions, connID)
	delete(r.anticipated, connID)
	delete(r.hp, connID)
	delete(r.ready, connID)
	delete(r.roundWins, connID)

	r.generation++
	r.countdownPending = false
	r.inRound = false
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}

	if len(r.players) == 1 {
		remaining = r.players[0]
	}
	return remaining, len(r.players) == 0
}

// Occupants returns the current members in insertion order.
func (r *Room) Occupants() []PlayerInfo {
	r.mu.Lock()
	defer r.mu.Unlock()

	infos := make([]PlayerInfo, 0, len(r.players))
	for _, id := range r.players {
		infos = append(infos, PlayerInfo{ID: id, Nickname: r.nicknames[id]})
	}
	return infos
}

// OccupantIDs returns the current member ids in insertion order.
func (r *Room) OccupantIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, len(r.players))
	copy(ids, r.players)
	return ids
}

func (r *Room) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.players)
}

// OpponentOf returns the other occupant of a full room.
func (r *Room) OpponentOf(connID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.opponentLocked(connID)
}

func (r *Room) opponentLocked(connID string) (string, bool) {
	if len(r.players) != MaxOccupants {
		return "", false
	}
	for _, id := range r.players {
		if id != connID {
			return id, true
		}
	}
	return "", false
}

// BeginMove records the tile a player is animating toward. The anticipated
// tile stays set until CompleteMove so casts resolve fairly against a
// player mid-transit. Moves are accepted only in a full room and only for
// in-bounds tiles.
func (r *Room) BeginMove(connID string, target Position) (opponent string, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, member := r.nicknames[connID]; !member {
		return "", false
	}
	opponent, ok = r.opponentLocked(connID)
	if !ok || !inBounds(target) {
		return "", false
	}

	t := target
	r.anticipated[connID] = &t
	return opponent, true
}

// CompleteMove confirms arrival: the target becomes the authoritative
// position and the anticipated slot clears.
func (r *Room) CompleteMove(connID string, target Position) (opponent string, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, member := r.nicknames[connID]; !member {
		return "", false
	}
	opponent, ok = r.opponentLocked(connID)
	if !ok || !inBounds(target) {
		return "", false
	}

	r.positions[connID] = target
	r.anticipated[connID] = nil
	return opponent, true
}

// ReadyOutcome is what SetReady decided under the room lock.
type ReadyOutcome struct {
	OpponentID string
	// ArmCountdown is true exactly once per idle-to-countdown transition:
	// both occupants ready, no round running, no countdown already pending.
	ArmCountdown bool
	Generation   uint64
}

// SetReady marks the caller ready and decides, atomically, whether the
// round countdown should be armed.
func (r *Room) SetReady(connID string) (ReadyOutcome, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, member := r.nicknames[connID]; !member {
		return ReadyOutcome{}, false
	}
	r.ready[connID] = true

	out := ReadyOutcome{Generation: r.generation}
	out.OpponentID, _ = r.opponentLocked(connID)

	if len(r.players) == MaxOccupants && !r.inRound && !r.countdownPending {
		both := true
		for _, id := range r.players {
			if !r.ready[id] {
				both = false
				break
			}
		}
		if both {
			r.countdownPending = true
			out.ArmCountdown = true
		}
	}
	return out, true
}

// StoreTimer parks the armed countdown timer on the room so membership
// changes can cancel it. A timer armed under a stale generation is stopped
// immediately.
func (r *Room) StoreTimer(t *time.Timer, gen uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.generation != gen {
		t.Stop()
		return
	}
	r.timer = t
}

// StartRound fires the countdown transition. It re-checks everything under
// the lock: the membership generation the timer was armed under, full
// occupancy, and that no round is already running. A stale fire is a no-op.
func (r *Room) StartRound(gen uint64) (RoundStartEvent, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.generation != gen || len(r.players) != MaxOccupants || r.inRound {
		return RoundStartEvent{}, false
	}

	r.inRound = true
	r.countdownPending = false
	r.timer = nil

	ev := RoundStartEvent{Players: make([]RoundPlayerState, 0, MaxOccupants)}
	taken := make(map[Position]bool, MaxOccupants)
	for _, id := range r.players {
		pos := r.spawnAvoidingLocked(taken)
		taken[pos] = true
		r.positions[id] = pos
		r.anticipated[id] = nil
		r.hp[id] = MaxHP
		r.ready[id] = false
		ev.Players = append(ev.Players, RoundPlayerState{ID: id, X: pos.X, Y: pos.Y, HP: MaxHP})
	}
	return ev, true
}

// CastOutcome carries everything the session handler broadcasts after one
// accepted cast.
type CastOutcome struct {
	Event     SpellResolvedEvent
	RoundOver bool
	WinnerID  string
	Wins      map[string]int
	MatchOver bool
}

// CastRune resolves a rune cast authoritatively. A player counts as hit
// when any affected cell matches either its confirmed position or its
// anticipated one; self-hits are allowed. Casts are accepted only in a
// full room, for known rune types, on in-bounds target tiles.
//
// If the cast drops an occupant to zero health during a round, the round
// ends here: the caster's opponent wins whenever the caster zeroed itself,
// otherwise the caster wins.
func (r *Room) CastRune(casterID, runeType string, target Position) (CastOutcome, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, member := r.nicknames[casterID]; !member {
		return CastOutcome{}, false
	}
	if len(r.players) != MaxOccupants || !validRune(runeType) || !inBounds(target) {
		return CastOutcome{}, false
	}

	var cells []Position
	if runeType == RuneNova {
		cells = novaPattern(target)
	} else {
		cells = []Position{target}
	}

	hitIDs := make([]string, 0, MaxOccupants)
	for _, id := range r.players {
		if !r.occupiesAnyLocked(id, cells) {
			continue
		}
		hitIDs = append(hitIDs, id)
		switch runeType {
		case RuneBolt:
			r.hp[id] = clampHP(r.hp[id] - DamageBolt)
		case RuneMend:
			r.hp[id] = clampHP(r.hp[id] + HealMend)
		case RuneNova:
			r.hp[id] = clampHP(r.hp[id] - DamageNova)
		}
	}

	out := CastOutcome{
		Event: SpellResolvedEvent{
			CasterID: casterID,
			Rune:     runeType,
			TargetX:  target.X,
			TargetY:  target.Y,
			Hit:      len(hitIDs) > 0,
			HitIDs:   hitIDs,
			HP:       r.hpSnapshotLocked(),
		},
	}

	if r.inRound && r.anyAtZeroLocked() {
		winner := casterID
		if r.hp[casterID] == 0 {
			winner, _ = r.opponentLocked(casterID)
		}
		r.inRound = false
		for _, id := range r.players {
			r.ready[id] = false
		}
		r.roundWins[winner]++

		out.RoundOver = true
		out.WinnerID = winner
		out.Wins = r.winsSnapshotLocked()

		if r.roundWins[winner] >= r.roundsToWin {
			out.MatchOver = true
			for _, id := range r.players {
				r.roundWins[id] = 0
			}
		}
	}
	return out, true
}

// InRound reports whether a round is currently running.
func (r *Room) InRound() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.inRound
}

// HP returns a player's current health.
func (r *Room) HP(connID string) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	hp, ok := r.hp[connID]
	return hp, ok
}

// Wins returns a player's round-win count in the current match.
func (r *Room) Wins(connID string) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.roundWins[connID]
	return w, ok
}

// IsReady reports a player's ready flag.
func (r *Room) IsReady(connID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ready[connID]
}

// PositionOf returns a player's confirmed position.
func (r *Room) PositionOf(connID string) (Position, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.positions[connID]
	return p, ok
}

// AnticipatedOf returns the in-flight move target, or nil when settled.
func (r *Room) AnticipatedOf(connID string) *Position {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p := r.anticipated[connID]; p != nil {
		cp := *p
		return &cp
	}
	return nil
}

// CancelTimers stops any pending round transition. Used on room
// destruction and server shutdown.
func (r *Room) CancelTimers() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.countdownPending = false
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}

func (r *Room) occupiesAnyLocked(connID string, cells []Position) bool {
	pos := r.positions[connID]
	ant := r.anticipated[connID]
	for _, c := range cells {
		if pos == c {
			return true
		}
		if ant != nil && *ant == c {
			return true
		}
	}
	return false
}

func (r *Room) anyAtZeroLocked() bool {
	for _, id := range r.players {
		if r.hp[id] == 0 {
			return true
		}
	}
	return false
}

func (r *Room) hpSnapshotLocked() map[string]int {
	snap := make(map[string]int, len(r.hp))
	for id, hp := range r.hp {
		snap[id] = hp
	}
	return snap
}

func (r *Room) winsSnapshotLocked() map[string]int {
	snap := make(map[string]int, len(r.roundWins))
	for id, w := range r.roundWins {
		snap[id] = w
	}
	return snap
}

func (r *Room) spawnLocked() Position {
	return randomSpawn(r.rng)
}

// spawnAvoidingLocked resamples a handful of times to keep round spawns on
// distinct tiles; on a tiny grid collisions are harmless, just ugly.
func (r *Room) spawnAvoidingLocked(taken map[Position]bool) Position {
	pos := randomSpawn(r.rng)
	for i := 0; i < 8 && taken[pos]; i++ {
		pos = randomSpawn(r.rng)
	}
	return pos
}
