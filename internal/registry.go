package internal

import (
	"log/slog"
	"sort"
	"sync"
)

// Registry is the process-wide room table. It owns room creation and
// destruction plus the connection-to-room binding, so two concurrent
// creates or joins for the same id serialize here before they ever touch a
// Room. In-room game mutations take only the room's own lock; rooms never
// contend with each other.
type Registry struct {
	mu          sync.RWMutex
	rooms       map[string]*Room  // roomID -> Room
	connRoom    map[string]string // connID -> roomID
	roundsToWin int
	logger      *slog.Logger
}

// NewRegistry creates an empty registry. roundsToWin is passed through to
// every room it creates.
func NewRegistry(roundsToWin int, logger *slog.Logger) *Registry {
	return &Registry{
		rooms:       make(map[string]*Room),
		connRoom:    make(map[string]string),
		roundsToWin: roundsToWin,
		logger:      logger,
	}
}

// Create makes a room under a caller-chosen id and binds the caller as its
// sole occupant. Live rooms always have at least one occupant (empty rooms
// are destroyed immediately), so an existing id means taken.
func (reg *Registry) Create(roomID, connID, nickname string) (*Room, error) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	if _, bound := reg.connRoom[connID]; bound {
		return nil, ErrAlreadyBound
	}
	if _, exists := reg.rooms[roomID]; exists {
		return nil, ErrRoomTaken
	}

	room := NewRoom(roomID, reg.roundsToWin)
	if err := room.AddPlayer(connID, nickname); err != nil {
		return nil, err
	}
	reg.rooms[roomID] = room
	reg.connRoom[connID] = roomID

	reg.logger.Info("room created",
		"room_id", roomID,
		"conn_id", connID,
		"nickname", nickname)
	return room, nil
}

// Join adds the caller as the second occupant of a live room.
func (reg *Registry) Join(roomID, connID, nickname string) (*Room, error) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	if _, bound := reg.connRoom[connID]; bound {
		return nil, ErrAlreadyBound
	}
	room, exists := reg.rooms[roomID]
	if !exists {
		return nil, ErrRoomNotFound
	}
	if err := room.AddPlayer(connID, nickname); err != nil {
		return nil, err
	}
	reg.connRoom[connID] = roomID

	reg.logger.Info("player joined room",
		"room_id", roomID,
		"conn_id", connID,
		"nickname", nickname)
	return room, nil
}

// Get looks up a live room.
func (reg *Registry) Get(roomID string) (*Room, bool) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	room, ok := reg.rooms[roomID]
	return room, ok
}

// RoomFor resolves the room a connection is currently bound to.
func (reg *Registry) RoomFor(connID string) (*Room, bool) {
	reg.mu.RLock()
	roomID, bound := reg.connRoom[connID]
	room, ok := reg.rooms[roomID]
	reg.mu.RUnlock()
	return room, bound && ok
}

// DisconnectOutcome reports what a disconnect removed.
type DisconnectOutcome struct {
	RoomID      string
	RemainingID string // opponent still in the room, "" if none
	RoomRemoved bool
}

// Disconnect unbinds a connection and removes it from its room. When the
// last occupant leaves, the room is destroyed on the spot and its id
// becomes free for reuse.
func (reg *Registry) Disconnect(connID string) (DisconnectOutcome, bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	roomID, bound := reg.connRoom[connID]
	if !bound {
		return DisconnectOutcome{}, false
	}
	delete(reg.connRoom, connID)

	out := DisconnectOutcome{RoomID: roomID}
	room, exists := reg.rooms[roomID]
	if !exists {
		return out, true
	}

	remaining, empty := room.RemovePlayer(connID)
	out.RemainingID = remaining
	if empty {
		room.CancelTimers()
		delete(reg.rooms, roomID)
		out.RoomRemoved = true
		reg.logger.Info("room removed", "room_id", roomID)
	}

	reg.logger.Info("player left room",
		"room_id", roomID,
		"conn_id", connID,
		"room_removed", out.RoomRemoved)
	return out, true
}

// RoomSummary is one row of the lobby listing.
type RoomSummary struct {
	ID      string       `json:"room_id"`
	Players []PlayerInfo `json:"players"`
}

// ListActive lists live rooms with their occupants, sorted by id for a
// stable lobby view.
func (reg *Registry) ListActive() []RoomSummary {
	reg.mu.RLock()
	rooms := make([]*Room, 0, len(reg.rooms))
	for _, room := range reg.rooms {
		rooms = append(rooms, room)
	}
	reg.mu.RUnlock()

	summaries := make([]RoomSummary, 0, len(rooms))
	for _, room := range rooms {
		summaries = append(summaries, RoomSummary{
			ID:      room.ID,
			Players: room.Occupants(),
		})
	}
	sort.Slice(summaries, func(i, j int) bool { return summaries[i].ID < summaries[j].ID })
	return summaries
}

// Stats returns counters for the stats endpoint.
func (reg *Registry) Stats() map[string]any {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	return map[string]any{
		"total_rooms":   len(reg.rooms),
		"total_players": len(reg.connRoom),
	}
}

// Stop cancels every pending room timer. Rooms themselves are in-memory
// only, nothing else to release.
func (reg *Registry) Stop() {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	for _, room := range reg.rooms {
		room.CancelTimers()
	}
	reg.logger.Info("registry stopped", "rooms", len(reg.rooms))
}
