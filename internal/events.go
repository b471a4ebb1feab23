package internal

import "encoding/json"

// Envelope wraps every message on the wire. Type routes the message and
// Payload carries the event-specific struct, kept raw until the type is
// known.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Inbound event types.
const (
	TypeCreateRoom   = "create_room"
	TypeJoinRoom     = "join_room"
	TypeSetReady     = "set_ready"
	TypeMoveStart    = "move_start"
	TypeMoveComplete = "move_complete"
	TypeCastRune     = "cast_rune"
)

// Outbound event types.
const (
	TypeConnected            = "connected"
	TypeAck                  = "ack"
	TypeRoomReady            = "room_ready"
	TypeOpponentMoveStart    = "opponent_move_start"
	TypeOpponentMoveComplete = "opponent_move_complete"
	TypeOpponentReady        = "opponent_ready"
	TypeCountdown            = "countdown"
	TypeRoundStart           = "round_start"
	TypeSpellResolved        = "spell_resolved"
	TypeRoundOver            = "round_over"
	TypeMatchEnded           = "match_ended"
	TypeOpponentLeft         = "opponent_left"
)

// Inbound payloads.

type CreateRoomRequest struct {
	RoomID   string `json:"room_id"`
	Nickname string `json:"nickname"`
}

type JoinRoomRequest struct {
	RoomID   string `json:"room_id"`
	Nickname string `json:"nickname"`
}

type MoveRequest struct {
	X int `json:"x"`
	Y int `json:"y"`
}

type CastRuneRequest struct {
	Rune    string `json:"rune"`
	TargetX int    `json:"target_x"`
	TargetY int    `json:"target_y"`
}

// Outbound payloads.

type ConnectedEvent struct {
	ConnID string `json:"conn_id"`
}

// AckEvent answers a request/response style operation (create_room,
// join_room). Fire-and-forget events are never acked.
type AckEvent struct {
	Op      string `json:"op"`
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

type PlayerInfo struct {
	ID       string `json:"player_id"`
	Nickname string `json:"nickname"`
}

type RoomReadyEvent struct {
	Players []PlayerInfo `json:"players"`
}

type MoveEvent struct {
	X int `json:"x"`
	Y int `json:"y"`
}

type OpponentReadyEvent struct{}

type CountdownEvent struct {
	Seconds int `json:"seconds"`
}

type RoundPlayerState struct {
	ID string `json:"player_id"`
	X  int    `json:"x"`
	Y  int    `json:"y"`
	HP int    `json:"hp"`
}

type RoundStartEvent struct {
	Players []RoundPlayerState `json:"players"`
}

// SpellResolvedEvent is broadcast exactly once per accepted cast. HitIDs is
// empty on a miss; HP carries the post-cast health of every occupant.
type SpellResolvedEvent struct {
	CasterID string         `json:"caster_id"`
	Rune     string         `json:"rune"`
	TargetX  int            `json:"target_x"`
	TargetY  int            `json:"target_y"`
	Hit      bool           `json:"hit"`
	HitIDs   []string       `json:"hit_ids"`
	HP       map[string]int `json:"hp"`
}

type RoundOverEvent struct {
	WinnerID string         `json:"winner_id"`
	Wins     map[string]int `json:"round_wins"`
}

type MatchEndedEvent struct {
	WinnerID string `json:"winner_id"`
}

type OpponentLeftEvent struct{}

// NewEnvelope builds an envelope around a known payload struct.
func NewEnvelope(eventType string, payload any) Envelope {
	data, _ := json.Marshal(payload)
	return Envelope{Type: eventType, Payload: data}
}
