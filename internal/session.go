package internal

import (
	"encoding/json"
	"log/slog"
)

// Sender is the outbound side of the transport: a direct message to one
// connection and a broadcast to every occupant of a room. The websocket
// hub implements it in production; tests use an in-memory recorder.
type Sender interface {
	Send(connID string, env Envelope)
	Broadcast(roomID string, env Envelope)
}

// Handler is the per-connection protocol state machine. It validates
// inbound envelopes at the boundary, resolves the caller's room through
// the registry, applies the mutation, and emits the results. The binding
// itself lives in the registry, never on the transport connection.
//
// Fire-and-forget events (move, ready, cast) from a connection that is not
// bound to a full room are dropped silently: the caller has no ack channel
// for them, and answering would leak state to stale or racing events.
type Handler struct {
	registry  *Registry
	scheduler *Scheduler
	sender    Sender
	logger    *slog.Logger
}

// NewHandler wires the session handler.
func NewHandler(registry *Registry, scheduler *Scheduler, sender Sender, logger *slog.Logger) *Handler {
	return &Handler{
		registry:  registry,
		scheduler: scheduler,
		sender:    sender,
		logger:    logger,
	}
}

// HandleMessage dispatches one inbound envelope from a connection.
// Malformed payloads are logged and dropped before they reach room logic.
func (h *Handler) HandleMessage(connID string, data []byte) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		h.logger.Debug("malformed envelope dropped", "conn_id", connID, "error", err)
		return
	}

	switch env.Type {
	case TypeCreateRoom:
		var req CreateRoomRequest
		if !h.decode(connID, env, &req) {
			return
		}
		h.handleCreateRoom(connID, req)
	case TypeJoinRoom:
		var req JoinRoomRequest
		if !h.decode(connID, env, &req) {
			return
		}
		h.handleJoinRoom(connID, req)
	case TypeSetReady:
		h.handleSetReady(connID)
	case TypeMoveStart:
		var req MoveRequest
		if !h.decode(connID, env, &req) {
			return
		}
		h.handleMoveStart(connID, req)
	case TypeMoveComplete:
		var req MoveRequest
		if !h.decode(connID, env, &req) {
			return
		}
		h.handleMoveComplete(connID, req)
	case TypeCastRune:
		var req CastRuneRequest
		if !h.decode(connID, env, &req) {
			return
		}
		h.handleCastRune(connID, req)
	default:
		h.logger.Debug("unknown event type dropped", "conn_id", connID, "type", env.Type)
	}
}

// HandleDisconnect is the transport's disconnect notification. It detaches
// the connection, tells the opponent, and lets the registry destroy the
// room if it emptied. No round credit is granted for a walkover.
func (h *Handler) HandleDisconnect(connID string) {
	out, wasBound := h.registry.Disconnect(connID)
	if !wasBound {
		return
	}
	if out.RemainingID != "" {
		h.sender.Send(out.RemainingID, NewEnvelope(TypeOpponentLeft, OpponentLeftEvent{}))
	}
}

func (h *Handler) handleCreateRoom(connID string, req CreateRoomRequest) {
	if req.RoomID == "" || req.Nickname == "" {
		h.ack(connID, TypeCreateRoom, false, "room id and nickname are required")
		return
	}

	if _, err := h.registry.Create(req.RoomID, connID, req.Nickname); err != nil {
		h.ack(connID, TypeCreateRoom, false, err.Error())
		return
	}
	h.ack(connID, TypeCreateRoom, true, "")
}

func (h *Handler) handleJoinRoom(connID string, req JoinRoomRequest) {
	if req.RoomID == "" || req.Nickname == "" {
		h.ack(connID, TypeJoinRoom, false, "room id and nickname are required")
		return
	}

	room, err := h.registry.Join(req.RoomID, connID, req.Nickname)
	if err != nil {
		h.ack(connID, TypeJoinRoom, false, err.Error())
		return
	}
	h.ack(connID, TypeJoinRoom, true, "")

	if room.Count() == MaxOccupants {
		h.sender.Broadcast(room.ID, NewEnvelope(TypeRoomReady, RoomReadyEvent{
			Players: room.Occupants(),
		}))
	}
}

func (h *Handler) handleSetReady(connID string) {
	room, bound := h.registry.RoomFor(connID)
	if !bound {
		return
	}

	out, ok := room.SetReady(connID)
	if !ok {
		return
	}
	if out.ArmCountdown {
		h.scheduler.Arm(room, out.Generation)
		return
	}
	// Only reveal that the opponent readied, nothing more.
	if out.OpponentID != "" {
		h.sender.Send(out.OpponentID, NewEnvelope(TypeOpponentReady, OpponentReadyEvent{}))
	}
}

func (h *Handler) handleMoveStart(connID string, req MoveRequest) {
	room, bound := h.registry.RoomFor(connID)
	if !bound {
		return
	}

	opponent, ok := room.BeginMove(connID, Position{X: req.X, Y: req.Y})
	if !ok {
		return
	}
	h.sender.Send(opponent, NewEnvelope(TypeOpponentMoveStart, MoveEvent{X: req.X, Y: req.Y}))
}

func (h *Handler) handleMoveComplete(connID string, req MoveRequest) {
	room, bound := h.registry.RoomFor(connID)
	if !bound {
		return
	}

	opponent, ok := room.CompleteMove(connID, Position{X: req.X, Y: req.Y})
	if !ok {
		return
	}
	h.sender.Send(opponent, NewEnvelope(TypeOpponentMoveComplete, MoveEvent{X: req.X, Y: req.Y}))
}

func (h *Handler) handleCastRune(connID string, req CastRuneRequest) {
	room, bound := h.registry.RoomFor(connID)
	if !bound {
		return
	}

	out, ok := room.CastRune(connID, req.Rune, Position{X: req.TargetX, Y: req.TargetY})
	if !ok {
		return
	}

	h.sender.Broadcast(room.ID, NewEnvelope(TypeSpellResolved, out.Event))

	if out.RoundOver {
		h.sender.Broadcast(room.ID, NewEnvelope(TypeRoundOver, RoundOverEvent{
			WinnerID: out.WinnerID,
			Wins:     out.Wins,
		}))
		h.logger.Info("round over",
			"room_id", room.ID,
			"winner_id", out.WinnerID)
	}
	if out.MatchOver {
		h.sender.Broadcast(room.ID, NewEnvelope(TypeMatchEnded, MatchEndedEvent{
			WinnerID: out.WinnerID,
		}))
		h.logger.Info("match ended",
			"room_id", room.ID,
			"winner_id", out.WinnerID)
	}
}

func (h *Handler) ack(connID, op string, success bool, message string) {
	h.sender.Send(connID, NewEnvelope(TypeAck, AckEvent{
		Op:      op,
		Success: success,
		Message: message,
	}))
}

func (h *Handler) decode(connID string, env Envelope, dst any) bool {
	if err := json.Unmarshal(env.Payload, dst); err != nil {
		h.logger.Debug("malformed payload dropped",
			"conn_id", connID,
			"type", env.Type,
			"error", err)
		return false
	}
	return true
}
