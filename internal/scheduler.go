package internal

import (
	"log/slog"
	"time"
)

// Scheduler drives the timed round transitions: the ready countdown and
// the round start it leads to. Timers fire on their own goroutines, so
// every transition re-validates room state under the room lock before
// mutating anything; a timer that outlives its room (or its occupancy)
// fires into a no-op.
type Scheduler struct {
	sender    Sender
	countdown time.Duration
	logger    *slog.Logger
}

// NewScheduler wires the scheduler to the outbound channel. countdown is
// the delay between both players readying up and the round starting.
func NewScheduler(sender Sender, countdown time.Duration, logger *slog.Logger) *Scheduler {
	if countdown <= 0 {
		countdown = 3 * time.Second
	}
	return &Scheduler{
		sender:    sender,
		countdown: countdown,
		logger:    logger,
	}
}

// Arm broadcasts the countdown and schedules the round start. gen is the
// room's membership generation at the moment both players were ready; if
// membership changes before the timer fires, the fire is discarded.
func (s *Scheduler) Arm(room *Room, gen uint64) {
	seconds := int(s.countdown.Round(time.Second) / time.Second)
	s.sender.Broadcast(room.ID, NewEnvelope(TypeCountdown, CountdownEvent{Seconds: seconds}))

	timer := time.AfterFunc(s.countdown, func() {
		s.fire(room, gen)
	})
	room.StoreTimer(timer, gen)

	s.logger.Debug("countdown armed", "room_id", room.ID, "seconds", seconds)
}

// fire holds the armed room itself, never its id: an id freed by a double
// disconnect can be recreated before the timer drains, and a registry
// lookup would resolve the impostor. The old room's generation was bumped
// when its members left, so StartRound rejects the stale fire.
func (s *Scheduler) fire(room *Room, gen uint64) {
	ev, started := room.StartRound(gen)
	if !started {
		s.logger.Debug("stale countdown discarded", "room_id", room.ID)
		return
	}

	s.sender.Broadcast(room.ID, NewEnvelope(TypeRoundStart, ev))
	s.logger.Info("round started", "room_id", room.ID)
}
