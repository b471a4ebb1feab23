package internal_test

import (
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/jeegaar/pvp-trainer/internal"
	"github.com/stretchr/testify/require"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

// fakeSender records outbound traffic in memory so session and scheduler
// tests run without the websocket layer.
type fakeSender struct {
	mu         sync.Mutex
	direct     map[string][]internal.Envelope // connID -> envelopes
	broadcasts map[string][]internal.Envelope // roomID -> envelopes
}

func newFakeSender() *fakeSender {
	return &fakeSender{
		direct:     make(map[string][]internal.Envelope),
		broadcasts: make(map[string][]internal.Envelope),
	}
}

func (f *fakeSender) Send(connID string, env internal.Envelope) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.direct[connID] = append(f.direct[connID], env)
}

func (f *fakeSender) Broadcast(roomID string, env internal.Envelope) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.broadcasts[roomID] = append(f.broadcasts[roomID], env)
}

func (f *fakeSender) sentTo(connID, eventType string) []internal.Envelope {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []internal.Envelope
	for _, env := range f.direct[connID] {
		if env.Type == eventType {
			out = append(out, env)
		}
	}
	return out
}

func (f *fakeSender) broadcastsTo(roomID, eventType string) []internal.Envelope {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []internal.Envelope
	for _, env := range f.broadcasts[roomID] {
		if env.Type == eventType {
			out = append(out, env)
		}
	}
	return out
}

func (f *fakeSender) totalTraffic() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, envs := range f.direct {
		n += len(envs)
	}
	for _, envs := range f.broadcasts {
		n += len(envs)
	}
	return n
}

func decodePayload[T any](t *testing.T, env internal.Envelope) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(env.Payload, &v))
	return v
}

// rawEvent marshals an inbound envelope the way a client would.
func rawEvent(t *testing.T, eventType string, payload any) []byte {
	t.Helper()
	data, err := json.Marshal(internal.NewEnvelope(eventType, payload))
	require.NoError(t, err)
	return data
}

// lastAck returns the most recent ack sent to a connection for an op.
func lastAck(t *testing.T, sender *fakeSender, connID, op string) internal.AckEvent {
	t.Helper()
	acks := sender.sentTo(connID, internal.TypeAck)
	require.NotEmpty(t, acks, "no acks sent to %s", connID)
	for i := len(acks) - 1; i >= 0; i-- {
		ack := decodePayload[internal.AckEvent](t, acks[i])
		if ack.Op == op {
			return ack
		}
	}
	t.Fatalf("no %s ack sent to %s", op, connID)
	return internal.AckEvent{}
}
