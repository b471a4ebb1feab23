// Package internal implements the authoritative session engine for a
// two-player grid duel: players move on a bounded grid and cast runes
// whose hits the server resolves against tile occupancy.
//
// The engine is split into:
//
//   - grid.go: pure grid and damage rules (spawns, the nova cross pattern,
//     health clamping)
//   - room.go: the Room entity, two occupants and their round/match state,
//     one exclusive lock per room
//   - registry.go: the process-wide room table and connection bindings
//   - session.go: the per-connection event dispatcher
//   - scheduler.go: timer-driven countdown and round-start transitions
//   - websocket.go: the gorilla/websocket transport feeding the dispatcher
//   - api.go: the read-only lobby HTTP surface
//
// Movement is two-phase: move_start records the tile a client is animating
// toward, move_complete confirms arrival. Casts hit a player whose
// confirmed or anticipated tile matches an affected cell, so a rune cannot
// be dodged purely by client animation timing. Rooms live exactly as long
// as they have occupants; the last disconnect destroys the room and frees
// its id.
package internal
