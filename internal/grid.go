package internal

import "math/rand/v2"

// Gameplay constants shared with the client. Changing any of these is a
// protocol change: the client renders the grid and health bar from the
// same values.
const (
	GridSize = 10
	MaxHP    = 100

	// Rune magnitudes. Nova hits a wider area, so it hits softer than a
	// bolt aimed at a single tile.
	DamageBolt = 25
	HealMend   = 20
	DamageNova = 15
)

// Rune types accepted by cast_rune.
const (
	RuneBolt = "bolt" // single-target damage
	RuneMend = "mend" // single-target heal
	RuneNova = "nova" // 5-tile cross damage
)

// Position is an integer tile coordinate on the duel grid.
type Position struct {
	X int `json:"x"`
	Y int `json:"y"`
}

func inBounds(p Position) bool {
	return p.X >= 0 && p.X < GridSize && p.Y >= 0 && p.Y < GridSize
}

// randomSpawn samples a uniform tile on the grid.
func randomSpawn(rng *rand.Rand) Position {
	return Position{X: rng.IntN(GridSize), Y: rng.IntN(GridSize)}
}

// novaPattern expands a target tile into the nova cross: the center plus
// one step in each cardinal direction. Cells outside the grid are dropped,
// so a corner cast yields only 3 cells.
func novaPattern(center Position) []Position {
	candidates := [5]Position{
		center,
		{X: center.X + 1, Y: center.Y},
		{X: center.X - 1, Y: center.Y},
		{X: center.X, Y: center.Y + 1},
		{X: center.X, Y: center.Y - 1},
	}

	cells := make([]Position, 0, len(candidates))
	for _, c := range candidates {
		if inBounds(c) {
			cells = append(cells, c)
		}
	}
	return cells
}

// clampHP keeps health inside [0, MaxHP]. Healing a full-health player and
// damaging a dead one are both no-ops under this clamp.
func clampHP(hp int) int {
	if hp < 0 {
		return 0
	}
	if hp > MaxHP {
		return MaxHP
	}
	return hp
}

func validRune(runeType string) bool {
	switch runeType {
	case RuneBolt, RuneMend, RuneNova:
		return true
	}
	return false
}
