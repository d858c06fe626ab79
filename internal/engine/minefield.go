package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrInvalidPrecondition is returned when a minefield cannot be built from
// the requested dimensions and bomb count.
var ErrInvalidPrecondition = errors.New("invalid minefield parameters")

// Value is the immutable content of a cell: a bomb, or the number of bombs
// among its up-to-8 neighbours.
type Value struct {
	bomb     bool
	adjacent uint8
}

// Bomb returns the bomb value.
func Bomb() Value { return Value{bomb: true} }

// Adjacent returns a safe value with n neighbouring bombs.
func Adjacent(n uint8) Value { return Value{adjacent: n} }

// IsBomb reports whether the value is a bomb.
func (v Value) IsBomb() bool { return v.bomb }

// Count returns the adjacency count and true for safe cells, or 0 and false for bombs.
func (v Value) Count() (uint8, bool) {
	if v.bomb {
		return 0, false
	}
	return v.adjacent, true
}

func (v Value) String() string {
	if v.bomb {
		return "Bomb"
	}
	return fmt.Sprintf("Adjacent(%d)", v.adjacent)
}

// MarshalJSON encodes "Bomb" or {"Adjacent":n}.
func (v Value) MarshalJSON() ([]byte, error) {
	if v.bomb {
		return []byte(`"Bomb"`), nil
	}
	return json.Marshal(map[string]uint8{"Adjacent": v.adjacent})
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (v *Value) UnmarshalJSON(data []byte) error {
	var tag string
	if err := json.Unmarshal(data, &tag); err == nil {
		if tag != "Bomb" {
			return fmt.Errorf("unknown cell value %q", tag)
		}
		*v = Bomb()
		return nil
	}

	var adj map[string]uint8
	if err := json.Unmarshal(data, &adj); err != nil {
		return fmt.Errorf("decode cell value: %w", err)
	}
	n, ok := adj["Adjacent"]
	if !ok || len(adj) != 1 {
		return fmt.Errorf("cell value must be \"Bomb\" or {\"Adjacent\":n}")
	}
	if n > 8 {
		return fmt.Errorf("adjacent count %d out of range", n)
	}
	*v = Adjacent(n)
	return nil
}

// Generate builds a rows x cols grid of values with exactly bombCount bombs
// placed uniformly at random without replacement, then fills in adjacency
// counts. A nil src uses a time-seeded RandSource.
func Generate(rows, cols, bombCount int, src Source) ([][]Value, error) {
	if rows <= 0 || cols <= 0 {
		return nil, fmt.Errorf("%w: board must be at least 1x1, got %dx%d", ErrInvalidPrecondition, rows, cols)
	}
	if rows > math.MaxInt/cols {
		return nil, fmt.Errorf("%w: %dx%d cells overflow int", ErrInvalidPrecondition, rows, cols)
	}
	if bombCount < 0 || bombCount > rows*cols {
		return nil, fmt.Errorf("%w: %d bombs do not fit in %dx%d cells", ErrInvalidPrecondition, bombCount, rows, cols)
	}
	if src == nil {
		src = NewRandSource(time.Now().UnixNano())
	}

	field := make([][]Value, rows)
	for i := range field {
		field[i] = make([]Value, cols)
	}

	// Rejection sampling: redraw on collision.
	for placed := 0; placed < bombCount; {
		i := src.Intn(rows)
		j := src.Intn(cols)
		if field[i][j].bomb {
			continue
		}
		field[i][j] = Bomb()
		placed++
	}

	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			if field[i][j].bomb {
				continue
			}
			var count uint8
			Neighbors(rows, cols, i, j, func(ni, nj int) {
				if field[ni][nj].bomb {
					count++
				}
			})
			field[i][j] = Adjacent(count)
		}
	}

	return field, nil
}

// Neighbors calls cb for every in-bounds cell of the 8-neighbourhood of (i, j).
func Neighbors(rows, cols, i, j int, cb func(ni, nj int)) {
	for di := -1; di <= 1; di++ {
		for dj := -1; dj <= 1; dj++ {
			if di == 0 && dj == 0 {
				continue
			}
			ni, nj := i+di, j+dj
			if ni < 0 || ni >= rows || nj < 0 || nj >= cols {
				continue
			}
			cb(ni, nj)
		}
	}
}
