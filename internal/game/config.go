package game

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"
)

var (
	ErrUnknownPreset = errors.New("unknown board preset")
	ErrInvalidConfig = errors.New("invalid board config")
	ErrEmptyNumber   = errors.New("no digits in input")
)

// DefaultTileSize is the pixel size carried in the setup message. The rules
// never use it; it is forwarded so a renderer on the other end can lay out
// the grid.
const DefaultTileSize = 30

// Config describes one board variant.
type Config struct {
	TileSize int `yaml:"tile_size" json:"tile_size"`
	Rows     int `yaml:"rows" json:"rows"`
	Cols     int `yaml:"cols" json:"cols"`
	Bombs    int `yaml:"bombs" json:"bombs"`
}

var presets = map[string]Config{
	"beginner":     {TileSize: DefaultTileSize, Rows: 9, Cols: 9, Bombs: 10},
	"intermediate": {TileSize: DefaultTileSize, Rows: 16, Cols: 16, Bombs: 40},
	"expert":       {TileSize: DefaultTileSize, Rows: 16, Cols: 30, Bombs: 99},
}

// Preset returns a named board configuration.
func Preset(name string) (Config, error) {
	cfg, ok := presets[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Config{}, fmt.Errorf("%w: %q", ErrUnknownPreset, name)
	}
	return cfg, nil
}

// PresetNames lists the known presets from smallest to largest.
func PresetNames() []string {
	return []string{"beginner", "intermediate", "expert"}
}

// Validate checks the config can produce a board.
func (c Config) Validate() error {
	switch {
	case c.Rows <= 0 || c.Cols <= 0:
		return fmt.Errorf("%w: board must be at least 1x1, got %dx%d", ErrInvalidConfig, c.Rows, c.Cols)
	case c.Rows > math.MaxInt/c.Cols:
		return fmt.Errorf("%w: %dx%d cells overflow int", ErrInvalidConfig, c.Rows, c.Cols)
	case c.Bombs < 0:
		return fmt.Errorf("%w: negative bomb count %d", ErrInvalidConfig, c.Bombs)
	case c.Bombs > c.Rows*c.Cols:
		return fmt.Errorf("%w: %d bombs do not fit in %dx%d", ErrInvalidConfig, c.Bombs, c.Rows, c.Cols)
	case c.TileSize < 0:
		return fmt.Errorf("%w: negative tile size %d", ErrInvalidConfig, c.TileSize)
	}
	return nil
}

func (c Config) String() string {
	return fmt.Sprintf("%dx%d/%d", c.Rows, c.Cols, c.Bombs)
}

// ParseCount reads a non-negative integer from free text, discarding any
// character that is not a decimal digit first ("1a6" parses as 16).
func ParseCount(s string) (int, error) {
	digits := strings.Map(func(r rune) rune {
		if r > unicode.MaxASCII || !unicode.IsDigit(r) {
			return -1
		}
		return r
	}, s)
	if digits == "" {
		return 0, fmt.Errorf("%w: %q", ErrEmptyNumber, s)
	}

	n, err := strconv.Atoi(digits)
	if err != nil {
		return 0, fmt.Errorf("parse %q: %w", s, err)
	}
	return n, nil
}
