package streambuf

import (
	"errors"
	"fmt"

	"github.com/randalmurphal/eventplane/pkg/eventplane/config"
)

// Default sizes used by ConfigFromMap.
const (
	DefaultInitialBufferSize   = 512 << 10
	DefaultBufferSizeIncrement = 512 << 10
	DefaultMaxBufferSize       = 1 << 30
)

// Config sizes a Buffer. All sizes are in bytes.
type Config struct {
	// InitialBufferSize is the capacity allocated up front. Must be positive.
	InitialBufferSize int `yaml:"initial_buffer_size" json:"initial_buffer_size"`

	// BufferSizeIncrement is how much capacity grows per expansion.
	// Zero disables growth.
	BufferSizeIncrement int `yaml:"buffer_size_increment" json:"buffer_size_increment"`

	// MaxBufferSize caps the capacity. Zero means unbounded.
	MaxBufferSize int `yaml:"max_buffer_size" json:"max_buffer_size"`
}

// ErrInvalidConfig is wrapped by every Validate failure.
var ErrInvalidConfig = errors.New("invalid stream buffer config")

// Validate checks that the sizes are consistent.
func (c Config) Validate() error {
	switch {
	case c.InitialBufferSize <= 0:
		return fmt.Errorf("%w: initial buffer size must be positive, got %d", ErrInvalidConfig, c.InitialBufferSize)
	case c.BufferSizeIncrement < 0:
		return fmt.Errorf("%w: buffer size increment must not be negative, got %d", ErrInvalidConfig, c.BufferSizeIncrement)
	case c.MaxBufferSize < 0:
		return fmt.Errorf("%w: max buffer size must not be negative, got %d", ErrInvalidConfig, c.MaxBufferSize)
	case c.MaxBufferSize > 0 && c.MaxBufferSize < c.InitialBufferSize:
		return fmt.Errorf("%w: max buffer size %d is below initial size %d",
			ErrInvalidConfig, c.MaxBufferSize, c.InitialBufferSize)
	}
	return nil
}

// growable reports whether the capacity may ever change.
func (c Config) growable() bool {
	return c.BufferSizeIncrement > 0
}

// ConfigFromMap reads a Config from cfg. Recognized keys are
// initial_buffer_size, buffer_size_increment and max_buffer_size; values may
// be integers or human-readable sizes such as "512KB".
func ConfigFromMap(cfg config.Config) (Config, error) {
	c := Config{
		InitialBufferSize:   cfg.Bytes("initial_buffer_size", DefaultInitialBufferSize),
		BufferSizeIncrement: cfg.Bytes("buffer_size_increment", DefaultBufferSizeIncrement),
		MaxBufferSize:       cfg.Bytes("max_buffer_size", DefaultMaxBufferSize),
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}
