package policies

import (
	"errors"
	"fmt"
	"time"

	"golang.org/x/exp/rand"
)

var ErrInvalidConfig = errors.New("invalid learner configuration")

// Config holds the learner hyperparameters
type Config struct {
	// learning rate in (0,1]
	Alpha float64 `yaml:"alpha" json:"alpha"`
	// discount in [0,1]
	Gamma        float64 `yaml:"gamma" json:"gamma"`
	Epsilon      float64 `yaml:"epsilon" json:"epsilon"`
	EpsilonDecay float64 `yaml:"epsilon_decay" json:"epsilon_decay"`
	MinEpsilon   float64 `yaml:"min_epsilon" json:"min_epsilon"`
	// zero seeds from the clock
	Seed int64 `yaml:"seed" json:"seed"`
	// hidden units of the network learner
	Hidden int `yaml:"hidden" json:"hidden"`
}

func DefaultConfig() Config {
	return Config{
		Alpha:        0.1,
		Gamma:        0.9,
		Epsilon:      1.0,
		EpsilonDecay: 0.995,
		MinEpsilon:   0.01,
		Hidden:       32,
	}
}

func (c Config) Validate() error {
	switch {
	case c.Alpha <= 0 || c.Alpha > 1:
		return fmt.Errorf("%w: alpha %v not in (0,1]", ErrInvalidConfig, c.Alpha)
	case c.Gamma < 0 || c.Gamma > 1:
		return fmt.Errorf("%w: gamma %v not in [0,1]", ErrInvalidConfig, c.Gamma)
	case c.Epsilon < 0 || c.Epsilon > 1:
		return fmt.Errorf("%w: epsilon %v not in [0,1]", ErrInvalidConfig, c.Epsilon)
	case c.EpsilonDecay <= 0 || c.EpsilonDecay > 1:
		return fmt.Errorf("%w: epsilon decay %v not in (0,1]", ErrInvalidConfig, c.EpsilonDecay)
	case c.MinEpsilon < 0 || c.MinEpsilon > c.Epsilon:
		return fmt.Errorf("%w: min epsilon %v not in [0,epsilon]", ErrInvalidConfig, c.MinEpsilon)
	}
	return nil
}

// Rand returns the run-scoped generator for this config
func (c Config) Rand() *rand.Rand {
	seed := c.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return rand.New(rand.NewSource(uint64(seed)))
}
