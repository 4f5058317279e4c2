package grid

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/zeu5/crm/types"
	"golang.org/x/exp/rand"
)

// Action indices of the door-key environment
const (
	Left = iota
	Right
	Up
	Down
	Pickup
	Toggle
	Idle
	numActions
)

var actionNames = []string{"Left", "Right", "Up", "Down", "Pickup", "Toggle", "Idle"}

// Config of the door-key environment
type Config struct {
	// width and height of the room, at least 3
	Size     int   `yaml:"size" json:"size"`
	MaxSteps int   `yaml:"max_steps" json:"max_steps"`
	Seed     int64 `yaml:"seed" json:"seed"`
	// place the key and door at random on every reset
	Randomize bool `yaml:"randomize" json:"randomize"`
}

// DoorKeyEnvironment is a square room split by a wall column with a locked
// door. The agent starts in the top left corner, must pick up the key, open
// the door and reach the goal in the bottom right corner.
type DoorKeyEnvironment struct {
	config Config
	wallX  int
	rand   *rand.Rand

	pos    Position
	key    Position
	door   Position
	goal   Position
	hasKey bool
	open   bool
	steps  int
}

var _ types.Environment = &DoorKeyEnvironment{}
var _ types.ActionNamer = &DoorKeyEnvironment{}

func NewDoorKeyEnvironment(config Config) (*DoorKeyEnvironment, error) {
	if config.Size < 3 {
		return nil, fmt.Errorf("door-key room size must be at least 3, got %d", config.Size)
	}
	if config.MaxSteps < 1 {
		config.MaxSteps = 10 * config.Size * config.Size
	}
	seed := config.Seed
	if seed == 0 {
		seed = 1
	}
	return &DoorKeyEnvironment{
		config: config,
		wallX:  config.Size / 2,
		rand:   rand.New(rand.NewSource(uint64(seed))),
	}, nil
}

// Position on the grid, X grows to the right and Y downwards
type Position struct {
	X int
	Y int
}

// Observation of the agent's position and inventory
type Observation struct {
	Position
	HasKey   bool
	DoorOpen bool
}

var _ types.Observation = &Observation{}

func (o *Observation) Hash() string {
	return fmt.Sprintf("%d:%d:%d:%d", o.X, o.Y, b2i(o.HasKey), b2i(o.DoorOpen))
}

func b2i(b bool) int {
	if b {
		return 1
	}
	return 0
}

// ParseKey inverts Observation.Hash
func ParseKey(key string) (*Observation, error) {
	parts := strings.Split(key, ":")
	if len(parts) != 4 {
		return nil, fmt.Errorf("invalid door-key observation %q", key)
	}
	vals := make([]int, 4)
	for i, p := range parts {
		v, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid door-key observation %q: %w", key, err)
		}
		vals[i] = v
	}
	return &Observation{
		Position: Position{X: vals[0], Y: vals[1]},
		HasKey:   vals[2] == 1,
		DoorOpen: vals[3] == 1,
	}, nil
}

func (g *DoorKeyEnvironment) Size() int {
	return g.config.Size
}

func (g *DoorKeyEnvironment) NumActions() int {
	return numActions
}

func (g *DoorKeyEnvironment) ActionName(action int) string {
	if action < 0 || action >= len(actionNames) {
		return "Unknown"
	}
	return actionNames[action]
}

func (g *DoorKeyEnvironment) Reset() (types.Observation, error) {
	size := g.config.Size
	g.pos = Position{0, 0}
	g.goal = Position{size - 1, size - 1}
	g.key = Position{0, size - 1}
	g.door = Position{g.wallX, size / 2}
	if g.config.Randomize {
		// anywhere left of the wall except the start
		for {
			g.key = Position{g.rand.Intn(g.wallX), g.rand.Intn(size)}
			if g.key != g.pos {
				break
			}
		}
		g.door = Position{g.wallX, g.rand.Intn(size)}
	}
	g.hasKey = false
	g.open = false
	g.steps = 0
	return g.observation(), nil
}

func (g *DoorKeyEnvironment) Step(action int) (types.StepResult, error) {
	if action < 0 || action >= numActions {
		return types.StepResult{}, fmt.Errorf("invalid action %d", action)
	}
	g.steps += 1
	next := g.pos
	switch action {
	case Left:
		next.X -= 1
	case Right:
		next.X += 1
	case Up:
		next.Y -= 1
	case Down:
		next.Y += 1
	case Pickup:
		if !g.hasKey && g.pos == g.key {
			g.hasKey = true
		}
	case Toggle:
		if g.hasKey && adjacent(g.pos, g.door) {
			g.open = true
		}
	case Idle:
	}
	if g.walkable(next) {
		g.pos = next
	}

	result := types.StepResult{
		Observation: g.observation(),
		Props:       g.props(),
	}
	if g.pos == g.goal {
		result.Terminated = true
		result.Reward = 1 - 0.9*float64(g.steps)/float64(g.config.MaxSteps)
	}
	if g.steps >= g.config.MaxSteps {
		result.Truncated = true
	}
	return result, nil
}

func (g *DoorKeyEnvironment) Close() error {
	return nil
}

func (g *DoorKeyEnvironment) walkable(p Position) bool {
	size := g.config.Size
	if p.X < 0 || p.Y < 0 || p.X >= size || p.Y >= size {
		return false
	}
	if p.X == g.wallX {
		return p == g.door && g.open
	}
	return true
}

func adjacent(a, b Position) bool {
	dx, dy := a.X-b.X, a.Y-b.Y
	return dx*dx+dy*dy == 1
}

func (g *DoorKeyEnvironment) observation() *Observation {
	return &Observation{Position: g.pos, HasKey: g.hasKey, DoorOpen: g.open}
}

func (g *DoorKeyEnvironment) props() types.Props {
	return types.Props{
		"key":  g.hasKey,
		"door": g.open,
		"goal": g.pos == g.goal,
	}
}
