// Package machines bundles the transition tables of the door-key tasks
package machines

import (
	"bytes"
	"embed"
	"fmt"
	"path"
	"strings"

	"github.com/zeu5/crm/rm"
	"golang.org/x/exp/slices"
)

//go:embed *.txt
var tables embed.FS

const (
	// DoorKey rewards reaching the goal only
	DoorKey = "doorkey"
	// DoorKeyShaped also rewards picking up the key and opening the door
	DoorKeyShaped = "doorkey2"
)

// Names lists the bundled machines
func Names() []string {
	entries, _ := tables.ReadDir(".")
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, strings.TrimSuffix(e.Name(), ".txt"))
	}
	slices.Sort(names)
	return names
}

// Table returns the raw transition table of a bundled machine
func Table(name string) ([]byte, error) {
	bs, err := tables.ReadFile(path.Clean(name) + ".txt")
	if err != nil {
		return nil, fmt.Errorf("%w: unknown machine %q", rm.ErrConfiguration, name)
	}
	return bs, nil
}

// Load builds a fresh instance of a bundled machine
func Load(name string, opts ...rm.Option) (*rm.RewardMachine, error) {
	bs, err := Table(name)
	if err != nil {
		return nil, err
	}
	return rm.Read(bytes.NewReader(bs), opts...)
}

// Resolve loads a bundled machine by name, or a transition table file by path
func Resolve(nameOrPath string, opts ...rm.Option) (*rm.RewardMachine, error) {
	if slices.Contains(Names(), nameOrPath) {
		return Load(nameOrPath, opts...)
	}
	return rm.LoadFile(nameOrPath, opts...)
}
