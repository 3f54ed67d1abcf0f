package profile

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"loadprobe/internal/room"
)

// Profile describes how a load run ramps and paces its virtual users.
type Profile struct {
	Name        string        `yaml:"name"`
	Description string        `yaml:"description,omitempty"`
	RoomMode    room.Mode     `yaml:"room_mode"`
	VUs         int           `yaml:"vus"`
	Iterations  int64         `yaml:"iterations,omitempty"`
	Duration    time.Duration `yaml:"duration,omitempty"`
	// Zero think times leave the pause to the room mode.
	ThinkMin    time.Duration `yaml:"think_min,omitempty"`
	ThinkMax    time.Duration `yaml:"think_max,omitempty"`
	Stages      []Stage       `yaml:"stages,omitempty"`
}

// Stage holds the active VU target for a span of the run.
type Stage struct {
	Name     string        `yaml:"name"`
	Duration time.Duration `yaml:"duration"`
	Target   int           `yaml:"target"`
}

// ErrNotFound is returned by Lookup for an unknown profile name.
var ErrNotFound = errors.New("profile not found")

// Load reads a YAML profile definition from disk.
func Load(path string) (*Profile, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profile: %w", err)
	}
	var p Profile
	if err := yaml.Unmarshal(b, &p); err != nil {
		return nil, fmt.Errorf("parse profile: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Lookup returns the built-in profile called name.
func Lookup(name string) (Profile, error) {
	p, ok := BuiltIn()[name]
	if !ok {
		return Profile{}, fmt.Errorf("%w: %q (available: %v)", ErrNotFound, name, Names())
	}
	return p, nil
}

// Names lists built-in profile names in sorted order.
func Names() []string {
	names := make([]string, 0, len(BuiltIn()))
	for n := range BuiltIn() {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Validate reports an error for profiles the driver cannot run.
func (p Profile) Validate() error {
	if p.VUs < 1 && len(p.Stages) == 0 {
		return fmt.Errorf("profile %q: vus must be at least 1", p.Name)
	}
	if p.ThinkMax < p.ThinkMin {
		return fmt.Errorf("profile %q: think_max below think_min", p.Name)
	}
	for i, s := range p.Stages {
		if s.Duration <= 0 {
			return fmt.Errorf("profile %q: stage %d has no duration", p.Name, i)
		}
		if s.Target < 0 {
			return fmt.Errorf("profile %q: stage %d has negative target", p.Name, i)
		}
	}
	return nil
}

// MaxVUs is the largest number of concurrently active users the profile asks for.
func (p Profile) MaxVUs() int {
	n := p.VUs
	for _, s := range p.Stages {
		n = max(n, s.Target)
	}
	return n
}

// TotalDuration is the duration budget implied by the profile: the sum of the
// stages if any, otherwise Duration.
func (p Profile) TotalDuration() time.Duration {
	if len(p.Stages) == 0 {
		return p.Duration
	}
	var d time.Duration
	for _, s := range p.Stages {
		d += s.Duration
	}
	return d
}

// TargetAt returns the active VU target elapsed into the run. Without stages
// it is VUs; past the last stage it is zero.
func (p Profile) TargetAt(elapsed time.Duration) int {
	if len(p.Stages) == 0 {
		return p.VUs
	}
	var end time.Duration
	for _, s := range p.Stages {
		end += s.Duration
		if elapsed < end {
			return s.Target
		}
	}
	return 0
}
