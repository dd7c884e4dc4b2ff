package ladder

import (
	"fmt"
	"strings"
)

// DefaultTiers is the tier order used when the configuration does not
// declare its own ladder. Finest granularity first.
var DefaultTiers = []string{"hourly", "daily", "weekly", "monthly"}

// Ladder is the ordered list of retention tiers, finest first. A tier's
// position decides where promoted snapshots come from: each tier except
// the finest is refilled by the oldest slot of the tier one position
// finer.
type Ladder struct {
	names []string
	pos   map[string]int
}

// New builds a ladder from the given tier names, finest first.
func New(names []string) (*Ladder, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("ladder must declare at least one tier")
	}
	l := &Ladder{pos: make(map[string]int, len(names))}
	for _, raw := range names {
		name := strings.TrimSpace(raw)
		if name == "" {
			return nil, fmt.Errorf("ladder contains an empty tier name")
		}
		if _, dup := l.pos[name]; dup {
			return nil, fmt.Errorf("duplicate tier %q in ladder", name)
		}
		l.pos[name] = len(l.names)
		l.names = append(l.names, name)
	}
	return l, nil
}

// Default returns the hourly→monthly ladder.
func Default() *Ladder {
	l, err := New(DefaultTiers)
	if err != nil {
		panic(err) // static input
	}
	return l
}

// Names returns the tier names in ladder order.
func (l *Ladder) Names() []string {
	out := make([]string, len(l.names))
	copy(out, l.names)
	return out
}

// Position returns the tier's index in the ladder (0 = finest).
func (l *Ladder) Position(name string) (int, bool) {
	p, ok := l.pos[name]
	return p, ok
}

// Contains reports whether the ladder declares the tier.
func (l *Ladder) Contains(name string) bool {
	_, ok := l.pos[name]
	return ok
}

// Finer returns the tier one position finer than name, the promotion
// source for name. The finest tier has none.
func (l *Ladder) Finer(name string) (string, bool) {
	p, ok := l.pos[name]
	if !ok || p == 0 {
		return "", false
	}
	return l.names[p-1], true
}
