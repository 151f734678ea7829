package recall

import (
	"fmt"
	"strings"
)

type (
	// Scope is a class of concurrent activity that can drive the same channel
	// graph independently of the others, e.g. a pattern playing in the
	// sequencer while notes are auditioned from the notation editor. Each
	// scope owns its own RecallIDs, so the per-run port values of one scope
	// are never observed by another.
	Scope int

	// ScopeMask is a set of scopes, used as the ability flags of audio units
	// and templates.
	ScopeMask uint8
)

const (
	ScopePlayback Scope = iota
	ScopeSequencer
	ScopeNotation
	ScopeWave
	ScopeMIDI
	NumScopes
)

const AllScopes ScopeMask = 1<<NumScopes - 1

var scopeNames = [NumScopes]string{"playback", "sequencer", "notation", "wave", "midi"}

func (s Scope) String() string {
	if s < 0 || s >= NumScopes {
		return fmt.Sprintf("scope(%d)", int(s))
	}
	return scopeNames[s]
}

func (s Scope) Valid() bool { return s >= 0 && s < NumScopes }

// Mask returns the single-scope mask of s.
func (s Scope) Mask() ScopeMask {
	if !s.Valid() {
		return 0
	}
	return 1 << s
}

// ParseScope parses the lowercase name of a scope.
func ParseScope(name string) (Scope, error) {
	for i, n := range scopeNames {
		if strings.EqualFold(n, name) {
			return Scope(i), nil
		}
	}
	return 0, fmt.Errorf("unknown scope %q", name)
}

func MaskOf(scopes ...Scope) ScopeMask {
	var m ScopeMask
	for _, s := range scopes {
		m |= s.Mask()
	}
	return m
}

func (m ScopeMask) Has(s Scope) bool { return s.Valid() && m&(1<<s) != 0 }

// Scopes iterates the scopes in the mask in ascending order.
func (m ScopeMask) Scopes(yield func(Scope) bool) {
	for s := Scope(0); s < NumScopes; s++ {
		if m.Has(s) && !yield(s) {
			return
		}
	}
}

func (m ScopeMask) String() string {
	var parts []string
	for s := range m.Scopes {
		parts = append(parts, s.String())
	}
	return strings.Join(parts, "|")
}

// MarshalYAML writes the mask as a list of scope names, which keeps setup
// files readable.
func (m ScopeMask) MarshalYAML() (interface{}, error) {
	ret := []string{}
	for s := range m.Scopes {
		ret = append(ret, s.String())
	}
	return ret, nil
}

func (m *ScopeMask) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var names []string
	if err := unmarshal(&names); err != nil {
		return err
	}
	*m = 0
	for _, n := range names {
		s, err := ParseScope(n)
		if err != nil {
			return err
		}
		*m |= s.Mask()
	}
	return nil
}
