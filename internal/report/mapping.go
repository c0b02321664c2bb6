package report

import (
	"fmt"
	"sort"
)

// Destination is one configured reporting target: the environment name and
// endpoint credential a source's reports are delivered under.
type Destination struct {
	// Token is the drain token identifying the source application.
	Token string
	// Environment is the destination environment tag (e.g. "production").
	Environment string
	// DSN is the destination endpoint credential.
	DSN string
}

// UnknownSourceError is returned for a drain token with no configured
// destination. This is non-fatal: the batch is still acknowledged so the
// platform does not retry-storm, but nothing is dispatched for it.
type UnknownSourceError struct {
	Token string
}

func (e *UnknownSourceError) Error() string {
	return fmt.Sprintf("no destination mapped for drain token %q", e.Token)
}

// Mapping is the immutable token-to-destination table. It is built once at
// process start from configuration and never mutated afterwards, so lookups
// need no locking.
type Mapping struct {
	destinations map[string]Destination
}

// NewMapping builds the table, rejecting duplicate tokens and incomplete
// destinations so misconfiguration fails the startup self-check instead of
// silently dropping traffic later.
func NewMapping(destinations []Destination) (*Mapping, error) {
	table := make(map[string]Destination, len(destinations))
	for _, dest := range destinations {
		if dest.Token == "" {
			return nil, fmt.Errorf("destination mapping with empty drain token")
		}
		if dest.DSN == "" {
			return nil, fmt.Errorf("destination mapping for token %q has no DSN", dest.Token)
		}
		if dest.Environment == "" {
			return nil, fmt.Errorf("destination mapping for token %q has no environment", dest.Token)
		}
		if _, exists := table[dest.Token]; exists {
			return nil, fmt.Errorf("duplicate drain token %q in destination mappings", dest.Token)
		}
		table[dest.Token] = dest
	}
	return &Mapping{destinations: table}, nil
}

// Resolve looks up the destination for a drain token.
func (m *Mapping) Resolve(token string) (Destination, error) {
	dest, ok := m.destinations[token]
	if !ok {
		return Destination{}, &UnknownSourceError{Token: token}
	}
	return dest, nil
}

// Len returns the number of configured destinations.
func (m *Mapping) Len() int {
	return len(m.destinations)
}

// Destinations returns the configured destinations in token order.
func (m *Mapping) Destinations() []Destination {
	out := make([]Destination, 0, len(m.destinations))
	for _, dest := range m.destinations {
		out = append(out, dest)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Token < out[j].Token })
	return out
}
