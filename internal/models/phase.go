package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Phase identifies a stage of the development lifecycle, P0 through P7.
type Phase int

const (
	PhaseDiscovery Phase = iota
	PhasePlanning
	PhaseDesign
	PhaseImplementation
	PhaseTesting
	PhaseReview
	PhaseRelease
	PhaseMonitoring
)

// PhaseCount is the number of lifecycle phases.
const PhaseCount = 8

var phaseNames = [PhaseCount]string{
	"Discovery",
	"Planning",
	"Design",
	"Implementation",
	"Testing",
	"Review",
	"Release",
	"Monitoring",
}

// String returns the short form, e.g. "P3".
func (p Phase) String() string {
	return fmt.Sprintf("P%d", int(p))
}

// Name returns the human-readable phase name, e.g. "Implementation".
func (p Phase) Name() string {
	if !p.Valid() {
		return "Unknown"
	}
	return phaseNames[p]
}

// Valid reports whether p is within P0..P7.
func (p Phase) Valid() bool {
	return p >= PhaseDiscovery && p <= PhaseMonitoring
}

// ParsePhase accepts a short form ("P3"), a bare index ("3"), or a phase
// name ("implementation"), case-insensitively.
func ParsePhase(s string) (Phase, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return 0, &ValidationError{Field: "phase", Reason: "must not be empty"}
	}

	numeric := trimmed
	if len(trimmed) >= 2 && (trimmed[0] == 'P' || trimmed[0] == 'p') {
		numeric = trimmed[1:]
	}
	if n, err := strconv.Atoi(numeric); err == nil {
		p := Phase(n)
		if !p.Valid() {
			return 0, &ValidationError{Field: "phase", Reason: fmt.Sprintf("%q is out of range P0..P%d", trimmed, PhaseCount-1)}
		}
		return p, nil
	}

	for i, name := range phaseNames {
		if strings.EqualFold(trimmed, name) {
			return Phase(i), nil
		}
	}
	return 0, &ValidationError{Field: "phase", Reason: fmt.Sprintf("unknown phase %q", trimmed)}
}

// MarshalJSON encodes the phase in its short form.
func (p Phase) MarshalJSON() ([]byte, error) {
	if !p.Valid() {
		return nil, &ValidationError{Field: "phase", Reason: fmt.Sprintf("index %d is out of range", int(p))}
	}
	return json.Marshal(p.String())
}

// UnmarshalJSON accepts either the short form or a bare index.
func (p *Phase) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		parsed, perr := ParsePhase(s)
		if perr != nil {
			return perr
		}
		*p = parsed
		return nil
	}

	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return &ValidationError{Field: "phase", Reason: "must be a string or integer"}
	}
	parsed := Phase(n)
	if !parsed.Valid() {
		return &ValidationError{Field: "phase", Reason: fmt.Sprintf("index %d is out of range", n)}
	}
	*p = parsed
	return nil
}
