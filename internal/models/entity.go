package models

import (
	"fmt"
	"strings"
)

// EntityID is the opaque, stable identifier of a monitored building.
type EntityID string

// Kind selects the inspection and remediation semantics for an entity.
type Kind string

const (
	KindConstruction Kind = "construction"
	KindProduction   Kind = "production"
	KindDegradation  Kind = "degradation"
)

// Entity is one monitored unit. The set is static for the lifetime of a process.
type Entity struct {
	ID   EntityID `json:"id"`
	Kind Kind     `json:"kind"`
}

// ParseKind normalizes a configured kind string.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindConstruction, KindProduction, KindDegradation:
		return k, nil
	default:
		return "", fmt.Errorf("unknown entity kind %q", s)
	}
}
