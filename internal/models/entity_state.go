package models

import "time"

// StateMap holds the persisted next_event_at per entity. A nil value means the
// next event time is unknown and the entity is due.
type StateMap map[EntityID]*time.Time

// Clone returns a deep copy; stored timestamps are never shared between maps.
func (m StateMap) Clone() StateMap {
	out := make(StateMap, len(m))
	for id, t := range m {
		out[id] = CopyTime(t)
	}
	return out
}

// Subset returns the entries for the given entities. Entities absent from m
// are reported as nil.
func (m StateMap) Subset(entities []Entity) StateMap {
	out := make(StateMap, len(entities))
	for _, e := range entities {
		out[e.ID] = CopyTime(m[e.ID])
	}
	return out
}

// Equal reports whether both maps hold the same entities and instants.
func (m StateMap) Equal(other StateMap) bool {
	if len(m) != len(other) {
		return false
	}
	for id, a := range m {
		b, ok := other[id]
		if !ok {
			return false
		}
		switch {
		case a == nil && b == nil:
		case a == nil || b == nil:
			return false
		case !a.Equal(*b):
			return false
		}
	}
	return true
}

// CopyTime returns a fresh pointer to a UTC copy of t, or nil.
func CopyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}

// TimePtr returns a pointer to a UTC copy of t.
func TimePtr(t time.Time) *time.Time {
	v := t.UTC()
	return &v
}
