package sim

// StageMap is an immutable map keyed by StageID, backed by a fixed-size array
// and a presence bitset. Methods with a value receiver return new maps; the
// zero value is an empty map. Iteration is always in StageID order.
type StageMap[V any] struct {
	values  [stageCount]V
	present stageSet
}

// StageMapOf builds a map from the given entries; later entries win.
func StageMapOf[V any](entries ...StageEntry[V]) StageMap[V] {
	var m StageMap[V]
	for _, e := range entries {
		m = m.With(e.Stage, e.Value)
	}
	return m
}

// StageEntry is one key/value pair of a StageMap.
type StageEntry[V any] struct {
	Stage StageID
	Value V
}

// Get returns the value stored for s and whether it is present.
func (m StageMap[V]) Get(s StageID) (V, bool) {
	if s < 0 || s >= stageCount || !m.present.has(s) {
		var zero V
		return zero, false
	}
	return m.values[s], true
}

// Has reports whether s is present.
func (m StageMap[V]) Has(s StageID) bool {
	return s >= 0 && s < stageCount && m.present.has(s)
}

// With returns a copy of m with s bound to v.
func (m StageMap[V]) With(s StageID, v V) StageMap[V] {
	_ = s.Def()
	m.values[s] = v
	m.present = m.present.with(s)
	return m
}

// Len returns the number of present entries.
func (m StageMap[V]) Len() int { return m.present.count() }

// Stages returns the present keys in id order.
func (m StageMap[V]) Stages() []StageID {
	var out []StageID
	for s := StageID(0); s < stageCount; s++ {
		if m.present.has(s) {
			out = append(out, s)
		}
	}
	return out
}

// Entries returns the present entries in id order.
func (m StageMap[V]) Entries() []StageEntry[V] {
	var out []StageEntry[V]
	for s := StageID(0); s < stageCount; s++ {
		if m.present.has(s) {
			out = append(out, StageEntry[V]{Stage: s, Value: m.values[s]})
		}
	}
	return out
}

// Each calls fn for every present entry in id order.
func (m StageMap[V]) Each(fn func(StageID, V)) {
	for s := StageID(0); s < stageCount; s++ {
		if m.present.has(s) {
			fn(s, m.values[s])
		}
	}
}

// Merge returns the union of m and other. Keys present in both are combined
// with combine(m's value, other's value).
func (m StageMap[V]) Merge(other StageMap[V], combine func(a, b V) V) StageMap[V] {
	out := m
	for s := StageID(0); s < stageCount; s++ {
		if !other.present.has(s) {
			continue
		}
		if out.present.has(s) {
			out.values[s] = combine(out.values[s], other.values[s])
		} else {
			out.values[s] = other.values[s]
			out.present = out.present.with(s)
		}
	}
	return out
}

// MapStageValues applies f to every present value.
func MapStageValues[V, W any](m StageMap[V], f func(StageID, V) W) StageMap[W] {
	var out StageMap[W]
	m.Each(func(s StageID, v V) {
		out = out.With(s, f(s, v))
	})
	return out
}
