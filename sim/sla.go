package sim

import (
	"sort"
	"time"
)

// Sla is a delivery deadline. Identity is by ID: two SLAs may share a deadline.
// The zero Sla tags units without a tracked deadline.
type Sla struct {
	ID       string
	Deadline time.Time
}

// IsTracked reports whether the SLA carries an identity.
func (s Sla) IsTracked() bool { return s.ID != "" }

// canonical drops the location and monotonic reading of the deadline, so the
// same SLA always compares equal.
func (s Sla) canonical() Sla {
	s.Deadline = s.Deadline.UTC().Round(0)
	return s
}

// slaLess orders SLAs by deadline, then by ID. Untracked units sort last.
func slaLess(a, b Sla) bool {
	if a.IsTracked() != b.IsTracked() {
		return a.IsTracked()
	}
	if !a.Deadline.Equal(b.Deadline) {
		return a.Deadline.Before(b.Deadline)
	}
	return a.ID < b.ID
}

// DeadlineGroup holds the SLAs sharing one deadline, sorted by ID.
type DeadlineGroup struct {
	Deadline time.Time
	Slas     []Sla
}

// UpcomingSlas is a set of SLAs grouped by deadline in ascending order.
// Values are immutable once built.
type UpcomingSlas struct {
	groups []DeadlineGroup
}

// GroupSlasByDeadline de-duplicates the SLAs by ID and groups them by deadline.
// Untracked SLAs are ignored. Deadlines are normalized to UTC.
func GroupSlasByDeadline(slas []Sla) UpcomingSlas {
	seen := make(map[string]bool, len(slas))
	unique := make([]Sla, 0, len(slas))
	for _, s := range slas {
		if !s.IsTracked() || seen[s.ID] {
			continue
		}
		seen[s.ID] = true
		unique = append(unique, s.canonical())
	}
	sort.Slice(unique, func(i, j int) bool { return slaLess(unique[i], unique[j]) })

	var groups []DeadlineGroup
	for _, s := range unique {
		n := len(groups)
		if n > 0 && groups[n-1].Deadline.Equal(s.Deadline) {
			groups[n-1].Slas = append(groups[n-1].Slas, s)
		} else {
			groups = append(groups, DeadlineGroup{Deadline: s.Deadline, Slas: []Sla{s}})
		}
	}
	return UpcomingSlas{groups: groups}
}

// After returns the groups whose deadline is strictly after t.
func (u UpcomingSlas) After(t time.Time) UpcomingSlas {
	i := sort.Search(len(u.groups), func(i int) bool { return u.groups[i].Deadline.After(t) })
	return UpcomingSlas{groups: u.groups[i:]}
}

// IsEmpty reports whether there is no deadline.
func (u UpcomingSlas) IsEmpty() bool { return len(u.groups) == 0 }

// Groups returns the deadline groups in ascending order.
func (u UpcomingSlas) Groups() []DeadlineGroup {
	return append([]DeadlineGroup(nil), u.groups...)
}

// Deadlines returns the distinct deadlines in ascending order.
func (u UpcomingSlas) Deadlines() []time.Time {
	out := make([]time.Time, len(u.groups))
	for i, g := range u.groups {
		out[i] = g.Deadline
	}
	return out
}

// Last returns the latest deadline. ok is false when empty.
func (u UpcomingSlas) Last() (deadline time.Time, ok bool) {
	if len(u.groups) == 0 {
		return time.Time{}, false
	}
	return u.groups[len(u.groups)-1].Deadline, true
}

// Ordered returns every SLA in ascending deadline order.
func (u UpcomingSlas) Ordered() []Sla {
	var out []Sla
	for _, g := range u.groups {
		out = append(out, g.Slas...)
	}
	return out
}
