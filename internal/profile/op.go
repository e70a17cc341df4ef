package profile

import (
	"slices"
	"time"
)

// OpKind enumerates the mutations a store can apply to its collection.
type OpKind int

const (
	OpInsert OpKind = iota + 1
	OpUpdate
	OpDelete
)

func (k OpKind) String() string {
	switch k {
	case OpInsert:
		return "insert"
	case OpUpdate:
		return "update"
	case OpDelete:
		return "delete"
	}
	return "unknown"
}

// Op is a single typed mutation. Insert and Update carry Profile, Delete
// carries ID.
type Op struct {
	Kind    OpKind
	Profile Profile
	ID      string
}

// planUpsert resolves an upsert into an insert or an update against the
// current collection, assigning an id when the profile has none.
func planUpsert(profiles []Profile, p Profile) Op {
	if p.ID == "" {
		p.ID = NewID()
		return Op{Kind: OpInsert, Profile: p}
	}
	if indexOf(profiles, p.ID) >= 0 {
		return Op{Kind: OpUpdate, Profile: p}
	}
	return Op{Kind: OpInsert, Profile: p}
}

// apply returns the collection after op together with the record the op
// produced or removed. ok is false when an update or delete found no record.
func apply(profiles []Profile, op Op, now time.Time) (next []Profile, rec Profile, ok bool) {
	switch op.Kind {
	case OpInsert:
		rec = stamp(op.Profile, nil, now)
		return append(slices.Clone(profiles), rec), rec, true
	case OpUpdate:
		i := indexOf(profiles, op.Profile.ID)
		if i < 0 {
			return profiles, Profile{}, false
		}
		rec = stamp(op.Profile, &profiles[i], now)
		next = slices.Clone(profiles)
		next[i] = rec
		return next, rec, true
	case OpDelete:
		i := indexOf(profiles, op.ID)
		if i < 0 {
			return profiles, Profile{}, false
		}
		rec = profiles[i]
		return slices.Delete(slices.Clone(profiles), i, i+1), rec, true
	}
	return profiles, Profile{}, false
}

// stamp assigns server-side timestamps. createdAt survives updates and
// updatedAt never moves backwards.
func stamp(p Profile, prev *Profile, now time.Time) Profile {
	now = now.UTC()
	p = p.normalize()
	if prev == nil {
		p.CreatedAt = now
		p.UpdatedAt = now
		return p
	}
	p.CreatedAt = prev.CreatedAt
	p.UpdatedAt = now
	if now.Before(prev.UpdatedAt) {
		p.UpdatedAt = prev.UpdatedAt
	}
	return p
}

func indexOf(profiles []Profile, id string) int {
	return slices.IndexFunc(profiles, func(p Profile) bool { return p.ID == id })
}

// sortNewestFirst orders by createdAt descending, keeping stored order for ties.
func sortNewestFirst(profiles []Profile) {
	slices.SortStableFunc(profiles, func(a, b Profile) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
}
