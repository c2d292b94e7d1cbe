// Package group holds the static group configuration: the fixed set of
// member processes, each with an identifier and a network address.
//
// The group is immutable after construction and identical at every member;
// there is no discovery protocol. Its size doubles as the acknowledgment
// quorum: a multicast may be delivered only once every member has
// acknowledged it.
package group

import (
	"fmt"
	"sort"
)

// Member is one process in the group.
type Member struct {
	// ID is the process identifier, unique within the group.
	ID string

	// Addr is the TCP address the member listens on, e.g. "localhost:5000".
	Addr string
}

// Group is an immutable set of members known to all processes at startup.
type Group struct {
	members []Member          // sorted by ID for deterministic enumeration
	byID    map[string]Member
}

// New builds a group from the given members. Members must have non-empty,
// unique ids and non-empty addresses; the group must not be empty.
func New(members []Member) (*Group, error) {
	if len(members) == 0 {
		return nil, fmt.Errorf("group must have at least one member")
	}

	byID := make(map[string]Member, len(members))
	sorted := make([]Member, 0, len(members))
	for _, m := range members {
		if m.ID == "" {
			return nil, fmt.Errorf("group member has empty id")
		}
		if m.Addr == "" {
			return nil, fmt.Errorf("group member %q has empty address", m.ID)
		}
		if _, dup := byID[m.ID]; dup {
			return nil, fmt.Errorf("duplicate group member id %q", m.ID)
		}
		byID[m.ID] = m
		sorted = append(sorted, m)
	}

	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	return &Group{members: sorted, byID: byID}, nil
}

// Members returns the members sorted by id. The returned slice must not be
// modified.
func (g *Group) Members() []Member {
	return g.members
}

// Size returns the number of members, which is also the full-quorum ack
// count required before any message may be delivered.
func (g *Group) Size() int {
	return len(g.members)
}

// Contains reports whether id names a member of the group.
func (g *Group) Contains(id string) bool {
	_, ok := g.byID[id]
	return ok
}

// Addr returns the address of the member with the given id.
func (g *Group) Addr(id string) (string, bool) {
	m, ok := g.byID[id]
	return m.Addr, ok
}

// IDs returns the member ids in sorted order.
func (g *Group) IDs() []string {
	ids := make([]string, len(g.members))
	for i, m := range g.members {
		ids[i] = m.ID
	}
	return ids
}
