package fanout

import (
	"context"
	"sync"

	"github.com/meshim/imcore/internal/imerr"
	"github.com/meshim/imcore/internal/imtypes"
)

// GroupInfo is the slice of group metadata §4.6 needs. Group
// membership CRUD is an external collaborator's concern (§1
// Non-goals); GroupDirectory is the narrow interface the fan-out API
// depends on to read it.
type GroupInfo struct {
	GroupId   string
	Dissolved bool
}

// GroupDirectory is the external group-membership lookup §4.6 steps 1-2 need.
type GroupDirectory interface {
	GetGroup(ctx context.Context, groupId string) (GroupInfo, error)
	Members(ctx context.Context, groupId string) ([]imtypes.ExtId, error)
}

// InMemoryGroupDirectory is a GroupDirectory fake for tests.
type InMemoryGroupDirectory struct {
	mu      sync.Mutex
	groups  map[string]GroupInfo
	members map[string][]imtypes.ExtId
}

func NewInMemoryGroupDirectory() *InMemoryGroupDirectory {
	return &InMemoryGroupDirectory{
		groups:  make(map[string]GroupInfo),
		members: make(map[string][]imtypes.ExtId),
	}
}

func (d *InMemoryGroupDirectory) Seed(groupId string, dissolved bool, members []imtypes.ExtId) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.groups[groupId] = GroupInfo{GroupId: groupId, Dissolved: dissolved}
	d.members[groupId] = members
}

func (d *InMemoryGroupDirectory) GetGroup(ctx context.Context, groupId string) (GroupInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	g, ok := d.groups[groupId]
	if !ok {
		return GroupInfo{}, imerr.NotFound("fanout: group %s not found", groupId)
	}
	return g, nil
}

func (d *InMemoryGroupDirectory) Members(ctx context.Context, groupId string) ([]imtypes.ExtId, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	members, ok := d.members[groupId]
	if !ok {
		return nil, imerr.NotFound("fanout: group %s not found", groupId)
	}
	out := make([]imtypes.ExtId, len(members))
	copy(out, members)
	return out, nil
}
