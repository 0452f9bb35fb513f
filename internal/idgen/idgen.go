// Package idgen mints canonical ExtId values. The teacher's own
// go.mod pulls in github.com/tinode/snowflake for exactly this
// purpose; this package is a thin wrapper around it so the rest of
// the core never imports the allocator directly.
package idgen

import (
	"github.com/tinode/snowflake"

	"github.com/meshim/imcore/internal/imtypes"
)

// Generator mints monotonically-increasing 64-bit ExtId values,
// unique across a cluster of nodes as long as each is given a
// distinct worker id.
type Generator struct {
	node *snowflake.Node
}

// New constructs a Generator for the given worker/node id
// (0-1023, per the snowflake node-id space).
func New(nodeId int64) (*Generator, error) {
	node, err := snowflake.NewNode(nodeId)
	if err != nil {
		return nil, err
	}
	return &Generator{node: node}, nil
}

// Next allocates a fresh ExtId.
func (g *Generator) Next() imtypes.ExtId {
	return imtypes.ExtId(uint64(g.node.Generate().Int64()))
}
