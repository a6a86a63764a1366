package distributor

import (
	"fmt"

	"github.com/browsergrid/gridcore/internal/gridtypes"
)

// NoSuchNode is returned by drain/remove when the given NodeId is not
// currently in the grid model.
type NoSuchNode struct {
	NodeID gridtypes.NodeID
}

func (e *NoSuchNode) Error() string {
	return fmt.Sprintf("no such node: %s", e.NodeID)
}
