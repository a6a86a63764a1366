package distributor

import (
	"sort"

	"github.com/browsergrid/gridcore/internal/gridtypes"
)

// Candidate is one (node, free slot) pairing the scheduler can attempt
// to reserve, ranked by SlotSelector.
type Candidate struct {
	NodeID gridtypes.NodeID
	SlotID gridtypes.SlotID
}

// SlotSelector ranks the free slots across availableNodes that could
// satisfy want, most-preferred first. It is injected at construction so
// an operator can swap in a different placement policy without touching
// the scheduling loop.
type SlotSelector interface {
	Select(availableNodes []gridtypes.NodeStatus, want gridtypes.Capabilities) []Candidate
}

// DefaultSlotSelector implements the reference tie-break order: prefer
// the node with more free slots (packing requests onto already-loaded
// nodes less), then the least-recently-used slot, then NodeId for a
// fully deterministic order given equal inputs.
type DefaultSlotSelector struct{}

// Select implements SlotSelector.
func (DefaultSlotSelector) Select(availableNodes []gridtypes.NodeStatus, want gridtypes.Capabilities) []Candidate {
	type ranked struct {
		candidate   Candidate
		freeOnNode  int
		lastStarted int64 // unix nanos; zero value sorts first (never used)
		nodeID      gridtypes.NodeID
	}

	freeCount := make(map[gridtypes.NodeID]int, len(availableNodes))
	for _, n := range availableNodes {
		freeCount[n.NodeID] = len(n.Slots) - n.UsedSlots()
	}

	var entries []ranked
	for _, n := range availableNodes {
		for _, slot := range n.Slots {
			if slot.HasSession() {
				continue
			}
			if !slot.Stereotype.Matches(want) {
				continue
			}
			entries = append(entries, ranked{
				candidate:   Candidate{NodeID: n.NodeID, SlotID: slot.ID},
				freeOnNode:  freeCount[n.NodeID],
				lastStarted: slot.LastStarted.UnixNano(),
				nodeID:      n.NodeID,
			})
		}
	}

	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.freeOnNode != b.freeOnNode {
			return a.freeOnNode > b.freeOnNode // more free slots preferred
		}
		if a.lastStarted != b.lastStarted {
			return a.lastStarted < b.lastStarted // older (or never-used) preferred
		}
		return a.nodeID < b.nodeID // deterministic tiebreak
	})

	out := make([]Candidate, len(entries))
	for i, e := range entries {
		out[i] = e.candidate
	}
	return out
}
