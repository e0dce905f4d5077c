package layout

import (
	"fmt"
	"strings"
)

// BranchI is the index of a Branch in a Layout.
type BranchI int

// TrackI is the index of a Track in a Layout.
type TrackI int

// SwitchI is the index of a Switch in a Layout.
type SwitchI int

// DeadEndI is the index of a DeadEnd in a Layout.
type DeadEndI int

// NoTrack is the Track of a Branch that hasn't been connected yet.
const NoTrack = TrackI(-1)

// BranchKind is the slot a Branch takes in its parent node.
type BranchKind int

const (
	// KindApproach is a switch's base (merged) end. Port A in hardware terms.
	KindApproach BranchKind = iota + 1
	// KindThrough is the normal side of a switch (port B).
	KindThrough
	// KindDiverging is the reverse side of a switch (port C).
	KindDiverging
	// KindEnd is the only branch of a dead end.
	KindEnd
)

func (k BranchKind) String() string {
	switch k {
	case KindApproach:
		return "approach"
	case KindThrough:
		return "through"
	case KindDiverging:
		return "diverging"
	case KindEnd:
		return "branch"
	default:
		return fmt.Sprintf("BranchKind(%d)", int(k))
	}
}

// ParseSwitchKind parses the name of one of a switch's three branches.
// "diverge" is accepted as an alias of "diverging".
func ParseSwitchKind(s string) (BranchKind, error) {
	switch strings.ToLower(s) {
	case "approach":
		return KindApproach, nil
	case "through":
		return KindThrough, nil
	case "diverging", "diverge":
		return KindDiverging, nil
	default:
		return 0, fmt.Errorf("unknown switch branch %q", s)
	}
}

// NodeKind discriminates the variants of NodeRef.
type NodeKind int

const (
	NodeSwitch NodeKind = iota + 1
	NodeDeadEnd
)

func (k NodeKind) String() string {
	switch k {
	case NodeSwitch:
		return "switch"
	case NodeDeadEnd:
		return "deadend"
	default:
		return fmt.Sprintf("NodeKind(%d)", int(k))
	}
}

// NodeRef points to either a Switch or a DeadEnd.
type NodeRef struct {
	Kind  NodeKind
	Index int
}

// Branch is a connection point of a node.
// Parent and Kind never change; Track is set exactly once, by Layout.Connect.
type Branch struct {
	Parent NodeRef
	Kind   BranchKind
	Track  TrackI
}

// Bound reports whether a track is connected to this branch.
func (b Branch) Bound() bool {
	return b.Track != NoTrack
}

// Track is an undirected piece of track between two branches.
type Track struct {
	Ends   [2]BranchI
	Length float64
}

// Other returns the end of t that isn't b.
func (t Track) Other(b BranchI) (BranchI, error) {
	switch b {
	case t.Ends[0]:
		return t.Ends[1], nil
	case t.Ends[1]:
		return t.Ends[0], nil
	default:
		return 0, &InvalidEndpointError{Ends: t.Ends, Branch: b}
	}
}

// Has reports whether b is one of t's ends.
func (t Track) Has(b BranchI) bool {
	return t.Ends[0] == b || t.Ends[1] == b
}
