// Package layout holds the topology of a rail network: switches, dead ends,
// their branches, and the tracks connecting branches.
//
// Everything lives in slices owned by a Layout and is referred to by index, so
// two branches are the same branch iff their BranchI are equal.
package layout

import (
	"fmt"
	"math"

	"go.uber.org/multierr"
	"golang.org/x/exp/slices"
)

type Layout struct {
	Switches []Switch
	DeadEnds []DeadEnd
	Tracks   []Track
	Branches []Branch
}

func New() *Layout {
	return &Layout{}
}

func (y *Layout) newBranch(parent NodeRef, kind BranchKind) BranchI {
	y.Branches = append(y.Branches, Branch{Parent: parent, Kind: kind, Track: NoTrack})
	return BranchI(len(y.Branches) - 1)
}

// AddSwitch adds a switch and its three branches.
// Tags are not checked for uniqueness here; see tal.NewSystem.
func (y *Layout) AddSwitch(tag string, state SwitchState) SwitchI {
	si := SwitchI(len(y.Switches))
	parent := NodeRef{Kind: NodeSwitch, Index: int(si)}
	y.Switches = append(y.Switches, Switch{
		Tag:       tag,
		Approach:  y.newBranch(parent, KindApproach),
		Through:   y.newBranch(parent, KindThrough),
		Diverging: y.newBranch(parent, KindDiverging),
		State:     state,
	})
	return si
}

func (y *Layout) AddDeadEnd(tag string) DeadEndI {
	di := DeadEndI(len(y.DeadEnds))
	y.DeadEnds = append(y.DeadEnds, DeadEnd{
		Tag:    tag,
		Branch: y.newBranch(NodeRef{Kind: NodeDeadEnd, Index: int(di)}, KindEnd),
	})
	return di
}

// Connect binds a and b with a new track of the given length.
// A branch can only ever be bound once.
func (y *Layout) Connect(a, b BranchI, length float64) (TrackI, error) {
	y.checkBranch(a)
	y.checkBranch(b)
	if a == b {
		return NoTrack, fmt.Errorf("connect %s to itself", y.BranchTag(a))
	}
	if math.IsNaN(length) || math.IsInf(length, 0) || length <= 0 {
		return NoTrack, fmt.Errorf("connect %s~%s: length must be positive, got %g", y.BranchTag(a), y.BranchTag(b), length)
	}
	for _, bi := range []BranchI{a, b} {
		if br := y.Branches[bi]; br.Bound() {
			return NoTrack, fmt.Errorf("connect %s~%s: %s already bound to track %s", y.BranchTag(a), y.BranchTag(b), y.BranchTag(bi), y.TrackTag(br.Track))
		}
	}
	ti := TrackI(len(y.Tracks))
	y.Tracks = append(y.Tracks, Track{Ends: [2]BranchI{a, b}, Length: length})
	y.Branches[a].Track = ti
	y.Branches[b].Track = ti
	return ti, nil
}

// checkBranch panics if bi doesn't exist in this Layout.
func (y *Layout) checkBranch(bi BranchI) {
	if bi < 0 || int(bi) >= len(y.Branches) {
		panic(fmt.Sprintf("invalid BranchI %d", bi))
	}
}

func (y *Layout) Branch(bi BranchI) Branch {
	y.checkBranch(bi)
	return y.Branches[bi]
}

// TrackOf returns the track bound to bi.
func (y *Layout) TrackOf(bi BranchI) (TrackI, Track, error) {
	b := y.Branch(bi)
	if !b.Bound() {
		return NoTrack, Track{}, &UnboundBranchError{Branch: y.BranchTag(bi)}
	}
	return b.Track, y.Tracks[b.Track], nil
}

// Length returns the length of the track bound to bi, or 0 if there is none.
func (y *Layout) Length(bi BranchI) float64 {
	_, t, err := y.TrackOf(bi)
	if err != nil {
		return 0
	}
	return t.Length
}

func (y *Layout) NodeTag(n NodeRef) string {
	switch n.Kind {
	case NodeSwitch:
		return y.Switches[n.Index].Tag
	case NodeDeadEnd:
		return y.DeadEnds[n.Index].Tag
	default:
		panic("unreachable")
	}
}

// BranchTag is a human-friendly name, like "A_through".
func (y *Layout) BranchTag(bi BranchI) string {
	if bi < 0 || int(bi) >= len(y.Branches) {
		return fmt.Sprintf("?%d", bi)
	}
	b := y.Branches[bi]
	return y.NodeTag(b.Parent) + "_" + b.Kind.String()
}

func (y *Layout) TrackTag(ti TrackI) string {
	if ti < 0 || int(ti) >= len(y.Tracks) {
		return fmt.Sprintf("?%d", ti)
	}
	t := y.Tracks[ti]
	return y.BranchTag(t.Ends[0]) + "~" + y.BranchTag(t.Ends[1])
}

// PassThrough asks the parent of from where a train entering via from leaves.
func (y *Layout) PassThrough(from BranchI) (BranchI, error) {
	b := y.Branch(from)
	switch b.Parent.Kind {
	case NodeSwitch:
		return y.Switches[b.Parent.Index].PassThrough(from)
	case NodeDeadEnd:
		return y.DeadEnds[b.Parent.Index].PassThrough(from)
	default:
		panic("unreachable")
	}
}

// Next returns the branch a train departs from once it has run the whole track of bi.
func (y *Layout) Next(bi BranchI) (BranchI, error) {
	_, t, err := y.TrackOf(bi)
	if err != nil {
		return 0, err
	}
	far, err := t.Other(bi)
	if err != nil {
		return 0, err
	}
	return y.PassThrough(far)
}

// SetState changes the state of a switch without any checks.
// Callers must make sure no train is on the switch (see tal.System.SetSwitchState).
func (y *Layout) SetState(si SwitchI, state SwitchState) {
	y.Switches[si].State = state
}

// LookupSwitch returns -1 if there is no switch tagged tag.
func (y *Layout) LookupSwitch(tag string) SwitchI {
	return SwitchI(slices.IndexFunc(y.Switches, func(s Switch) bool { return s.Tag == tag }))
}

// LookupDeadEnd returns -1 if there is no dead end tagged tag.
func (y *Layout) LookupDeadEnd(tag string) DeadEndI {
	return DeadEndI(slices.IndexFunc(y.DeadEnds, func(d DeadEnd) bool { return d.Tag == tag }))
}

// MustLookupBranch finds a node's branch by tag. If it doesn't exist it panics.
// This is for debugging/testing.
func (y *Layout) MustLookupBranch(tag string, kind BranchKind) BranchI {
	if kind == KindEnd {
		di := y.LookupDeadEnd(tag)
		if di == -1 {
			panic(fmt.Sprintf("found nothing when looking up dead end %s", tag))
		}
		return y.DeadEnds[di].Branch
	}
	si := y.LookupSwitch(tag)
	if si == -1 {
		panic(fmt.Sprintf("found nothing when looking up switch %s", tag))
	}
	bi, err := y.Switches[si].GetBranch(kind)
	if err != nil {
		panic(err)
	}
	return bi
}

// Check makes sure every track's ends point back at it.
func (y *Layout) Check() error {
	var err error
	for ti, t := range y.Tracks {
		for _, bi := range t.Ends {
			if y.Branch(bi).Track != TrackI(ti) {
				err = multierr.Append(err, fmt.Errorf("track %s: end %s bound to track %d", y.TrackTag(TrackI(ti)), y.BranchTag(bi), y.Branches[bi].Track))
			}
		}
	}
	return err
}
