package layout

import "fmt"

// SwitchState represents which of the through or diverging branches is used.
// If false, through is selected. If true, diverging is selected. (This way the zero value is the normal position.)
type SwitchState bool

const (
	StateThrough   SwitchState = false
	StateDiverging SwitchState = true
)

func (s SwitchState) String() string {
	if s {
		return "diverging"
	}
	return "through"
}

// Switch is a node with three branches and a binary state.
type Switch struct {
	Tag       string
	Approach  BranchI
	Through   BranchI
	Diverging BranchI
	State     SwitchState
}

// Branches returns approach, through, and diverging, in that order.
func (s Switch) Branches() [3]BranchI {
	return [3]BranchI{s.Approach, s.Through, s.Diverging}
}

// Has reports whether b belongs to s.
func (s Switch) Has(b BranchI) bool {
	return b == s.Approach || b == s.Through || b == s.Diverging
}

func (s Switch) GetBranch(kind BranchKind) (BranchI, error) {
	switch kind {
	case KindApproach:
		return s.Approach, nil
	case KindThrough:
		return s.Through, nil
	case KindDiverging:
		return s.Diverging, nil
	default:
		return 0, fmt.Errorf("switch %s has no %s branch", s.Tag, kind)
	}
}

// PassThrough returns the branch a train leaves from after entering s via from.
// Entering from through or diverging only works when s is set to that side.
func (s Switch) PassThrough(from BranchI) (BranchI, error) {
	switch from {
	case s.Approach:
		if s.State == StateDiverging {
			return s.Diverging, nil
		}
		return s.Through, nil
	case s.Through:
		if s.State != StateThrough {
			return 0, &SwitchPassthroughError{Switch: s.Tag, From: KindThrough, State: s.State}
		}
		return s.Approach, nil
	case s.Diverging:
		if s.State != StateDiverging {
			return 0, &SwitchPassthroughError{Switch: s.Tag, From: KindDiverging, State: s.State}
		}
		return s.Approach, nil
	default:
		return 0, fmt.Errorf("branch %d does not belong to switch %s", from, s.Tag)
	}
}

// DeadEnd is a node with a single branch. Nothing passes through it.
type DeadEnd struct {
	Tag    string
	Branch BranchI
}

func (d DeadEnd) PassThrough(from BranchI) (BranchI, error) {
	return 0, &DeadEndCollisionError{DeadEnd: d.Tag}
}
