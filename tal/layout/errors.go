package layout

import "fmt"

// InvalidEndpointError is returned when a branch is used with a track it isn't an end of.
// This is always a programming error.
type InvalidEndpointError struct {
	Ends   [2]BranchI
	Branch BranchI
}

func (e *InvalidEndpointError) Error() string {
	return fmt.Sprintf("branch %d is not an end of track %d~%d", e.Branch, e.Ends[0], e.Ends[1])
}

// UnboundBranchError is returned when a train needs the track of a branch that has none.
type UnboundBranchError struct {
	Branch string
}

func (e *UnboundBranchError) Error() string {
	return fmt.Sprintf("branch %s is not connected to a track", e.Branch)
}

// SwitchPassthroughError is a derailment: a train entered a switch from the side it isn't set to.
type SwitchPassthroughError struct {
	Switch string
	From   BranchKind
	State  SwitchState
}

func (e *SwitchPassthroughError) Error() string {
	return fmt.Sprintf("passed through switch %s from %s while set to %s", e.Switch, e.From, e.State)
}

// DeadEndCollisionError is returned when a train runs past a dead end.
type DeadEndCollisionError struct {
	DeadEnd string
}

func (e *DeadEndCollisionError) Error() string {
	return fmt.Sprintf("passed through dead end %s", e.DeadEnd)
}
