package tal

import (
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidDuration = errors.New("step duration must be positive and finite")

// ErrTooManyCrossings is returned by Step when dt is so long that a train
// would pass more track ends than a single step allows. The train stays
// where it stopped; smaller steps will get it further.
var ErrTooManyCrossings = errors.New("too many track ends passed in one step")

// DerailmentError is returned when a train can't continue past the end of its track.
// Err is a *layout.DeadEndCollisionError, *layout.SwitchPassthroughError, or *layout.UnboundBranchError.
type DerailmentError struct {
	Train string
	// Branch is the tag of the branch the train's head departed from.
	Branch string
	Err    error
}

func (e *DerailmentError) Error() string {
	return fmt.Sprintf("train %s (from %s): %s", e.Train, e.Branch, e.Err)
}

func (e *DerailmentError) Unwrap() error { return e.Err }

// SwitchOverlapError is returned when a switch is thrown while trains are on it.
// The caller can retry once the trains are clear.
type SwitchOverlapError struct {
	Switch string
	Trains []string
}

func (e *SwitchOverlapError) Error() string {
	return fmt.Sprintf("cannot throw switch %s while trains are on it: %s", e.Switch, strings.Join(e.Trains, ", "))
}

// TrainCollisionError lists every collision found after a step.
type TrainCollisionError struct {
	Collisions []Collision
}

func (e *TrainCollisionError) Error() string {
	cs := make([]string, len(e.Collisions))
	for i, c := range e.Collisions {
		cs[i] = c.String()
	}
	return fmt.Sprintf("train collision(s): %s", strings.Join(cs, ", "))
}

// UnknownTagError is returned when looking up something that doesn't exist.
type UnknownTagError struct {
	Kind string
	Tag  string
}

func (e *UnknownTagError) Error() string {
	return fmt.Sprintf("no %s tagged %q", e.Kind, e.Tag)
}
