package tal

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/gammazero/deque"
	"nyiyui.ca/hato/senro/tal/layout"
)

// Train is a train moving forward along the layout.
//
// The train's position is kept as the branches it departed from, head first.
// history.Front() is the branch the head departed from, and headDistance is
// how far the head is from that branch's end, along its track.
// The last entry is the branch the tail departed from.
//
// Fields are only changed by System, so a *Train handed out by System.TrainMap is read-only.
type Train struct {
	tag          string
	length       float64
	speed        float64
	headDistance float64
	history      deque.Deque[layout.BranchI]
}

func NewTrain(tag string, head layout.BranchI, headDistance, length, speed float64) *Train {
	t := &Train{
		tag:          tag,
		length:       length,
		speed:        speed,
		headDistance: headDistance,
	}
	t.history.PushBack(head)
	return t
}

func (t *Train) Tag() string           { return t.tag }
func (t *Train) Length() float64       { return t.length }
func (t *Train) Speed() float64        { return t.speed }
func (t *Train) HeadDistance() float64 { return t.headDistance }

func (t *Train) HeadBranch() layout.BranchI {
	return t.history.Front()
}

func (t *Train) TailBranch() layout.BranchI {
	return t.history.Back()
}

// History returns a copy of the branches the train spans, head first.
func (t *Train) History() []layout.BranchI {
	h := make([]layout.BranchI, t.history.Len())
	for i := range h {
		h[i] = t.history.At(i)
	}
	return h
}

// Occupies reports whether b is in the train's history.
func (t *Train) Occupies(b layout.BranchI) bool {
	for i := 0; i < t.history.Len(); i++ {
		if t.history.At(i) == b {
			return true
		}
	}
	return false
}

// HeadProgress is HeadDistance as a fraction of the head's track.
func (t *Train) HeadProgress(y *layout.Layout) float64 {
	l := y.Length(t.HeadBranch())
	if l <= 0 {
		return 0
	}
	return t.headDistance / l
}

func (t *Train) setHeadProgress(y *layout.Layout, p float64) {
	t.headDistance = p * y.Length(t.HeadBranch())
}

// trim drops history entries the body no longer reaches.
// The entry holding the tail is kept so the tail's position stays known.
func (t *Train) trim(y *layout.Layout) {
	left := t.length - t.headDistance
	keep := 1
	for keep < t.history.Len() && left > 0 {
		left -= y.Length(t.history.At(keep))
		keep++
	}
	for t.history.Len() > keep {
		t.history.PopBack()
	}
}

// TailProgress is the position of the tail as a fraction of the tail's
// track, measured from the tail branch's end.
func (t *Train) TailProgress(y *layout.Layout) float64 {
	t.trim(y)
	if t.history.Len() == 1 {
		l := y.Length(t.HeadBranch())
		if l <= 0 {
			return 0
		}
		return clamp(t.HeadProgress(y)-t.length/l, 0, 1)
	}
	acc := t.headDistance
	for i := 1; i < t.history.Len()-1; i++ {
		acc += y.Length(t.history.At(i))
	}
	tailL := y.Length(t.TailBranch())
	if tailL <= 0 {
		return 0
	}
	return clamp(1-(t.length-acc)/tailL, 0, 1)
}

// TailDistance is how much of the train is on the tail's track.
func (t *Train) TailDistance(y *layout.Layout) float64 {
	tp := t.TailProgress(y)
	if t.history.Len() == 1 {
		return t.headDistance - tp*y.Length(t.HeadBranch())
	}
	return (1 - tp) * y.Length(t.TailBranch())
}

// maxCrossings is how many track ends a train may pass in one step.
const maxCrossings = 1000

// step moves the train forward by dt×speed.
// If the train can't get past the end of a track, it is left at that end and a *DerailmentError is returned.
// A train that would pass more than maxCrossings track ends stops after the last one and ErrTooManyCrossings is returned.
func (t *Train) step(y *layout.Layout, dt float64) error {
	remaining := dt * t.speed
	for crossings := 0; remaining > 0; crossings++ {
		head := t.HeadBranch()
		_, track, err := y.TrackOf(head)
		if err != nil {
			return &DerailmentError{Train: t.tag, Branch: y.BranchTag(head), Err: err}
		}
		toEnd := track.Length - t.headDistance
		if remaining < toEnd {
			t.headDistance += remaining
			break
		}
		if crossings == maxCrossings {
			return fmt.Errorf("train %s (%g left at %s): %w", t.tag, remaining, y.BranchTag(head), ErrTooManyCrossings)
		}
		remaining -= toEnd
		next, err := y.Next(head)
		if err != nil {
			t.headDistance = track.Length
			return &DerailmentError{Train: t.tag, Branch: y.BranchTag(head), Err: err}
		}
		t.history.PushFront(next)
		t.headDistance = 0
		t.trim(y)
	}
	t.trim(y)
	return nil
}

func (t *Train) check(y *layout.Layout) error {
	switch {
	case t.tag == "":
		return errors.New("empty tag")
	case !(t.length > 0) || math.IsInf(t.length, 0):
		return fmt.Errorf("length must be positive and finite, got %g", t.length)
	case !(t.speed >= 0) || math.IsInf(t.speed, 0):
		return fmt.Errorf("speed must not be negative and must be finite, got %g", t.speed)
	}
	_, track, err := y.TrackOf(t.HeadBranch())
	if err != nil {
		return err
	}
	if !(t.headDistance >= 0 && t.headDistance <= track.Length) {
		return fmt.Errorf("head distance %g not in [0, %g]", t.headDistance, track.Length)
	}
	return nil
}

func (t *Train) Describe(y *layout.Layout) string {
	b := new(strings.Builder)
	fmt.Fprintf(b, "%s v%g head=%s@%.3g", t.tag, t.speed, y.BranchTag(t.HeadBranch()), t.headDistance)
	if t.history.Len() > 1 {
		fmt.Fprintf(b, " tail=%s", y.BranchTag(t.TailBranch()))
	}
	return b.String()
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
