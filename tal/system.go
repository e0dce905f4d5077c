package tal

import (
	"errors"
	"fmt"
	"math"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"nyiyui.ca/hato/senro/tal/layout"
)

// System owns a layout and the trains on it.
// It is not safe for concurrent use; see sim.Simulation for that.
type System struct {
	y       *layout.Layout
	trains  []*Train
	steps   int
	elapsed float64
}

// NewSystem checks the layout and trains and takes ownership of both.
// Empty and duplicate tags are rejected.
func NewSystem(y *layout.Layout, trains []*Train) (*System, error) {
	var err error
	err = multierr.Append(err, y.Check())
	err = multierr.Append(err, checkTags("switch", len(y.Switches), func(i int) string { return y.Switches[i].Tag }))
	err = multierr.Append(err, checkTags("dead end", len(y.DeadEnds), func(i int) string { return y.DeadEnds[i].Tag }))
	err = multierr.Append(err, checkTags("train", len(trains), func(i int) string { return trains[i].tag }))
	for _, t := range trains {
		if err2 := t.check(y); err2 != nil {
			err = multierr.Append(err, fmt.Errorf("train %q: %w", t.tag, err2))
		}
	}
	if err != nil {
		return nil, err
	}
	for _, t := range trains {
		t.trim(y)
	}
	return &System{y: y, trains: trains}, nil
}

func checkTags(kind string, n int, tag func(i int) string) error {
	seen := map[string]int{}
	var err error
	for i := 0; i < n; i++ {
		t := tag(i)
		if t == "" {
			err = multierr.Append(err, fmt.Errorf("%s %d: empty tag", kind, i))
			continue
		}
		if j, ok := seen[t]; ok {
			err = multierr.Append(err, fmt.Errorf("%s %d: tag %q already used by %s %d", kind, i, t, kind, j))
			continue
		}
		seen[t] = i
	}
	return err
}

// Layout returns the layout. It must not be modified.
func (s *System) Layout() *layout.Layout { return s.y }

// Trains returns the trains in load order. They must not be modified.
func (s *System) Trains() []*Train { return s.trains }

// Steps is the number of Step calls that moved the trains.
func (s *System) Steps() int { return s.steps }

// Elapsed is the sum of dt over all Step calls that moved the trains.
func (s *System) Elapsed() float64 { return s.elapsed }

// Step moves every train by dt, then looks for collisions.
// Derailments (*DerailmentError), ErrTooManyCrossings and collisions (*TrainCollisionError) are
// combined with multierr; trains stay where they ended up either way.
// Nothing moves if dt, or dt times any train's speed, is not positive and finite.
func (s *System) Step(dt float64) error {
	if math.IsNaN(dt) || math.IsInf(dt, 0) || dt <= 0 {
		return fmt.Errorf("step %g: %w", dt, ErrInvalidDuration)
	}
	for _, t := range s.trains {
		if math.IsInf(dt*t.speed, 0) {
			return fmt.Errorf("step %g: train %s would move %g: %w", dt, t.tag, dt*t.speed, ErrInvalidDuration)
		}
	}
	var err error
	for _, t := range s.trains {
		if err2 := t.step(s.y, dt); err2 != nil {
			zap.S().Warnw("train stopped", "train", t.tag, "error", err2)
			err = multierr.Append(err, err2)
		}
	}
	s.steps++
	s.elapsed += dt
	if cs := s.DetectCollisions(); len(cs) > 0 {
		zap.S().Warnw("collision", "collisions", cs)
		err = multierr.Append(err, &TrainCollisionError{Collisions: cs})
	}
	zap.S().Debugw("step", "step", s.steps, "dt", dt, "error", err)
	return err
}

// DetectCollisions returns every collision between trains right now.
func (s *System) DetectCollisions() []Collision {
	return DetectCollisions(s.y, s.trains)
}

func (s *System) lookupSwitch(tag string) (layout.SwitchI, error) {
	si := s.y.LookupSwitch(tag)
	if si == -1 {
		return -1, &UnknownTagError{Kind: "switch", Tag: tag}
	}
	return si, nil
}

func (s *System) overlapping(si layout.SwitchI) []string {
	sw := s.y.Switches[si]
	var tags []string
	for _, t := range s.trains {
		t.trim(s.y)
		for _, b := range sw.Branches() {
			if t.Occupies(b) {
				tags = append(tags, t.tag)
				break
			}
		}
	}
	return tags
}

// IsSwitchOverlapped reports whether any train is on the switch tagged tag.
func (s *System) IsSwitchOverlapped(tag string) (bool, error) {
	si, err := s.lookupSwitch(tag)
	if err != nil {
		return false, err
	}
	return len(s.overlapping(si)) > 0, nil
}

// SetSwitchState throws a switch. This fails with *SwitchOverlapError if any train is on it.
func (s *System) SetSwitchState(tag string, state layout.SwitchState) error {
	si, err := s.lookupSwitch(tag)
	if err != nil {
		return err
	}
	if trains := s.overlapping(si); len(trains) > 0 {
		return &SwitchOverlapError{Switch: tag, Trains: trains}
	}
	if s.y.Switches[si].State != state {
		zap.S().Infow("throw switch", "switch", tag, "state", state)
	}
	s.y.SetState(si, state)
	return nil
}

// SwitchMap returns copies of the switches, keyed by tag.
func (s *System) SwitchMap() map[string]layout.Switch {
	m := make(map[string]layout.Switch, len(s.y.Switches))
	for _, sw := range s.y.Switches {
		m[sw.Tag] = sw
	}
	return m
}

// DeadEndMap returns copies of the dead ends, keyed by tag.
func (s *System) DeadEndMap() map[string]layout.DeadEnd {
	m := make(map[string]layout.DeadEnd, len(s.y.DeadEnds))
	for _, d := range s.y.DeadEnds {
		m[d.Tag] = d
	}
	return m
}

// TrainMap returns the trains keyed by tag.
func (s *System) TrainMap() map[string]*Train {
	m := make(map[string]*Train, len(s.trains))
	for _, t := range s.trains {
		m[t.tag] = t
	}
	return m
}

// Derailments picks out the *DerailmentErrors of an error returned by Step, even if it has been wrapped since.
func Derailments(err error) []*DerailmentError {
	var des []*DerailmentError
	walkErrors(err, func(err error) bool {
		de, ok := err.(*DerailmentError)
		if ok {
			des = append(des, de)
		}
		return ok
	})
	return des
}

// walkErrors calls f on err and everything it wraps, depth first. If f returns true, what err wraps is skipped.
func walkErrors(err error, f func(error) bool) {
	if err == nil || f(err) {
		return
	}
	switch err := err.(type) {
	case interface{ Unwrap() []error }:
		for _, err2 := range err.Unwrap() {
			walkErrors(err2, f)
		}
	case interface{ Unwrap() error }:
		walkErrors(err.Unwrap(), f)
	}
}

// Collisions picks out the collisions of an error returned by Step.
func Collisions(err error) []Collision {
	var tce *TrainCollisionError
	if errors.As(err, &tce) {
		return tce.Collisions
	}
	return nil
}
