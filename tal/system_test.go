package tal

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
	"gonum.org/v1/gonum/floats/scalar"
	"nyiyui.ca/hato/senro/tal/layout"
)

func sortedKeys[V any](m map[string]V) []string {
	keys := maps.Keys(m)
	slices.Sort(keys)
	return keys
}

func mustSystem(t *testing.T, init func() (*layout.Layout, error), setups []trainSetup) *System {
	t.Helper()
	y := mustTestbench(t, init)
	s, err := NewSystem(y, makeTrains(y, setups))
	if err != nil {
		t.Fatalf("NewSystem: %s", err)
	}
	return s
}

func TestSwitchOverlapGuard(t *testing.T) {
	s := mustSystem(t, layout.InitTestbench2, []trainSetup{
		{tag: "T", node: "A", headDistance: 9, length: 1, speed: 1},
	})
	if overlapped, err := s.IsSwitchOverlapped("S"); err != nil || overlapped {
		t.Fatalf("S overlapped before the train got there (%t, %v)", overlapped, err)
	}
	if err := s.Step(2); err != nil {
		t.Fatalf("step: %s", err)
	}
	if overlapped, _ := s.IsSwitchOverlapped("S"); !overlapped {
		t.Fatal("S not overlapped")
	}
	err := s.SetSwitchState("S", layout.StateDiverging)
	var soe *SwitchOverlapError
	if !errors.As(err, &soe) {
		t.Fatalf("expected SwitchOverlapError, got %v", err)
	}
	if diff := cmp.Diff(&SwitchOverlapError{Switch: "S", Trains: []string{"T"}}, soe); diff != "" {
		t.Fatalf("error: %s", diff)
	}
	if s.SwitchMap()["S"].State != layout.StateThrough {
		t.Fatal("switch thrown anyway")
	}

	// run past T
	if err := s.Step(10); err != nil {
		t.Fatalf("step: %s", err)
	}
	if err := s.SetSwitchState("S", layout.StateDiverging); err != nil {
		t.Fatalf("SetSwitchState after clearing: %s", err)
	}
	if s.SwitchMap()["S"].State != layout.StateDiverging {
		t.Fatal("switch not thrown")
	}
	if overlapped, _ := s.IsSwitchOverlapped("T"); !overlapped {
		t.Fatal("T not overlapped")
	}
}

func TestSetSwitchStateUnknown(t *testing.T) {
	s := mustSystem(t, layout.InitTestbench2, nil)
	var ute *UnknownTagError
	if err := s.SetSwitchState("nope", true); !errors.As(err, &ute) {
		t.Fatalf("expected UnknownTagError, got %v", err)
	}
	if _, err := s.IsSwitchOverlapped("A"); !errors.As(err, &ute) {
		t.Fatalf("dead end A treated as a switch: %v", err)
	}
}

func TestStepCollision(t *testing.T) {
	s := mustSystem(t, layout.InitTestbench1, []trainSetup{
		{tag: "T1", node: "A", headDistance: 5, length: 1},
		{tag: "T2", node: "A", headDistance: 2, length: 1, speed: 1},
	})
	if err := s.Step(1); err != nil {
		t.Fatalf("first step: %s", err)
	}
	err := s.Step(1)
	var tce *TrainCollisionError
	if !errors.As(err, &tce) {
		t.Fatalf("expected TrainCollisionError, got %v", err)
	}
	if diff := cmp.Diff([][2]string{{"T1", "T2"}}, collisionPairs(tce.Collisions)); diff != "" {
		t.Fatalf("collisions: %s", diff)
	}
	// reported, not rolled back
	if got := s.TrainMap()["T2"].HeadDistance(); !scalar.EqualWithinAbs(got, 4, tol) {
		t.Fatalf("T2 at %g", got)
	}
	if s.Steps() != 2 || !scalar.EqualWithinAbs(s.Elapsed(), 2, tol) {
		t.Fatalf("counters: %d %g", s.Steps(), s.Elapsed())
	}
}

func TestStepDerailmentAndCollision(t *testing.T) {
	s := mustSystem(t, layout.InitTestbench1, []trainSetup{
		{tag: "runaway", node: "A", headDistance: 9, length: 1, speed: 1},
		{tag: "T1", node: "A", headDistance: 5, length: 2},
		{tag: "T2", node: "B", headDistance: 6, length: 2},
	})
	err := s.Step(2)
	des := Derailments(err)
	if len(des) != 1 || des[0].Train != "runaway" {
		t.Fatalf("derailments: %v", des)
	}
	if diff := cmp.Diff([][2]string{{"T1", "T2"}}, collisionPairs(Collisions(err))); diff != "" {
		t.Fatalf("collisions: %s", diff)
	}
}

func TestStepInvalidDuration(t *testing.T) {
	s := mustSystem(t, layout.InitTestbench1, nil)
	for _, dt := range []float64{0, -1} {
		if err := s.Step(dt); !errors.Is(err, ErrInvalidDuration) {
			t.Fatalf("Step(%g): expected ErrInvalidDuration, got %v", dt, err)
		}
	}
	if s.Steps() != 0 {
		t.Fatal("invalid step counted")
	}
}

func TestStepOverflowingDistance(t *testing.T) {
	s := mustSystem(t, layout.InitTestbench1, []trainSetup{
		{tag: "T", node: "A", headDistance: 1, length: 1, speed: 1e300},
	})
	if err := s.Step(1e10); !errors.Is(err, ErrInvalidDuration) {
		t.Fatalf("expected ErrInvalidDuration, got %v", err)
	}
	if s.Steps() != 0 || s.TrainMap()["T"].HeadDistance() != 1 {
		t.Fatalf("moved anyway: %d steps, head at %g", s.Steps(), s.TrainMap()["T"].HeadDistance())
	}
}

func TestStepLongOnLoop(t *testing.T) {
	y := loopLayout(t)
	s, err := NewSystem(y, []*Train{
		NewTrain("T", y.MustLookupBranch("S", layout.KindThrough), 0, 0.5, 1),
	})
	if err != nil {
		t.Fatalf("NewSystem: %s", err)
	}
	done := make(chan error, 1)
	go func() { done <- s.Step(1e17) }()
	select {
	case err = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Step(1e17) did not return")
	}
	if !errors.Is(err, ErrTooManyCrossings) {
		t.Fatalf("expected ErrTooManyCrossings, got %v", err)
	}
	if len(Derailments(err)) != 0 {
		t.Fatalf("reported as a derailment: %v", err)
	}
	if s.Steps() != 1 {
		t.Fatalf("steps: %d", s.Steps())
	}
	if n := len(s.TrainMap()["T"].History()); n > 2 {
		t.Fatalf("history grew to %d", n)
	}
}

func TestNewSystemRejects(t *testing.T) {
	type setup struct {
		name   string
		trains []trainSetup
	}
	for _, s := range []setup{
		{"duplicate", []trainSetup{
			{tag: "T", node: "A", headDistance: 1, length: 1},
			{tag: "T", node: "A", headDistance: 5, length: 1},
		}},
		{"empty", []trainSetup{{tag: "", node: "A", headDistance: 1, length: 1}}},
		{"past-end", []trainSetup{{tag: "T", node: "A", headDistance: 11, length: 1}}},
		{"negative", []trainSetup{{tag: "T", node: "A", headDistance: -1, length: 1}}},
		{"no-length", []trainSetup{{tag: "T", node: "A", headDistance: 1, length: 0}}},
		{"backwards", []trainSetup{{tag: "T", node: "A", headDistance: 1, length: 1, speed: -1}}},
		{"infinite-speed", []trainSetup{{tag: "T", node: "A", headDistance: 1, length: 1, speed: math.Inf(1)}}},
		{"infinite-length", []trainSetup{{tag: "T", node: "A", headDistance: 1, length: math.Inf(1)}}},
		{"nan-speed", []trainSetup{{tag: "T", node: "A", headDistance: 1, length: 1, speed: math.NaN()}}},
	} {
		t.Run(s.name, func(t *testing.T) {
			y := mustTestbench(t, layout.InitTestbench1)
			if _, err := NewSystem(y, makeTrains(y, s.trains)); err == nil {
				t.Fatal("accepted")
			}
		})
	}

	y := layout.New()
	y.AddSwitch("X", false)
	y.AddDeadEnd("X")
	y.AddDeadEnd("X")
	if _, err := NewSystem(y, nil); err == nil {
		t.Fatal("duplicate dead end tags accepted")
	}
}

func TestMapsAreCopies(t *testing.T) {
	s := mustSystem(t, layout.InitTestbench2, []trainSetup{
		{tag: "T", node: "A", headDistance: 9, length: 1, speed: 1},
	})
	m := s.SwitchMap()
	sw := m["S"]
	sw.State = layout.StateDiverging
	m["S"] = sw
	if s.SwitchMap()["S"].State != layout.StateThrough {
		t.Fatal("SwitchMap aliases the layout")
	}
	if diff := cmp.Diff([]string{"A", "B"}, sortedKeys(s.DeadEndMap())); diff != "" {
		t.Fatalf("dead ends: %s", diff)
	}
	if _, ok := s.TrainMap()["T"]; !ok {
		t.Fatal("train T missing")
	}
}
