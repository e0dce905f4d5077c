package config

import (
	"errors"
	"fmt"

	"nyiyui.ca/hato/senro/tal"
	"nyiyui.ca/hato/senro/tal/layout"
)

// Layout assembles the topology described by n.
func (n *Network) Layout() (*layout.Layout, error) {
	y := layout.New()
	nodes := map[string]string{}
	claim := func(kind, tag string) error {
		if tag == "" {
			return errors.New("empty tag")
		}
		if prev, ok := nodes[tag]; ok {
			return fmt.Errorf("tag %q already used by a %s", tag, prev)
		}
		nodes[tag] = kind
		return nil
	}
	for i, s := range n.Switches {
		err := claim("switch", s.Tag)
		if err != nil {
			return nil, fmt.Errorf("switch %d: %w", i, err)
		}
		y.AddSwitch(s.Tag, layout.SwitchState(s.State))
	}
	for i, d := range n.DeadEnds {
		err := claim("dead end", d.Tag)
		if err != nil {
			return nil, fmt.Errorf("dead end %d: %w", i, err)
		}
		y.AddDeadEnd(d.Tag)
	}
	for i, t := range n.Tracks {
		a, err := resolve(y, t.From)
		if err != nil {
			return nil, fmt.Errorf("track %d: from_: %w", i, err)
		}
		b, err := resolve(y, t.To)
		if err != nil {
			return nil, fmt.Errorf("track %d: to: %w", i, err)
		}
		_, err = y.Connect(a, b, t.Length)
		if err != nil {
			return nil, fmt.Errorf("track %d: %w", i, err)
		}
	}
	return y, nil
}

// System assembles the topology and trains described by n.
func (n *Network) System() (*tal.System, error) {
	y, err := n.Layout()
	if err != nil {
		return nil, err
	}
	trains := make([]*tal.Train, len(n.Trains))
	for i, t := range n.Trains {
		head, err := resolve(y, t.HeadBranch)
		if err != nil {
			return nil, fmt.Errorf("train %d (%s): head_branch: %w", i, t.Tag, err)
		}
		trains[i] = tal.NewTrain(t.Tag, head, t.HeadDistance, t.Length, t.Speed)
	}
	s, err := tal.NewSystem(y, trains)
	if err != nil {
		return nil, fmt.Errorf("check: %w", err)
	}
	return s, nil
}

func resolve(y *layout.Layout, ref BranchRef) (layout.BranchI, error) {
	if si := y.LookupSwitch(ref.Node); si != -1 {
		if ref.Branch == "" {
			return 0, fmt.Errorf("switch %s: branch required", ref.Node)
		}
		kind, err := layout.ParseSwitchKind(ref.Branch)
		if err != nil {
			return 0, fmt.Errorf("switch %s: %w", ref.Node, err)
		}
		return y.Switches[si].GetBranch(kind)
	}
	if di := y.LookupDeadEnd(ref.Node); di != -1 {
		if ref.Branch != "" {
			return 0, fmt.Errorf("dead end %s: has no branch %q", ref.Node, ref.Branch)
		}
		return y.DeadEnds[di].Branch, nil
	}
	return 0, fmt.Errorf("unknown node %q", ref.Node)
}
