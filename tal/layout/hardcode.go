package layout

// InitTestbench1 is a single straight track of length 10 between dead ends A and B.
func InitTestbench1() (*Layout, error) {
	y := New()
	a := y.AddDeadEnd("A")
	b := y.AddDeadEnd("B")
	_, err := y.Connect(y.DeadEnds[a].Branch, y.DeadEnds[b].Branch, 10)
	return y, err
}

// InitTestbench2 is a passing loop:
//
//	A ──10── S ══ through 10 ══ T ──30── B
//	          ╲══ diverging 20 ══╱
//
// Switch S faces A and switch T faces B, so a train from A to B must go
// through S and T on the same side.
func InitTestbench2() (*Layout, error) {
	y := New()
	a := y.AddDeadEnd("A")
	b := y.AddDeadEnd("B")
	s := y.AddSwitch("S", StateThrough)
	t := y.AddSwitch("T", StateThrough)
	S := y.Switches[s]
	T := y.Switches[t]
	for _, c := range []struct {
		a, b   BranchI
		length float64
	}{
		{y.DeadEnds[a].Branch, S.Approach, 10},
		{S.Through, T.Through, 10},
		{S.Diverging, T.Diverging, 20},
		{T.Approach, y.DeadEnds[b].Branch, 30},
	} {
		if _, err := y.Connect(c.a, c.b, c.length); err != nil {
			return nil, err
		}
	}
	return y, nil
}

// InitTestbench3 is a reversing loop: S's through and diverging branches are
// joined by one track, so a train going round comes back to S's approach.
//
//	A ──10── S ─through─┐
//	          ╲         │ 40
//	           diverging┘
func InitTestbench3() (*Layout, error) {
	y := New()
	a := y.AddDeadEnd("A")
	s := y.AddSwitch("S", StateThrough)
	S := y.Switches[s]
	if _, err := y.Connect(y.DeadEnds[a].Branch, S.Approach, 10); err != nil {
		return nil, err
	}
	if _, err := y.Connect(S.Through, S.Diverging, 40); err != nil {
		return nil, err
	}
	return y, nil
}
