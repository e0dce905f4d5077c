package tal

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"nyiyui.ca/hato/senro/tal/layout"
)

// Snapshot is a copy of the state of a System, for encoders, viewers, and so on.
type Snapshot struct {
	Steps    int               `json:"steps"`
	Elapsed  float64           `json:"elapsed"`
	Switches []SwitchSnapshot  `json:"switches"`
	DeadEnds []DeadEndSnapshot `json:"deadends"`
	Branches []BranchSnapshot  `json:"branches"`
	Trains   []TrainSnapshot   `json:"trains"`
}

type SwitchSnapshot struct {
	Tag        string             `json:"tag"`
	State      layout.SwitchState `json:"state"`
	Approach   string             `json:"approach"`
	Through    string             `json:"through"`
	Diverging  string             `json:"diverging"`
	Overlapped bool               `json:"overlapped"`
}

type DeadEndSnapshot struct {
	Tag    string `json:"tag"`
	Branch string `json:"branch"`
}

type BranchSnapshot struct {
	Tag  string `json:"tag"`
	Node string `json:"node"`
	Kind string `json:"kind"`
	// Length of the track bound to this branch (0 if unbound).
	Length float64 `json:"length"`
	// Peer is the tag of the branch at the other end of the track.
	Peer string `json:"peer,omitempty"`
	// Occupancy divides the track into equal parts, starting from this
	// branch's end, and has the fraction of each part that trains are on.
	Occupancy []float64 `json:"occupancy"`
	// Occupied is the total length trains are on.
	Occupied float64 `json:"occupied"`
}

type TrainSnapshot struct {
	Tag          string   `json:"tag"`
	Length       float64  `json:"length"`
	Speed        float64  `json:"speed"`
	HeadDistance float64  `json:"head_distance"`
	HeadProgress float64  `json:"head_progress"`
	TailDistance float64  `json:"tail_distance"`
	TailProgress float64  `json:"tail_progress"`
	History      []string `json:"history"`
}

// Snapshot copies the current state. Branch occupancy is split into segments parts (at least 1).
func (s *System) Snapshot(segments int) Snapshot {
	if segments < 1 {
		segments = 1
	}
	y := s.y
	snap := Snapshot{
		Steps:    s.steps,
		Elapsed:  s.elapsed,
		Switches: make([]SwitchSnapshot, len(y.Switches)),
		DeadEnds: make([]DeadEndSnapshot, len(y.DeadEnds)),
		Branches: make([]BranchSnapshot, len(y.Branches)),
		Trains:   make([]TrainSnapshot, len(s.trains)),
	}
	for i, sw := range y.Switches {
		snap.Switches[i] = SwitchSnapshot{
			Tag:        sw.Tag,
			State:      sw.State,
			Approach:   y.BranchTag(sw.Approach),
			Through:    y.BranchTag(sw.Through),
			Diverging:  y.BranchTag(sw.Diverging),
			Overlapped: len(s.overlapping(layout.SwitchI(i))) > 0,
		}
	}
	for i, d := range y.DeadEnds {
		snap.DeadEnds[i] = DeadEndSnapshot{Tag: d.Tag, Branch: y.BranchTag(d.Branch)}
	}

	byTrack := map[layout.TrackI][]Occupancy{}
	for i, t := range s.trains {
		for _, o := range t.Occupancies(y) {
			byTrack[o.Track] = append(byTrack[o.Track], o)
		}
		hist := t.History()
		tags := make([]string, len(hist))
		for j, b := range hist {
			tags[j] = y.BranchTag(b)
		}
		snap.Trains[i] = TrainSnapshot{
			Tag:          t.tag,
			Length:       t.length,
			Speed:        t.speed,
			HeadDistance: t.headDistance,
			HeadProgress: t.HeadProgress(y),
			TailDistance: t.TailDistance(y),
			TailProgress: t.TailProgress(y),
			History:      tags,
		}
	}

	for bi, b := range y.Branches {
		bs := BranchSnapshot{
			Tag:       y.BranchTag(layout.BranchI(bi)),
			Node:      y.NodeTag(b.Parent),
			Kind:      b.Kind.String(),
			Occupancy: make([]float64, segments),
		}
		if b.Bound() {
			track := y.Tracks[b.Track]
			bs.Length = track.Length
			peer, _ := track.Other(layout.BranchI(bi))
			bs.Peer = y.BranchTag(peer)
			flip := track.Ends[0] != layout.BranchI(bi)
			occupancy(bs.Occupancy, track.Length, byTrack[b.Track], flip)
			bs.Occupied = floats.Sum(bs.Occupancy) * track.Length / float64(segments)
		}
		snap.Branches[bi] = bs
	}
	return snap
}

// occupancy fills cells with the covered fraction of each part of a track of
// length l. If flip, distances are measured from the track's second end.
func occupancy(cells []float64, l float64, os []Occupancy, flip bool) {
	n := float64(len(cells))
	width := l / n
	for _, o := range os {
		start, end := o.Start, o.End
		if flip {
			start, end = l-o.End, l-o.Start
		}
		for i := range cells {
			lo, hi := float64(i)*width, float64(i+1)*width
			covered := math.Min(hi, end) - math.Max(lo, start)
			if covered > 0 {
				cells[i] += covered / width
			}
		}
	}
	for i := range cells {
		cells[i] = clamp(cells[i], 0, 1)
	}
}
