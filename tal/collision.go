package tal

import (
	"fmt"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
	"nyiyui.ca/hato/senro/tal/layout"
)

// Occupancy is the part of a track a train is on, from Start to End (inclusive).
// Distances are from the track's first end (Ends[0]).
type Occupancy struct {
	Track      layout.TrackI
	Start, End float64
}

// Collision is two trains overlapping on a track.
type Collision struct {
	A, B  string
	Track layout.TrackI
	// TrackTag is a human-friendly name of Track.
	TrackTag string
}

func (c Collision) String() string {
	return fmt.Sprintf("%s and %s on track %s", c.A, c.B, c.TrackTag)
}

// span returns the interval of history entry i, measured from that entry's branch's end.
func (t *Train) span(y *layout.Layout, i int, tailProgress float64) (start, end float64) {
	l := y.Length(t.history.At(i))
	last := t.history.Len() - 1
	switch {
	case i == 0 && last == 0:
		return tailProgress * l, t.headDistance
	case i == 0:
		return 0, t.headDistance
	case i == last:
		return tailProgress * l, l
	default:
		return 0, l
	}
}

// Occupancies returns what the train is on, head first.
func (t *Train) Occupancies(y *layout.Layout) []Occupancy {
	tp := t.TailProgress(y) // trims
	os := make([]Occupancy, 0, t.history.Len())
	for i := 0; i < t.history.Len(); i++ {
		bi := t.history.At(i)
		ti, track, err := y.TrackOf(bi)
		if err != nil {
			continue
		}
		start, end := t.span(y, i, tp)
		if bi != track.Ends[0] {
			start, end = track.Length-end, track.Length-start
		}
		os = append(os, Occupancy{Track: ti, Start: start, End: end})
	}
	return os
}

func overlaps(a, b Occupancy) bool {
	return max(a.Start, b.Start) <= min(a.End, b.End)
}

// DetectCollisions finds every pair of trains overlapping on the same track.
// Each (A, B, track) is reported once, ordered by track and then by the trains' order in trains.
func DetectCollisions(y *layout.Layout, trains []*Train) []Collision {
	byTrack := map[layout.TrackI]map[int][]Occupancy{}
	for ti, t := range trains {
		for _, o := range t.Occupancies(y) {
			if byTrack[o.Track] == nil {
				byTrack[o.Track] = map[int][]Occupancy{}
			}
			byTrack[o.Track][ti] = append(byTrack[o.Track][ti], o)
		}
	}
	tracks := maps.Keys(byTrack)
	slices.Sort(tracks)
	var cs []Collision
	for _, track := range tracks {
		on := byTrack[track]
		if len(on) < 2 {
			continue
		}
		trainIs := maps.Keys(on)
		slices.Sort(trainIs)
		for i, a := range trainIs {
			for _, b := range trainIs[i+1:] {
				if !anyOverlap(on[a], on[b]) {
					continue
				}
				cs = append(cs, Collision{
					A:        trains[a].tag,
					B:        trains[b].tag,
					Track:    track,
					TrackTag: y.TrackTag(track),
				})
			}
		}
	}
	return cs
}

func anyOverlap(as, bs []Occupancy) bool {
	for _, a := range as {
		for _, b := range bs {
			if overlaps(a, b) {
				return true
			}
		}
	}
	return false
}
