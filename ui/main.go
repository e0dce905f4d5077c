// Package ui shows a Simulation on the terminal.
package ui

import (
	"context"
	"fmt"
	"strconv"

	"github.com/gizak/termui/v3"
	"github.com/gizak/termui/v3/widgets"
	"nyiyui.ca/hato/senro/sim"
	"nyiyui.ca/hato/senro/tal"
)

type dashboard struct {
	sim      *sim.Simulation
	switches *widgets.Table
	trains   *widgets.Table
	status   *widgets.Paragraph
	message  string
	latest   tal.Snapshot
}

// Main shows the dashboard until ctx is done or the user quits (q or Ctrl-C).
// Keys 1 to 9 throw the corresponding switch.
func Main(ctx context.Context, s *sim.Simulation) error {
	err := termui.Init()
	if err != nil {
		return fmt.Errorf("termui init: %w", err)
	}
	defer termui.Close()

	d := &dashboard{
		sim:      s,
		switches: widgets.NewTable(),
		trains:   widgets.NewTable(),
		status:   widgets.NewParagraph(),
		latest:   s.Snapshot(1),
	}
	d.switches.Title = "switches"
	d.trains.Title = "trains"
	d.status.Title = "status"
	d.layout()
	d.render()

	ch := make(chan sim.Event)
	s.Events().Subscribe("ui", ch)
	defer s.Events().Unsubscribe(ch)
	uiEvents := termui.PollEvents()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-ch:
			d.latest = ev.Snapshot
			if len(ev.Errors) > 0 {
				d.message = ev.Errors[len(ev.Errors)-1]
			}
			d.render()
		case e := <-uiEvents:
			switch e.ID {
			case "q", "<C-c>":
				return nil
			case "<Resize>":
				d.layout()
			default:
				d.key(e.ID)
			}
			d.render()
		}
	}
}

func (d *dashboard) layout() {
	w, h := termui.TerminalDimensions()
	d.switches.SetRect(0, 0, w/2, h-3)
	d.trains.SetRect(w/2, 0, w, h-3)
	d.status.SetRect(0, h-3, w, h)
}

func (d *dashboard) key(id string) {
	n, err := strconv.Atoi(id)
	if err != nil || n < 1 || n > len(d.latest.Switches) {
		return
	}
	sw := d.latest.Switches[n-1]
	snap, err := d.sim.SetSwitch(sw.Tag, !sw.State)
	if err != nil {
		d.message = err.Error()
		return
	}
	d.latest = snap
	d.message = fmt.Sprintf("threw %s", sw.Tag)
}

func (d *dashboard) render() {
	d.switches.Rows = switchRows(d.latest)
	d.trains.Rows = trainRows(d.latest)
	d.status.Text = fmt.Sprintf("step %d  t=%.2f  %s", d.latest.Steps, d.latest.Elapsed, d.message)
	termui.Render(d.switches, d.trains, d.status)
}

func switchRows(snap tal.Snapshot) [][]string {
	rows := [][]string{{"#", "switch", "state", "overlapped"}}
	for i, sw := range snap.Switches {
		overlapped := ""
		if sw.Overlapped {
			overlapped = "yes"
		}
		rows = append(rows, []string{strconv.Itoa(i + 1), sw.Tag, sw.State.String(), overlapped})
	}
	return rows
}

func trainRows(snap tal.Snapshot) [][]string {
	rows := [][]string{{"train", "speed", "head", "tail"}}
	for _, t := range snap.Trains {
		head, tail := "", ""
		if len(t.History) > 0 {
			head = fmt.Sprintf("%s@%.2f", t.History[0], t.HeadDistance)
			tail = fmt.Sprintf("%s@%.2f", t.History[len(t.History)-1], t.TailProgress)
		}
		rows = append(rows, []string{t.Tag, fmt.Sprintf("%g", t.Speed), head, tail})
	}
	return rows
}
