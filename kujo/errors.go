package kujo

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"golang.org/x/exp/slices"
	"nyiyui.ca/hato/senro/sim"
	"nyiyui.ca/hato/senro/tal"
	"nyiyui.ca/hato/senro/tal/layout"
)

const (
	kindBadRequest      = "bad_request"
	kindNotFound        = "not_found"
	kindInternal        = "internal"
	kindInvalidDuration = "invalid_duration"
	kindUnknownTag      = "unknown_tag"
	kindSwitchOverlap   = "switch_overlap"
	kindConflict        = "conflict"
	kindStepTooLong     = "step_too_long"
	kindForbidden       = "forbidden"
)

// errorBody is sent with every non-200 response.
type errorBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
	// Trains involved in the error, if any.
	Trains []string `json:"trains,omitempty"`
	// Tracks where trains collided, if any.
	Tracks []string `json:"tracks,omitempty"`
	// Snapshot after a step that had a conflict.
	Snapshot *tal.Snapshot `json:"snapshot,omitempty"`
}

func describeError(err error) (int, errorBody) {
	body := errorBody{Message: err.Error()}
	var soe *tal.SwitchOverlapError
	var ute *tal.UnknownTagError
	des := tal.Derailments(err)
	cs := tal.Collisions(err)
	switch {
	case errors.Is(err, tal.ErrInvalidDuration):
		body.Kind = kindInvalidDuration
		return http.StatusBadRequest, body
	case errors.As(err, &ute):
		body.Kind = kindUnknownTag
		return http.StatusNotFound, body
	case errors.As(err, &soe):
		body.Kind = kindSwitchOverlap
		body.Trains = soe.Trains
		return http.StatusConflict, body
	case len(des) > 0 || len(cs) > 0:
		body.Kind = kindConflict
		add := func(ss []string, s string) []string {
			if slices.Contains(ss, s) {
				return ss
			}
			return append(ss, s)
		}
		for _, de := range des {
			body.Trains = add(body.Trains, de.Train)
		}
		for _, c := range cs {
			body.Trains = add(body.Trains, c.A)
			body.Trains = add(body.Trains, c.B)
			body.Tracks = add(body.Tracks, c.TrackTag)
		}
		return http.StatusConflict, body
	case errors.Is(err, tal.ErrTooManyCrossings):
		body.Kind = kindStepTooLong
		return http.StatusBadRequest, body
	default:
		body.Kind = kindInternal
		return http.StatusInternalServerError, body
	}
}

// stepped reports whether err came from a step that still moved the trains.
func stepped(err error) bool {
	return sim.IsConflict(err) || errors.Is(err, tal.ErrTooManyCrossings)
}

// parseState accepts a bool ("false" is through) or a branch name.
func parseState(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "through":
		return false, nil
	case "diverging", "diverge":
		return true, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("%q is not a switch state", s)
	}
	return b, nil
}

func layoutState(state bool) layout.SwitchState {
	return layout.SwitchState(state)
}
