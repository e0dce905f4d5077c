package kujo

import (
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"nyiyui.ca/hato/senro/tal"
)

// Command is sent by controllers over /control.
type Command struct {
	// Op is "step" or "switch".
	Op string `json:"op"`
	// Dt is for step.
	Dt float64 `json:"dt,omitempty"`
	// Tag and State are for switch.
	Tag   string `json:"tag,omitempty"`
	State bool   `json:"state,omitempty"`
}

// Reply answers a Command.
type Reply struct {
	OK       bool          `json:"ok"`
	Error    *errorBody    `json:"error,omitempty"`
	Snapshot *tal.Snapshot `json:"snapshot,omitempty"`
}

func (s *Server) handleControl(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		zap.S().Warnw("kujo: upgrade", "error", err)
		return
	}
	defer conn.Close()
	zap.S().Infow("kujo: controller connected", "remote", r.RemoteAddr)
	for {
		var cmd Command
		err := conn.ReadJSON(&cmd)
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				zap.S().Warnw("kujo: read command", "remote", r.RemoteAddr, "error", err)
			}
			return
		}
		err = conn.WriteJSON(s.do(cmd))
		if err != nil {
			zap.S().Warnw("kujo: write reply", "remote", r.RemoteAddr, "error", err)
			return
		}
	}
}

func (s *Server) do(cmd Command) Reply {
	var res result
	switch cmd.Op {
	case "step":
		res = s.step(cmd.Dt)
	case "switch":
		res = s.setSwitch(cmd.Tag, cmd.State)
	default:
		return Reply{Error: &errorBody{Kind: kindBadRequest, Message: fmt.Sprintf("unknown op %q", cmd.Op)}}
	}
	if res.err != nil {
		_, body := describeError(res.err)
		reply := Reply{Error: &body}
		if stepped(res.err) {
			reply.Snapshot = &res.snap
		}
		return reply
	}
	return Reply{OK: true, Snapshot: &res.snap}
}
