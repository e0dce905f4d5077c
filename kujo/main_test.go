package kujo

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"nyiyui.ca/hato/senro/journal"
	"nyiyui.ca/hato/senro/sim"
	"nyiyui.ca/hato/senro/tal"
	"nyiyui.ca/hato/senro/tal/layout"
)

func newServer(t *testing.T, trains func(y *layout.Layout) []*tal.Train) *httptest.Server {
	t.Helper()
	return serve(t, Conf{}, layout.InitTestbench2, trains)
}

func serve(t *testing.T, conf Conf, init func() (*layout.Layout, error), trains func(y *layout.Layout) []*tal.Train) *httptest.Server {
	t.Helper()
	y, err := init()
	require.NoError(t, err)
	s, err := tal.NewSystem(y, trains(y))
	require.NoError(t, err)
	j, err := journal.Open(journal.Memory, uuid.New())
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	k := NewServer(sim.New("test", sim.Conf{System: s, Journal: j}), conf)
	ts := httptest.NewServer(k.Handler())
	t.Cleanup(func() {
		ts.Close()
		k.Close()
	})
	return ts
}

func oneTrain(y *layout.Layout) []*tal.Train {
	return []*tal.Train{
		tal.NewTrain("T", y.MustLookupBranch("A", layout.KindEnd), 9, 1, 1),
	}
}

func post(t *testing.T, ts *httptest.Server, path string) (*http.Response, map[string]any) {
	t.Helper()
	return postFrom(t, ts, path, "")
}

// postFrom posts as a page on origin would. An empty origin sends no Origin header.
func postFrom(t *testing.T, ts *httptest.Server, path, origin string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, ts.URL+path, nil)
	require.NoError(t, err)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp, body
}

func TestSnapshot(t *testing.T) {
	ts := newServer(t, oneTrain)
	resp, err := http.Get(ts.URL + "/snapshot?segments=4")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var snap tal.Snapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	require.Len(t, snap.Trains, 1)
	require.Len(t, snap.Branches[0].Occupancy, 4)

	for _, segments := range []string{"many", "1001", "1000000000"} {
		resp2, err := http.Get(ts.URL + "/snapshot?segments=" + segments)
		require.NoError(t, err)
		var body errorBody
		require.NoError(t, json.NewDecoder(resp2.Body).Decode(&body))
		resp2.Body.Close()
		require.Equal(t, http.StatusBadRequest, resp2.StatusCode, segments)
		require.Equal(t, kindBadRequest, body.Kind, segments)
	}

	resp3, err := http.Get(ts.URL + "/snapshot?segments=1000")
	require.NoError(t, err)
	defer resp3.Body.Close()
	require.Equal(t, http.StatusOK, resp3.StatusCode)
	snap = tal.Snapshot{}
	require.NoError(t, json.NewDecoder(resp3.Body).Decode(&snap))
	require.Len(t, snap.Branches[0].Occupancy, 1000)
}

func TestSwitchOverlap(t *testing.T) {
	ts := newServer(t, oneTrain)
	resp, _ := post(t, ts, "/step?dt=2")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := post(t, ts, "/switch?tag=S&state=diverging")
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	require.Equal(t, kindSwitchOverlap, body["kind"])
	require.Equal(t, []any{"T"}, body["trains"])

	resp, body = post(t, ts, "/switch?tag=nope&state=true")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	require.Equal(t, kindUnknownTag, body["kind"])

	resp, _ = post(t, ts, "/switch?tag=S&state=sideways")
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = post(t, ts, "/step?dt=10")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, body = post(t, ts, "/switch?tag=S&state=true")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, true, body["switches"].([]any)[0].(map[string]any)["state"])

	jr, err := http.Get(ts.URL + "/journal?n=2")
	require.NoError(t, err)
	defer jr.Body.Close()
	var rs []journal.Record
	require.NoError(t, json.NewDecoder(jr.Body).Decode(&rs))
	require.Len(t, rs, 2)
	require.Equal(t, journal.KindSwitch, rs[0].Kind)
	require.Equal(t, journal.KindStep, rs[1].Kind)
}

func TestStepConflict(t *testing.T) {
	ts := newServer(t, func(y *layout.Layout) []*tal.Train {
		return []*tal.Train{
			tal.NewTrain("runaway", y.MustLookupBranch("S", layout.KindApproach), 9, 1, 1),
		}
	})
	resp, body := post(t, ts, "/step?dt=2")
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	require.Equal(t, kindConflict, body["kind"])
	require.Equal(t, []any{"runaway"}, body["trains"])
	require.NotNil(t, body["snapshot"])

	resp, body = post(t, ts, "/step?dt=0")
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, kindInvalidDuration, body["kind"])
}

// loop is switch S with its through branch joined back to its approach.
func loop() (*layout.Layout, error) {
	y := layout.New()
	S := y.Switches[y.AddSwitch("S", layout.StateThrough)]
	_, err := y.Connect(S.Through, S.Approach, 1)
	return y, err
}

func TestStepTooLong(t *testing.T) {
	ts := serve(t, Conf{}, loop, func(y *layout.Layout) []*tal.Train {
		return []*tal.Train{
			tal.NewTrain("T", y.MustLookupBranch("S", layout.KindThrough), 0, 0.5, 1),
		}
	})
	resp, body := post(t, ts, "/step?dt=1e300")
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, kindStepTooLong, body["kind"])
	require.NotNil(t, body["snapshot"])

	resp, body = post(t, ts, "/step?dt=2.5")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.EqualValues(t, 2, body["steps"])
}

func TestOrigins(t *testing.T) {
	dial := func(ts *httptest.Server, origin string) (*websocket.Conn, *http.Response, error) {
		url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/control"
		return websocket.DefaultDialer.Dial(url, http.Header{"Origin": {origin}})
	}

	t.Run("same-origin", func(t *testing.T) {
		ts := newServer(t, oneTrain)
		_, resp, err := dial(ts, "http://evil.example")
		require.ErrorIs(t, err, websocket.ErrBadHandshake)
		require.Equal(t, http.StatusForbidden, resp.StatusCode)

		conn, _, err := dial(ts, ts.URL)
		require.NoError(t, err)
		conn.Close()

		resp2, body := postFrom(t, ts, "/step?dt=1", "http://evil.example")
		require.Equal(t, http.StatusForbidden, resp2.StatusCode)
		require.Equal(t, kindForbidden, body["kind"])
		resp2, _ = postFrom(t, ts, "/switch?tag=S&state=true", "http://evil.example")
		require.Equal(t, http.StatusForbidden, resp2.StatusCode)
		resp2, _ = postFrom(t, ts, "/step?dt=1", ts.URL)
		require.Equal(t, http.StatusOK, resp2.StatusCode)
	})

	t.Run("allowed", func(t *testing.T) {
		ts := serve(t, Conf{AllowedOrigins: []string{"http://ok.example"}}, layout.InitTestbench2, oneTrain)
		_, resp, err := dial(ts, "http://evil.example")
		require.ErrorIs(t, err, websocket.ErrBadHandshake)
		require.Equal(t, http.StatusForbidden, resp.StatusCode)

		conn, _, err := dial(ts, "http://ok.example")
		require.NoError(t, err)
		conn.Close()

		resp2, _ := postFrom(t, ts, "/step?dt=1", "http://evil.example")
		require.Equal(t, http.StatusForbidden, resp2.StatusCode)
		resp2, _ = postFrom(t, ts, "/step?dt=1", "http://ok.example")
		require.Equal(t, http.StatusOK, resp2.StatusCode)
		require.Equal(t, "http://ok.example", resp2.Header.Get("Access-Control-Allow-Origin"))
	})
}

func TestIndex(t *testing.T) {
	ts := newServer(t, oneTrain)
	resp, err := http.Get(ts.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	buf := new(bytes.Buffer)
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	require.Contains(t, buf.String(), "A_branch")
}

func TestControl(t *testing.T) {
	ts := newServer(t, oneTrain)
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/control"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	var reply Reply
	require.NoError(t, conn.WriteJSON(Command{Op: "step", Dt: 2}))
	require.NoError(t, conn.ReadJSON(&reply))
	require.True(t, reply.OK)
	require.Equal(t, 1, reply.Snapshot.Steps)

	reply = Reply{}
	require.NoError(t, conn.WriteJSON(Command{Op: "switch", Tag: "S", State: true}))
	require.NoError(t, conn.ReadJSON(&reply))
	require.False(t, reply.OK)
	require.Equal(t, kindSwitchOverlap, reply.Error.Kind)
	require.Equal(t, []string{"T"}, reply.Error.Trains)

	reply = Reply{}
	require.NoError(t, conn.WriteJSON(Command{Op: "dance"}))
	require.NoError(t, conn.ReadJSON(&reply))
	require.Equal(t, kindBadRequest, reply.Error.Kind)
}

func TestParseState(t *testing.T) {
	for s, expected := range map[string]bool{
		"true": true, "false": false, "1": true, "through": false, "diverging": true, "Diverge": true,
	} {
		got, err := parseState(s)
		require.NoError(t, err, s)
		require.Equal(t, expected, got, s)
	}
	_, err := parseState("")
	require.Error(t, err)
}
