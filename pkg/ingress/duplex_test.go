package ingress

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/emprops/job-gateway/internal/testutil"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

func dialWS(t *testing.T, httpURL string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(httpURL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestHandleWSClient_SubmitAndStatusRoundTrip(t *testing.T) {
	srv, _, reg := newTestServer()
	ts := httptest.NewServer(srv.router)
	defer ts.Close()

	conn := dialWS(t, ts.URL+"/ws/client/customer-1")

	require.NoError(t, testutil.WaitFor(context.Background(), func() bool {
		counts := reg.ConnectionCounts()
		return counts["client_named"] == 1 && counts["client_duplex"] == 1
	}, "named+duplex registration"))

	submit := map[string]any{
		"type":       "submit_job",
		"id":         "req-1",
		"submission": map[string]any{"job_type": "render"},
	}
	require.NoError(t, conn.WriteJSON(submit))

	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	var resp map[string]any
	require.NoError(t, conn.ReadJSON(&resp))
	require.Equal(t, "job_submitted", resp["type"])
	jobID, _ := resp["job_id"].(string)
	require.NotEmpty(t, jobID)

	require.NoError(t, conn.WriteJSON(map[string]any{
		"type":   "get_job_status",
		"id":     "req-2",
		"job_id": jobID,
	}))
	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	var statusResp map[string]any
	require.NoError(t, conn.ReadJSON(&statusResp))
	require.Equal(t, "job_status", statusResp["type"])
}

func TestHandleWSClient_UnknownMessageType(t *testing.T) {
	srv, _, _ := newTestServer()
	ts := httptest.NewServer(srv.router)
	defer ts.Close()

	conn := dialWS(t, ts.URL+"/ws/client/customer-2")

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "not_a_real_type", "id": "x"}))

	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	var resp map[string]any
	require.NoError(t, conn.ReadJSON(&resp))
	require.Equal(t, "error", resp["type"])
}

func TestHandleWSMonitor_ConnectAndSubscribe(t *testing.T) {
	srv, _, reg := newTestServer()
	ts := httptest.NewServer(srv.router)
	defer ts.Close()

	conn := dialWS(t, ts.URL+"/ws/monitor/mon-1")

	require.NoError(t, testutil.WaitFor(context.Background(), func() bool {
		return reg.ConnectionCounts()["monitor"] == 1
	}, "monitor registration"))

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "monitor_connect"}))
	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	var resp map[string]any
	require.NoError(t, conn.ReadJSON(&resp))
	require.Equal(t, "connected", resp["type"])

	require.NoError(t, conn.WriteJSON(map[string]any{
		"type":   "subscribe",
		"topics": []string{"jobs"},
	}))

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "heartbeat"}))
	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	var ack map[string]any
	require.NoError(t, conn.ReadJSON(&ack))
	require.Equal(t, "heartbeat_ack", ack["type"])
}

func TestHandleWSLegacy_SubscribeProgress(t *testing.T) {
	srv, _, reg := newTestServer()
	ts := httptest.NewServer(srv.router)
	defer ts.Close()

	conn := dialWS(t, ts.URL+"/ws/legacy-path")

	require.NoError(t, testutil.WaitFor(context.Background(), func() bool {
		return reg.ConnectionCounts()["client_duplex"] == 1
	}, "duplex registration"))

	require.NoError(t, conn.WriteJSON(map[string]any{
		"type":   "subscribe_progress",
		"job_id": "job-9",
	}))

	require.NoError(t, testutil.WaitFor(context.Background(), func() bool {
		return len(reg.DuplexForJob("job-9")) == 1
	}, "duplex subscription on job-9"))
}
