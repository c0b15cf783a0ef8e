package app

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap/zaptest"

	"ocppgateway/backend/services/ocpp-gateway/internal/config"
)

type webhook struct {
	path string
	body map[string]interface{}
}

type fakeBilling struct {
	mu       sync.Mutex
	received []webhook
}

func (f *fakeBilling) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var body map[string]interface{}
	_ = json.NewDecoder(r.Body).Decode(&body)
	f.mu.Lock()
	f.received = append(f.received, webhook{path: r.URL.Path, body: body})
	f.mu.Unlock()
	w.WriteHeader(http.StatusOK)
}

func (f *fakeBilling) byPath(path string) []webhook {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []webhook
	for _, h := range f.received {
		if h.path == path {
			out = append(out, h)
		}
	}
	return out
}

type gateway struct {
	app     *App
	server  *httptest.Server
	billing *fakeBilling
}

func newGateway(t *testing.T) *gateway {
	t.Helper()
	billing := &fakeBilling{}
	billingServer := httptest.NewServer(billing)
	t.Cleanup(billingServer.Close)

	cfg := config.Default()
	cfg.Billing.URL = billingServer.URL
	cfg.OCPP.CallTimeout = 2 * time.Second

	application, err := New(context.Background(), cfg, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	server := httptest.NewServer(application.Handler())
	t.Cleanup(func() {
		application.Close()
		server.Close()
	})
	return &gateway{app: application, server: server, billing: billing}
}

type station struct {
	t    *testing.T
	conn *websocket.Conn
	seq  int
}

func (g *gateway) connect(t *testing.T, identity, subprotocol string) *station {
	t.Helper()
	url := "ws" + strings.TrimPrefix(g.server.URL, "http") + "/ocpp/" + identity
	dialer := websocket.Dialer{Subprotocols: []string{subprotocol}, HandshakeTimeout: time.Second}
	conn, _, err := dialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", identity, err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	waitFor(t, 2*time.Second, func() bool {
		_, ok := g.app.manager.Lookup(identity)
		return ok
	})
	return &station{t: t, conn: conn}
}

func (s *station) read() []json.RawMessage {
	s.t.Helper()
	_ = s.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := s.conn.ReadMessage()
	if err != nil {
		s.t.Fatalf("read frame: %v", err)
	}
	var frame []json.RawMessage
	if err := json.Unmarshal(data, &frame); err != nil {
		s.t.Fatalf("decode frame %s: %v", data, err)
	}
	return frame
}

func (s *station) call(action string, payload interface{}) json.RawMessage {
	s.t.Helper()
	s.seq++
	id := "st-" + strconv.Itoa(s.seq)
	if err := s.conn.WriteJSON([]interface{}{2, id, action, payload}); err != nil {
		s.t.Fatalf("write %s: %v", action, err)
	}
	frame := s.read()
	var typ int
	_ = json.Unmarshal(frame[0], &typ)
	if typ != 3 {
		s.t.Fatalf("expected CALLRESULT for %s, got %s", action, frame)
	}
	return frame[2]
}

func (g *gateway) get(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := http.Get(g.server.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (g *gateway) post(t *testing.T, path string, body interface{}) (*http.Response, map[string]interface{}) {
	t.Helper()
	data, _ := json.Marshal(body)
	resp, err := http.Post(g.server.URL+path, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	var decoded map[string]interface{}
	_ = json.Unmarshal(raw, &decoded)
	return resp, decoded
}

func decodeList(t *testing.T, resp *http.Response) []map[string]interface{} {
	t.Helper()
	var out []map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	return out
}

func waitFor(t *testing.T, timeout time.Duration, condition func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}

func TestStartAndStopTransactionOverOCPP16(t *testing.T) {
	g := newGateway(t)
	cp := g.connect(t, "CP001", "ocpp1.6")

	var started struct {
		IdTagInfo struct {
			Status string `json:"status"`
		} `json:"idTagInfo"`
		TransactionID int `json:"transactionId"`
	}
	reply := cp.call("StartTransaction", map[string]interface{}{
		"connectorId": 1,
		"idTag":       "abc",
		"meterStart":  1000,
		"timestamp":   "2024-05-01T10:00:00Z",
	})
	if err := json.Unmarshal(reply, &started); err != nil {
		t.Fatalf("decode start reply: %v", err)
	}
	if started.IdTagInfo.Status != "Accepted" || started.TransactionID <= 0 {
		t.Fatalf("unexpected start reply %s", reply)
	}

	txs := decodeList(t, g.get(t, "/charge-points/CP001/transactions"))
	if len(txs) != 1 {
		t.Fatalf("expected one transaction, got %v", txs)
	}
	if txs[0]["meterStart"] != float64(1000) || txs[0]["transactionId"] != float64(started.TransactionID) {
		t.Fatalf("unexpected transaction %v", txs[0])
	}
	if _, ok := txs[0]["endTime"]; ok {
		t.Fatalf("open transaction must not have endTime: %v", txs[0])
	}

	stop := map[string]interface{}{
		"transactionId": started.TransactionID,
		"meterStop":     5000,
		"timestamp":     "2024-05-01T11:00:00Z",
	}
	cp.call("StopTransaction", stop)

	waitFor(t, 2*time.Second, func() bool {
		return len(g.billing.byPath("/api/charge/webhook/transaction-stopped")) == 1
	})
	hook := g.billing.byPath("/api/charge/webhook/transaction-stopped")[0]
	if hook.body["chargePointId"] != "CP001" || hook.body["transactionId"] != float64(started.TransactionID) || hook.body["meterStop"] != float64(5000) {
		t.Fatalf("unexpected stopped webhook %v", hook.body)
	}
	if len(g.billing.byPath("/api/charge/webhook/transaction-started")) != 1 {
		t.Fatalf("expected one started webhook")
	}

	var again struct {
		IdTagInfo struct {
			Status string `json:"status"`
		} `json:"idTagInfo"`
	}
	_ = json.Unmarshal(cp.call("StopTransaction", stop), &again)
	if again.IdTagInfo.Status != "Accepted" {
		t.Fatalf("second stop must still be accepted")
	}

	txs = decodeList(t, g.get(t, "/charge-points/CP001/transactions"))
	if txs[0]["meterStop"] != float64(5000) || txs[0]["endTime"] != "2024-05-01T11:00:00Z" {
		t.Fatalf("unexpected closed transaction %v", txs[0])
	}
	time.Sleep(100 * time.Millisecond)
	if n := len(g.billing.byPath("/api/charge/webhook/transaction-stopped")); n != 1 {
		t.Fatalf("expected exactly one stopped webhook, got %d", n)
	}
}

func TestRemoteStartAcceptedByStation(t *testing.T) {
	g := newGateway(t)
	cp := g.connect(t, "CP001", "ocpp1.6")

	type result struct {
		status int
		body   map[string]interface{}
		err    error
	}
	done := make(chan result, 1)
	go func() {
		resp, err := http.Post(g.server.URL+"/remote-start", "application/json",
			strings.NewReader(`{"chargePointId":"CP001","idTag":"op1"}`))
		if err != nil {
			done <- result{err: err}
			return
		}
		defer resp.Body.Close()
		var body map[string]interface{}
		_ = json.NewDecoder(resp.Body).Decode(&body)
		done <- result{status: resp.StatusCode, body: body}
	}()

	frame := cp.read()
	var action string
	var payload map[string]interface{}
	_ = json.Unmarshal(frame[2], &action)
	_ = json.Unmarshal(frame[3], &payload)
	if action != "RemoteStartTransaction" || payload["idTag"] != "op1" {
		t.Fatalf("unexpected call %s", frame)
	}
	if err := cp.conn.WriteMessage(websocket.TextMessage, []byte(`[3,`+string(frame[1])+`,{"status":"Accepted"}]`)); err != nil {
		t.Fatalf("write result: %v", err)
	}

	select {
	case res := <-done:
		if res.err != nil {
			t.Fatalf("remote start: %v", res.err)
		}
		if res.status != http.StatusOK {
			t.Fatalf("unexpected status %d", res.status)
		}
		if res.body["success"] != true || res.body["status"] != "Accepted" || res.body["protocol"] != "v16" {
			t.Fatalf("unexpected body %v", res.body)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("remote start did not return")
	}
}

func TestRemoteStartForDisconnectedStation(t *testing.T) {
	g := newGateway(t)
	g.connect(t, "CP002", "ocpp2.0.1")

	resp, body := g.post(t, "/remote-start", map[string]interface{}{"chargePointId": "CP001", "idTag": "op1"})
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
	if body["error"] != "Charge point not connected" {
		t.Fatalf("unexpected error %v", body["error"])
	}
	ids, _ := body["connectedChargePointIds"].([]interface{})
	if len(ids) != 1 || ids[0] != "CP002" {
		t.Fatalf("unexpected hint %v", body["connectedChargePointIds"])
	}
}

func TestChargePointListAndHealth(t *testing.T) {
	g := newGateway(t)
	g.connect(t, "CP201", "ocpp2.0.1")

	if resp := g.get(t, "/health"); resp.StatusCode != http.StatusOK {
		t.Fatalf("health returned %d", resp.StatusCode)
	}
	list := decodeList(t, g.get(t, "/charge-points"))
	if len(list) != 1 || list[0]["chargePointId"] != "CP201" || list[0]["protocol"] != "v20x" || list[0]["subprotocol"] != "ocpp2.0.1" {
		t.Fatalf("unexpected list %v", list)
	}
}
