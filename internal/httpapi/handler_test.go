package httpapi

import (
	"bufio"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/relayhub/relay/internal/bus"
	"github.com/relayhub/relay/internal/delivery"
	"github.com/relayhub/relay/internal/registry"
	"go.uber.org/zap"
)

type fixture struct {
	reg *registry.Registry
	bus *bus.Bus
	srv *httptest.Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	reg, err := registry.Load(filepath.Join(t.TempDir(), "data.json"), zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	b := bus.New()
	h := New(reg, delivery.NewClient(time.Second, zap.NewNop()), b, zap.NewNop())
	srv := httptest.NewServer(h.Routes())
	t.Cleanup(srv.Close)
	return &fixture{reg: reg, bus: b, srv: srv}
}

// register adds a user through the API and returns its pin.
func (f *fixture) register(t *testing.T, endpoint, name string) string {
	t.Helper()
	resp, err := http.Post(f.srv.URL+"/api/v1/users", "application/json",
		strings.NewReader(`{"endpoint": "`+endpoint+`", "name": "`+name+`"}`))
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register returned %d, want 201", resp.StatusCode)
	}
	var body struct {
		Pin string `json:"pin"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	return body.Pin
}

// echoPeer serves a peer that accepts every delivery.
func echoPeer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var msg registry.Message
		if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		msg.Delivered = true
		_ = json.NewEncoder(w).Encode(msg)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRegisterUser(t *testing.T) {
	f := newFixture(t)
	p := f.register(t, "http://localhost:9001", "Alice")
	if len(p) != 6 {
		t.Errorf("pin = %q, want 6 digits", p)
	}

	u, ok := f.reg.GetUserByPin(p)
	if !ok {
		t.Fatal("pin does not resolve")
	}
	if u.ID != 1 || u.Name != "Alice" || u.Endpoint != "http://localhost:9001" || u.Online {
		t.Errorf("user = %+v", u)
	}
}

func TestRegisterUserBadRequest(t *testing.T) {
	f := newFixture(t)
	for _, body := range []string{"{not json", `{"endpoint": "http://x"}`, `{"name": "x"}`, `{}`} {
		resp, err := http.Post(f.srv.URL+"/api/v1/users", "application/json", strings.NewReader(body))
		if err != nil {
			t.Fatal(err)
		}
		_ = resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("body %q returned %d, want 400", body, resp.StatusCode)
		}
	}
}

func TestListUsersFilter(t *testing.T) {
	f := newFixture(t)
	f.register(t, "http://a", "a")
	f.register(t, "http://b", "b")
	f.reg.SetUserOnline(2, true)

	var got struct {
		Count int `json:"count"`
		Items []struct {
			ID     int    `json:"id"`
			Online bool   `json:"online"`
			Name   string `json:"name"`
		} `json:"items"`
	}

	for _, tc := range []struct {
		query string
		want  []int
	}{
		{"", []int{1, 2}},
		{"?online=true", []int{2}},
		{"?online=false", []int{1}},
		{"?online=whatever", []int{1, 2}},
	} {
		resp, err := http.Get(f.srv.URL + "/api/v1/users" + tc.query)
		if err != nil {
			t.Fatal(err)
		}
		if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
			t.Fatal(err)
		}
		_ = resp.Body.Close()
		if got.Count != len(tc.want) {
			t.Errorf("query %q: count = %d, want %d", tc.query, got.Count, len(tc.want))
			continue
		}
		for i, id := range tc.want {
			if got.Items[i].ID != id {
				t.Errorf("query %q: item %d has id %d, want %d", tc.query, i, got.Items[i].ID, id)
			}
		}
	}
}

func TestListMessagesRequiresPin(t *testing.T) {
	f := newFixture(t)
	f.register(t, "http://a", "a")

	for _, query := range []string{"", "?pin=000000"} {
		resp, err := http.Get(f.srv.URL + "/api/v1/messages" + query)
		if err != nil {
			t.Fatal(err)
		}
		_ = resp.Body.Close()
		if resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("query %q returned %d, want 401", query, resp.StatusCode)
		}
	}
}

func TestSendMessageDelivered(t *testing.T) {
	f := newFixture(t)
	peer := echoPeer(t)
	pinA := f.register(t, "http://a", "Alice")
	f.register(t, peer.URL, "Bob")

	resp, err := http.Post(f.srv.URL+"/api/v1/messages/user/2?pin="+pinA,
		"application/json", strings.NewReader(`{"text": "hi"}`))
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("send returned %d, want 201", resp.StatusCode)
	}
	var body struct {
		Delivered bool `json:"delivered"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if !body.Delivered {
		t.Error("delivered = false, want true")
	}

	// Recipient sees the message, marked delivered.
	bob, _ := f.reg.GetUserByID(2)
	msgs := f.reg.GetMessages(bob)
	if len(msgs) != 1 {
		t.Fatalf("recipient sees %d messages, want 1", len(msgs))
	}
	m := msgs[0]
	if m.From != 1 || m.To != 2 || m.Text != "hi" || !m.Delivered {
		t.Errorf("stored message = %+v", m)
	}
}

func TestSendMessageUnreachablePeer(t *testing.T) {
	f := newFixture(t)
	peer := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	peerURL := peer.URL
	peer.Close()

	pinA := f.register(t, "http://a", "Alice")
	f.register(t, peerURL, "Bob")

	resp, err := http.Post(f.srv.URL+"/api/v1/messages/user/2?pin="+pinA,
		"application/json", strings.NewReader(`{"text": "hi"}`))
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("send returned %d, want 201 even when the peer is down", resp.StatusCode)
	}
	var body struct {
		Delivered bool `json:"delivered"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Delivered {
		t.Error("delivered = true for unreachable peer")
	}

	bob, _ := f.reg.GetUserByID(2)
	msgs := f.reg.GetMessages(bob)
	if len(msgs) != 1 || msgs[0].Delivered {
		t.Errorf("stored messages = %+v, want one undelivered", msgs)
	}
}

func TestSendMessageValidation(t *testing.T) {
	f := newFixture(t)
	pinA := f.register(t, "http://a", "Alice")

	cases := []struct {
		name   string
		url    string
		body   string
		status int
	}{
		{"no pin", "/api/v1/messages/user/1", `{"text": "hi"}`, http.StatusUnauthorized},
		{"unknown recipient", "/api/v1/messages/user/42?pin=" + pinA, `{"text": "hi"}`, http.StatusBadRequest},
		{"missing text", "/api/v1/messages/user/1?pin=" + pinA, `{}`, http.StatusBadRequest},
		{"malformed body", "/api/v1/messages/user/1?pin=" + pinA, "{nope", http.StatusBadRequest},
	}
	for _, tc := range cases {
		resp, err := http.Post(f.srv.URL+tc.url, "application/json", strings.NewReader(tc.body))
		if err != nil {
			t.Fatal(err)
		}
		_ = resp.Body.Close()
		if resp.StatusCode != tc.status {
			t.Errorf("%s: status = %d, want %d", tc.name, resp.StatusCode, tc.status)
		}
	}
}

func TestStatusEndpoint(t *testing.T) {
	f := newFixture(t)
	resp, err := http.Get(f.srv.URL + "/api/v1/status")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()
	var body struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Status != "ok" {
		t.Errorf("status = %q, want ok", body.Status)
	}
}

func TestEventStream(t *testing.T) {
	f := newFixture(t)

	resp, err := http.Get(f.srv.URL + "/api/v1/events")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q, want text/event-stream", ct)
	}

	// Give the handler time to subscribe before publishing.
	time.Sleep(50 * time.Millisecond)
	f.bus.Publish(bus.Event{Kind: bus.KindUserRegistered, Timestamp: time.Now()})

	lines := make(chan string, 1)
	go func() {
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			if line := scanner.Text(); strings.HasPrefix(line, "data: ") {
				lines <- strings.TrimPrefix(line, "data: ")
				return
			}
		}
	}()

	select {
	case line := <-lines:
		var env struct {
			EventID string `json:"event_id"`
			Kind    string `json:"kind"`
		}
		if err := json.Unmarshal([]byte(line), &env); err != nil {
			t.Fatalf("decode envelope: %v", err)
		}
		if env.Kind != bus.KindUserRegistered {
			t.Errorf("kind = %q, want %q", env.Kind, bus.KindUserRegistered)
		}
		if env.EventID == "" {
			t.Error("envelope missing event_id")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no event received on stream")
	}
}
