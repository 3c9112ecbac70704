package alerter

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
)

func TestDurationBuckets(t *testing.T) {
	cases := []struct {
		name           string
		cmsdWait       int
		serviceTimeout int
		want           []float64
	}{
		{"typical", 300, 120, []float64{300, 315, 330, 345, 360, 375, 390, 405, 420, 435, 450, 465, 480, 495, 510, 525, 540}},
		{"zero wait", 0, 60, []float64{0, 15, 30, 45, 60, 75, 90, 105, 120}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := durationBuckets(c.cmsdWait, c.serviceTimeout)
			if !reflect.DeepEqual(got, c.want) {
				t.Errorf("durationBuckets(%d, %d) = %v, want %v", c.cmsdWait, c.serviceTimeout, got, c.want)
			}
		})
	}
}

func TestSinkFindScopesByNode(t *testing.T) {
	alerts := []managedAlert{
		{Labels: map[string]string{"alertname": string(KindConnectError), "node": "node-a"}},
		{Labels: map[string]string{"alertname": string(KindConnectError), "node": "node-b"}},
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Fatalf("unexpected method %s", r.Method)
		}
		json.NewEncoder(w).Encode(alerts)
	}))
	defer srv.Close()

	s := newSink(srv.URL)
	got, err := s.find(context.Background(), KindConnectError, "node-b")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got == nil || got.Labels["node"] != "node-b" {
		t.Fatalf("find returned %v, want node-b alert", got)
	}
}

func TestSinkFindEmptyNodeMatchesFirst(t *testing.T) {
	alerts := []managedAlert{
		{Labels: map[string]string{"alertname": string(KindInsufficientServers)}},
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(alerts)
	}))
	defer srv.Close()

	s := newSink(srv.URL)
	got, err := s.find(context.Background(), KindInsufficientServers, "")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got == nil {
		t.Fatal("find returned nil, want the insufficient-servers alert")
	}
}

func TestSinkSendPostsSingleElementArray(t *testing.T) {
	var received []managedAlert
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Fatalf("unexpected method %s", r.Method)
		}
		json.NewDecoder(r.Body).Decode(&received)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := newSink(srv.URL)
	alert := newManagedAlert(KindRestartError, "node-a", "restart failed", "ssh timeout")
	if err := s.send(context.Background(), alert); err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(received) != 1 {
		t.Fatalf("got %d alerts posted, want 1", len(received))
	}
	if received[0].Labels["alertname"] != string(KindRestartError) {
		t.Errorf("alertname = %q, want %q", received[0].Labels["alertname"], KindRestartError)
	}
}
