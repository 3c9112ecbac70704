package alerter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Kind identifies one of the three alert types this package raises.
type Kind string

const (
	KindConnectError        Kind = "XROOTDRESTART_CONNECT_ERROR"
	KindRestartError        Kind = "XROOTDRESTART_RESTART_ERROR"
	KindInsufficientServers Kind = "XROOTDRESTART_INSUFFICIENT_SERVERS"
)

// managedAlert is the Alertmanager v2 alert object this package sends
// and receives; field order matches the wire shape, not Go convention.
type managedAlert struct {
	Labels      map[string]string `json:"labels"`
	Annotations map[string]string `json:"annotations"`
	StartsAt    string            `json:"startsAt"`
	EndsAt      string            `json:"endsAt,omitempty"`
}

func newManagedAlert(kind Kind, node, summary, message string) managedAlert {
	labels := map[string]string{
		"alertname": string(kind),
		"severity":  "critical",
	}
	if node != "" {
		labels["node"] = node
	}
	return managedAlert{
		Labels: labels,
		Annotations: map[string]string{
			"summary":     summary,
			"description": message,
		},
		StartsAt: time.Now().UTC().Format("2006-01-02T15:04:05Z"),
	}
}

// sink talks to the Alertmanager v2 HTTP API.
type sink struct {
	baseURL string
	client  *http.Client
}

func newSink(alertURL string) *sink {
	return &sink{baseURL: alertURL, client: &http.Client{Timeout: 10 * time.Second}}
}

func (s *sink) activeAlerts(ctx context.Context, kind Kind) ([]managedAlert, error) {
	url := s.baseURL + "/api/v2/alerts"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching active alerts: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching active alerts: unexpected status %d", resp.StatusCode)
	}

	var all []managedAlert
	if err := json.NewDecoder(resp.Body).Decode(&all); err != nil {
		return nil, fmt.Errorf("decoding active alerts: %w", err)
	}

	var matched []managedAlert
	for _, a := range all {
		if Kind(a.Labels["alertname"]) == kind {
			matched = append(matched, a)
		}
	}
	return matched, nil
}

// find returns the first active alert of kind, optionally scoped to node.
// An empty node matches the first alert of kind regardless of its node
// label, mirroring the insufficient-servers alert which carries none.
func (s *sink) find(ctx context.Context, kind Kind, node string) (*managedAlert, error) {
	alerts, err := s.activeAlerts(ctx, kind)
	if err != nil {
		return nil, err
	}
	for _, a := range alerts {
		if node == "" || a.Labels["node"] == node {
			return &a, nil
		}
	}
	return nil, nil
}

func (s *sink) send(ctx context.Context, alert managedAlert) error {
	body, err := json.Marshal([]managedAlert{alert})
	if err != nil {
		return err
	}
	url := s.baseURL + "/api/v2/alerts"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("sending alert: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("sending alert: unexpected status %d", resp.StatusCode)
	}
	return nil
}

func (s *sink) end(ctx context.Context, alert managedAlert) error {
	alert.EndsAt = time.Now().UTC().Format("2006-01-02T15:04:05Z")
	return s.send(ctx, alert)
}
