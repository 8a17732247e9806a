package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"github.com/crates-registry/core/internal/apperror"
)

const pagerDutyEventsURL = "https://events.pagerduty.com/v2/enqueue"

// pagerDutySink implements typosquat.Sink by raising a PagerDuty alert
// event for every collision, the non-blocking "never fail the publish"
// alerting channel §4.10 calls for. No PagerDuty client library appears
// anywhere in the corpus, so this speaks the Events API v2 directly over
// net/http rather than adding a dependency nothing else would exercise.
type pagerDutySink struct {
	apiToken       string
	integrationKey string
}

func (s pagerDutySink) Alert(ctx context.Context, newCrate, collidesWith string) error {
	if s.integrationKey == "" {
		return nil
	}
	body, err := json.Marshal(map[string]any{
		"routing_key":  s.integrationKey,
		"event_action": "trigger",
		"payload": map[string]string{
			"summary":  "possible typosquat: " + newCrate + " resembles " + collidesWith,
			"source":   "registry-worker",
			"severity": "warning",
		},
	})
	if err != nil {
		return apperror.Wrap(apperror.Internal, "pagerduty.Alert", "marshaling event", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, pagerDutyEventsURL, bytes.NewReader(body))
	if err != nil {
		return apperror.Wrap(apperror.Internal, "pagerduty.Alert", "building request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiToken != "" {
		req.Header.Set("Authorization", "Token token="+s.apiToken)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return apperror.Wrap(apperror.Upstream, "pagerduty.Alert", "sending event", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return apperror.New(apperror.Upstream, "pagerduty.Alert", "pagerduty rejected event")
	}
	return nil
}
