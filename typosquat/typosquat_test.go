package typosquat

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func TestCandidatesIncludesSuffixVariants(t *testing.T) {
	cands := Candidates("foo")
	want := []string{"foo-cli", "cli-foo", "foo_rs", "rs_foo"}
	for _, w := range want {
		found := false
		for _, c := range cands {
			if c == w {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("expected candidate %q, got %v", w, cands)
		}
	}
}

func TestCandidatesIncludesSeparatorSubstitution(t *testing.T) {
	cands := Candidates("foo-bar")
	if !contains(cands, "foo_bar") {
		t.Errorf("expected foo_bar among candidates, got %v", cands)
	}
}

func TestCandidatesIncludesConfusableSubstitution(t *testing.T) {
	cands := Candidates("serde")
	// 's' confuses with several characters including 'z' and 'a'.
	if !contains(cands, "zerde") {
		t.Errorf("expected confusable substitution zerde, got %v", cands)
	}
}

func TestTrimSuffixRemovesExistingSuffix(t *testing.T) {
	cands := Candidates("foo-cli")
	if !contains(cands, "foo") {
		t.Errorf("expected suffix-stripped candidate foo, got %v", cands)
	}
}

func contains(list []string, s string) bool {
	for _, c := range list {
		if c == s {
			return true
		}
	}
	return false
}

type fakeCorpus struct {
	names []string
}

func (c *fakeCorpus) TopCrateNames(ctx context.Context, limit int) ([]string, error) {
	return c.names, nil
}

type fakeSink struct {
	alerts []string
}

func (s *fakeSink) Alert(ctx context.Context, newCrate, collidesWith string) error {
	s.alerts = append(s.alerts, newCrate+"~"+collidesWith)
	return nil
}

func TestCheckAlertsOnCollision(t *testing.T) {
	corpus := &fakeCorpus{names: []string{"foo-cli"}}
	sink := &fakeSink{}
	c := New(corpus, sink)

	c.Check(context.Background(), "foo")

	if len(sink.alerts) == 0 {
		t.Fatal("expected an alert for a name colliding with a popular suffix variant")
	}
	if !strings.Contains(sink.alerts[0], "foo~") {
		t.Fatalf("unexpected alert: %v", sink.alerts)
	}
}

func TestCheckDoesNotAlertOnNoCollision(t *testing.T) {
	corpus := &fakeCorpus{names: []string{"completely-unrelated-name"}}
	sink := &fakeSink{}
	c := New(corpus, sink)

	c.Check(context.Background(), "zzz-nonexistent-prefix-zzz")

	if len(sink.alerts) != 0 {
		t.Fatalf("expected no alerts, got %v", sink.alerts)
	}
}

func TestHandlerDecodesPayloadAndRunsCheck(t *testing.T) {
	corpus := &fakeCorpus{names: []string{"foo-cli"}}
	sink := &fakeSink{}
	c := New(corpus, sink)

	payload, _ := json.Marshal(checkPayload{Name: "foo"})
	if err := c.Handler(context.Background(), payload); err != nil {
		t.Fatalf("Handler: %v", err)
	}
	if len(sink.alerts) == 0 {
		t.Fatal("expected Handler to trigger an alert")
	}
}
