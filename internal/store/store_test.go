package store

import (
	"encoding/json"
	"testing"

	"github.com/MikeSquared-Agency/SaddleSum/internal/enrich"
)

func TestRunStatusValues(t *testing.T) {
	statuses := []RunStatus{RunCompleted, RunFailed}
	expected := []string{"completed", "failed"}
	for i, s := range statuses {
		if string(s) != expected[i] {
			t.Errorf("expected %s, got %s", expected[i], s)
		}
	}
}

func TestRunFilterDefaults(t *testing.T) {
	f := RunFilter{}
	if f.Limit != 0 {
		t.Errorf("expected 0 default limit, got %d", f.Limit)
	}
	if f.Status != nil {
		t.Error("expected nil status filter")
	}
	if f.Database != "" {
		t.Error("expected empty database filter")
	}
}

func TestRunJSON(t *testing.T) {
	run := Run{
		Database:  "go",
		Statistic: enrich.StatFisher,
		Status:    RunCompleted,
		Params:    json.RawMessage(`{"min_term_size":2}`),
	}
	b, err := json.Marshal(run)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if m["statistic"] != "hgem" {
		t.Errorf("expected statistic hgem, got %v", m["statistic"])
	}
	if _, ok := m["term"]; ok {
		t.Error("expected term omitted for a full run")
	}
	if _, ok := m["result"]; ok {
		t.Error("expected result omitted when nil")
	}
	params, ok := m["params"].(map[string]any)
	if !ok || params["min_term_size"] != float64(2) {
		t.Errorf("expected params passed through, got %v", m["params"])
	}
}
