package types

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestRunValidate(t *testing.T) {
	valid := func() Run {
		return Run{
			ID:          "0b6f3c1e-8a7d-4f43-9a55-1c9e2b7d4f10",
			UserID:      "alice",
			Kind:        RunDedup,
			InputCount:  3,
			OutputCount: 2,
			Details:     json.RawMessage(`{"total_duplicates": 1}`),
			CreatedAt:   time.Now(),
		}
	}

	tests := []struct {
		name    string
		modify  func(*Run)
		wantErr string
	}{
		{name: "valid run", modify: func(*Run) {}},
		{name: "no details", modify: func(r *Run) { r.Details = nil }},
		{name: "missing id", modify: func(r *Run) { r.ID = "" }, wantErr: "run id is required"},
		{name: "missing user", modify: func(r *Run) { r.UserID = "" }, wantErr: "user id is required"},
		{name: "unknown kind", modify: func(r *Run) { r.Kind = "rewrite" }, wantErr: "invalid run kind"},
		{name: "negative count", modify: func(r *Run) { r.DuplicateCount = -1 }, wantErr: "cannot be negative"},
		{name: "broken details", modify: func(r *Run) { r.Details = json.RawMessage(`{"total":`) }, wantErr: "valid JSON"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			run := valid()
			tt.modify(&run)
			err := run.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestRunKindIsValid(t *testing.T) {
	for _, k := range []RunKind{RunDedup, RunMerge, RunCacheMatch} {
		if !k.IsValid() {
			t.Errorf("%q should be valid", k)
		}
	}
	if RunKind("").IsValid() {
		t.Error("empty kind should be invalid")
	}
}
