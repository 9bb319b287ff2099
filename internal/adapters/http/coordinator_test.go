package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	logAdapter "github.com/bft-labs/lifeline/internal/adapters/log"
	"github.com/bft-labs/lifeline/internal/domain"
)

func TestCoordinator_Call(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if r.URL.Path != "/booter/get_boot_bundle" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer secret" {
			t.Errorf("Authorization = %v, want Bearer secret", r.Header.Get("Authorization"))
		}
		if r.Header.Get("X-Request-Id") != "req-1" {
			t.Errorf("X-Request-Id = %v, want req-1", r.Header.Get("X-Request-Id"))
		}
		if r.Header.Get("X-Agent-Instance-Id") != "i-1" {
			t.Errorf("X-Agent-Instance-Id = %v", r.Header.Get("X-Agent-Instance-Id"))
		}

		var payload map[string]string
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("decode payload: %v", err)
		}
		if payload["instance_id"] != "i-1" {
			t.Errorf("payload = %v", payload)
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(domain.Bundle{
			AuditID:     "a-1",
			Executables: []domain.Executable{{ID: "e1", Name: "setup"}},
		})
	}))
	defer ts.Close()

	c := NewCoordinator(CoordinatorConfig{BaseURL: ts.URL + "/", AuthKey: "secret", InstanceID: "i-1"},
		http.DefaultClient, logAdapter.NewNoopLogger())

	var got domain.Bundle
	err := c.Call(context.Background(), "req-1", "/booter/get_boot_bundle", map[string]string{"instance_id": "i-1"}, &got)
	if err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	if got.AuditID != "a-1" || len(got.Executables) != 1 {
		t.Errorf("result = %+v", got)
	}
}

func TestCoordinator_StatusMapping(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		wantErr   error
		retryable bool
	}{
		{"ok", http.StatusOK, nil, false},
		{"no content", http.StatusNoContent, nil, false},
		{"unavailable", http.StatusServiceUnavailable, domain.ErrNotReady, true},
		{"throttled", http.StatusTooManyRequests, domain.ErrNotReady, true},
		{"server error", http.StatusInternalServerError, domain.ErrTransient, true},
		{"bad request", http.StatusBadRequest, nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer ts.Close()

			c := NewCoordinator(CoordinatorConfig{BaseURL: ts.URL}, http.DefaultClient, logAdapter.NewNoopLogger())
			var out struct{}
			err := c.Call(context.Background(), "r", "/x", nil, &out)

			switch {
			case tt.status/100 == 2:
				if err != nil {
					t.Errorf("Call() error = %v, want nil", err)
				}
			case tt.wantErr != nil:
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("Call() error = %v, want %v", err, tt.wantErr)
				}
			default:
				if err == nil {
					t.Error("Call() error = nil, want error")
				}
			}
			if err != nil && domain.IsRetryable(err) != tt.retryable {
				t.Errorf("IsRetryable(%v) = %v, want %v", err, domain.IsRetryable(err), tt.retryable)
			}
		})
	}
}

func TestCoordinator_TransportErrorIsTransient(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := ts.URL
	ts.Close()

	c := NewCoordinator(CoordinatorConfig{BaseURL: url}, http.DefaultClient, logAdapter.NewNoopLogger())
	err := c.Call(context.Background(), "r", "/x", nil, nil)
	if !errors.Is(err, domain.ErrTransient) {
		t.Errorf("Call() error = %v, want ErrTransient", err)
	}
}
