package ai

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"taskpilot-backend/internal/retry"
)

func newTestClient(url string) *Client {
	exec := retry.New()
	exec.BaseDelay = time.Millisecond
	return NewClient(url, exec)
}

func TestGenerateTasksSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/generate-tasks" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"tasks":["Draft outline","Book venue"]}`))
	}))
	defer srv.Close()

	got, err := newTestClient(srv.URL).GenerateTasks(context.Background(), "plan a launch")
	if err != nil {
		t.Fatalf("err = %v", err)
	}
	if len(got) != 2 || got[0] != "Draft outline" || got[1] != "Book venue" {
		t.Fatalf("tasks = %v", got)
	}
}

func TestGenerateTasksMalformedShapeIsFormatError(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		_, _ = w.Write([]byte(`{"foo":"bar"}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).GenerateTasks(context.Background(), "plan")

	var formatErr *FormatError
	if !errors.As(err, &formatErr) {
		t.Fatalf("err = %v, want *FormatError", err)
	}
	// Malformed-but-successful responses are not retried.
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestGenerateTasksServerErrorCarriesMessage(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"model overloaded"}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).GenerateTasks(context.Background(), "plan")

	var reqErr *RequestError
	if !errors.As(err, &reqErr) {
		t.Fatalf("err = %v, want *RequestError", err)
	}
	if reqErr.Message != "model overloaded" {
		t.Fatalf("message = %q", reqErr.Message)
	}
	if atomic.LoadInt32(&calls) != 3 {
		t.Fatalf("calls = %d, want 3 (retry budget exhausted)", calls)
	}
}

func TestGenerateTasksRecoversAfterTransientFailure(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"tasks":["Retry worked"]}`))
	}))
	defer srv.Close()

	got, err := newTestClient(srv.URL).GenerateTasks(context.Background(), "plan")
	if err != nil {
		t.Fatalf("err = %v", err)
	}
	if len(got) != 1 || got[0] != "Retry worked" {
		t.Fatalf("tasks = %v", got)
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Fatalf("calls = %d, want 2", calls)
	}
}

func TestGenerateTasksEmptyListIsValid(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"tasks":[]}`))
	}))
	defer srv.Close()

	got, err := newTestClient(srv.URL).GenerateTasks(context.Background(), "plan")
	if err != nil {
		t.Fatalf("err = %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("tasks = %v, want empty", got)
	}
}
