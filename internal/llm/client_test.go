package llm

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"jumpgen/internal/model"
)

const completionBody = `{
	"id": "cmpl-1",
	"object": "chat.completion",
	"choices": [
		{"index": 0, "message": {"role": "assistant", "content": "{\"a\":1}"}, "finish_reason": "stop"}
	]
}`

// fakeEndpoint replays a scripted sequence of status codes, serving the
// completion body on 200.
func fakeEndpoint(t *testing.T, statuses []int) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := int(calls.Add(1))
		status := statuses[len(statuses)-1]
		if n <= len(statuses) {
			status = statuses[n-1]
		}
		if status == http.StatusOK {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(completionBody))
			return
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"error": {"message": "upstream boom"}}`))
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func newTestClient(srv *httptest.Server, attempts int) *Client {
	return NewClient("test-key", srv.URL+"/v1",
		WithMaxAttempts(attempts),
		WithBackoffBase(20*time.Millisecond))
}

func TestInvokeRetriesServerErrors(t *testing.T) {
	srv, calls := fakeEndpoint(t, []int{500, 500, 200})
	client := newTestClient(srv, 3)

	start := time.Now()
	out, err := client.Invoke(context.Background(), "plan it", "test-model")
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if out != `{"a":1}` {
		t.Errorf("content = %q", out)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("attempts = %d, want 3", got)
	}
	// Backoff doubles: ~20ms + ~40ms between the three attempts.
	if elapsed := time.Since(start); elapsed < 60*time.Millisecond {
		t.Errorf("elapsed %v, want >= 60ms of backoff", elapsed)
	}
}

func TestInvokeNoRetryOnClientError(t *testing.T) {
	srv, calls := fakeEndpoint(t, []int{404})
	client := newTestClient(srv, 3)

	_, err := client.Invoke(context.Background(), "plan it", "test-model")
	if err == nil {
		t.Fatal("expected error")
	}
	var upstream *model.UpstreamError
	if !errors.As(err, &upstream) {
		t.Fatalf("error type %T, want *model.UpstreamError", err)
	}
	if upstream.Exhausted {
		t.Error("client error must not be reported as exhausted retries")
	}
	if upstream.StatusCode != 404 {
		t.Errorf("status = %d, want 404", upstream.StatusCode)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("attempts = %d, want exactly 1", got)
	}
}

func TestInvokeExhaustsRetries(t *testing.T) {
	srv, calls := fakeEndpoint(t, []int{500})
	client := newTestClient(srv, 3)

	_, err := client.Invoke(context.Background(), "plan it", "test-model")
	if err == nil {
		t.Fatal("expected error")
	}
	var upstream *model.UpstreamError
	if !errors.As(err, &upstream) {
		t.Fatalf("error type %T, want *model.UpstreamError", err)
	}
	if !upstream.Exhausted {
		t.Error("expected Exhausted after retries ran out")
	}
	if upstream.StatusCode != 500 {
		t.Errorf("status = %d, want 500", upstream.StatusCode)
	}
	if upstream.Attempts != 3 {
		t.Errorf("recorded attempts = %d, want 3", upstream.Attempts)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("calls = %d, want 3", got)
	}
}

func TestInvokeCancelledMidBackoff(t *testing.T) {
	srv, calls := fakeEndpoint(t, []int{500})
	client := NewClient("test-key", srv.URL+"/v1",
		WithMaxAttempts(3),
		WithBackoffBase(10*time.Second))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := client.Invoke(ctx, "plan it", "test-model")
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("error = %v, want context.DeadlineExceeded", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("cancellation took %v, backoff was not interrupted", elapsed)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("calls = %d, want 1 before cancellation", got)
	}
}
