package service

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/bcnelson/checkmk-host-manager/internal/checkmk"
)

const testBase = "https://cmk.example.com/prod/check_mk"

var testEndpoints = checkmk.NewEndpoints(testBase, "prod")

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type call struct {
	Method  string
	URL     string
	Payload any
	ETag    string
}

// fakeRequester records every call. Unset handlers answer GET with 404 and
// every write with 200.
type fakeRequester struct {
	mu    sync.Mutex
	calls []call

	get  func(url string) (*checkmk.Response, error)
	post func(url string, payload any) (*checkmk.Response, error)
	put  func(url string, payload any, etag string) (*checkmk.Response, error)
	del  func(url, etag string) (*checkmk.Response, error)
}

var _ checkmk.Requester = (*fakeRequester)(nil)

func (f *fakeRequester) record(c call) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)
}

func (f *fakeRequester) Calls() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]call(nil), f.calls...)
}

func (f *fakeRequester) Get(ctx context.Context, url string) (*checkmk.Response, error) {
	f.record(call{Method: http.MethodGet, URL: url})
	if f.get != nil {
		return f.get(url)
	}
	return notFound(http.MethodGet, url)
}

func (f *fakeRequester) Post(ctx context.Context, url string, payload any) (*checkmk.Response, error) {
	f.record(call{Method: http.MethodPost, URL: url, Payload: payload})
	if f.post != nil {
		return f.post(url, payload)
	}
	return ok(nil)
}

func (f *fakeRequester) Put(ctx context.Context, url string, payload any, etag string) (*checkmk.Response, error) {
	f.record(call{Method: http.MethodPut, URL: url, Payload: payload, ETag: etag})
	if f.put != nil {
		return f.put(url, payload, etag)
	}
	return ok(nil)
}

func (f *fakeRequester) Delete(ctx context.Context, url, etag string) (*checkmk.Response, error) {
	f.record(call{Method: http.MethodDelete, URL: url, ETag: etag})
	if f.del != nil {
		return f.del(url, etag)
	}
	return ok(nil)
}

func ok(body []byte) (*checkmk.Response, error) {
	return &checkmk.Response{StatusCode: http.StatusOK, Body: body}, nil
}

func notFound(method, url string) (*checkmk.Response, error) {
	return failWith(method, url, http.StatusNotFound)
}

func failWith(method, url string, status int) (*checkmk.Response, error) {
	return &checkmk.Response{StatusCode: status},
		&checkmk.StatusError{Method: method, URL: url, StatusCode: status}
}

// viewBody renders a json_export table.
func viewBody(rows ...[]string) []byte {
	b, _ := json.Marshal(rows)
	return b
}

// recordingSleep counts sleeps without blocking.
type recordingSleep struct {
	mu    sync.Mutex
	slept []time.Duration
}

func (r *recordingSleep) Sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.slept = append(r.slept, d)
	return ctx.Err()
}

func (r *recordingSleep) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.slept)
}

func fixedClock(day string) func() time.Time {
	t, err := time.Parse("2006-01-02", day)
	if err != nil {
		panic(err)
	}
	return func() time.Time { return t.Add(10 * time.Hour) }
}
