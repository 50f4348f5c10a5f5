package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
)

type roundTripFunc func(req *http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func TestWebhookPostsCard(t *testing.T) {
	var got map[string]any
	client := &http.Client{Transport: roundTripFunc(func(req *http.Request) (*http.Response, error) {
		if req.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", req.Method)
		}
		body, _ := io.ReadAll(req.Body)
		if err := json.Unmarshal(body, &got); err != nil {
			t.Errorf("body is not JSON: %v", err)
		}
		return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(strings.NewReader("1")), Header: http.Header{}}, nil
	})}

	w := NewWebhook("https://hooks.example.com/abc", client)
	err := w.Notify(context.Background(), Message{
		Recipient: "alice@example.com",
		HostName:  "db01",
		Title:     "Host expires soon",
		Text:      "db01 expires on 2024-06-01",
	})
	if err != nil {
		t.Fatalf("Notify() error = %v", err)
	}

	attachments, ok := got["attachments"].([]any)
	if !ok || len(attachments) != 1 {
		t.Fatalf("attachments = %v", got["attachments"])
	}
	if !strings.Contains(mustJSON(t, attachments[0]), "Host expires soon") {
		t.Error("card does not contain the title")
	}
}

func TestWebhookErrorStatus(t *testing.T) {
	client := &http.Client{Transport: roundTripFunc(func(req *http.Request) (*http.Response, error) {
		return &http.Response{StatusCode: http.StatusBadRequest, Status: "400 Bad Request", Body: io.NopCloser(strings.NewReader("")), Header: http.Header{}}, nil
	})}

	w := NewWebhook("https://hooks.example.com/abc", client)
	if err := w.Notify(context.Background(), Message{Title: "x"}); err == nil {
		t.Fatal("expected error for 400 response")
	}
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return string(b)
}
