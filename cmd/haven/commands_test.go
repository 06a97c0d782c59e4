package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/havenchat/haven/internal/api"
	"github.com/havenchat/haven/internal/chat"
)

type recordedRequest struct {
	Method string
	Path   string
	Body   string
	Auth   string
}

type testServer struct {
	server   *httptest.Server
	requests []recordedRequest
}

func newTestServer(t *testing.T, responses map[string]string) *testServer {
	t.Helper()
	ts := &testServer{}

	ts.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body bytes.Buffer
		body.ReadFrom(r.Body)

		ts.requests = append(ts.requests, recordedRequest{
			Method: r.Method,
			Path:   r.URL.RequestURI(),
			Body:   body.String(),
			Auth:   r.Header.Get("Authorization"),
		})

		key := r.Method + " " + r.URL.Path
		if resp, ok := responses[key]; ok {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(resp))
			return
		}

		w.WriteHeader(404)
		w.Write([]byte(`{"error":{"message":"not found","type":"not_found"}}`))
	}))

	t.Cleanup(ts.server.Close)
	return ts
}

func (ts *testServer) client() *apiClient {
	return &apiClient{
		baseURL:    ts.server.URL,
		token:      "test-token",
		httpClient: ts.server.Client(),
	}
}

var ctx = context.Background()

func TestChatPost(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /chat": `{"response":"I'm here for you.","sensitive":true,"profile":null}`,
	})
	client := ts.client()

	resp, err := client.post(ctx, "/chat", api.ChatRequest{
		UserID:  "u1",
		Message: "I feel overwhelmed",
		History: []chat.Turn{{Role: "user", Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var result api.ChatResponse
	if err := decodeJSON(resp, &result); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if result.Response != "I'm here for you." {
		t.Errorf("Response = %q", result.Response)
	}
	if !result.Sensitive {
		t.Error("Sensitive = false, want true")
	}

	if len(ts.requests) != 1 {
		t.Fatalf("server saw %d requests, want 1", len(ts.requests))
	}
	req := ts.requests[0]
	if req.Auth != "Bearer test-token" {
		t.Errorf("Authorization = %q", req.Auth)
	}
	var sent api.ChatRequest
	if err := json.Unmarshal([]byte(req.Body), &sent); err != nil {
		t.Fatalf("decoding sent body: %v", err)
	}
	if sent.UserID != "u1" || sent.Message != "I feel overwhelmed" {
		t.Errorf("sent body = %+v", sent)
	}
	if len(sent.History) != 1 {
		t.Errorf("sent history length = %d, want 1", len(sent.History))
	}
}

func TestGetProfileRequest(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /users/u2/profile": `{"user_id":"u2","summary":"doing okay","session_count":3}`,
	})
	client := ts.client()

	resp, err := client.get(ctx, "/users/u2/profile")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var p map[string]any
	if err := decodeJSON(resp, &p); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if p["summary"] != "doing okay" {
		t.Errorf("summary = %v", p["summary"])
	}
}

func TestDecodeJSON_ServerError(t *testing.T) {
	ts := newTestServer(t, nil)
	client := ts.client()

	resp, err := client.get(ctx, "/users/nobody/profile")
	if err != nil {
		t.Fatalf("unexpected transport error: %v", err)
	}

	var p map[string]any
	err = decodeJSON(resp, &p)
	if err == nil {
		t.Fatal("expected error for 404 response")
	}
	if !strings.Contains(err.Error(), "404") {
		t.Errorf("error = %v, want it to mention status 404", err)
	}
}

func TestJoinOrNone(t *testing.T) {
	if got := joinOrNone(nil); got != "None yet" {
		t.Errorf("joinOrNone(nil) = %q", got)
	}
	if got := joinOrNone([]string{"work", "sleep"}); got != "work, sleep" {
		t.Errorf("joinOrNone = %q", got)
	}
}
