package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"livequiz/internal/domain"
)

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestCreateSessionEndpoint(t *testing.T) {
	server, _ := newTestServer(t)

	resp := postJSON(t, server.URL+"/api/sessions", createSessionRequest{QuizID: "geo", HostID: "host-1"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}
	var created createSessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(created.Token) != 64 || len(created.Code) != 6 {
		t.Fatalf("created = %+v", created)
	}
}

func TestCreateSessionEndpointValidation(t *testing.T) {
	server, _ := newTestServer(t)

	resp := postJSON(t, server.URL+"/api/sessions", createSessionRequest{QuizID: "geo"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("missing host: status = %d, want 400", resp.StatusCode)
	}
	resp = postJSON(t, server.URL+"/api/sessions", createSessionRequest{QuizID: "ghost", HostID: "host-1"})
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown quiz: status = %d, want 404", resp.StatusCode)
	}
}

func TestStatusEndpoint(t *testing.T) {
	server, _ := newTestServer(t)
	resp := postJSON(t, server.URL+"/api/sessions", createSessionRequest{QuizID: "geo", HostID: "host-1"})
	var created createSessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("decode: %v", err)
	}

	statusResp, err := http.Get(fmt.Sprintf("%s/api/sessions/%s/status", server.URL, created.Token))
	if err != nil {
		t.Fatalf("GET status: %v", err)
	}
	defer statusResp.Body.Close()
	if statusResp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", statusResp.StatusCode)
	}
	var status domain.Status
	if err := json.NewDecoder(statusResp.Body).Decode(&status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if status.State != domain.StateWaiting {
		t.Fatalf("state = %q, want waiting", status.State)
	}

	missing, err := http.Get(server.URL + "/api/sessions/nope/status")
	if err != nil {
		t.Fatalf("GET missing status: %v", err)
	}
	defer missing.Body.Close()
	if missing.StatusCode != http.StatusNotFound {
		t.Fatalf("missing session status = %d, want 404", missing.StatusCode)
	}
}

func TestResolveCodeEndpoint(t *testing.T) {
	server, _ := newTestServer(t)
	resp := postJSON(t, server.URL+"/api/sessions", createSessionRequest{QuizID: "geo", HostID: "host-1"})
	var created createSessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("decode: %v", err)
	}

	// Codes are case-insensitive on the way in.
	lower := postJSON(t, server.URL+"/api/join", resolveCodeRequest{Code: "  " + created.Code + "  "})
	if lower.StatusCode != http.StatusOK {
		t.Fatalf("resolve status = %d, want 200", lower.StatusCode)
	}
	var resolved resolveCodeResponse
	if err := json.NewDecoder(lower.Body).Decode(&resolved); err != nil {
		t.Fatalf("decode resolved: %v", err)
	}
	if resolved.Token != created.Token {
		t.Fatalf("resolved token = %q, want %q", resolved.Token, created.Token)
	}

	unknown := postJSON(t, server.URL+"/api/join", resolveCodeRequest{Code: "ZZZZ22"})
	if unknown.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown code status = %d, want 404", unknown.StatusCode)
	}
	empty := postJSON(t, server.URL+"/api/join", resolveCodeRequest{})
	if empty.StatusCode != http.StatusBadRequest {
		t.Fatalf("empty code status = %d, want 400", empty.StatusCode)
	}
}

func TestStatusCodeMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{domain.ErrForbidden, http.StatusForbidden},
		{domain.ErrSessionNotFound, http.StatusNotFound},
		{domain.ErrRunNotFound, http.StatusNotFound},
		{domain.ErrOptionNotFound, http.StatusNotFound},
		{domain.ErrNameTaken, http.StatusConflict},
		{domain.ErrNotStarted, http.StatusBadRequest},
		{domain.ErrTimeExpired, http.StatusBadRequest},
		{domain.ErrSessionFinished, http.StatusBadRequest},
		{domain.ErrJokersExhausted, http.StatusBadRequest},
		{fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := statusCode(tc.err); got != tc.want {
			t.Fatalf("statusCode(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}
