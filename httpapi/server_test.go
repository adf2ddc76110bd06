package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/victhorio/sage/rag"
)

type fakeAssistant struct {
	answer    string
	sources   []rag.Source
	queryErr  error
	analytics rag.Analytics

	gotQuery   string
	gotSession string
}

func (f *fakeAssistant) Query(_ context.Context, query, sessionID string) (string, []rag.Source, error) {
	f.gotQuery = query
	f.gotSession = sessionID
	if f.queryErr != nil {
		return "", nil, f.queryErr
	}
	return f.answer, f.sources, nil
}

func (f *fakeAssistant) NewSessionID() string { return "generated-session" }

func (f *fakeAssistant) Analytics() rag.Analytics { return f.analytics }

func doRequest(t *testing.T, sys Assistant, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	w := httptest.NewRecorder()
	NewServer(sys).Handler().ServeHTTP(w, req)
	return w
}

func TestServer_Query(t *testing.T) {
	link := "https://example.com/intro/1"
	sys := &fakeAssistant{
		answer: "Here is the answer.",
		sources: []rag.Source{
			{Text: "Intro - Lesson 1", Link: &link},
			{Text: "Intro - Lesson 2"},
		},
	}

	w := doRequest(t, sys, "POST", "/api/query", `{"query": "what is MCP?", "session_id": "s1"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	var resp struct {
		Answer  string `json:"answer"`
		Sources []struct {
			Text string  `json:"text"`
			Link *string `json:"link"`
		} `json:"sources"`
		SessionID string `json:"session_id"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if resp.Answer != "Here is the answer." {
		t.Errorf("answer = %q", resp.Answer)
	}
	if resp.SessionID != "s1" {
		t.Errorf("session_id = %q, want s1", resp.SessionID)
	}
	if len(resp.Sources) != 2 {
		t.Fatalf("expected 2 sources, got %d", len(resp.Sources))
	}
	if resp.Sources[0].Link == nil || *resp.Sources[0].Link != link {
		t.Errorf("sources[0].link = %v", resp.Sources[0].Link)
	}
	if resp.Sources[1].Link != nil {
		t.Errorf("sources[1].link = %v, want null", *resp.Sources[1].Link)
	}

	if sys.gotQuery != "what is MCP?" || sys.gotSession != "s1" {
		t.Errorf("assistant saw query=%q session=%q", sys.gotQuery, sys.gotSession)
	}
}

func TestServer_QueryGeneratesSessionID(t *testing.T) {
	sys := &fakeAssistant{answer: "ok"}

	w := doRequest(t, sys, "POST", "/api/query", `{"query": "hello"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	var resp struct {
		SessionID string `json:"session_id"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.SessionID != "generated-session" {
		t.Errorf("session_id = %q", resp.SessionID)
	}
	if sys.gotSession != "generated-session" {
		t.Errorf("assistant saw session %q", sys.gotSession)
	}
}

func TestServer_QueryEmptySources(t *testing.T) {
	sys := &fakeAssistant{answer: "no tools used"}

	w := doRequest(t, sys, "POST", "/api/query", `{"query": "general question"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	// nil sources must serialize as [], not null.
	if !strings.Contains(w.Body.String(), `"sources":[]`) {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestServer_QueryBadRequest(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"invalid json", "not json at all"},
		{"missing query field", `{"session_id": "s1"}`},
		{"empty query", `{"query": ""}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(t, &fakeAssistant{}, "POST", "/api/query", tt.body)
			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
			}
		})
	}
}

func TestServer_QueryError(t *testing.T) {
	sys := &fakeAssistant{queryErr: errors.New("model call failed")}

	w := doRequest(t, sys, "POST", "/api/query", `{"query": "anything"}`)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	if !strings.Contains(w.Body.String(), "model call failed") {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestServer_Courses(t *testing.T) {
	sys := &fakeAssistant{analytics: rag.Analytics{
		TotalCourses: 2,
		CourseTitles: []string{"Python Basics", "Advanced Python"},
	}}

	w := doRequest(t, sys, "GET", "/api/courses", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	var resp struct {
		TotalCourses int      `json:"total_courses"`
		CourseTitles []string `json:"course_titles"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.TotalCourses != 2 || len(resp.CourseTitles) != 2 {
		t.Errorf("analytics = %+v", resp)
	}
}

func TestServer_Root(t *testing.T) {
	w := doRequest(t, &fakeAssistant{}, "GET", "/", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "RAG System") {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestServer_CORSPreflight(t *testing.T) {
	req := httptest.NewRequest("OPTIONS", "/api/query", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "POST")

	w := httptest.NewRecorder()
	NewServer(&fakeAssistant{}).Handler().ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNoContent)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}
}
