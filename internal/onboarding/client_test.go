package onboarding

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestResolveProject_LoadCodeAssistReturnsExistingProject(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"cloudaicompanionProject": "proj-existing"})
	}))
	defer srv.Close()

	c := New(srv.Client())
	c.baseURL = srv.URL

	projectID, err := c.ResolveProject(context.Background(), "token")
	if err != nil {
		t.Fatalf("ResolveProject: %v", err)
	}
	if projectID != "proj-existing" {
		t.Errorf("expected proj-existing, got %s", projectID)
	}
}

func TestResolveProject_SendsLiteralRequestPayloads(t *testing.T) {
	var loadBody, onboardBody map[string]any
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		switch {
		case r.URL.Path == "/v1internal:loadCodeAssist":
			_ = json.Unmarshal(data, &loadBody)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"allowedTiers": []any{map[string]any{"id": "standard-tier", "isDefault": true}},
			})
		case r.URL.Path == "/v1internal:onboardUser":
			calls++
			_ = json.Unmarshal(data, &onboardBody)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"done":     true,
				"response": map[string]any{"cloudaicompanionProject": map[string]any{"id": "proj-onboarded"}},
			})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := New(srv.Client())
	c.baseURL = srv.URL

	if _, err := c.ResolveProject(context.Background(), "token"); err != nil {
		t.Fatalf("ResolveProject: %v", err)
	}

	if loadBody["cloudaicompanionProject"] != "default-project" {
		t.Errorf("expected loadCodeAssist cloudaicompanionProject=default-project, got %v", loadBody["cloudaicompanionProject"])
	}
	metadata, _ := loadBody["metadata"].(map[string]any)
	if metadata["duetProject"] != "default-project" {
		t.Errorf("expected loadCodeAssist metadata.duetProject=default-project, got %v", metadata["duetProject"])
	}

	if onboardBody["tierId"] != "standard-tier" {
		t.Errorf("expected onboardUser tierId=standard-tier, got %v", onboardBody["tierId"])
	}
	if onboardBody["cloudaicompanionProject"] != "default-project" {
		t.Errorf("expected onboardUser cloudaicompanionProject=default-project, got %v", onboardBody["cloudaicompanionProject"])
	}
}

func TestResolveProject_FallsBackToOnboardUser(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/v1internal:loadCodeAssist":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"allowedTiers": []any{
					map[string]any{"id": "standard-tier", "isDefault": true},
				},
			})
		case r.URL.Path == "/v1internal:onboardUser":
			calls++
			if calls < 2 {
				_ = json.NewEncoder(w).Encode(map[string]any{"done": false})
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]any{
				"done": true,
				"response": map[string]any{
					"cloudaicompanionProject": map[string]any{"id": "proj-onboarded"},
				},
			})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := New(srv.Client())
	c.baseURL = srv.URL

	projectID, err := c.ResolveProject(context.Background(), "token")
	if err != nil {
		t.Fatalf("ResolveProject: %v", err)
	}
	if projectID != "proj-onboarded" {
		t.Errorf("expected proj-onboarded, got %s", projectID)
	}
	if calls < 2 {
		t.Errorf("expected at least 2 onboardUser polls, got %d", calls)
	}
}

func TestResolveProject_OnboardDoneWithoutProjectIDFallsBackToDefault(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/v1internal:loadCodeAssist":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"allowedTiers": []any{
					map[string]any{"id": "standard-tier", "isDefault": true},
				},
			})
		case r.URL.Path == "/v1internal:onboardUser":
			_ = json.NewEncoder(w).Encode(map[string]any{"done": true, "response": map[string]any{}})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := New(srv.Client())
	c.baseURL = srv.URL

	projectID, err := c.ResolveProject(context.Background(), "token")
	if err != nil {
		t.Fatalf("ResolveProject: %v", err)
	}
	if projectID != "default-project" {
		t.Errorf("expected fallback to default-project, got %s", projectID)
	}
}

func TestResolveProject_UpstreamErrorSurfacesStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte("forbidden"))
	}))
	defer srv.Close()

	c := New(srv.Client())
	c.baseURL = srv.URL

	_, err := c.ResolveProject(context.Background(), "token")
	if err == nil {
		t.Fatal("expected an error from a 403 response")
	}
}
