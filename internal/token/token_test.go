package token

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestIssueSendsRequestAndDecodesGrant(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/session-tokens" {
			t.Errorf("path = %q", r.URL.Path)
		}
		var req Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.UserID != "learner-1" || req.SessionID != "sess-9" {
			t.Errorf("request = %+v", req)
		}
		json.NewEncoder(w).Encode(Grant{
			Credential:   "eph-abc",
			Model:        "gpt-4o-realtime-preview",
			Instructions: "Tutor the learner in French.",
		})
	}))
	t.Cleanup(srv.Close)

	c := NewClient(srv.URL)
	grant, err := c.Issue(context.Background(), Request{
		UserID:                 "learner-1",
		SessionID:              "sess-9",
		PersonalizationContext: "beginner, struggles with passé composé",
	})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if grant.Credential != "eph-abc" {
		t.Fatalf("Credential = %q", grant.Credential)
	}
	if grant.Model != "gpt-4o-realtime-preview" {
		t.Fatalf("Model = %q", grant.Model)
	}
	if grant.Instructions == "" {
		t.Fatal("Instructions empty")
	}
}

func TestIssueRejectsNon2xx(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "no active subscription", http.StatusForbidden)
	}))
	t.Cleanup(srv.Close)

	c := NewClient(srv.URL)
	if _, err := c.Issue(context.Background(), Request{UserID: "u", SessionID: "s"}); err == nil {
		t.Fatal("want error for 403 response")
	}
}

func TestIssueRejectsEmptyCredential(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(Grant{Model: "m"})
	}))
	t.Cleanup(srv.Close)

	c := NewClient(srv.URL)
	if _, err := c.Issue(context.Background(), Request{UserID: "u", SessionID: "s"}); err == nil {
		t.Fatal("want error for empty credential")
	}
}
