package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
)

func newTestClient(handler http.HandlerFunc) (*Client, *httptest.Server) {
	srv := httptest.NewServer(handler)
	log := zerolog.Nop()
	return NewClient(srv.URL, "test-key", &log), srv
}

func makeCandidates(n int) []Candidate {
	out := make([]Candidate, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, Candidate{ID: fmt.Sprintf("c%d", i), Photo: "p"})
	}
	return out
}

func TestMatchFound(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		var req matchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("missing auth header")
		}
		json.NewEncoder(w).Encode(matchResponse{MatchID: req.Candidates[0].ID})
	})
	defer srv.Close()

	got, err := c.Match(context.Background(), "live", makeCandidates(3))
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if got != "c0" {
		t.Fatalf("want c0, got %q", got)
	}
}

func TestMatchBatchesAndShortCircuits(t *testing.T) {
	var batches [][]string
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		var req matchRequest
		json.NewDecoder(r.Body).Decode(&req)
		ids := make([]string, 0, len(req.Candidates))
		for _, cand := range req.Candidates {
			ids = append(ids, cand.ID)
		}
		batches = append(batches, ids)

		// the match lives in the second batch
		resp := matchResponse{}
		for _, cand := range req.Candidates {
			if cand.ID == "c14" {
				resp.MatchID = "c14"
			}
		}
		json.NewEncoder(w).Encode(resp)
	})
	defer srv.Close()

	got, err := c.Match(context.Background(), "live", makeCandidates(30))
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if got != "c14" {
		t.Fatalf("want c14, got %q", got)
	}
	if len(batches) != 2 {
		t.Fatalf("want 2 batches (short circuit after the hit), got %d", len(batches))
	}
	if len(batches[0]) != batchSize {
		t.Fatalf("want %d candidates in the first batch, got %d", batchSize, len(batches[0]))
	}
}

func TestMatchSkipsCandidatesWithoutPhoto(t *testing.T) {
	var sent int
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		var req matchRequest
		json.NewDecoder(r.Body).Decode(&req)
		sent += len(req.Candidates)
		json.NewEncoder(w).Encode(matchResponse{})
	})
	defer srv.Close()

	candidates := makeCandidates(4)
	candidates[1].Photo = ""
	candidates[3].Photo = ""

	got, err := c.Match(context.Background(), "live", candidates)
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if got != "" {
		t.Fatalf("want no match, got %q", got)
	}
	if sent != 2 {
		t.Fatalf("want 2 candidates sent, got %d", sent)
	}
}

func TestMatchNoCandidates(t *testing.T) {
	called := false
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		called = true
	})
	defer srv.Close()

	got, err := c.Match(context.Background(), "live", nil)
	if err != nil || got != "" {
		t.Fatalf("empty roster should be a clean no-match: %q %v", got, err)
	}
	if called {
		t.Fatal("no request should be made with no candidates")
	}
}

func TestMatchServerErrorIsUnavailable(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	defer srv.Close()

	_, err := c.Match(context.Background(), "live", makeCandidates(1))
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("want ErrUnavailable, got %v", err)
	}
}

func TestMatchGarbageBodyIsUnavailable(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	})
	defer srv.Close()

	_, err := c.Match(context.Background(), "live", makeCandidates(1))
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("want ErrUnavailable, got %v", err)
	}
}

func TestMatchUnreachableIsUnavailable(t *testing.T) {
	log := zerolog.Nop()
	c := NewClient("http://127.0.0.1:1", "key", &log)
	_, err := c.Match(context.Background(), "live", makeCandidates(1))
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("want ErrUnavailable, got %v", err)
	}
}

func TestMatchIgnoresUnknownMatchID(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(matchResponse{MatchID: "never-sent"})
	})
	defer srv.Close()

	got, err := c.Match(context.Background(), "live", makeCandidates(2))
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if got != "" {
		t.Fatalf("unknown id must be treated as no match, got %q", got)
	}
}

func TestMatchHonorsCancellation(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(matchResponse{})
	})
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Match(ctx, "live", makeCandidates(30))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled, got %v", err)
	}
}
