package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// ErrUnavailable means the vision service could not be reached or answered
// with garbage. Callers stop scanning and surface a retry prompt instead
// of looping.
var ErrUnavailable = errors.New("matching service unavailable")

// Candidate is one attendee offered to the matcher.
type Candidate struct {
	ID    string `json:"id"`
	Photo string `json:"photo"`
}

// Matcher compares one live capture against candidate photos and returns
// the id of the single matching candidate, or "" for no match. It never
// mutates attendee state; results feed back through the lifecycle engine.
type Matcher interface {
	Match(ctx context.Context, liveImage string, candidates []Candidate) (string, error)
}

// batchSize is how many candidate photos go to the vision API per request.
const batchSize = 10

// Client calls the external vision-matching API in sequential sub-batches,
// short-circuiting on the first positive match.
type Client struct {
	endpoint string
	apiKey   string
	http     *http.Client
	log      *zerolog.Logger
}

func NewClient(endpoint, apiKey string, log *zerolog.Logger) *Client {
	return &Client{
		endpoint: endpoint,
		apiKey:   apiKey,
		http:     &http.Client{Timeout: 30 * time.Second},
		log:      log,
	}
}

type matchRequest struct {
	LiveImage  string      `json:"live_image"`
	Candidates []Candidate `json:"candidates"`
}

type matchResponse struct {
	MatchID string `json:"match_id"`
}

func (c *Client) Match(ctx context.Context, liveImage string, candidates []Candidate) (string, error) {
	// candidates with no photo cannot match; dropping them here keeps a
	// bad record from failing the whole batch
	usable := make([]Candidate, 0, len(candidates))
	for _, cand := range candidates {
		if cand.Photo != "" {
			usable = append(usable, cand)
		}
	}

	for start := 0; start < len(usable); start += batchSize {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		end := start + batchSize
		if end > len(usable) {
			end = len(usable)
		}
		matchID, err := c.matchBatch(ctx, liveImage, usable[start:end])
		if err != nil {
			return "", err
		}
		if matchID != "" {
			return matchID, nil
		}
	}
	return "", nil
}

func (c *Client) matchBatch(ctx context.Context, liveImage string, batch []Candidate) (string, error) {
	payload, err := json.Marshal(matchRequest{LiveImage: liveImage, Candidates: batch})
	if err != nil {
		return "", fmt.Errorf("failed to marshal match request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to build match request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		c.log.Warn().Err(err).Msg("vision API request failed")
		return "", ErrUnavailable
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.log.Warn().Int("status", resp.StatusCode).Msg("vision API returned an error status")
		return "", ErrUnavailable
	}

	var out matchResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		c.log.Warn().Err(err).Msg("vision API returned an unparsable body")
		return "", ErrUnavailable
	}

	// the API must name one of the candidates we sent
	if out.MatchID != "" {
		for _, cand := range batch {
			if cand.ID == out.MatchID {
				return out.MatchID, nil
			}
		}
		c.log.Warn().Str("match_id", out.MatchID).Msg("vision API named an unknown candidate, ignoring")
	}
	return "", nil
}
