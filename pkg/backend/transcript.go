package backend

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/MrWong99/podwright/pkg/podcast"
)

// ErrRejected is returned when the backend answers 2xx but reports
// success=false.
var ErrRejected = errors.New("backend rejected the request")

// TranscriptResponse is returned by the edit and extend endpoints.
type TranscriptResponse struct {
	Success                  bool     `json:"success"`
	Transcript               string   `json:"transcript"`
	WordCount                int      `json:"word_count"`
	EstimatedDurationMinutes float64  `json:"estimated_duration_minutes"`
	Characters               []string `json:"characters,omitempty"`
	Detail                   string   `json:"detail,omitempty"`
}

// ExtendRequest asks the backend to lengthen a transcript toward a target
// duration while keeping the given characters.
type ExtendRequest struct {
	Transcript            string   `json:"transcript"`
	TargetDurationMinutes int      `json:"target_duration_minutes"`
	Characters            []string `json:"characters"`
}

// GenerateTranscript asks the backend to write a transcript for concept over
// plain HTTP. The realtime channel offers the same operation without
// holding a request open.
func (c *Client) GenerateTranscript(ctx context.Context, concept podcast.Concept) (string, error) {
	var out string
	if err := c.doJSON(ctx, http.MethodPost, "/api/generate-transcript", concept, &out); err != nil {
		return "", err
	}
	return out, nil
}

// EditTranscript submits text for server-side normalisation.
func (c *Client) EditTranscript(ctx context.Context, text string) (*TranscriptResponse, error) {
	body := struct {
		Transcript string `json:"transcript"`
	}{text}
	return c.transcriptCall(ctx, "/api/edit-transcript", body)
}

// ExtendTranscript asks the backend to extend the transcript in req.
func (c *Client) ExtendTranscript(ctx context.Context, req ExtendRequest) (*TranscriptResponse, error) {
	if req.Characters == nil {
		req.Characters = []string{}
	}
	return c.transcriptCall(ctx, "/api/extend-transcript", req)
}

func (c *Client) transcriptCall(ctx context.Context, path string, body any) (*TranscriptResponse, error) {
	var out TranscriptResponse
	if err := c.doJSON(ctx, http.MethodPost, path, body, &out); err != nil {
		return nil, err
	}
	if !out.Success {
		detail := out.Detail
		if detail == "" {
			detail = "no detail given"
		}
		return &out, fmt.Errorf("%w: %s", ErrRejected, detail)
	}
	return &out, nil
}
