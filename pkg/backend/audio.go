package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/MrWong99/podwright/internal/observe"
	"github.com/MrWong99/podwright/pkg/podcast"
	"github.com/MrWong99/podwright/pkg/sse"
)

// ErrNoSegmentAudio is returned when a segment stream ends without naming
// an audio file.
var ErrNoSegmentAudio = errors.New("segment stream produced no audio path")

// ErrSegmentFailed wraps an error event received on a segment stream.
var ErrSegmentFailed = errors.New("segment generation failed")

// AudioRequest asks for a full podcast rendering.
type AudioRequest struct {
	Transcript    string                `json:"transcript"`
	VoiceMappings podcast.VoiceMappings `json:"voiceMappings"`
}

// SegmentRequest asks for the audio of a single turn.
type SegmentRequest struct {
	Speaker     string              `json:"speaker"`
	Text        string              `json:"text"`
	VoiceConfig podcast.VoiceConfig `json:"voiceConfig"`
}

// GenerateAudio renders the whole transcript. Every stream event is
// recorded on the returned [Progress] and, if onUpdate is non-nil, passed
// to it as it arrives.
//
// A request or transport failure appends a synthetic error update and is
// also returned; the Progress is non-nil in every case. A stream that ends
// without a complete or error event is logged, not returned.
func (c *Client) GenerateAudio(ctx context.Context, req AudioRequest, onUpdate func(ProgressUpdate)) (*Progress, error) {
	p := &Progress{}
	emit := func(u ProgressUpdate) {
		p.append(u)
		if onUpdate != nil {
			onUpdate(u)
		}
	}

	start := time.Now()
	c.metrics.ActiveStreams.Add(ctx, 1)
	defer func() {
		c.metrics.ActiveStreams.Add(ctx, -1)
		c.metrics.StreamDuration.Record(ctx, time.Since(start).Seconds())
	}()

	resp, err := c.send(ctx, http.MethodPost, "/api/generate-audio", req, contentTypeStream)
	if err != nil {
		emit(ErrorUpdate(err.Error()))
		return p, err
	}
	defer resp.Body.Close()

	if err := c.consume(ctx, resp.Body, emit); err != nil {
		emit(ErrorUpdate(err.Error()))
		return p, err
	}
	if !p.Terminated() {
		observe.Logger(ctx, c.log).Warn("audio stream ended without a final complete or error event",
			"updates", p.Len())
	}
	return p, nil
}

// GenerateSegmentAudio renders a single turn and returns the playable URL of
// the result: base URL + "/audio/" + the path from the first
// segment_complete event, or from the first segment of the complete event.
func (c *Client) GenerateSegmentAudio(ctx context.Context, req SegmentRequest) (string, error) {
	resp, err := c.send(ctx, http.MethodPost, "/api/generate-segment-audio", req, contentTypeStream)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var (
		path      string
		streamErr error
	)
	consumeErr := c.consume(ctx, resp.Body, func(u ProgressUpdate) {
		if streamErr != nil {
			return
		}
		switch u.Type {
		case UpdateSegmentComplete:
			if path == "" && u.SegmentPath != "" {
				path = u.SegmentPath
			}
		case UpdateComplete:
			if path == "" && len(u.Segments) > 0 {
				path = u.Segments[0].Path
			}
		case UpdateError:
			if u.Error == ParseFailureMessage && u.Stage == StageGenerationFailed {
				return
			}
			msg := u.Error
			if msg == "" {
				msg = "Unknown error"
			}
			streamErr = fmt.Errorf("%w: %s", ErrSegmentFailed, msg)
		}
	})
	switch {
	case streamErr != nil:
		return "", streamErr
	case consumeErr != nil:
		return "", consumeErr
	case path == "":
		return "", ErrNoSegmentAudio
	}
	return c.AudioURL(path), nil
}

// AudioURL resolves a backend-relative audio path to a playable URL.
func (c *Client) AudioURL(path string) string {
	return c.baseURL + "/audio/" + strings.TrimPrefix(path, "/")
}

// consume reads an SSE body and hands every decoded update to emit. Events
// without data are ignored. Undecodable payloads become a synthetic error
// update. The returned error is a transport failure.
func (c *Client) consume(ctx context.Context, body io.Reader, emit func(ProgressUpdate)) error {
	r := sse.NewReader(body)
	log := observe.Logger(ctx, c.log)
	for {
		ev, err := r.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			c.metrics.RecordBackendError(ctx, "stream", "transport")
			return fmt.Errorf("read event stream: %w", err)
		}
		if strings.TrimSpace(ev.Data) == "" {
			continue
		}

		var u ProgressUpdate
		if err := json.Unmarshal([]byte(ev.Data), &u); err != nil {
			log.Warn("undecodable progress event", "event", ev.Type, "err", err)
			u = ErrorUpdate(ParseFailureMessage)
		}
		c.metrics.RecordStreamEvent(ctx, string(u.Type))
		emit(u)
	}
}
