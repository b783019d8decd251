package backend

import (
	"context"
	"net/http"
	"strings"

	gocache "github.com/patrickmn/go-cache"
	"go.opentelemetry.io/otel/metric"

	"github.com/MrWong99/podwright/internal/observe"
	"github.com/MrWong99/podwright/pkg/podcast"
)

// Configuration endpoints. The documents change only when the backend is
// redeployed, so they are cached for the client's configured TTL. Returned
// documents are shared with the cache and must be treated as read-only.
const (
	pathPodcastConfig   = "/api/config"
	pathVoiceOptions    = "/api/config/voice"
	pathVoiceMetadata   = "/api/config/voice/metadata"
	pathSpeakerMappings = "/api/config/voice/speaker-mappings"
	pathStylePresets    = "/api/config/voice/style-presets"
)

// PodcastConfig fetches the concept form's option set.
func (c *Client) PodcastConfig(ctx context.Context) (podcast.PodcastConfig, error) {
	return fetchConfig[podcast.PodcastConfig](ctx, c, pathPodcastConfig)
}

// VoiceOptions fetches the speaker form's option set and ranges.
func (c *Client) VoiceOptions(ctx context.Context) (podcast.VoiceConfigurationOptions, error) {
	return fetchConfig[podcast.VoiceConfigurationOptions](ctx, c, pathVoiceOptions)
}

// VoiceMetadata fetches display metadata keyed by voice style.
func (c *Client) VoiceMetadata(ctx context.Context) (map[string]podcast.VoiceMetadata, error) {
	return fetchConfig[map[string]podcast.VoiceMetadata](ctx, c, pathVoiceMetadata)
}

// SpeakerMappings fetches the predefined speaker configuration per voice.
func (c *Client) SpeakerMappings(ctx context.Context) (map[podcast.VoiceName]podcast.SpeakerConfig, error) {
	return fetchConfig[map[podcast.VoiceName]podcast.SpeakerConfig](ctx, c, pathSpeakerMappings)
}

// StylePresets fetches the named style presets. Callers that cannot proceed
// without presets fall back to [podcast.FallbackStylePresets].
func (c *Client) StylePresets(ctx context.Context) (podcast.StylePresets, error) {
	return fetchConfig[podcast.StylePresets](ctx, c, pathStylePresets)
}

// InvalidateConfig drops every cached configuration document.
func (c *Client) InvalidateConfig() {
	if c.cache != nil {
		c.cache.Flush()
	}
}

func fetchConfig[T any](ctx context.Context, c *Client, path string) (T, error) {
	if c.cache != nil {
		if v, ok := c.cache.Get(path); ok {
			if doc, ok := v.(T); ok {
				c.metrics.ConfigCacheHits.Add(ctx, 1,
					metric.WithAttributes(observe.Attr("endpoint", strings.TrimPrefix(path, "/api/"))))
				return doc, nil
			}
		}
	}

	var doc T
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &doc); err != nil {
		return doc, err
	}
	if c.cache != nil {
		c.cache.Set(path, doc, gocache.DefaultExpiration)
	}
	c.log.Debug("fetched backend configuration", "endpoint", strings.TrimPrefix(path, "/api/"))
	return doc, nil
}
