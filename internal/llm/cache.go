package llm

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"

	"github.com/raine/telegram-identify-bot/internal/media"
	"github.com/raine/telegram-identify-bot/internal/storage"
	"github.com/rs/zerolog/log"
)

// CachedGenerator wraps a Generator with a persistent response cache.
type CachedGenerator struct {
	inner Generator
	model string
	store storage.ResponseCache
}

// NewCachedGenerator creates a cached generator. model is part of the cache
// key so switching models does not serve old answers.
func NewCachedGenerator(inner Generator, model string, store storage.ResponseCache) *CachedGenerator {
	return &CachedGenerator{inner: inner, model: model, store: store}
}

// requestHash creates a SHA256 hash of everything that determines the answer.
// Each field is length prefixed to prevent boundary collisions.
func requestHash(model, prompt string, image *media.InlinePayload) string {
	h := sha256.New()
	fields := []string{model, prompt, "", ""}
	if image != nil {
		fields[2] = image.MIMEType
		fields[3] = image.Data
	}
	for _, f := range fields {
		binary.Write(h, binary.LittleEndian, int64(len(f)))
		h.Write([]byte(f))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Generate implements Generator with caching. Failures are never cached.
func (c *CachedGenerator) Generate(ctx context.Context, prompt string, image *media.InlinePayload) (*Response, error) {
	hash := requestHash(c.model, prompt, image)

	if c.store != nil {
		cached, err := c.store.GetResponse(hash)
		if err != nil {
			log.Warn().Err(err).Msg("failed to check response cache")
		} else if cached != nil {
			log.Debug().Str("hash", hash[:16]).Msg("response cache hit")
			return &Response{Text: cached.Text, Cached: true}, nil
		}
	}

	resp, err := c.inner.Generate(ctx, prompt, image)
	if err != nil {
		return nil, err
	}

	if c.store != nil && resp.Text != "" {
		if err := c.store.SetResponse(hash, &storage.CachedResponse{Model: c.model, Text: resp.Text}); err != nil {
			log.Warn().Err(err).Msg("failed to cache response")
		} else {
			log.Debug().Str("hash", hash[:16]).Msg("cached response")
		}
	}

	return resp, nil
}
