package proposal

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/backend-proposal/internal/catalog"
	"github.com/noah-isme/backend-proposal/internal/common"
	"github.com/noah-isme/backend-proposal/internal/pricing"
)

const quoteKeyPrefix = "proposal:quote:"

// QuoteCache stores computed summaries in Redis as JSON. A nil client disables it.
type QuoteCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewQuoteCache constructs a cache helper.
func NewQuoteCache(client *redis.Client, ttl time.Duration) *QuoteCache {
	return &QuoteCache{client: client, ttl: ttl}
}

func (c *QuoteCache) enabled() bool {
	return c != nil && c.client != nil && c.ttl > 0
}

// GetJSON unmarshals a cached JSON payload into dst. It reports whether the key existed.
func (c *QuoteCache) GetJSON(ctx context.Context, key string, dst any) (bool, error) {
	if !c.enabled() || key == "" {
		return false, nil
	}
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, err
	}
	return true, nil
}

// SetJSON serialises v as JSON and stores it with the configured TTL.
func (c *QuoteCache) SetJSON(ctx context.Context, key string, v any) error {
	if !c.enabled() || key == "" {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, data, c.ttl).Err()
}

// QuoteKey derives the cache key for a selection priced against a catalog snapshot. The
// fingerprint is hashed in so edited amounts never hit entries of an unchanged version label.
// Line order is kept because line indexes appear in the result.
func QuoteKey(cat *catalog.Catalog, sel pricing.Selection) string {
	payload, _ := json.Marshal(sel)
	return quoteKeyPrefix + cat.Version() + ":" + common.Sha256Hex(cat.Fingerprint()+"|"+string(payload))
}

// Normalize trims the names agents type into a selection.
func Normalize(sel pricing.Selection) pricing.Selection {
	out := make(pricing.Selection, len(sel))
	for i, item := range sel {
		item.Category = strings.TrimSpace(item.Category)
		item.Variant = strings.TrimSpace(item.Variant)
		item.Mode = catalog.PurchaseMode(strings.TrimSpace(string(item.Mode)))
		out[i] = item
	}
	return out
}
