package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strings"
	"time"
)

// Cache stores fetched response bodies
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration) error
	Delete(key string) error
	Clear() error
}

// keyPrefix is bumped whenever the cached body format changes
const keyPrefix = "petitionlens:v1:"

// CacheKey derives the cache key of a URL.
// Host case, query parameter order and fragments do not change the key.
func CacheKey(rawURL string) string {
	hash := sha256.Sum256([]byte(normalizeURL(rawURL)))
	return keyPrefix + hex.EncodeToString(hash[:])
}

func normalizeURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.RawFragment = ""
	if u.RawQuery != "" {
		u.RawQuery = u.Query().Encode()
	}
	return u.String()
}
