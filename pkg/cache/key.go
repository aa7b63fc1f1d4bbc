package cache

import (
	"fmt"
	"maps"
	"net/url"
	"slices"
	"strings"
)

// KeyPrefix is the namespace of all page cache keys in Redis.
const KeyPrefix = "pagewindow:page"

// PageKey identifies one cached backend page.
type PageKey struct {
	// Endpoint is the collection path (e.g., "/v1/articles")
	Endpoint string

	// Offset and Limit are the requested window.
	Offset int64
	Limit  int64

	// Query holds the remaining query parameters (filters, sort order).
	Query url.Values
}

// String generates a deterministic cache key string.
// Format: pagewindow:page:endpoint:offset=0:limit=25:q1=v1
//
// Example:
//
//	pagewindow:page:v1/articles:offset=25:limit=25:sort=title
func (k PageKey) String() string {
	return endpointPrefix(k.Endpoint) + k.window()
}

func (k PageKey) window() string {
	parts := []string{
		fmt.Sprintf("offset=%d", k.Offset),
		fmt.Sprintf("limit=%d", k.Limit),
	}

	// Sorted for determinism
	for _, name := range slices.Sorted(maps.Keys(k.Query)) {
		if name == "offset" || name == "limit" {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s=%s", name, strings.Join(k.Query[name], ",")))
	}

	return strings.Join(parts, ":")
}

// endpointPrefix is the key prefix shared by every page of an endpoint.
func endpointPrefix(endpoint string) string {
	endpoint = strings.Trim(endpoint, "/")
	if endpoint == "" {
		return KeyPrefix + ":"
	}
	return KeyPrefix + ":" + endpoint + ":"
}
