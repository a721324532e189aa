package models

import "strings"

// KeyPrefix namespaces rate limit counters in shared stores.
const KeyPrefix = "ratelimit:ip:"

// SanitizeKeySegment escapes delimiter characters in rate limit key segments
// to prevent key collision attacks where user-controlled identifiers containing
// ':' could manipulate adjacent rate limit buckets.
func SanitizeKeySegment(s string) string {
	return strings.ReplaceAll(s, ":", "_")
}

// ClientKey builds the counter key for a client IP. IPv6 colons are escaped.
func ClientKey(ip string) string {
	if ip == "" {
		ip = "unknown"
	}
	return KeyPrefix + SanitizeKeySegment(ip)
}
