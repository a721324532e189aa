package metadata

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mssola/useragent"

	"quiz/pkg/requestcontext"
)

// Unknown is used when the client IP or User-Agent cannot be determined.
const Unknown = "unknown"

const requestIDSuffixLen = 9

// NewRequestContext builds the per-request context from the inbound headers.
// It reads only X-Request-ID, X-Forwarded-For, X-Real-IP and User-Agent.
func NewRequestContext(r *http.Request) *requestcontext.RequestContext {
	now := time.Now()

	requestID := strings.TrimSpace(r.Header.Get("X-Request-ID"))
	if requestID == "" {
		requestID = GenerateRequestID(now)
	}

	userAgent := r.Header.Get("User-Agent")
	if userAgent == "" {
		userAgent = Unknown
	}

	return requestcontext.New(requestID, ClientIPFromRequest(r), userAgent, now)
}

// GenerateRequestID returns "<unix-ms>-<9 random chars>". Unique in practice,
// not cryptographically.
func GenerateRequestID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:requestIDSuffixLen]
	return strconv.FormatInt(now.UnixMilli(), 10) + "-" + suffix
}

// ClientIPFromRequest extracts the client IP, handling proxies and load balancers.
// The socket address is not consulted.
func ClientIPFromRequest(r *http.Request) string {
	// X-Forwarded-For can contain multiple IPs (client, proxy1, proxy2, ...)
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}

	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}

	return Unknown
}

// DescribeUserAgent classifies a User-Agent string into log fields.
func DescribeUserAgent(raw string) map[string]any {
	if raw == "" || raw == Unknown {
		return map[string]any{"browser": Unknown}
	}
	ua := useragent.New(raw)
	browser, version := ua.Browser()
	fields := map[string]any{
		"browser": browser,
		"os":      ua.OS(),
		"mobile":  ua.Mobile(),
		"bot":     ua.Bot(),
	}
	if version != "" {
		fields["browserVersion"] = version
	}
	return fields
}
