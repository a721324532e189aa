package dispatch

import (
	"bytes"
	"net/http"
)

// responseBuffer holds the handler's response until the dispatcher knows
// whether it succeeded.
type responseBuffer struct {
	header      http.Header
	status      int
	wroteHeader bool
	body        bytes.Buffer
}

func newResponseBuffer() *responseBuffer {
	return &responseBuffer{header: make(http.Header)}
}

func (b *responseBuffer) Header() http.Header {
	return b.header
}

func (b *responseBuffer) WriteHeader(status int) {
	if b.wroteHeader {
		return
	}
	b.status = status
	b.wroteHeader = true
}

func (b *responseBuffer) Write(p []byte) (int, error) {
	if !b.wroteHeader {
		b.WriteHeader(http.StatusOK)
	}
	return b.body.Write(p)
}

func (b *responseBuffer) statusCode() int {
	if b.status == 0 {
		return http.StatusOK
	}
	return b.status
}

// copyHeaders copies buffered headers into dst. Body-describing headers are
// skipped when the body is about to be replaced.
func (b *responseBuffer) copyHeaders(dst http.Header, replacingBody bool) {
	for k, v := range b.header {
		if replacingBody {
			switch http.CanonicalHeaderKey(k) {
			case "Content-Type", "Content-Length", "Content-Encoding":
				continue
			}
		}
		dst[k] = append([]string(nil), v...)
	}
}
