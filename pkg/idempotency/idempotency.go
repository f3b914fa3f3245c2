package idempotency

import (
	"net/http"
	"strings"
)

// Header carries the caller-derived key that lets the backend dedupe
// retried side-effecting requests.
const Header = "Idempotency-Key"

func Key(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(Header))
}

func Set(r *http.Request, key string) {
	if key != "" {
		r.Header.Set(Header, key)
	}
}
