// Package origin decides which browser origins may call the API and
// writes the matching CORS headers.
package origin

import "net/http"

// Guard validates request origins against an allowlist. The Origin
// header is mandatory on everything except a preflight, so curl and
// server-to-server callers are rejected outright. An empty allowlist
// rejects every request.
type Guard struct {
	allowed map[string]struct{}
}

func NewGuard(origins []string) *Guard {
	g := &Guard{allowed: make(map[string]struct{}, len(origins))}
	for _, o := range origins {
		g.allowed[o] = struct{}{}
	}
	return g
}

// Check validates r's Origin and, when allowed, writes the CORS response
// headers. It reports whether the request may proceed.
func (g *Guard) Check(w http.ResponseWriter, r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		// A preflight may arrive without an Origin; anything else must
		// come from a browser.
		return r.Method == http.MethodOptions
	}
	if _, ok := g.allowed[origin]; !ok {
		return false
	}
	h := w.Header()
	h.Set("Access-Control-Allow-Origin", origin)
	h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	h.Set("Vary", "Origin")
	return true
}
