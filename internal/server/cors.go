package server

import (
	"net/http"
	"strings"

	"inspector-report/internal/config"
)

const (
	corsAllowMethods = "POST, GET, OPTIONS"
	corsAllowHeaders = "Content-Type, Accept"

	extensionScheme = "chrome-extension://"
)

// corsPolicy decides which browser origins may read responses.
//
//   - no Origin header: allowed (curl, server-to-server)
//   - "*" in the allow-list: every origin
//   - exact match against the allow-list
//   - chrome-extension://<id> when extension origins are enabled and the id
//     is listed (an empty id list admits any extension)
type corsPolicy struct {
	anyOrigin    bool
	origins      map[string]struct{}
	extensions   bool
	extensionIDs map[string]struct{}
}

func newCORSPolicy(cfg config.Config) *corsPolicy {
	p := &corsPolicy{
		origins:      make(map[string]struct{}, len(cfg.AllowedOrigins)),
		extensions:   cfg.AllowChromeExtensionOrigins,
		extensionIDs: make(map[string]struct{}, len(cfg.AllowedExtensionIDs)),
	}
	for _, o := range cfg.AllowedOrigins {
		if o == "*" {
			p.anyOrigin = true
		}
		p.origins[o] = struct{}{}
	}
	for _, id := range cfg.AllowedExtensionIDs {
		p.extensionIDs[id] = struct{}{}
	}
	return p
}

func (p *corsPolicy) allowed(origin string) bool {
	if origin == "" || p.anyOrigin {
		return true
	}
	if _, ok := p.origins[origin]; ok {
		return true
	}
	if !p.extensions || !strings.HasPrefix(origin, extensionScheme) {
		return false
	}
	id := strings.TrimSpace(strings.TrimPrefix(origin, extensionScheme))
	if id == "" {
		return false
	}
	if len(p.extensionIDs) == 0 {
		return true
	}
	_, ok := p.extensionIDs[id]
	return ok
}

// wrap adds CORS headers and answers every preflight with 204. A request
// from a rejected origin is still served, just without CORS headers, so
// the browser withholds the response.
func (p *corsPolicy) wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		h := w.Header()

		switch {
		case origin == "":
			if r.Method == http.MethodOptions {
				h.Set("Access-Control-Allow-Origin", "*")
			}
		case p.allowed(origin):
			h.Set("Access-Control-Allow-Origin", origin)
			h.Add("Vary", "Origin")
		}

		if r.Method == http.MethodOptions {
			h.Set("Access-Control-Allow-Methods", corsAllowMethods)
			h.Set("Access-Control-Allow-Headers", corsAllowHeaders)
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
