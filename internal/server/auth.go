package server

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"path"
	"strings"

	"github.com/danielgtaylor/huma/v2"
)

func bearerToken(authz string) (string, bool) {
	parts := strings.Fields(authz)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	return parts[1], true
}

// newAdminKeyMiddleware guards <base>/sessions. Respondent, question and
// health routes stay public. An empty key disables the check.
func newAdminKeyMiddleware(basePath, adminKey string) func(http.Handler) http.Handler {
	sessionsPath := path.Join(basePath, "sessions")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if adminKey == "" || !strings.HasPrefix(req.URL.Path, sessionsPath) {
				next.ServeHTTP(w, req)
				return
			}
			presented := strings.TrimSpace(req.Header.Get("X-Api-Key"))
			if presented == "" {
				authz := strings.TrimSpace(req.Header.Get("Authorization"))
				if authz != "" {
					tok, ok := bearerToken(authz)
					if !ok {
						respondStatusError(w, newAPIError(http.StatusUnauthorized, "invalid_credentials", "invalid credentials", nil))
						return
					}
					presented = tok
				}
			}
			if presented == "" {
				respondStatusError(w, newAPIError(http.StatusUnauthorized, "unauthorized", "authentication required", nil))
				return
			}
			if subtle.ConstantTimeCompare([]byte(presented), []byte(adminKey)) != 1 {
				respondStatusError(w, newAPIError(http.StatusUnauthorized, "invalid_credentials", "invalid credentials", nil))
				return
			}
			next.ServeHTTP(w, req)
		})
	}
}

func respondStatusError(w http.ResponseWriter, err huma.StatusError) {
	status := http.StatusInternalServerError
	if e, ok := err.(interface{ GetStatus() int }); ok {
		status = e.GetStatus()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(err)
}
