package httpserver

import (
	"net/http"

	"github.com/Clark-Hu/usbest/internal/auth"
)

// authenticate attaches the caller's user id when a bearer token is present.
// A present but invalid token is rejected; a missing one passes through.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			next.ServeHTTP(w, r)
			return
		}
		token, ok := auth.BearerToken(header)
		if !ok || s.verifier == nil {
			s.respondUnauthorized(w)
			return
		}
		userID, err := s.verifier.UserID(token)
		if err != nil {
			s.respondUnauthorized(w)
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.WithUserID(r.Context(), userID)))
	})
}

func (s *Server) requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := auth.UserIDFrom(r.Context()); !ok {
			s.respondUnauthorized(w)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) respondUnauthorized(w http.ResponseWriter) {
	s.respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Missing or invalid authentication information")
}

func currentUser(r *http.Request) string {
	id, _ := auth.UserIDFrom(r.Context())
	return id
}
