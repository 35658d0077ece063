package middleware

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"strings"

	"datacatalog/pkg/apitoken"
	"datacatalog/pkg/config"
	"datacatalog/pkg/shared"
	"datacatalog/pkg/store"

	"github.com/charmbracelet/log"
)

type ctxKey int

const userIDKey ctxKey = 0

// WithUserID attaches the authenticated user id to ctx.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// UserIDFromContext returns the authenticated user id, or "" for anonymous
// requests.
func UserIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(userIDKey).(string)
	return id
}

// TokenAuth resolves the API token in the Authorization header, records
// its use and stores the owner's id in the request context. Requests
// without a token pass through anonymously; unknown tokens are rejected.
//
// The lookup session is closed before next runs so the handler can take
// the pooled connection.
func TokenAuth(db *sql.DB, cfg *config.Config) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := tokenFromHeader(r.Header.Get("Authorization"))
			if raw == "" {
				next.ServeHTTP(w, r)
				return
			}

			userID, err := authenticate(r.Context(), db, cfg, raw)
			if err != nil {
				log.Error("Token lookup failed", "err", err)
				sendJSONError(w, http.StatusInternalServerError, shared.CodeInternal, "Token lookup failed")
				return
			}
			if userID == "" {
				sendUnauthorized(w, "Invalid token")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
		})
	}
}

func authenticate(ctx context.Context, db *sql.DB, cfg *config.Config, raw string) (string, error) {
	sess := store.NewSession(db)
	defer sess.Close()

	tokens := apitoken.New(sess, cfg)
	tok, err := tokens.Get(ctx, raw)
	if err != nil || tok == nil {
		return "", err
	}
	if err := tokens.Touch(ctx, tok, true); err != nil {
		return "", err
	}
	return tok.UserID, nil
}

// tokenFromHeader accepts both a bare token and "Bearer <token>".
func tokenFromHeader(header string) string {
	header = strings.TrimSpace(header)
	parts := strings.Fields(header)
	if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
		return parts[1]
	}
	if len(parts) == 1 {
		return parts[0]
	}
	return ""
}

// RequireUser rejects anonymous requests.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if UserIDFromContext(r.Context()) == "" {
			sendUnauthorized(w, "Authorization required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func sendUnauthorized(w http.ResponseWriter, message string) {
	sendJSONError(w, http.StatusUnauthorized, shared.CodeUnauthorized, message)
}

func sendJSONError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	response := shared.Response{
		Success: false,
		Error: &shared.Error{
			Code:    code,
			Message: message,
		},
	}

	json.NewEncoder(w).Encode(response)
}

// CORS middleware for handling cross-origin requests
func CORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
