package middleware

import (
	"context"
	"net/http"

	"grievancedesk/internal/models"
)

type ctxKey string

const (
	ctxRequestID ctxKey = "request_id"
	ctxSubject   ctxKey = "subject"
)

func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxRequestID, id)
}

func RequestID(ctx context.Context) string {
	v, _ := ctx.Value(ctxRequestID).(string)
	return v
}

func WithSubject(ctx context.Context, u models.User) context.Context {
	return context.WithValue(ctx, ctxSubject, u)
}

// Subject returns the authenticated identity attached by Authn.
func Subject(ctx context.Context) (models.User, bool) {
	u, ok := ctx.Value(ctxSubject).(models.User)
	return u, ok
}

func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "same-origin")
		next.ServeHTTP(w, r)
	})
}
