package api

import (
	"context"
	"net/http"

	"caredesk.io/telehealth/internal/store"
)

func contextWithIdentity(ctx context.Context, subject string, role store.Role) context.Context {
	ctx = context.WithValue(ctx, ctxSubject, subject)
	return context.WithValue(ctx, ctxRole, role)
}

func subjectFrom(r *http.Request) string {
	subject, _ := r.Context().Value(ctxSubject).(string)
	return subject
}

func roleFrom(r *http.Request) store.Role {
	role, _ := r.Context().Value(ctxRole).(store.Role)
	return role
}
