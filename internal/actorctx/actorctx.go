// Package actorctx carries the authenticated identity and request id on a
// context.Context so code below the HTTP layer can read them.
package actorctx

import (
	"context"

	"github.com/geocoder89/projecthub/internal/auth"
)

type ctxKey string

const (
	keyIdentity  ctxKey = "identity"
	keyRequestID ctxKey = "request_id"
)

func WithIdentity(ctx context.Context, id auth.Identity) context.Context {
	return context.WithValue(ctx, keyIdentity, id)
}

func IdentityFrom(ctx context.Context) (auth.Identity, bool) {
	v, ok := ctx.Value(keyIdentity).(auth.Identity)

	return v, ok && v.UserID != ""
}

func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, keyRequestID, id)
}

func RequestID(ctx context.Context) string {
	v, _ := ctx.Value(keyRequestID).(string)
	return v
}
