package api

import "context"

type contextKey string

const pubkeyContextKey contextKey = "authenticated_pubkey"

func withPubkey(ctx context.Context, pubkey string) context.Context {
	return context.WithValue(ctx, pubkeyContextKey, pubkey)
}

// PubkeyFromContext returns the hex-encoded pubkey AuthenticatedPubkey
// verified for this request, if any.
func PubkeyFromContext(ctx context.Context) (string, bool) {
	pubkey, ok := ctx.Value(pubkeyContextKey).(string)
	return pubkey, ok
}
