package middlewares

const (
	CtxRequestID = "request_id"

	ctxIdentity   = "auth.identity"
	ctxAuthResult = "auth.result"
)
