package audit

import "context"

type userKey struct{}
type paramsKey struct{}

// WithUser attaches the acting user to ctx.
func WithUser(ctx context.Context, user string) context.Context {
	return context.WithValue(ctx, userKey{}, user)
}

// WithParams attaches extra fields recorded under "params".
func WithParams(ctx context.Context, params map[string]interface{}) context.Context {
	return context.WithValue(ctx, paramsKey{}, params)
}

// UserFromContext returns the user set by WithUser, or "unknown".
func UserFromContext(ctx context.Context) string {
	if ctx != nil {
		if user, ok := ctx.Value(userKey{}).(string); ok && user != "" {
			return user
		}
	}
	return "unknown"
}

// ParamsFromContext returns the params set by WithParams, or an empty map.
func ParamsFromContext(ctx context.Context) map[string]interface{} {
	if ctx != nil {
		if params, ok := ctx.Value(paramsKey{}).(map[string]interface{}); ok && params != nil {
			return params
		}
	}
	return make(map[string]interface{})
}
