package diag

import "context"

type contextKeys string

const (
	requestIDKey contextKeys = "requestID"
	dialogIDKey  contextKeys = "dialogID"
)

// ContextWithRequestID - create context with requestID
func ContextWithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDValue - returns requestID value taken from context
func RequestIDValue(ctx context.Context) string {
	val := ctx.Value(requestIDKey)
	if val == nil {
		return ""
	}
	return val.(string)
}

// ContextWithDialogID - create context with FinTS dialogID
func ContextWithDialogID(ctx context.Context, dialogID string) context.Context {
	return context.WithValue(ctx, dialogIDKey, dialogID)
}

// DialogIDValue - returns dialogID value taken from context
func DialogIDValue(ctx context.Context) string {
	val := ctx.Value(dialogIDKey)
	if val == nil {
		return ""
	}
	return val.(string)
}

func contextData(ctx context.Context) map[string]string {
	data := map[string]string{}
	if requestID := RequestIDValue(ctx); requestID != "" {
		data["requestID"] = requestID
	}
	if dialogID := DialogIDValue(ctx); dialogID != "" {
		data["dialogID"] = dialogID
	}
	return data
}
