package common

import "context"

type ctxKey string

const (
	agentIDKey   ctxKey = "auth/agent-id"
	agentNameKey ctxKey = "auth/agent-name"
)

// WithAgent stores the authenticated sales agent on the provided context.
func WithAgent(ctx context.Context, id, name string) context.Context {
	ctx = context.WithValue(ctx, agentIDKey, id)
	return context.WithValue(ctx, agentNameKey, name)
}

// AgentID extracts the authenticated agent identifier from the context if present.
func AgentID(ctx context.Context) (string, bool) {
	v := ctx.Value(agentIDKey)
	if v == nil {
		return "", false
	}
	id, ok := v.(string)
	return id, ok && id != ""
}

// AgentName returns the display name of the authenticated agent.
func AgentName(ctx context.Context) string {
	name, _ := ctx.Value(agentNameKey).(string)
	return name
}
