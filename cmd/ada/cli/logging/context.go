package logging

import (
	"context"
)

// Context keys for logging values.
// Using private types to avoid key collisions.
type contextKey int

const (
	sessionIDKey contextKey = iota
	featureIDKey
	componentKey
	agentKey
)

// WithSession adds a session ID to the context.
func WithSession(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionIDKey, sessionID)
}

// WithFeature adds a feature ID to the context.
func WithFeature(ctx context.Context, featureID string) context.Context {
	return context.WithValue(ctx, featureIDKey, featureID)
}

// WithComponent adds a component name to the context.
// Component names identify the subsystem generating logs
// (e.g., "harness", "verify", "api").
func WithComponent(ctx context.Context, component string) context.Context {
	return context.WithValue(ctx, componentKey, component)
}

// WithAgent adds an agent name to the context (e.g., "claude", "api").
func WithAgent(ctx context.Context, agent string) context.Context {
	return context.WithValue(ctx, agentKey, agent)
}

// SessionIDFromContext extracts the session ID from the context.
// Returns empty string if not set.
func SessionIDFromContext(ctx context.Context) string {
	if v := ctx.Value(sessionIDKey); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// FeatureIDFromContext extracts the feature ID from the context.
// Returns empty string if not set.
func FeatureIDFromContext(ctx context.Context) string {
	if v := ctx.Value(featureIDKey); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// ComponentFromContext extracts the component name from the context.
// Returns empty string if not set.
func ComponentFromContext(ctx context.Context) string {
	if v := ctx.Value(componentKey); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// AgentFromContext extracts the agent name from the context.
// Returns empty string if not set.
func AgentFromContext(ctx context.Context) string {
	if v := ctx.Value(agentKey); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
