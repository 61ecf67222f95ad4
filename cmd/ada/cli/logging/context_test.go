package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContextValues(t *testing.T) {
	ctx := t.Context()
	assert.Empty(t, SessionIDFromContext(ctx))
	assert.Empty(t, FeatureIDFromContext(ctx))
	assert.Empty(t, ComponentFromContext(ctx))
	assert.Empty(t, AgentFromContext(ctx))

	ctx = WithSession(ctx, "20260115_001_claude_feat-1")
	ctx = WithFeature(ctx, "feat-1")
	ctx = WithComponent(ctx, "harness")
	ctx = WithAgent(ctx, "claude")

	assert.Equal(t, "20260115_001_claude_feat-1", SessionIDFromContext(ctx))
	assert.Equal(t, "feat-1", FeatureIDFromContext(ctx))
	assert.Equal(t, "harness", ComponentFromContext(ctx))
	assert.Equal(t, "claude", AgentFromContext(ctx))
}

func TestAttrsFromContext(t *testing.T) {
	attrs := attrsFromContext(nil) //nolint:staticcheck // nil context handling
	assert.Empty(t, attrs)

	ctx := WithSession(t.Context(), "s1")
	attrs = attrsFromContext(ctx)
	assert.Len(t, attrs, 1)
	assert.Equal(t, "session_id", attrs[0].Key)
}
