package domain

import (
	"context"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/rolodexhq/rolodex/internal/platform/id"
)

// InvocationIDKey is the result metadata key carrying the tool invocation
// identifier.
const InvocationIDKey = "invocation_id"

// ResourceUpdateNotifier notifies MCP clients about resource updates.
type ResourceUpdateNotifier func(ctx context.Context, uri string)

// NewInvocationID generates an invocation identifier for a tool call.
func NewInvocationID() (string, error) {
	return id.NewID()
}

// CallToolResultWithInvocation builds a tool result carrying the invocation
// identifier so callers can correlate logs and traces.
func CallToolResultWithInvocation(invocationID string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Meta: map[string]any{
			InvocationIDKey: invocationID,
		},
	}
}

// NotifyResourceUpdates sends resource update notifications for each URI
// provided.
func NotifyResourceUpdates(ctx context.Context, notify ResourceUpdateNotifier, uris ...string) {
	if notify == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	for _, uri := range uris {
		if strings.TrimSpace(uri) == "" {
			continue
		}
		notify(ctx, uri)
	}
}
