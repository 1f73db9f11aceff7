package server

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/rolodexhq/rolodex/internal/services/crm/domain"
)

func decodeStructuredContent[T any](t *testing.T, content any) T {
	t.Helper()
	data, err := json.Marshal(content)
	if err != nil {
		t.Fatalf("marshal structured content: %v", err)
	}
	var out T
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal structured content: %v", err)
	}
	return out
}

// startServer boots a server over an in-memory transport and returns a
// connected client session.
func startServer(t *testing.T) (*mcp.ClientSession, func()) {
	t.Helper()

	server, err := New(filepath.Join(t.TempDir(), "crm.db"))
	if err != nil {
		t.Fatalf("new server: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	serverTransport, clientTransport := mcp.NewInMemoryTransports()

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.serveWithTransport(ctx, serverTransport)
	}()

	client := mcp.NewClient(&mcp.Implementation{Name: "client", Version: "v0.0.1"}, nil)
	connectCtx, connectCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer connectCancel()
	session, err := client.Connect(connectCtx, clientTransport, nil)
	if err != nil {
		cancel()
		t.Fatalf("connect client: %v", err)
	}

	stop := func() {
		_ = session.Close()
		cancel()
		select {
		case err := <-serveErr:
			if err != nil {
				t.Errorf("serve returned error: %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Error("server did not stop on context cancellation")
		}
	}
	return session, stop
}

func callTool(t *testing.T, session *mcp.ClientSession, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	result, err := session.CallTool(ctx, &mcp.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		t.Fatalf("call %s: %v", name, err)
	}
	if result == nil {
		t.Fatalf("call %s returned nil", name)
	}
	return result
}

func TestServerRegistersAllTools(t *testing.T) {
	session, stop := startServer(t)
	defer stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	tools, err := session.ListTools(ctx, nil)
	if err != nil {
		t.Fatalf("list tools: %v", err)
	}

	want := map[string]bool{
		"contact_create": false,
		"contact_get":    false,
		"contact_list":   false,
		"contact_update": false,
		"contact_delete": false,
		"contact_tag":    false,
		"note_add":       false,
		"note_list":      false,
		"note_delete":    false,
	}
	for _, tool := range tools.Tools {
		if _, ok := want[tool.Name]; ok {
			want[tool.Name] = true
		}
	}
	for name, seen := range want {
		if !seen {
			t.Errorf("tool %q is not registered", name)
		}
	}
}

func TestContactLifecycleOverMCP(t *testing.T) {
	session, stop := startServer(t)
	defer stop()

	created := decodeStructuredContent[domain.ContactCreateResult](t, callTool(t, session, "contact_create", map[string]any{
		"owner_id": "o1",
		"name":     "Ada Lovelace",
		"email":    "ada@example.com",
		"tags":     []string{"vip"},
	}).StructuredContent)
	if created.Contact.ID == "" {
		t.Fatal("contact_create returned empty id")
	}

	listed := decodeStructuredContent[domain.ContactListResult](t, callTool(t, session, "contact_list", map[string]any{
		"owner_id": "o1",
	}).StructuredContent)
	if listed.Count != 1 || listed.Contacts[0].Name != "Ada Lovelace" {
		t.Fatalf("unexpected listing %+v", listed)
	}

	noteResult := decodeStructuredContent[domain.NoteAddResult](t, callTool(t, session, "note_add", map[string]any{
		"owner_id":   "o1",
		"contact_id": created.Contact.ID,
		"body":       "met at the symposium",
	}).StructuredContent)
	if noteResult.Note.ID == "" {
		t.Fatal("note_add returned empty id")
	}

	deleted := decodeStructuredContent[domain.ContactDeleteResult](t, callTool(t, session, "contact_delete", map[string]any{
		"owner_id":   "o1",
		"contact_id": created.Contact.ID,
	}).StructuredContent)
	if !deleted.Deleted {
		t.Fatalf("unexpected delete result %+v", deleted)
	}

	afterDelete := callTool(t, session, "contact_get", map[string]any{
		"owner_id":   "o1",
		"contact_id": created.Contact.ID,
	})
	if !afterDelete.IsError {
		t.Fatal("expected contact_get to fail after delete")
	}
}

func TestContactResourceOverMCP(t *testing.T) {
	session, stop := startServer(t)
	defer stop()

	created := decodeStructuredContent[domain.ContactCreateResult](t, callTool(t, session, "contact_create", map[string]any{
		"owner_id": "o1",
		"name":     "Grace Hopper",
	}).StructuredContent)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	result, err := session.ReadResource(ctx, &mcp.ReadResourceParams{URI: domain.ContactListURI("o1")})
	if err != nil {
		t.Fatalf("read resource: %v", err)
	}
	if len(result.Contents) != 1 {
		t.Fatalf("expected one content block, got %d", len(result.Contents))
	}

	var payload domain.ContactListPayload
	if err := json.Unmarshal([]byte(result.Contents[0].Text), &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if len(payload.Contacts) != 1 || payload.Contacts[0].ID != created.Contact.ID {
		t.Fatalf("unexpected resource payload %+v", payload)
	}
}
