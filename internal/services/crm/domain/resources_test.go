package domain

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

func readResource(t *testing.T, handler mcp.ResourceHandler, uri string) string {
	t.Helper()
	result, err := handler(context.Background(), &mcp.ReadResourceRequest{
		Params: &mcp.ReadResourceParams{URI: uri},
	})
	if err != nil {
		t.Fatalf("read resource %q: %v", uri, err)
	}
	if len(result.Contents) != 1 {
		t.Fatalf("expected one content block, got %d", len(result.Contents))
	}
	content := result.Contents[0]
	if content.URI != uri {
		t.Errorf("expected URI %q echoed, got %q", uri, content.URI)
	}
	if content.MIMEType != "application/json" {
		t.Errorf("expected JSON MIME type, got %q", content.MIMEType)
	}
	return content.Text
}

func TestContactListResourceHandler(t *testing.T) {
	q := newTestQueries(t)
	mustCreateContact(t, q, ContactCreateInput{OwnerID: "o1", Name: "Ada"})
	mustCreateContact(t, q, ContactCreateInput{OwnerID: "o2", Name: "Alan"})

	text := readResource(t, ContactListResourceHandler(q), "contacts://o1")

	var payload ContactListPayload
	if err := json.Unmarshal([]byte(text), &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.OwnerID != "o1" {
		t.Errorf("expected owner o1, got %q", payload.OwnerID)
	}
	if len(payload.Contacts) != 1 || payload.Contacts[0].Name != "Ada" {
		t.Errorf("expected only o1's contact, got %+v", payload.Contacts)
	}
	if payload.Stale {
		t.Error("expected fresh payload")
	}
}

func TestContactListResourceHandlerRejectsBadURI(t *testing.T) {
	q := newTestQueries(t)
	handler := ContactListResourceHandler(q)

	if _, err := handler(context.Background(), &mcp.ReadResourceRequest{
		Params: &mcp.ReadResourceParams{URI: "campaign://o1"},
	}); err == nil {
		t.Error("expected error for foreign scheme")
	}
	if _, err := handler(context.Background(), nil); err == nil {
		t.Error("expected error for missing request")
	}
}

func TestContactResourceHandler(t *testing.T) {
	q := newTestQueries(t)
	created := mustCreateContact(t, q, ContactCreateInput{OwnerID: "o1", Name: "Ada", Email: "ada@example.com"})

	text := readResource(t, ContactResourceHandler(q), "contacts://o1/"+created.ID)

	var payload ContactPayload
	if err := json.Unmarshal([]byte(text), &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.Contact.ID != created.ID || payload.Contact.Email != "ada@example.com" {
		t.Errorf("unexpected contact payload %+v", payload.Contact)
	}
}

func TestContactResourceHandlerNotFound(t *testing.T) {
	q := newTestQueries(t)
	if _, err := ContactResourceHandler(q)(context.Background(), &mcp.ReadResourceRequest{
		Params: &mcp.ReadResourceParams{URI: "contacts://o1/missing"},
	}); err == nil {
		t.Error("expected error for unknown contact")
	}
}

func TestNoteListResourceHandler(t *testing.T) {
	q := newTestQueries(t)
	created := mustCreateContact(t, q, ContactCreateInput{OwnerID: "o1", Name: "Ada"})
	if _, _, err := NoteAddHandler(q)(context.Background(), nil, NoteAddInput{OwnerID: "o1", ContactID: created.ID, Body: "hello"}); err != nil {
		t.Fatalf("note add: %v", err)
	}

	text := readResource(t, NoteListResourceHandler(q), "contacts://o1/"+created.ID+"/notes")

	var payload NoteListPayload
	if err := json.Unmarshal([]byte(text), &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.ContactID != created.ID || len(payload.Notes) != 1 || payload.Notes[0].Body != "hello" {
		t.Errorf("unexpected note payload %+v", payload)
	}
}

func TestWatchResourceForwardsRefreshSignals(t *testing.T) {
	q := newTestQueries(t)

	// The listing handle must exist before mutations can refresh it.
	handle, err := q.ListContacts(context.Background(), "o1", "", "")
	if err != nil {
		t.Fatalf("contact list: %v", err)
	}
	defer handle.Release()
	if _, err := handle.Wait(context.Background()); err != nil {
		t.Fatalf("wait: %v", err)
	}

	watchCtx, stop := context.WithCancel(context.Background())
	defer stop()

	var mu sync.Mutex
	var notified []string
	notify := func(_ context.Context, uri string) {
		mu.Lock()
		notified = append(notified, uri)
		mu.Unlock()
	}

	done := make(chan error, 1)
	go func() {
		done <- WatchResource(watchCtx, q, ContactListURI("o1"), notify)
	}()

	mustCreateContact(t, q, ContactCreateInput{OwnerID: "o1", Name: "Ada"})

	deadline := time.After(2 * time.Second)
	for {
		mu.Lock()
		count := len(notified)
		mu.Unlock()
		if count > 0 {
			break
		}
		// Keep re-triggering until the watcher's subscription is live;
		// signals before that point are dropped.
		handle.Refresh(context.Background())
		select {
		case <-deadline:
			t.Fatal("expected a resource update notification after create")
		case <-time.After(10 * time.Millisecond):
		}
	}

	mu.Lock()
	if notified[0] != "contacts://o1" {
		t.Errorf("expected listing URI, got %q", notified[0])
	}
	mu.Unlock()

	stop()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("watch returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("watch did not stop on context cancellation")
	}
}

func TestWatchResourceRejectsUnparseableURI(t *testing.T) {
	q := newTestQueries(t)
	if err := WatchResource(context.Background(), q, "bogus://o1", nil); err == nil {
		t.Error("expected error for foreign scheme")
	}
}
