package domain

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/rolodexhq/rolodex/internal/platform/timeouts"
)

// ContactListPayload is the JSON body of the contact listing resource.
type ContactListPayload struct {
	OwnerID  string          `json:"owner_id"`
	Contacts []ContactRecord `json:"contacts"`
	Stale    bool            `json:"stale,omitempty"`
}

// ContactPayload is the JSON body of the single-contact resource.
type ContactPayload struct {
	Contact ContactRecord `json:"contact"`
	Stale   bool          `json:"stale,omitempty"`
}

// NoteListPayload is the JSON body of the note listing resource.
type NoteListPayload struct {
	OwnerID   string       `json:"owner_id"`
	ContactID string       `json:"contact_id"`
	Notes     []NoteRecord `json:"notes"`
	Stale     bool         `json:"stale,omitempty"`
}

// ContactListResourceTemplate defines the MCP resource template for contact
// listings.
func ContactListResourceTemplate() *mcp.ResourceTemplate {
	return &mcp.ResourceTemplate{
		Name:        "contact_list",
		Title:       "Contacts",
		Description: "Readable listing of an owner's contacts. URI format: contacts://{owner_id}",
		MIMEType:    "application/json",
		URITemplate: "contacts://{owner_id}",
	}
}

// ContactResourceTemplate defines the MCP resource template for one contact.
func ContactResourceTemplate() *mcp.ResourceTemplate {
	return &mcp.ResourceTemplate{
		Name:        "contact",
		Title:       "Contact",
		Description: "Readable view of one contact. URI format: contacts://{owner_id}/{contact_id}",
		MIMEType:    "application/json",
		URITemplate: "contacts://{owner_id}/{contact_id}",
	}
}

// NoteListResourceTemplate defines the MCP resource template for a contact's
// notes.
func NoteListResourceTemplate() *mcp.ResourceTemplate {
	return &mcp.ResourceTemplate{
		Name:        "note_list",
		Title:       "Notes",
		Description: "Readable listing of a contact's notes. URI format: contacts://{owner_id}/{contact_id}/notes",
		MIMEType:    "application/json",
		URITemplate: "contacts://{owner_id}/{contact_id}/notes",
	}
}

// ContactListResourceHandler serves an owner's contact listing from the
// query cache. A failed refresh over existing data serves the stale value
// with the stale marker set.
func ContactListResourceHandler(queries ContactQueries) mcp.ResourceHandler {
	return func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		if queries == nil {
			return nil, fmt.Errorf("contact queries are not configured")
		}
		uri, err := resourceURI(req)
		if err != nil {
			return nil, err
		}
		ownerID, err := parseOwnerIDFromURI(uri)
		if err != nil {
			return nil, fmt.Errorf("parse owner ID from URI: %w", err)
		}

		runCtx, cancel := context.WithTimeout(ctx, timeouts.QueryFetch)
		defer cancel()

		handle, err := queries.ListContacts(runCtx, ownerID, "", "")
		if err != nil {
			return nil, fmt.Errorf("contact list rejected: %w", err)
		}
		defer handle.Release()
		if _, err := handle.Wait(runCtx); err != nil && !handle.Snapshot().HasData {
			return nil, fmt.Errorf("contact list failed: %w", err)
		}

		snapshot := handle.Snapshot()
		payload := ContactListPayload{
			OwnerID:  ownerID,
			Contacts: make([]ContactRecord, 0, len(snapshot.Current)),
			Stale:    snapshot.Err != nil,
		}
		for _, contact := range snapshot.Current {
			payload.Contacts = append(payload.Contacts, contactRecordFrom(contact))
		}
		return resourceResult(uri, payload)
	}
}

// ContactResourceHandler serves one contact from the query cache.
func ContactResourceHandler(queries ContactQueries) mcp.ResourceHandler {
	return func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		if queries == nil {
			return nil, fmt.Errorf("contact queries are not configured")
		}
		uri, err := resourceURI(req)
		if err != nil {
			return nil, err
		}
		ownerID, contactID, err := parseContactIDFromURI(uri)
		if err != nil {
			return nil, fmt.Errorf("parse contact ID from URI: %w", err)
		}

		runCtx, cancel := context.WithTimeout(ctx, timeouts.QueryFetch)
		defer cancel()

		handle, err := queries.GetContact(runCtx, ownerID, contactID)
		if err != nil {
			return nil, fmt.Errorf("contact get rejected: %w", err)
		}
		defer handle.Release()
		if _, err := handle.Wait(runCtx); err != nil && !handle.Snapshot().HasData {
			return nil, fmt.Errorf("contact get failed: %w", err)
		}

		snapshot := handle.Snapshot()
		payload := ContactPayload{
			Contact: contactRecordFrom(snapshot.Current),
			Stale:   snapshot.Err != nil,
		}
		return resourceResult(uri, payload)
	}
}

// NoteListResourceHandler serves a contact's notes from the query cache.
func NoteListResourceHandler(queries NoteQueries) mcp.ResourceHandler {
	return func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		if queries == nil {
			return nil, fmt.Errorf("note queries are not configured")
		}
		uri, err := resourceURI(req)
		if err != nil {
			return nil, err
		}
		ownerID, contactID, err := parseNoteListURI(uri)
		if err != nil {
			return nil, fmt.Errorf("parse note list URI: %w", err)
		}

		runCtx, cancel := context.WithTimeout(ctx, timeouts.QueryFetch)
		defer cancel()

		handle, err := queries.ListNotes(runCtx, ownerID, contactID)
		if err != nil {
			return nil, fmt.Errorf("note list rejected: %w", err)
		}
		defer handle.Release()
		if _, err := handle.Wait(runCtx); err != nil && !handle.Snapshot().HasData {
			return nil, fmt.Errorf("note list failed: %w", err)
		}

		snapshot := handle.Snapshot()
		payload := NoteListPayload{
			OwnerID:   ownerID,
			ContactID: contactID,
			Notes:     make([]NoteRecord, 0, len(snapshot.Current)),
			Stale:     snapshot.Err != nil,
		}
		for _, note := range snapshot.Current {
			payload.Notes = append(payload.Notes, noteRecordFrom(note))
		}
		return resourceResult(uri, payload)
	}
}

func resourceURI(req *mcp.ReadResourceRequest) (string, error) {
	if req == nil || req.Params == nil || req.Params.URI == "" {
		return "", fmt.Errorf("resource URI is required")
	}
	return req.Params.URI, nil
}

func resourceResult(uri string, payload any) (*mcp.ReadResourceResult, error) {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal resource payload: %w", err)
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{
			{
				URI:      uri,
				MIMEType: "application/json",
				Text:     string(data),
			},
		},
	}, nil
}
