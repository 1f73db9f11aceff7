package domain

import (
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/rolodexhq/rolodex/internal/services/crm/storage"
)

// NoteRecord is the wire shape of one note in tool results and resource
// payloads.
type NoteRecord struct {
	ID        string `json:"id" jsonschema:"note identifier"`
	ContactID string `json:"contact_id" jsonschema:"contact the note belongs to"`
	Body      string `json:"body" jsonschema:"note text"`
	CreatedAt string `json:"created_at" jsonschema:"RFC3339 timestamp when note was created"`
}

// NoteAddInput represents the MCP tool input for adding a note.
type NoteAddInput struct {
	OwnerID   string `json:"owner_id" jsonschema:"owner identifier"`
	ContactID string `json:"contact_id" jsonschema:"contact identifier"`
	Body      string `json:"body" jsonschema:"note text; must not be blank"`
}

// NoteAddResult represents the MCP tool output for adding a note.
type NoteAddResult struct {
	Note NoteRecord `json:"note" jsonschema:"the created note"`
}

// NoteAddTool defines the MCP tool schema for adding a note.
func NoteAddTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "note_add",
		Description: "Adds a note to a contact. The contact must exist and belong to the owner.",
	}
}

// NoteListInput represents the MCP tool input for listing a contact's notes.
type NoteListInput struct {
	OwnerID   string `json:"owner_id" jsonschema:"owner identifier"`
	ContactID string `json:"contact_id" jsonschema:"contact identifier"`
}

// NoteListResult represents the MCP tool output for listing a contact's notes.
type NoteListResult struct {
	Notes []NoteRecord `json:"notes" jsonschema:"notes in creation order"`
	Count int          `json:"count" jsonschema:"number of notes returned"`
}

// NoteListTool defines the MCP tool schema for listing a contact's notes.
func NoteListTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "note_list",
		Description: "Lists a contact's notes in creation order. Served from the query cache.",
	}
}

// NoteDeleteInput represents the MCP tool input for deleting a note.
type NoteDeleteInput struct {
	OwnerID   string `json:"owner_id" jsonschema:"owner identifier"`
	ContactID string `json:"contact_id" jsonschema:"contact identifier"`
	NoteID    string `json:"note_id" jsonschema:"note identifier"`
}

// NoteDeleteResult represents the MCP tool output for deleting a note.
type NoteDeleteResult struct {
	ID      string `json:"id" jsonschema:"identifier of the deleted note"`
	Deleted bool   `json:"deleted" jsonschema:"true when the note was removed"`
}

// NoteDeleteTool defines the MCP tool schema for deleting a note.
func NoteDeleteTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "note_delete",
		Description: "Deletes one note from a contact, scoped to the owner.",
	}
}

func noteRecordFrom(note storage.Note) NoteRecord {
	return NoteRecord{
		ID:        note.ID,
		ContactID: note.ContactID,
		Body:      note.Body,
		CreatedAt: formatTimestamp(note.CreatedAt),
	}
}
