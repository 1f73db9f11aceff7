package domain

import (
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/rolodexhq/rolodex/internal/services/crm/storage"
)

// ContactRecord is the wire shape of one contact in tool results and
// resource payloads.
type ContactRecord struct {
	ID        string   `json:"id" jsonschema:"contact identifier"`
	OwnerID   string   `json:"owner_id" jsonschema:"owner identifier"`
	Name      string   `json:"name" jsonschema:"contact display name"`
	Email     string   `json:"email,omitempty" jsonschema:"contact email address"`
	Phone     string   `json:"phone,omitempty" jsonschema:"contact phone number"`
	Company   string   `json:"company,omitempty" jsonschema:"contact company"`
	Tags      []string `json:"tags,omitempty" jsonschema:"labels attached to the contact"`
	CreatedAt string   `json:"created_at" jsonschema:"RFC3339 timestamp when contact was created"`
	UpdatedAt string   `json:"updated_at" jsonschema:"RFC3339 timestamp when contact was last updated"`
}

// ContactCreateInput represents the MCP tool input for creating a contact.
type ContactCreateInput struct {
	OwnerID string   `json:"owner_id" jsonschema:"owner identifier scoping the contact"`
	Name    string   `json:"name" jsonschema:"contact display name"`
	Email   string   `json:"email,omitempty" jsonschema:"optional email address"`
	Phone   string   `json:"phone,omitempty" jsonschema:"optional phone number"`
	Company string   `json:"company,omitempty" jsonschema:"optional company"`
	Tags    []string `json:"tags,omitempty" jsonschema:"optional labels to attach"`
}

// ContactCreateResult represents the MCP tool output for creating a contact.
type ContactCreateResult struct {
	Contact ContactRecord `json:"contact" jsonschema:"the created contact"`
}

// ContactCreateTool defines the MCP tool schema for creating a contact.
func ContactCreateTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "contact_create",
		Description: "Creates a contact for an owner. Email must be unique per owner when provided.",
	}
}

// ContactGetInput represents the MCP tool input for fetching one contact.
type ContactGetInput struct {
	OwnerID   string `json:"owner_id" jsonschema:"owner identifier"`
	ContactID string `json:"contact_id" jsonschema:"contact identifier"`
}

// ContactGetResult represents the MCP tool output for fetching one contact.
type ContactGetResult struct {
	Contact ContactRecord `json:"contact" jsonschema:"the requested contact"`
}

// ContactGetTool defines the MCP tool schema for fetching one contact.
func ContactGetTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "contact_get",
		Description: "Reads one contact by ID, scoped to its owner. Served from the query cache.",
	}
}

// ContactListInput represents the MCP tool input for listing contacts.
type ContactListInput struct {
	OwnerID string `json:"owner_id" jsonschema:"owner identifier"`
	Tag     string `json:"tag,omitempty" jsonschema:"optional tag filter; only contacts carrying the tag are returned"`
	OrderBy string `json:"order_by,omitempty" jsonschema:"sort order: name, created_at, or updated_at; defaults to name"`
}

// ContactListResult represents the MCP tool output for listing contacts.
type ContactListResult struct {
	Contacts []ContactRecord `json:"contacts" jsonschema:"contacts owned by the requester"`
	Count    int             `json:"count" jsonschema:"number of contacts returned"`
}

// ContactListTool defines the MCP tool schema for listing contacts.
func ContactListTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "contact_list",
		Description: "Lists an owner's contacts, optionally filtered by tag. Served from the query cache.",
	}
}

// ContactUpdateInput represents the MCP tool input for a partial contact
// update. Absent fields keep their stored value.
type ContactUpdateInput struct {
	OwnerID   string    `json:"owner_id" jsonschema:"owner identifier"`
	ContactID string    `json:"contact_id" jsonschema:"contact identifier"`
	Name      *string   `json:"name,omitempty" jsonschema:"new display name"`
	Email     *string   `json:"email,omitempty" jsonschema:"new email address; empty string clears it"`
	Phone     *string   `json:"phone,omitempty" jsonschema:"new phone number; empty string clears it"`
	Company   *string   `json:"company,omitempty" jsonschema:"new company; empty string clears it"`
	Tags      *[]string `json:"tags,omitempty" jsonschema:"replacement tag set"`
}

// ContactUpdateResult represents the MCP tool output for updating a contact.
type ContactUpdateResult struct {
	Contact ContactRecord `json:"contact" jsonschema:"the contact after the update"`
}

// ContactUpdateTool defines the MCP tool schema for updating a contact.
func ContactUpdateTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "contact_update",
		Description: "Applies a partial update to a contact. Only the provided fields change.",
	}
}

// ContactDeleteInput represents the MCP tool input for deleting a contact.
type ContactDeleteInput struct {
	OwnerID   string `json:"owner_id" jsonschema:"owner identifier"`
	ContactID string `json:"contact_id" jsonschema:"contact identifier"`
}

// ContactDeleteResult represents the MCP tool output for deleting a contact.
type ContactDeleteResult struct {
	ID      string `json:"id" jsonschema:"identifier of the deleted contact"`
	Deleted bool   `json:"deleted" jsonschema:"true when the contact was removed"`
}

// ContactDeleteTool defines the MCP tool schema for deleting a contact.
func ContactDeleteTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "contact_delete",
		Description: "Deletes a contact and its notes, scoped to the owner.",
	}
}

// ContactTagInput represents the MCP tool input for tagging a contact.
type ContactTagInput struct {
	OwnerID   string   `json:"owner_id" jsonschema:"owner identifier"`
	ContactID string   `json:"contact_id" jsonschema:"contact identifier"`
	Add       []string `json:"add,omitempty" jsonschema:"tags to attach"`
	Remove    []string `json:"remove,omitempty" jsonschema:"tags to detach"`
}

// ContactTagResult represents the MCP tool output for tagging a contact.
type ContactTagResult struct {
	Contact ContactRecord `json:"contact" jsonschema:"the contact after the tag change"`
}

// ContactTagTool defines the MCP tool schema for tagging a contact.
func ContactTagTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "contact_tag",
		Description: "Attaches and detaches tags on a contact. At least one of add or remove is required.",
	}
}

func contactRecordFrom(contact storage.Contact) ContactRecord {
	return ContactRecord{
		ID:        contact.ID,
		OwnerID:   contact.OwnerID,
		Name:      contact.Name,
		Email:     contact.Email,
		Phone:     contact.Phone,
		Company:   contact.Company,
		Tags:      contact.Tags,
		CreatedAt: formatTimestamp(contact.CreatedAt),
		UpdatedAt: formatTimestamp(contact.UpdatedAt),
	}
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
