package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	errs "github.com/rolodexhq/rolodex/internal/platform/errors"
	"github.com/rolodexhq/rolodex/internal/platform/swr"
	"github.com/rolodexhq/rolodex/internal/platform/timeouts"
	"github.com/rolodexhq/rolodex/internal/services/crm/storage"
)

// ContactQueries is the cached read and write-through surface the contact
// tools invoke.
type ContactQueries interface {
	ListContacts(ctx context.Context, ownerID, tag, orderBy string) (*swr.Handle[[]storage.Contact], error)
	GetContact(ctx context.Context, ownerID, contactID string) (*swr.Handle[storage.Contact], error)
	CreateContact(ctx context.Context, contact storage.Contact) (storage.Contact, error)
	UpdateContact(ctx context.Context, ownerID, contactID string, update storage.ContactUpdate) (storage.Contact, error)
	DeleteContact(ctx context.Context, ownerID, contactID string) error
}

// ContactCreateHandler executes a contact create request.
func ContactCreateHandler(queries ContactQueries) mcp.ToolHandlerFor[ContactCreateInput, ContactCreateResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input ContactCreateInput) (*mcp.CallToolResult, ContactCreateResult, error) {
		invocationID, err := NewInvocationID()
		if err != nil {
			return nil, ContactCreateResult{}, fmt.Errorf("generate invocation id: %w", err)
		}

		runCtx, cancel := context.WithTimeout(ctx, timeouts.ToolCall)
		defer cancel()

		ownerID := strings.TrimSpace(input.OwnerID)
		if ownerID == "" {
			return nil, ContactCreateResult{}, errs.New(errs.CodeContactOwnerMissing, "owner_id is required")
		}
		name := strings.TrimSpace(input.Name)
		if name == "" {
			return nil, ContactCreateResult{}, errs.New(errs.CodeContactNameEmpty, "name is required")
		}
		email := strings.TrimSpace(input.Email)
		if email != "" && !strings.Contains(email, "@") {
			return nil, ContactCreateResult{}, errs.WithMetadata(errs.CodeContactInvalidEmail, "email is not an address", map[string]string{"email": email})
		}
		tags, err := normalizeTags(input.Tags)
		if err != nil {
			return nil, ContactCreateResult{}, err
		}

		contact, err := queries.CreateContact(runCtx, storage.Contact{
			OwnerID: ownerID,
			Name:    name,
			Email:   email,
			Phone:   strings.TrimSpace(input.Phone),
			Company: strings.TrimSpace(input.Company),
			Tags:    tags,
		})
		if err != nil {
			return nil, ContactCreateResult{}, contactStorageError("contact create failed", err)
		}

		return CallToolResultWithInvocation(invocationID), ContactCreateResult{Contact: contactRecordFrom(contact)}, nil
	}
}

// ContactGetHandler executes a cached contact lookup.
func ContactGetHandler(queries ContactQueries) mcp.ToolHandlerFor[ContactGetInput, ContactGetResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input ContactGetInput) (*mcp.CallToolResult, ContactGetResult, error) {
		invocationID, err := NewInvocationID()
		if err != nil {
			return nil, ContactGetResult{}, fmt.Errorf("generate invocation id: %w", err)
		}

		runCtx, cancel := context.WithTimeout(ctx, timeouts.ToolCall)
		defer cancel()

		handle, err := queries.GetContact(runCtx, input.OwnerID, input.ContactID)
		if err != nil {
			return nil, ContactGetResult{}, errs.Wrap(errs.CodeContactOwnerMissing, "contact get rejected", err)
		}
		defer handle.Release()

		contact, err := handle.Wait(runCtx)
		if err != nil {
			return nil, ContactGetResult{}, contactStorageError("contact get failed", err)
		}

		return CallToolResultWithInvocation(invocationID), ContactGetResult{Contact: contactRecordFrom(contact)}, nil
	}
}

// ContactListHandler executes a cached contact listing.
func ContactListHandler(queries ContactQueries) mcp.ToolHandlerFor[ContactListInput, ContactListResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input ContactListInput) (*mcp.CallToolResult, ContactListResult, error) {
		invocationID, err := NewInvocationID()
		if err != nil {
			return nil, ContactListResult{}, fmt.Errorf("generate invocation id: %w", err)
		}

		runCtx, cancel := context.WithTimeout(ctx, timeouts.ToolCall)
		defer cancel()

		if strings.TrimSpace(input.OwnerID) == "" {
			return nil, ContactListResult{}, errs.New(errs.CodeContactOwnerMissing, "owner_id is required")
		}

		handle, err := queries.ListContacts(runCtx, input.OwnerID, input.Tag, input.OrderBy)
		if err != nil {
			return nil, ContactListResult{}, errs.Wrap(errs.CodeContactInvalidPageArg, "contact list rejected", err)
		}
		defer handle.Release()

		contacts, err := handle.Wait(runCtx)
		if err != nil {
			return nil, ContactListResult{}, contactStorageError("contact list failed", err)
		}

		result := ContactListResult{Contacts: make([]ContactRecord, 0, len(contacts)), Count: len(contacts)}
		for _, contact := range contacts {
			result.Contacts = append(result.Contacts, contactRecordFrom(contact))
		}
		return CallToolResultWithInvocation(invocationID), result, nil
	}
}

// ContactUpdateHandler executes a partial contact update.
func ContactUpdateHandler(queries ContactQueries) mcp.ToolHandlerFor[ContactUpdateInput, ContactUpdateResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input ContactUpdateInput) (*mcp.CallToolResult, ContactUpdateResult, error) {
		invocationID, err := NewInvocationID()
		if err != nil {
			return nil, ContactUpdateResult{}, fmt.Errorf("generate invocation id: %w", err)
		}

		runCtx, cancel := context.WithTimeout(ctx, timeouts.ToolCall)
		defer cancel()

		update := storage.ContactUpdate{
			Name:    input.Name,
			Email:   input.Email,
			Phone:   input.Phone,
			Company: input.Company,
		}
		if update.Name != nil && strings.TrimSpace(*update.Name) == "" {
			return nil, ContactUpdateResult{}, errs.New(errs.CodeContactNameEmpty, "name must not be blank")
		}
		if update.Email != nil {
			email := strings.TrimSpace(*update.Email)
			if email != "" && !strings.Contains(email, "@") {
				return nil, ContactUpdateResult{}, errs.WithMetadata(errs.CodeContactInvalidEmail, "email is not an address", map[string]string{"email": email})
			}
			update.Email = &email
		}
		if input.Tags != nil {
			tags, err := normalizeTags(*input.Tags)
			if err != nil {
				return nil, ContactUpdateResult{}, err
			}
			update.Tags = &tags
		}

		contact, err := queries.UpdateContact(runCtx, input.OwnerID, input.ContactID, update)
		if err != nil {
			return nil, ContactUpdateResult{}, contactStorageError("contact update failed", err)
		}

		return CallToolResultWithInvocation(invocationID), ContactUpdateResult{Contact: contactRecordFrom(contact)}, nil
	}
}

// ContactDeleteHandler executes a contact delete request.
func ContactDeleteHandler(queries ContactQueries) mcp.ToolHandlerFor[ContactDeleteInput, ContactDeleteResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input ContactDeleteInput) (*mcp.CallToolResult, ContactDeleteResult, error) {
		invocationID, err := NewInvocationID()
		if err != nil {
			return nil, ContactDeleteResult{}, fmt.Errorf("generate invocation id: %w", err)
		}

		runCtx, cancel := context.WithTimeout(ctx, timeouts.ToolCall)
		defer cancel()

		if err := queries.DeleteContact(runCtx, input.OwnerID, input.ContactID); err != nil {
			return nil, ContactDeleteResult{}, contactStorageError("contact delete failed", err)
		}

		return CallToolResultWithInvocation(invocationID), ContactDeleteResult{ID: strings.TrimSpace(input.ContactID), Deleted: true}, nil
	}
}

// ContactTagHandler attaches and detaches tags on a contact.
func ContactTagHandler(queries ContactQueries) mcp.ToolHandlerFor[ContactTagInput, ContactTagResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input ContactTagInput) (*mcp.CallToolResult, ContactTagResult, error) {
		invocationID, err := NewInvocationID()
		if err != nil {
			return nil, ContactTagResult{}, fmt.Errorf("generate invocation id: %w", err)
		}

		runCtx, cancel := context.WithTimeout(ctx, timeouts.ToolCall)
		defer cancel()

		add, err := normalizeTags(input.Add)
		if err != nil {
			return nil, ContactTagResult{}, err
		}
		remove, err := normalizeTags(input.Remove)
		if err != nil {
			return nil, ContactTagResult{}, err
		}
		if len(add) == 0 && len(remove) == 0 {
			return nil, ContactTagResult{}, errs.New(errs.CodeContactTagEmpty, "at least one of add or remove is required")
		}

		handle, err := queries.GetContact(runCtx, input.OwnerID, input.ContactID)
		if err != nil {
			return nil, ContactTagResult{}, errs.Wrap(errs.CodeContactOwnerMissing, "contact tag rejected", err)
		}
		current, err := handle.Wait(runCtx)
		handle.Release()
		if err != nil {
			return nil, ContactTagResult{}, contactStorageError("contact tag failed", err)
		}

		tags := mergeTags(current.Tags, add, remove)
		contact, err := queries.UpdateContact(runCtx, input.OwnerID, input.ContactID, storage.ContactUpdate{Tags: &tags})
		if err != nil {
			return nil, ContactTagResult{}, contactStorageError("contact tag failed", err)
		}

		return CallToolResultWithInvocation(invocationID), ContactTagResult{Contact: contactRecordFrom(contact)}, nil
	}
}

// normalizeTags trims and deduplicates tags, preserving first-seen order.
// A tag that is blank after trimming is rejected.
func normalizeTags(tags []string) ([]string, error) {
	if len(tags) == 0 {
		return nil, nil
	}
	seen := make(map[string]struct{}, len(tags))
	normalized := make([]string, 0, len(tags))
	for _, tag := range tags {
		trimmed := strings.TrimSpace(tag)
		if trimmed == "" {
			return nil, errs.New(errs.CodeContactTagEmpty, "tags must not be blank")
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		normalized = append(normalized, trimmed)
	}
	return normalized, nil
}

// mergeTags applies additions then removals on top of the current tag set.
func mergeTags(current, add, remove []string) []string {
	merged := make([]string, 0, len(current)+len(add))
	seen := make(map[string]struct{}, len(current)+len(add))
	for _, tag := range current {
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		merged = append(merged, tag)
	}
	for _, tag := range add {
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		merged = append(merged, tag)
	}
	if len(remove) == 0 {
		return merged
	}
	drop := make(map[string]struct{}, len(remove))
	for _, tag := range remove {
		drop[tag] = struct{}{}
	}
	kept := merged[:0]
	for _, tag := range merged {
		if _, ok := drop[tag]; ok {
			continue
		}
		kept = append(kept, tag)
	}
	return kept
}

// contactStorageError maps storage sentinels onto structured tool errors.
func contactStorageError(message string, err error) error {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return errs.Wrap(errs.CodeContactNotFound, message, err)
	case errors.Is(err, storage.ErrAlreadyExists):
		return errs.Wrap(errs.CodeContactAlreadyExists, message, err)
	case errors.Is(err, context.DeadlineExceeded):
		return errs.Wrap(errs.CodeStorageUnavailable, message, err)
	default:
		return errs.Wrap(errs.CodeStorageFailure, message, err)
	}
}
