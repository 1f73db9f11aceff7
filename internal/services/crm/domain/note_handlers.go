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

// NoteQueries is the cached read and write-through surface the note tools
// invoke.
type NoteQueries interface {
	ListNotes(ctx context.Context, ownerID, contactID string) (*swr.Handle[[]storage.Note], error)
	AddNote(ctx context.Context, note storage.Note) (storage.Note, error)
	DeleteNote(ctx context.Context, ownerID, contactID, noteID string) error
}

// NoteAddHandler executes a note add request.
func NoteAddHandler(queries NoteQueries) mcp.ToolHandlerFor[NoteAddInput, NoteAddResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input NoteAddInput) (*mcp.CallToolResult, NoteAddResult, error) {
		invocationID, err := NewInvocationID()
		if err != nil {
			return nil, NoteAddResult{}, fmt.Errorf("generate invocation id: %w", err)
		}

		runCtx, cancel := context.WithTimeout(ctx, timeouts.ToolCall)
		defer cancel()

		ownerID := strings.TrimSpace(input.OwnerID)
		if ownerID == "" {
			return nil, NoteAddResult{}, errs.New(errs.CodeContactOwnerMissing, "owner_id is required")
		}
		contactID := strings.TrimSpace(input.ContactID)
		if contactID == "" {
			return nil, NoteAddResult{}, errs.New(errs.CodeNoteContactMissing, "contact_id is required")
		}
		body := strings.TrimSpace(input.Body)
		if body == "" {
			return nil, NoteAddResult{}, errs.New(errs.CodeNoteBodyEmpty, "body is required")
		}

		note, err := queries.AddNote(runCtx, storage.Note{
			OwnerID:   ownerID,
			ContactID: contactID,
			Body:      body,
		})
		if err != nil {
			// Not-found here means the target contact is missing or owned
			// by someone else.
			return nil, NoteAddResult{}, contactStorageError("note add failed", err)
		}

		return CallToolResultWithInvocation(invocationID), NoteAddResult{Note: noteRecordFrom(note)}, nil
	}
}

// NoteListHandler executes a cached note listing.
func NoteListHandler(queries NoteQueries) mcp.ToolHandlerFor[NoteListInput, NoteListResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input NoteListInput) (*mcp.CallToolResult, NoteListResult, error) {
		invocationID, err := NewInvocationID()
		if err != nil {
			return nil, NoteListResult{}, fmt.Errorf("generate invocation id: %w", err)
		}

		runCtx, cancel := context.WithTimeout(ctx, timeouts.ToolCall)
		defer cancel()

		handle, err := queries.ListNotes(runCtx, input.OwnerID, input.ContactID)
		if err != nil {
			return nil, NoteListResult{}, errs.Wrap(errs.CodeNoteContactMissing, "note list rejected", err)
		}
		defer handle.Release()

		notes, err := handle.Wait(runCtx)
		if err != nil {
			return nil, NoteListResult{}, noteStorageError("note list failed", err)
		}

		result := NoteListResult{Notes: make([]NoteRecord, 0, len(notes)), Count: len(notes)}
		for _, note := range notes {
			result.Notes = append(result.Notes, noteRecordFrom(note))
		}
		return CallToolResultWithInvocation(invocationID), result, nil
	}
}

// NoteDeleteHandler executes a note delete request.
func NoteDeleteHandler(queries NoteQueries) mcp.ToolHandlerFor[NoteDeleteInput, NoteDeleteResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input NoteDeleteInput) (*mcp.CallToolResult, NoteDeleteResult, error) {
		invocationID, err := NewInvocationID()
		if err != nil {
			return nil, NoteDeleteResult{}, fmt.Errorf("generate invocation id: %w", err)
		}

		runCtx, cancel := context.WithTimeout(ctx, timeouts.ToolCall)
		defer cancel()

		if err := queries.DeleteNote(runCtx, input.OwnerID, input.ContactID, input.NoteID); err != nil {
			return nil, NoteDeleteResult{}, noteStorageError("note delete failed", err)
		}

		return CallToolResultWithInvocation(invocationID), NoteDeleteResult{ID: strings.TrimSpace(input.NoteID), Deleted: true}, nil
	}
}

// noteStorageError maps storage sentinels onto structured tool errors.
func noteStorageError(message string, err error) error {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return errs.Wrap(errs.CodeNoteNotFound, message, err)
	case errors.Is(err, context.DeadlineExceeded):
		return errs.Wrap(errs.CodeStorageUnavailable, message, err)
	default:
		return errs.Wrap(errs.CodeStorageFailure, message, err)
	}
}
