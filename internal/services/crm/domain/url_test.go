package domain

import (
	"strings"
	"testing"
)

func TestParseOwnerIDFromURI(t *testing.T) {
	tests := []struct {
		name        string
		uri         string
		wantID      string
		wantErr     bool
		errContains string
	}{
		{
			name:   "valid listing URI",
			uri:    "contacts://owner-123",
			wantID: "owner-123",
		},
		{
			name:        "missing scheme",
			uri:         "owner-123",
			wantErr:     true,
			errContains: "must start with",
		},
		{
			name:        "empty owner",
			uri:         "contacts://",
			wantErr:     true,
			errContains: "empty segment",
		},
		{
			name:        "too many segments",
			uri:         "contacts://owner-123/contact-1",
			wantErr:     true,
			errContains: "segments",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotID, err := parseOwnerIDFromURI(tt.uri)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error but got none")
				}
				if tt.errContains != "" && !strings.Contains(err.Error(), tt.errContains) {
					t.Errorf("expected error containing %q, got %q", tt.errContains, err.Error())
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if gotID != tt.wantID {
				t.Errorf("expected id %q, got %q", tt.wantID, gotID)
			}
		})
	}
}

func TestParseContactIDFromURI(t *testing.T) {
	ownerID, contactID, err := parseContactIDFromURI("contacts://owner-1/contact-9")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ownerID != "owner-1" || contactID != "contact-9" {
		t.Errorf("unexpected ids %q %q", ownerID, contactID)
	}

	if _, _, err := parseContactIDFromURI("contacts://owner-1"); err == nil {
		t.Error("expected error for missing contact segment")
	}
	if _, _, err := parseContactIDFromURI("contacts://owner-1//"); err == nil {
		t.Error("expected error for empty segments")
	}
}

func TestParseNoteListURI(t *testing.T) {
	ownerID, contactID, err := parseNoteListURI("contacts://owner-1/contact-9/notes")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ownerID != "owner-1" || contactID != "contact-9" {
		t.Errorf("unexpected ids %q %q", ownerID, contactID)
	}

	if _, _, err := parseNoteListURI("contacts://owner-1/contact-9/other"); err == nil {
		t.Error("expected error for wrong suffix")
	}
}

func TestResourceURIBuilders(t *testing.T) {
	if got := ContactListURI("o1"); got != "contacts://o1" {
		t.Errorf("unexpected listing URI %q", got)
	}
	if got := ContactURI("o1", "c1"); got != "contacts://o1/c1" {
		t.Errorf("unexpected contact URI %q", got)
	}
	if got := NoteListURI("o1", "c1"); got != "contacts://o1/c1/notes" {
		t.Errorf("unexpected note URI %q", got)
	}
}
