package domain

import (
	"fmt"
	"strings"
)

const contactsURIScheme = "contacts://"

// ContactListURI builds the resource URI for an owner's contact listing.
func ContactListURI(ownerID string) string {
	return contactsURIScheme + ownerID
}

// ContactURI builds the resource URI for one contact.
func ContactURI(ownerID, contactID string) string {
	return contactsURIScheme + ownerID + "/" + contactID
}

// NoteListURI builds the resource URI for one contact's notes.
func NoteListURI(ownerID, contactID string) string {
	return contactsURIScheme + ownerID + "/" + contactID + "/notes"
}

// parseContactsURI splits a contacts:// URI into its path segments. Each
// segment must be non-empty.
func parseContactsURI(uri string, want int) ([]string, error) {
	if !strings.HasPrefix(uri, contactsURIScheme) {
		return nil, fmt.Errorf("URI must start with %q", contactsURIScheme)
	}
	parts := strings.Split(strings.TrimPrefix(uri, contactsURIScheme), "/")
	if len(parts) != want {
		return nil, fmt.Errorf("URI %q has %d segments, want %d", uri, len(parts), want)
	}
	for _, part := range parts {
		if strings.TrimSpace(part) == "" {
			return nil, fmt.Errorf("URI %q has an empty segment", uri)
		}
	}
	return parts, nil
}

// parseOwnerIDFromURI extracts the owner ID from a URI of the form
// contacts://{owner_id}.
func parseOwnerIDFromURI(uri string) (string, error) {
	parts, err := parseContactsURI(uri, 1)
	if err != nil {
		return "", err
	}
	return parts[0], nil
}

// parseContactIDFromURI extracts owner and contact IDs from a URI of the
// form contacts://{owner_id}/{contact_id}.
func parseContactIDFromURI(uri string) (string, string, error) {
	parts, err := parseContactsURI(uri, 2)
	if err != nil {
		return "", "", err
	}
	return parts[0], parts[1], nil
}

// parseNoteListURI extracts owner and contact IDs from a URI of the form
// contacts://{owner_id}/{contact_id}/notes.
func parseNoteListURI(uri string) (string, string, error) {
	parts, err := parseContactsURI(uri, 3)
	if err != nil {
		return "", "", err
	}
	if parts[2] != "notes" {
		return "", "", fmt.Errorf("URI %q must end with %q", uri, "/notes")
	}
	return parts[0], parts[1], nil
}
