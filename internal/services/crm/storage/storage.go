// Package storage defines persistence contracts for CRM service state.
package storage

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound indicates a requested record is missing.
	ErrNotFound = errors.New("record not found")
	// ErrAlreadyExists indicates a uniqueness-constrained record already exists.
	ErrAlreadyExists = errors.New("record already exists")
)

// Contact stores one contact record scoped to an owner.
type Contact struct {
	ID        string
	OwnerID   string
	Name      string
	Email     string
	Phone     string
	Company   string
	Tags      []string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ContactUpdate carries a partial contact mutation; nil fields are untouched.
type ContactUpdate struct {
	Name    *string
	Email   *string
	Phone   *string
	Company *string
	Tags    *[]string
}

// ContactFilter narrows contact listings.
type ContactFilter struct {
	// Tag keeps only contacts carrying this exact tag. Empty matches all.
	Tag string
}

// ContactPage stores one page of contact records.
type ContactPage struct {
	Contacts      []Contact
	NextPageToken string
}

// Note stores one free-form note attached to a contact.
type Note struct {
	ID        string
	ContactID string
	OwnerID   string
	Body      string
	CreatedAt time.Time
}

// ContactStore persists contact records. Every operation is scoped by owner;
// records belonging to other owners behave as if they do not exist.
type ContactStore interface {
	CreateContact(ctx context.Context, contact Contact) error
	GetContact(ctx context.Context, ownerID, contactID string) (Contact, error)
	ListContacts(ctx context.Context, ownerID string, filter ContactFilter, pageSize int, pageToken string) (ContactPage, error)
	UpdateContact(ctx context.Context, ownerID, contactID string, update ContactUpdate) (Contact, error)
	DeleteContact(ctx context.Context, ownerID, contactID string) error
}

// NoteStore persists contact notes, owner-scoped like ContactStore.
type NoteStore interface {
	AddNote(ctx context.Context, note Note) error
	ListNotes(ctx context.Context, ownerID, contactID string) ([]Note, error)
	DeleteNote(ctx context.Context, ownerID, noteID string) error
}

// Store combines the CRM persistence contracts.
type Store interface {
	ContactStore
	NoteStore
}
