// Package sqlite provides a SQLite-backed CRM storage implementation.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	sqlitemigrate "github.com/rolodexhq/rolodex/internal/platform/storage/sqlitemigrate"
	"github.com/rolodexhq/rolodex/internal/services/crm/storage"
	"github.com/rolodexhq/rolodex/internal/services/crm/storage/sqlite/migrations"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

// Store persists CRM state in SQLite.
type Store struct {
	sqlDB *sql.DB
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

func encodeTags(tags []string) (string, error) {
	if tags == nil {
		tags = []string{}
	}
	data, err := json.Marshal(tags)
	if err != nil {
		return "", fmt.Errorf("encode tags: %w", err)
	}
	return string(data), nil
}

func decodeTags(value string) ([]string, error) {
	if strings.TrimSpace(value) == "" {
		return nil, nil
	}
	var tags []string
	if err := json.Unmarshal([]byte(value), &tags); err != nil {
		return nil, fmt.Errorf("decode tags: %w", err)
	}
	if len(tags) == 0 {
		return nil, nil
	}
	return tags, nil
}

// Open opens a SQLite CRM store and applies embedded migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := sqlitemigrate.ApplyMigrations(sqlDB, migrations.FS, ""); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// CreateContact inserts one contact record.
func (s *Store) CreateContact(ctx context.Context, contact storage.Contact) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	contactID := strings.TrimSpace(contact.ID)
	ownerID := strings.TrimSpace(contact.OwnerID)
	name := strings.TrimSpace(contact.Name)
	if contactID == "" {
		return fmt.Errorf("contact id is required")
	}
	if ownerID == "" {
		return fmt.Errorf("owner id is required")
	}
	if name == "" {
		return fmt.Errorf("name is required")
	}
	createdAt := contact.CreatedAt.UTC()
	updatedAt := contact.UpdatedAt.UTC()
	if createdAt.IsZero() && updatedAt.IsZero() {
		createdAt = time.Now().UTC()
		updatedAt = createdAt
	} else {
		if createdAt.IsZero() {
			createdAt = updatedAt
		}
		if updatedAt.IsZero() {
			updatedAt = createdAt
		}
	}
	tags, err := encodeTags(contact.Tags)
	if err != nil {
		return err
	}

	_, err = s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO contacts (
		   id,
		   owner_id,
		   name,
		   email,
		   phone,
		   company,
		   tags,
		   created_at,
		   updated_at
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		contactID,
		ownerID,
		name,
		strings.TrimSpace(contact.Email),
		strings.TrimSpace(contact.Phone),
		strings.TrimSpace(contact.Company),
		tags,
		toMillis(createdAt),
		toMillis(updatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrAlreadyExists
		}
		return fmt.Errorf("create contact: %w", err)
	}
	return nil
}

// GetContact returns one contact scoped to its owner.
func (s *Store) GetContact(ctx context.Context, ownerID, contactID string) (storage.Contact, error) {
	if err := ctx.Err(); err != nil {
		return storage.Contact{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.Contact{}, fmt.Errorf("storage is not configured")
	}
	ownerID = strings.TrimSpace(ownerID)
	contactID = strings.TrimSpace(contactID)
	if ownerID == "" {
		return storage.Contact{}, fmt.Errorf("owner id is required")
	}
	if contactID == "" {
		return storage.Contact{}, fmt.Errorf("contact id is required")
	}

	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT id, owner_id, name, email, phone, company, tags, created_at, updated_at
		   FROM contacts
		  WHERE owner_id = ? AND id = ?`,
		ownerID,
		contactID,
	)
	return scanContact(row)
}

// ListContacts returns one page of contacts for an owner in id order.
func (s *Store) ListContacts(ctx context.Context, ownerID string, filter storage.ContactFilter, pageSize int, pageToken string) (storage.ContactPage, error) {
	if err := ctx.Err(); err != nil {
		return storage.ContactPage{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.ContactPage{}, fmt.Errorf("storage is not configured")
	}
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return storage.ContactPage{}, fmt.Errorf("owner id is required")
	}
	if pageSize <= 0 {
		return storage.ContactPage{}, fmt.Errorf("page size must be greater than zero")
	}
	pageToken = strings.TrimSpace(pageToken)

	page := storage.ContactPage{
		Contacts: make([]storage.Contact, 0, pageSize),
	}

	query := `SELECT id, owner_id, name, email, phone, company, tags, created_at, updated_at
	            FROM contacts
	           WHERE owner_id = ?`
	args := []any{ownerID}
	if tag := strings.TrimSpace(filter.Tag); tag != "" {
		query += " AND EXISTS (SELECT 1 FROM json_each(contacts.tags) WHERE json_each.value = ?)"
		args = append(args, tag)
	}
	if pageToken != "" {
		query += " AND id > ?"
		args = append(args, pageToken)
	}
	query += " ORDER BY id ASC LIMIT ?"
	args = append(args, pageSize+1)

	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return storage.ContactPage{}, fmt.Errorf("list contacts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		contact, err := scanContact(rows)
		if err != nil {
			return storage.ContactPage{}, fmt.Errorf("list contacts: %w", err)
		}
		page.Contacts = append(page.Contacts, contact)
	}
	if err := rows.Err(); err != nil {
		return storage.ContactPage{}, fmt.Errorf("list contacts: %w", err)
	}
	if len(page.Contacts) > pageSize {
		page.NextPageToken = page.Contacts[pageSize-1].ID
		page.Contacts = page.Contacts[:pageSize]
	}

	return page, nil
}

// UpdateContact applies a partial update and returns the stored record.
func (s *Store) UpdateContact(ctx context.Context, ownerID, contactID string, update storage.ContactUpdate) (storage.Contact, error) {
	if err := ctx.Err(); err != nil {
		return storage.Contact{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.Contact{}, fmt.Errorf("storage is not configured")
	}
	ownerID = strings.TrimSpace(ownerID)
	contactID = strings.TrimSpace(contactID)
	if ownerID == "" {
		return storage.Contact{}, fmt.Errorf("owner id is required")
	}
	if contactID == "" {
		return storage.Contact{}, fmt.Errorf("contact id is required")
	}

	assignments := []string{"updated_at = ?"}
	args := []any{toMillis(time.Now())}
	if update.Name != nil {
		name := strings.TrimSpace(*update.Name)
		if name == "" {
			return storage.Contact{}, fmt.Errorf("name is required")
		}
		assignments = append(assignments, "name = ?")
		args = append(args, name)
	}
	if update.Email != nil {
		assignments = append(assignments, "email = ?")
		args = append(args, strings.TrimSpace(*update.Email))
	}
	if update.Phone != nil {
		assignments = append(assignments, "phone = ?")
		args = append(args, strings.TrimSpace(*update.Phone))
	}
	if update.Company != nil {
		assignments = append(assignments, "company = ?")
		args = append(args, strings.TrimSpace(*update.Company))
	}
	if update.Tags != nil {
		tags, err := encodeTags(*update.Tags)
		if err != nil {
			return storage.Contact{}, err
		}
		assignments = append(assignments, "tags = ?")
		args = append(args, tags)
	}
	args = append(args, ownerID, contactID)

	result, err := s.sqlDB.ExecContext(
		ctx,
		"UPDATE contacts SET "+strings.Join(assignments, ", ")+" WHERE owner_id = ? AND id = ?",
		args...,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.Contact{}, storage.ErrAlreadyExists
		}
		return storage.Contact{}, fmt.Errorf("update contact: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return storage.Contact{}, fmt.Errorf("update contact: %w", err)
	}
	if affected == 0 {
		return storage.Contact{}, storage.ErrNotFound
	}
	return s.GetContact(ctx, ownerID, contactID)
}

// DeleteContact removes one contact together with its notes.
func (s *Store) DeleteContact(ctx context.Context, ownerID, contactID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	ownerID = strings.TrimSpace(ownerID)
	contactID = strings.TrimSpace(contactID)
	if ownerID == "" {
		return fmt.Errorf("owner id is required")
	}
	if contactID == "" {
		return fmt.Errorf("contact id is required")
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("delete contact: %w", err)
	}

	// Notes are removed in the same transaction; foreign key enforcement is
	// pragma-dependent and not assumed here.
	if _, err := tx.ExecContext(
		ctx,
		"DELETE FROM notes WHERE owner_id = ? AND contact_id = ?",
		ownerID,
		contactID,
	); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("delete contact notes: %w", err)
	}

	result, err := tx.ExecContext(
		ctx,
		"DELETE FROM contacts WHERE owner_id = ? AND id = ?",
		ownerID,
		contactID,
	)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("delete contact: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("delete contact: %w", err)
	}
	if affected == 0 {
		_ = tx.Rollback()
		return storage.ErrNotFound
	}
	return tx.Commit()
}

// AddNote inserts one note for an owned contact.
func (s *Store) AddNote(ctx context.Context, note storage.Note) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	noteID := strings.TrimSpace(note.ID)
	contactID := strings.TrimSpace(note.ContactID)
	ownerID := strings.TrimSpace(note.OwnerID)
	body := strings.TrimSpace(note.Body)
	if noteID == "" {
		return fmt.Errorf("note id is required")
	}
	if contactID == "" {
		return fmt.Errorf("contact id is required")
	}
	if ownerID == "" {
		return fmt.Errorf("owner id is required")
	}
	if body == "" {
		return fmt.Errorf("body is required")
	}
	createdAt := note.CreatedAt.UTC()
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	// Guard the owner boundary before inserting; the foreign key only checks
	// that the contact exists, not who owns it.
	if _, err := s.GetContact(ctx, ownerID, contactID); err != nil {
		return err
	}

	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO notes (id, contact_id, owner_id, body, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		noteID,
		contactID,
		ownerID,
		body,
		toMillis(createdAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrAlreadyExists
		}
		return fmt.Errorf("add note: %w", err)
	}
	return nil
}

// ListNotes returns a contact's notes in creation order.
func (s *Store) ListNotes(ctx context.Context, ownerID, contactID string) ([]storage.Note, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	ownerID = strings.TrimSpace(ownerID)
	contactID = strings.TrimSpace(contactID)
	if ownerID == "" {
		return nil, fmt.Errorf("owner id is required")
	}
	if contactID == "" {
		return nil, fmt.Errorf("contact id is required")
	}

	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT id, contact_id, owner_id, body, created_at
		   FROM notes
		  WHERE owner_id = ? AND contact_id = ?
		  ORDER BY created_at ASC, id ASC`,
		ownerID,
		contactID,
	)
	if err != nil {
		return nil, fmt.Errorf("list notes: %w", err)
	}
	defer rows.Close()

	var notes []storage.Note
	for rows.Next() {
		var note storage.Note
		var createdAt int64
		if err := rows.Scan(&note.ID, &note.ContactID, &note.OwnerID, &note.Body, &createdAt); err != nil {
			return nil, fmt.Errorf("list notes: %w", err)
		}
		note.CreatedAt = fromMillis(createdAt)
		notes = append(notes, note)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list notes: %w", err)
	}
	return notes, nil
}

// DeleteNote removes one note scoped to its owner.
func (s *Store) DeleteNote(ctx context.Context, ownerID, noteID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	ownerID = strings.TrimSpace(ownerID)
	noteID = strings.TrimSpace(noteID)
	if ownerID == "" {
		return fmt.Errorf("owner id is required")
	}
	if noteID == "" {
		return fmt.Errorf("note id is required")
	}

	result, err := s.sqlDB.ExecContext(
		ctx,
		"DELETE FROM notes WHERE owner_id = ? AND id = ?",
		ownerID,
		noteID,
	)
	if err != nil {
		return fmt.Errorf("delete note: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete note: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanContact(row rowScanner) (storage.Contact, error) {
	var contact storage.Contact
	var tags string
	var createdAt int64
	var updatedAt int64
	err := row.Scan(
		&contact.ID,
		&contact.OwnerID,
		&contact.Name,
		&contact.Email,
		&contact.Phone,
		&contact.Company,
		&tags,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.Contact{}, storage.ErrNotFound
		}
		return storage.Contact{}, fmt.Errorf("get contact: %w", err)
	}
	contact.Tags, err = decodeTags(tags)
	if err != nil {
		return storage.Contact{}, err
	}
	contact.CreatedAt = fromMillis(createdAt)
	contact.UpdatedAt = fromMillis(updatedAt)
	return contact, nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}

var _ storage.Store = (*Store)(nil)
