// Package queries binds CRM storage to the stale-while-revalidate query
// cache. Reads return cache handles keyed by query name plus serialized
// arguments; mutations write through storage and refresh the affected keys so
// subscribed consumers redraw from fresh data without losing the value they
// already hold.
package queries

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/rolodexhq/rolodex/internal/platform/id"
	"github.com/rolodexhq/rolodex/internal/platform/pagination"
	"github.com/rolodexhq/rolodex/internal/platform/swr"
	"github.com/rolodexhq/rolodex/internal/platform/timeouts"
	"github.com/rolodexhq/rolodex/internal/services/crm/storage"
)

const tracerName = "github.com/rolodexhq/rolodex/internal/services/crm/queries"

// listPageConfig sets the storage page size used when hydrating a list query.
var listPageConfig = pagination.PageSizeConfig{Default: 100, Max: 200}

// listFetchCap bounds how many contacts one list query will hydrate.
const listFetchCap = 1000

// Queries owns the CRM query caches and the mutation paths that invalidate
// them. Construct one per process and share it across consumers.
type Queries struct {
	store storage.Store

	contactLists *swr.Cache[[]storage.Contact]
	contactByID  *swr.Cache[storage.Contact]
	noteLists    *swr.Cache[[]storage.Note]

	tracer trace.Tracer
}

// New creates the query layer over a storage implementation.
func New(store storage.Store) (*Queries, error) {
	if store == nil {
		return nil, fmt.Errorf("storage is required")
	}
	opts := swr.Options{FetchTimeout: timeouts.QueryFetch}
	return &Queries{
		store:        store,
		contactLists: swr.New[[]storage.Contact](opts),
		contactByID:  swr.New[storage.Contact](opts),
		noteLists:    swr.New[[]storage.Note](opts),
		tracer:       otel.Tracer(tracerName),
	}, nil
}

// listOrderConfig bounds the orderings a contact listing accepts.
var listOrderConfig = pagination.OrderByConfig{
	Default: "name",
	Allowed: []string{"name", "created_at", "updated_at"},
}

// ContactListKey is the cache key for one owner's contact listing. The
// default ordering is omitted so explicit and implicit requests for it share
// one handle.
func ContactListKey(ownerID, tag, orderBy string) string {
	key := "contacts/list?owner=" + url.QueryEscape(ownerID)
	if tag != "" {
		key += "&tag=" + url.QueryEscape(tag)
	}
	if orderBy != "" && orderBy != listOrderConfig.Default {
		key += "&order=" + url.QueryEscape(orderBy)
	}
	return key
}

// contactListPrefix matches every listing variant for one owner.
func contactListPrefix(ownerID string) string {
	return "contacts/list?owner=" + url.QueryEscape(ownerID)
}

// ContactKey is the cache key for one contact lookup.
func ContactKey(ownerID, contactID string) string {
	return "contacts/get?owner=" + url.QueryEscape(ownerID) + "&id=" + url.QueryEscape(contactID)
}

// NoteListKey is the cache key for one contact's notes.
func NoteListKey(ownerID, contactID string) string {
	return "notes/list?owner=" + url.QueryEscape(ownerID) + "&contact=" + url.QueryEscape(contactID)
}

// ListContacts returns the cached handle for an owner's contacts, optionally
// narrowed to one tag and reordered by one of the allowed columns. The
// caller releases the handle when done observing it.
func (q *Queries) ListContacts(ctx context.Context, ownerID, tag, orderBy string) (*swr.Handle[[]storage.Contact], error) {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return nil, fmt.Errorf("owner id is required")
	}
	tag = strings.TrimSpace(tag)
	orderBy, err := pagination.NormalizeOrderBy(strings.TrimSpace(orderBy), listOrderConfig)
	if err != nil {
		return nil, err
	}

	key := ContactListKey(ownerID, tag, orderBy)
	handle := q.contactLists.Invoke(ctx, key, func(fetchCtx context.Context) ([]storage.Contact, error) {
		fetchCtx, span := q.tracer.Start(fetchCtx, "queries.ListContacts",
			trace.WithAttributes(
				attribute.String("crm.owner_id", ownerID),
				attribute.String("crm.query_key", key),
			))
		defer span.End()
		contacts, err := q.fetchAllContacts(fetchCtx, ownerID, tag)
		if err != nil {
			return nil, err
		}
		sortContacts(contacts, orderBy)
		return contacts, nil
	})
	return handle, nil
}

// sortContacts orders a hydrated listing. Storage pages by contact ID, so
// the presentation order is applied after hydration. Timestamp orderings put
// the most recent contact first; ties fall back to ID for stability.
func sortContacts(contacts []storage.Contact, orderBy string) {
	sort.SliceStable(contacts, func(i, j int) bool {
		a, b := contacts[i], contacts[j]
		switch orderBy {
		case "created_at":
			if !a.CreatedAt.Equal(b.CreatedAt) {
				return a.CreatedAt.After(b.CreatedAt)
			}
		case "updated_at":
			if !a.UpdatedAt.Equal(b.UpdatedAt) {
				return a.UpdatedAt.After(b.UpdatedAt)
			}
		default:
			if a.Name != b.Name {
				return a.Name < b.Name
			}
		}
		return a.ID < b.ID
	})
}

// GetContact returns the cached handle for one contact lookup.
func (q *Queries) GetContact(ctx context.Context, ownerID, contactID string) (*swr.Handle[storage.Contact], error) {
	ownerID = strings.TrimSpace(ownerID)
	contactID = strings.TrimSpace(contactID)
	if ownerID == "" {
		return nil, fmt.Errorf("owner id is required")
	}
	if contactID == "" {
		return nil, fmt.Errorf("contact id is required")
	}

	key := ContactKey(ownerID, contactID)
	handle := q.contactByID.Invoke(ctx, key, func(fetchCtx context.Context) (storage.Contact, error) {
		fetchCtx, span := q.tracer.Start(fetchCtx, "queries.GetContact",
			trace.WithAttributes(
				attribute.String("crm.owner_id", ownerID),
				attribute.String("crm.contact_id", contactID),
			))
		defer span.End()
		return q.store.GetContact(fetchCtx, ownerID, contactID)
	})
	return handle, nil
}

// ListNotes returns the cached handle for one contact's notes.
func (q *Queries) ListNotes(ctx context.Context, ownerID, contactID string) (*swr.Handle[[]storage.Note], error) {
	ownerID = strings.TrimSpace(ownerID)
	contactID = strings.TrimSpace(contactID)
	if ownerID == "" {
		return nil, fmt.Errorf("owner id is required")
	}
	if contactID == "" {
		return nil, fmt.Errorf("contact id is required")
	}

	key := NoteListKey(ownerID, contactID)
	handle := q.noteLists.Invoke(ctx, key, func(fetchCtx context.Context) ([]storage.Note, error) {
		fetchCtx, span := q.tracer.Start(fetchCtx, "queries.ListNotes",
			trace.WithAttributes(
				attribute.String("crm.owner_id", ownerID),
				attribute.String("crm.contact_id", contactID),
			))
		defer span.End()
		return q.store.ListNotes(fetchCtx, ownerID, contactID)
	})
	return handle, nil
}

// SubscribeContactList signals after every settled fetch of an owner's listing.
func (q *Queries) SubscribeContactList(ownerID, tag string) (<-chan struct{}, func()) {
	return q.contactLists.Subscribe(ContactListKey(strings.TrimSpace(ownerID), strings.TrimSpace(tag), ""))
}

// SubscribeContact signals after every settled fetch of one contact lookup.
func (q *Queries) SubscribeContact(ownerID, contactID string) (<-chan struct{}, func()) {
	return q.contactByID.Subscribe(ContactKey(strings.TrimSpace(ownerID), strings.TrimSpace(contactID)))
}

// SubscribeNotes signals after every settled fetch of one contact's notes.
func (q *Queries) SubscribeNotes(ownerID, contactID string) (<-chan struct{}, func()) {
	return q.noteLists.Subscribe(NoteListKey(strings.TrimSpace(ownerID), strings.TrimSpace(contactID)))
}

// CreateContact persists a new contact and refreshes the owner's listings.
func (q *Queries) CreateContact(ctx context.Context, contact storage.Contact) (storage.Contact, error) {
	ctx, span := q.tracer.Start(ctx, "queries.CreateContact",
		trace.WithAttributes(attribute.String("crm.owner_id", contact.OwnerID)))
	defer span.End()

	if strings.TrimSpace(contact.ID) == "" {
		contactID, err := id.NewID()
		if err != nil {
			return storage.Contact{}, fmt.Errorf("generate contact id: %w", err)
		}
		contact.ID = contactID
	}
	now := time.Now().UTC()
	if contact.CreatedAt.IsZero() {
		contact.CreatedAt = now
	}
	if contact.UpdatedAt.IsZero() {
		contact.UpdatedAt = now
	}

	if err := q.store.CreateContact(ctx, contact); err != nil {
		return storage.Contact{}, err
	}

	stored, err := q.store.GetContact(ctx, contact.OwnerID, contact.ID)
	if err != nil {
		return storage.Contact{}, err
	}
	q.invalidateContact(ctx, stored.OwnerID, stored.ID)
	return stored, nil
}

// UpdateContact applies a partial update and refreshes the affected keys.
func (q *Queries) UpdateContact(ctx context.Context, ownerID, contactID string, update storage.ContactUpdate) (storage.Contact, error) {
	ctx, span := q.tracer.Start(ctx, "queries.UpdateContact",
		trace.WithAttributes(
			attribute.String("crm.owner_id", ownerID),
			attribute.String("crm.contact_id", contactID),
		))
	defer span.End()

	stored, err := q.store.UpdateContact(ctx, ownerID, contactID, update)
	if err != nil {
		return storage.Contact{}, err
	}
	q.invalidateContact(ctx, ownerID, contactID)
	return stored, nil
}

// DeleteContact removes a contact and refreshes the affected keys.
func (q *Queries) DeleteContact(ctx context.Context, ownerID, contactID string) error {
	ctx, span := q.tracer.Start(ctx, "queries.DeleteContact",
		trace.WithAttributes(
			attribute.String("crm.owner_id", ownerID),
			attribute.String("crm.contact_id", contactID),
		))
	defer span.End()

	if err := q.store.DeleteContact(ctx, ownerID, contactID); err != nil {
		return err
	}

	// The lookup and note handles now resolve to not-found; holders keep
	// their stale value alongside the error until they release.
	q.invalidateContact(ctx, ownerID, contactID)
	q.noteLists.Refresh(ctx, NoteListKey(ownerID, contactID))
	return nil
}

// AddNote persists a note and refreshes the contact's note listing.
func (q *Queries) AddNote(ctx context.Context, note storage.Note) (storage.Note, error) {
	ctx, span := q.tracer.Start(ctx, "queries.AddNote",
		trace.WithAttributes(
			attribute.String("crm.owner_id", note.OwnerID),
			attribute.String("crm.contact_id", note.ContactID),
		))
	defer span.End()

	if strings.TrimSpace(note.ID) == "" {
		noteID, err := id.NewID()
		if err != nil {
			return storage.Note{}, fmt.Errorf("generate note id: %w", err)
		}
		note.ID = noteID
	}
	if note.CreatedAt.IsZero() {
		note.CreatedAt = time.Now().UTC()
	}

	if err := q.store.AddNote(ctx, note); err != nil {
		return storage.Note{}, err
	}
	q.noteLists.Refresh(ctx, NoteListKey(note.OwnerID, note.ContactID))
	return note, nil
}

// DeleteNote removes a note and refreshes the contact's note listing.
func (q *Queries) DeleteNote(ctx context.Context, ownerID, contactID, noteID string) error {
	ctx, span := q.tracer.Start(ctx, "queries.DeleteNote",
		trace.WithAttributes(
			attribute.String("crm.owner_id", ownerID),
			attribute.String("crm.note_id", noteID),
		))
	defer span.End()

	if err := q.store.DeleteNote(ctx, ownerID, noteID); err != nil {
		return err
	}
	q.noteLists.Refresh(ctx, NoteListKey(ownerID, contactID))
	return nil
}

// Sweep drops unreferenced cache handles idle for at least maxIdle and
// returns how many were removed across the query caches.
func (q *Queries) Sweep(maxIdle time.Duration) int {
	return q.contactLists.Sweep(maxIdle) +
		q.contactByID.Sweep(maxIdle) +
		q.noteLists.Sweep(maxIdle)
}

// invalidateContact refreshes every cached read that a contact mutation can
// affect: all listing variants for the owner plus the direct lookup.
func (q *Queries) invalidateContact(ctx context.Context, ownerID, contactID string) {
	q.contactLists.RefreshPrefix(ctx, contactListPrefix(ownerID))
	q.contactByID.Refresh(ctx, ContactKey(ownerID, contactID))
}

// fetchAllContacts pages through storage until the listing is hydrated or the
// cap is reached.
func (q *Queries) fetchAllContacts(ctx context.Context, ownerID, tag string) ([]storage.Contact, error) {
	pageSize := pagination.ClampPageSize(0, listPageConfig)
	filter := storage.ContactFilter{Tag: tag}

	contacts := make([]storage.Contact, 0, pageSize)
	token := ""
	for {
		page, err := q.store.ListContacts(ctx, ownerID, filter, pageSize, token)
		if err != nil {
			return nil, err
		}
		contacts = append(contacts, page.Contacts...)
		if page.NextPageToken == "" || len(contacts) >= listFetchCap {
			return contacts, nil
		}
		token = page.NextPageToken
	}
}
