package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/buger/jsonparser"

	"github.com/JamesPrial/visual-calendar/internal/calendar"
	"github.com/JamesPrial/visual-calendar/internal/codec"
	"github.com/JamesPrial/visual-calendar/internal/migrate"
	"github.com/JamesPrial/visual-calendar/internal/storage"
)

// ImportedSuffix is appended to the name of imported calendars.
const ImportedSuffix = " (imported)"


// CreateParams are the inputs of Create.
type CreateParams struct {
	Name         string
	FormData     calendar.FormData
	ChildPhoto   *string
	PreviewImage string

	// ID, when set, is used instead of a freshly minted id.
	ID string
}

// UpdateParams lists the fields Update changes. Nil fields are left as
// stored.
type UpdateParams struct {
	Name         *string
	FormData     *calendar.FormData
	ChildPhoto   *string
	PreviewImage *string

	// ClearChildPhoto removes the child photo. It takes precedence over
	// ChildPhoto.
	ClearChildPhoto bool
}

// Create stores a new calendar as plain JSON and appends it to the index.
// Storage failures are returned as is; there is no silent fallback other
// than the quota protocol.
func (r *Repository) Create(ctx context.Context, p CreateParams) (calendar.Meta, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.init(ctx); err != nil {
		return calendar.Meta{}, err
	}
	index, err := r.readIndex(ctx)
	if err != nil {
		return calendar.Meta{}, newError("create", "", KindUnknown, err)
	}

	id := p.ID
	if id == "" {
		id = r.newID()
	} else if indexed(index, id) || r.bodyExists(ctx, id) {
		return calendar.Meta{}, newError("create", id, KindValidation, errors.New("calendar id already exists"))
	}

	now := r.timestamp(time.Time{})
	doc := calendar.Document{
		Meta: calendar.Meta{
			ID:           id,
			Name:         p.Name,
			CreatedAt:    now,
			UpdatedAt:    now,
			PreviewImage: p.PreviewImage,
		},
		FormData:   p.FormData.Clone(),
		ChildPhoto: copyString(p.ChildPhoto),
	}
	if err := calendar.Validate(doc); err != nil {
		return calendar.Meta{}, newError("create", id, KindValidation, err)
	}

	meta, err := r.persist(ctx, "create", doc, index)
	if err != nil {
		return calendar.Meta{}, err
	}
	r.logger.Info("calendar created", "id", id, "name", meta.Name)
	return meta, nil
}

// Update merges the provided fields into a stored calendar and refreshes
// updatedAt. A missing or unreadable calendar yields ErrNotFound.
func (r *Repository) Update(ctx context.Context, id string, p UpdateParams) (calendar.Meta, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.init(ctx); err != nil {
		return calendar.Meta{}, err
	}
	doc, err := r.get(ctx, "update", id)
	if err != nil {
		return calendar.Meta{}, err
	}
	index, err := r.readIndex(ctx)
	if err != nil {
		return calendar.Meta{}, newError("update", id, KindUnknown, err)
	}

	doc.Meta.ID = id
	if p.Name != nil {
		doc.Meta.Name = *p.Name
	}
	if p.FormData != nil {
		doc.FormData = p.FormData.Clone()
	}
	switch {
	case p.ClearChildPhoto:
		doc.ChildPhoto = nil
	case p.ChildPhoto != nil:
		doc.ChildPhoto = copyString(p.ChildPhoto)
	}
	if p.PreviewImage != nil {
		doc.Meta.PreviewImage = *p.PreviewImage
	}
	doc.Meta.UpdatedAt = r.timestamp(doc.Meta.UpdatedAt)

	if err := validateUpdate(doc, p); err != nil {
		return calendar.Meta{}, newError("update", id, KindValidation, err)
	}
	return r.persist(ctx, "update", doc, index)
}

// Delete removes a calendar's bodies and index entry. Deleting an unknown
// id succeeds.
func (r *Repository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.init(ctx); err != nil {
		return err
	}
	index, err := r.readIndex(ctx)
	if err != nil {
		return newError("delete", id, KindUnknown, err)
	}
	data, err := encodeIndex(withoutIDs(index, id))
	if err != nil {
		return newError("delete", id, KindUnknown, err)
	}

	err = r.engine.Apply(ctx,
		storage.Remove(DocKey(id)),
		storage.Remove(CompressedKey(id)),
		storage.Put(IndexKey, data),
	)
	if err != nil {
		r.logger.Error("failed to delete calendar", "id", id, "err", err)
		return newError("delete", id, KindUnknown, err)
	}
	r.logger.Info("calendar deleted", "id", id)
	return nil
}

// Export returns the calendar as canonical JSON text. The storage-only
// isCompressed flag is not exported.
func (r *Repository) Export(ctx context.Context, id string) (string, error) {
	doc, err := r.Get(ctx, id)
	if err != nil {
		var re *Error
		if errors.As(err, &re) {
			re.Op = "export"
		}
		return "", err
	}
	doc.Meta.IsCompressed = false
	text, err := codec.Encode(doc)
	if err != nil {
		return "", newError("export", id, KindUnknown, err)
	}
	return text, nil
}

// Import stores a calendar from exported JSON text. The payload must be an
// object with "meta" and "formData" objects. The imported calendar always
// gets a new id, fresh timestamps and the ImportedSuffix appended to its
// name.
func (r *Repository) Import(ctx context.Context, text string) (calendar.Meta, error) {
	raw := []byte(strings.TrimSpace(text))
	for _, key := range []string{"meta", "formData"} {
		_, typ, _, err := jsonparser.Get(raw, key)
		if err != nil {
			return calendar.Meta{}, validationError("import", "missing %q: %v", key, err)
		}
		if typ != jsonparser.Object {
			return calendar.Meta{}, validationError("import", "%q is %s, want object", key, typ)
		}
	}

	migrated, err := migrate.Migrate(raw)
	if errors.Is(err, migrate.ErrFutureVersion) {
		r.logger.Warn("importing calendar from a newer version", "err", err)
	} else if err != nil {
		return calendar.Meta{}, newError("import", "", KindValidation, err)
	}
	doc, err := codec.DecodeBytes(migrated)
	if err != nil {
		return calendar.Meta{}, newError("import", "", KindValidation, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.init(ctx); err != nil {
		return calendar.Meta{}, err
	}
	index, err := r.readIndex(ctx)
	if err != nil {
		return calendar.Meta{}, newError("import", "", KindUnknown, err)
	}

	now := r.timestamp(time.Time{})
	doc.Meta = calendar.Meta{
		ID:           r.newID(),
		Name:         importedName(doc.Meta.Name),
		CreatedAt:    now,
		UpdatedAt:    now,
		PreviewImage: doc.Meta.PreviewImage,
	}
	if doc.FormData.ColorTheme == "" {
		doc.FormData.ColorTheme = calendar.ThemeDefault
	}
	if err := calendar.Validate(doc); err != nil {
		return calendar.Meta{}, newError("import", doc.Meta.ID, KindValidation, err)
	}

	meta, err := r.persist(ctx, "import", doc, index)
	if err != nil {
		return calendar.Meta{}, err
	}
	r.logger.Info("calendar imported", "id", meta.ID, "name", meta.Name)
	return meta, nil
}

func (r *Repository) bodyExists(ctx context.Context, id string) bool {
	_, _, err := r.loadBody(ctx, id)
	return err == nil
}

// importedName appends ImportedSuffix, shortening the original name so the
// result stays within the name limit.
func importedName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		name = "Untitled"
	}
	limit := calendar.MaxNameLength - utf8.RuneCountInString(ImportedSuffix)
	if utf8.RuneCountInString(name) > limit {
		name = strings.TrimSpace(string([]rune(name)[:limit]))
	}
	return fmt.Sprintf("%s%s", name, ImportedSuffix)
}

// validateUpdate checks only the parts of doc that p replaces. Fields kept
// from the stored document were accepted when they were written.
func validateUpdate(doc calendar.Document, p UpdateParams) error {
	if p.Name != nil {
		if err := calendar.ValidateMeta(doc.Meta); err != nil {
			return err
		}
	}
	if p.FormData != nil {
		return calendar.ValidateFormData(doc.FormData)
	}
	return nil
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
