package session

import (
	"context"

	"github.com/JamesPrial/visual-calendar/internal/calendar"
	"github.com/JamesPrial/visual-calendar/internal/repository"
	"github.com/JamesPrial/visual-calendar/internal/snapshot"
)

// SaveParams are the inputs of Save.
type SaveParams struct {
	ID       string
	FormData calendar.FormData

	// ChildPhoto replaces the stored photo. Nil removes it.
	ChildPhoto *string

	// Name renames the calendar when set.
	Name *string

	// Node is the rendered preview. When set, a fresh thumbnail is
	// captured before saving.
	Node *snapshot.Node
}

// Initialize prepares storage and loads the calendar listing.
func (s *Store) Initialize(ctx context.Context) error {
	s.begin()
	err := s.repo.Init(ctx)
	var list listing
	if err == nil {
		list = s.fetchList(ctx)
	}
	s.finish("initialize", "", err, func() { s.applyList(list) })
	return err
}

// LoadList refreshes the cached listing.
func (s *Store) LoadList(ctx context.Context) {
	s.begin()
	list := s.fetchList(ctx)
	s.finish("list", "", nil, func() { s.applyList(list) })
}

// CreateNew creates a calendar and makes it current.
func (s *Store) CreateNew(ctx context.Context, name string, formData calendar.FormData) (calendar.Meta, error) {
	s.begin()
	meta, err := s.repo.Create(ctx, repository.CreateParams{Name: name, FormData: formData})
	var list listing
	if err == nil {
		list = s.fetchList(ctx)
	}
	s.finish("create", meta.ID, err, func() {
		s.applyList(list)
		s.currentID = meta.ID
	})
	return meta, err
}

// Load reads a calendar and makes it current.
func (s *Store) Load(ctx context.Context, id string) (calendar.Document, error) {
	s.begin()
	doc, err := s.repo.Get(ctx, id)
	s.finish("load", id, err, func() { s.currentID = id })
	return doc, err
}

// Save writes the editor state of a calendar. When a preview node is given
// its thumbnail is captured first; an empty thumbnail keeps the stored one.
func (s *Store) Save(ctx context.Context, p SaveParams) (calendar.Meta, error) {
	s.begin()

	params := repository.UpdateParams{
		Name:            p.Name,
		FormData:        &p.FormData,
		ChildPhoto:      p.ChildPhoto,
		ClearChildPhoto: p.ChildPhoto == nil,
	}
	if p.Node != nil {
		if preview := s.snapshot.Snapshot(ctx, *p.Node); preview != "" {
			params.PreviewImage = &preview
		}
	}

	meta, err := s.repo.Update(ctx, p.ID, params)
	var list listing
	if err == nil {
		list = s.fetchList(ctx)
	}
	s.finish("save", p.ID, err, func() { s.applyList(list) })
	return meta, err
}

// Delete removes a calendar. Deleting the current calendar clears the
// selection.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.begin()
	err := s.repo.Delete(ctx, id)
	var list listing
	if err == nil {
		list = s.fetchList(ctx)
	}
	s.finish("delete", id, err, func() {
		s.applyList(list)
		if s.currentID == id {
			s.currentID = ""
		}
	})
	return err
}

// SetCurrentID selects the calendar being edited. An empty id clears the
// selection.
func (s *Store) SetCurrentID(id string) {
	s.update(func() { s.currentID = id })
}

// Export returns the calendar as JSON text for saving to a file.
func (s *Store) Export(ctx context.Context, id string) (string, error) {
	s.begin()
	text, err := s.repo.Export(ctx, id)
	s.finish("export", id, err, nil)
	return text, err
}

// Import stores a calendar read from an exported file.
func (s *Store) Import(ctx context.Context, text string) (calendar.Meta, error) {
	s.begin()
	meta, err := s.repo.Import(ctx, text)
	var list listing
	if err == nil {
		list = s.fetchList(ctx)
	}
	s.finish("import", meta.ID, err, func() { s.applyList(list) })
	return meta, err
}
