package repository_test

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/JamesPrial/visual-calendar/internal/calendar"
	"github.com/JamesPrial/visual-calendar/internal/codec"
	"github.com/JamesPrial/visual-calendar/internal/migrate"
	"github.com/JamesPrial/visual-calendar/internal/repository"
	"github.com/JamesPrial/visual-calendar/internal/storage"
)

// ---------------------------------------------------------------------------
// Init / List
// ---------------------------------------------------------------------------

func Test_Init_CreatesEmptyIndex(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := f.repo.Init(ctx); err != nil {
			t.Fatalf("Init #%d: %v", i+1, err)
		}
	}
	raw, ok := f.raw(t, repository.IndexKey)
	if !ok || raw != "[]" {
		t.Errorf("index = %q (exists %v), want []", raw, ok)
	}
	if got := f.repo.List(ctx); got == nil || len(got) != 0 {
		t.Errorf("List() = %v, want empty non-nil", got)
	}
}

func Test_Init_RebuildsCorruptIndex(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	a := f.create(t, "A")
	b := f.create(t, "B")

	f.put(t, repository.IndexKey, "{definitely not an index")
	if err := f.repo.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}

	ids := listIDs(f.repo.List(context.Background()))
	want := []string{a.ID, b.ID}
	if !reflect.DeepEqual(ids, want) {
		t.Errorf("rebuilt index ids = %v, want %v", ids, want)
	}
	requireConsistent(t, f)
}

func Test_List_NeverFails(t *testing.T) {
	t.Parallel()
	f := newFixtureWithEngine(t, failingEngine{Engine: storage.NewMemoryEngine(0)})

	// The index is missing and cannot be created.
	got := f.repo.List(context.Background())
	if got == nil || len(got) != 0 {
		t.Errorf("List() = %v, want empty non-nil", got)
	}
}

// ---------------------------------------------------------------------------
// Create / Get / Update
// ---------------------------------------------------------------------------

func Test_Create_DefaultIDIsUUID(t *testing.T) {
	t.Parallel()
	repo := repository.New(storage.NewMemoryEngine(0))
	meta, err := repo.Create(context.Background(), repository.CreateParams{
		Name:     "Lucas",
		FormData: calendar.DefaultFormData(),
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := uuid.Parse(meta.ID); err != nil {
		t.Errorf("id %q is not a UUID: %v", meta.ID, err)
	}
	if !meta.CreatedAt.Equal(meta.UpdatedAt) {
		t.Errorf("createdAt %v != updatedAt %v", meta.CreatedAt, meta.UpdatedAt)
	}
	if meta.CreatedAt.Location() != time.UTC || meta.CreatedAt.Nanosecond()%int(time.Millisecond) != 0 {
		t.Errorf("createdAt %v not UTC at millisecond precision", meta.CreatedAt)
	}
}

func Test_Create_StoresPlainJSON(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	photo := "data:image/jpeg;base64,AAAA"
	meta, err := f.repo.Create(context.Background(), repository.CreateParams{
		Name:         "Zoé 🦖",
		FormData:     calendar.DefaultFormData(),
		ChildPhoto:   &photo,
		PreviewImage: "data:image/jpeg;base64,BBBB",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	raw, ok := f.raw(t, repository.DocKey(meta.ID))
	if !ok {
		t.Fatal("plain body missing")
	}
	if !strings.HasPrefix(raw, "{") {
		t.Errorf("body not plain JSON: %.40s", raw)
	}
	if _, ok := f.raw(t, repository.CompressedKey(meta.ID)); ok {
		t.Error("compressed body written on the happy path")
	}
	if meta.IsCompressed {
		t.Error("meta.IsCompressed = true on the happy path")
	}

	doc := f.get(t, meta.ID)
	if doc.Meta.Name != "Zoé 🦖" || doc.ChildPhoto == nil || *doc.ChildPhoto != photo {
		t.Errorf("stored document mismatch: %+v", doc.Meta)
	}
	if doc.Meta.SchemaVersion != migrate.Current {
		t.Errorf("SchemaVersion = %d, want %d", doc.Meta.SchemaVersion, migrate.Current)
	}
	if !reflect.DeepEqual(f.repo.List(context.Background()), []calendar.Meta{meta}) {
		t.Errorf("List() = %+v, want [%+v]", f.repo.List(context.Background()), meta)
	}
}

func Test_Create_ExplicitID(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	meta, err := f.repo.Create(ctx, repository.CreateParams{ID: "pre-made", Name: "X", FormData: calendar.DefaultFormData()})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if meta.ID != "pre-made" {
		t.Errorf("ID = %q, want pre-made", meta.ID)
	}

	_, err = f.repo.Create(ctx, repository.CreateParams{ID: "pre-made", Name: "Y", FormData: calendar.DefaultFormData()})
	if !errors.Is(err, repository.ErrValidation) {
		t.Errorf("duplicate explicit id error = %v, want ErrValidation", err)
	}
	if got := f.get(t, "pre-made").Meta.Name; got != "X" {
		t.Errorf("original overwritten: name = %q", got)
	}
}

func Test_Create_RejectsInvalidFormData(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	fd := calendar.DefaultFormData()
	fd.ColorTheme = "neon"

	_, err := f.repo.Create(context.Background(), repository.CreateParams{Name: "Bad", FormData: fd})
	if !errors.Is(err, repository.ErrValidation) {
		t.Fatalf("Create error = %v, want ErrValidation", err)
	}
	if n := len(f.repo.List(context.Background())); n != 0 {
		t.Errorf("index has %d entries after rejected create", n)
	}
}

func Test_Create_PropagatesStorageFailure(t *testing.T) {
	t.Parallel()
	mem := storage.NewMemoryEngine(0)
	f := newFixtureWithEngine(t, mem)
	if err := f.repo.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}

	broken := repository.New(failingEngine{Engine: mem})
	_, err := broken.Create(context.Background(), repository.CreateParams{Name: "X", FormData: calendar.DefaultFormData()})
	if err == nil {
		t.Fatal("Create on failing engine: expected error")
	}
	if kind := repository.KindOf(err); kind != repository.KindUnknown {
		t.Errorf("KindOf = %v, want unknown", kind)
	}
}

func Test_CreateThenRename(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	meta := f.create(t, "Lucas")

	name := "Lucas v2"
	updated, err := f.repo.Update(ctx, meta.ID, repository.UpdateParams{Name: &name})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	doc := f.get(t, meta.ID)
	if doc.Meta.Name != "Lucas v2" {
		t.Errorf("name = %q, want Lucas v2", doc.Meta.Name)
	}
	if !doc.Meta.UpdatedAt.After(doc.Meta.CreatedAt) {
		t.Errorf("updatedAt %v not after createdAt %v", doc.Meta.UpdatedAt, doc.Meta.CreatedAt)
	}
	if !doc.Meta.CreatedAt.Equal(meta.CreatedAt) {
		t.Errorf("createdAt changed: %v -> %v", meta.CreatedAt, doc.Meta.CreatedAt)
	}
	if !reflect.DeepEqual(doc.FormData, calendar.DefaultFormData()) {
		t.Error("rename changed form data")
	}
	if list := f.repo.List(ctx); len(list) != 1 || list[0] != updated {
		t.Errorf("index = %+v, want [%+v]", list, updated)
	}
}

func Test_Update_UpdatedAtStrictlyIncreasesWithFrozenClock(t *testing.T) {
	t.Parallel()
	clock := &fakeClock{t: epoch}
	f := newFixture(t, repository.WithClock(clock.Now))
	ctx := context.Background()
	meta := f.create(t, "Frozen")

	prev := meta.UpdatedAt
	for i := 0; i < 3; i++ {
		name := "n"
		updated, err := f.repo.Update(ctx, meta.ID, repository.UpdateParams{Name: &name})
		if err != nil {
			t.Fatalf("Update: %v", err)
		}
		if !updated.UpdatedAt.After(prev) {
			t.Fatalf("updatedAt %v not after %v", updated.UpdatedAt, prev)
		}
		prev = updated.UpdatedAt
	}
}

func Test_Update_PartialMerge(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	photo := "data:image/png;base64,PHOTO"
	meta, err := f.repo.Create(ctx, repository.CreateParams{
		Name:       "Merge",
		FormData:   calendar.DefaultFormData(),
		ChildPhoto: &photo,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	fd := calendar.DefaultFormData()
	fd.ColorTheme = calendar.ThemeOcean
	preview := "data:image/jpeg;base64,PREVIEW"
	if _, err := f.repo.Update(ctx, meta.ID, repository.UpdateParams{FormData: &fd, PreviewImage: &preview}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	doc := f.get(t, meta.ID)
	if doc.Meta.Name != "Merge" {
		t.Errorf("name changed to %q", doc.Meta.Name)
	}
	if doc.ChildPhoto == nil || *doc.ChildPhoto != photo {
		t.Error("child photo lost by partial update")
	}
	if doc.FormData.ColorTheme != calendar.ThemeOcean {
		t.Errorf("theme = %q, want ocean", doc.FormData.ColorTheme)
	}
	if doc.Meta.PreviewImage != preview {
		t.Errorf("preview = %q", doc.Meta.PreviewImage)
	}

	if _, err := f.repo.Update(ctx, meta.ID, repository.UpdateParams{ClearChildPhoto: true}); err != nil {
		t.Fatalf("Update(clear photo): %v", err)
	}
	if f.get(t, meta.ID).ChildPhoto != nil {
		t.Error("child photo not cleared")
	}
}

func Test_Update_StoredDocumentWithStaleTheme(t *testing.T) {
	t.Parallel()

	const index = `[{"id":"abc","name":"Legacy","createdAt":"2024-01-01T00:00:00Z","updatedAt":"2024-01-01T00:00:00Z"}]`
	body := func(theme string) string {
		return `{"meta":{"id":"abc","name":"Legacy","createdAt":"2024-01-01T00:00:00Z","updatedAt":"2024-01-01T00:00:00Z"},` +
			`"formData":{"selectedDays":["monday"],"selectedActivities":[],"customActivities":[],` +
			`"stickerQuantities":{},` + theme + `"backgroundImage":null,"options":{}},"childPhoto":null}`
	}

	tests := []struct {
		name  string
		theme string
	}{
		{name: "missing theme", theme: ""},
		{name: "empty theme", theme: `"colorTheme":"",`},
		{name: "retired theme", theme: `"colorTheme":"neon",`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t)
			ctx := context.Background()
			f.put(t, repository.DocKey("abc"), body(tt.theme))
			f.put(t, repository.IndexKey, index)

			doc := f.get(t, "abc")
			if doc.FormData.ColorTheme != calendar.ThemeDefault {
				t.Errorf("theme = %q, want default", doc.FormData.ColorTheme)
			}

			name := "New"
			if _, err := f.repo.Update(ctx, "abc", repository.UpdateParams{Name: &name}); err != nil {
				t.Fatalf("rename: %v", err)
			}
			if _, err := f.repo.Update(ctx, "abc", repository.UpdateParams{FormData: &doc.FormData}); err != nil {
				t.Fatalf("save loaded form data: %v", err)
			}

			got := f.get(t, "abc")
			if got.Meta.Name != "New" {
				t.Errorf("name = %q, want New", got.Meta.Name)
			}
			if got.FormData.ColorTheme != calendar.ThemeDefault {
				t.Errorf("stored theme = %q, want default", got.FormData.ColorTheme)
			}
			requireConsistent(t, f)
		})
	}
}

func Test_Update_ValidatesSuppliedFields(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	meta := f.create(t, "Checked")

	bad := calendar.DefaultFormData()
	bad.ColorTheme = "neon"
	if _, err := f.repo.Update(ctx, meta.ID, repository.UpdateParams{FormData: &bad}); !errors.Is(err, repository.ErrValidation) {
		t.Errorf("Update(bad form data) error = %v, want ErrValidation", err)
	}

	long := strings.Repeat("a", calendar.MaxNameLength+1)
	if _, err := f.repo.Update(ctx, meta.ID, repository.UpdateParams{Name: &long}); !errors.Is(err, repository.ErrValidation) {
		t.Errorf("Update(long name) error = %v, want ErrValidation", err)
	}
	if got := f.get(t, meta.ID).Meta.Name; got != "Checked" {
		t.Errorf("name = %q after rejected updates", got)
	}
}

func Test_Create_NameLength(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		runes   int
		wantErr bool
	}{
		{name: "at limit", runes: calendar.MaxNameLength},
		{name: "over limit", runes: calendar.MaxNameLength + 1, wantErr: true},
		{name: "well over limit", runes: 250, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t)
			_, err := f.repo.Create(context.Background(), repository.CreateParams{
				Name:     strings.Repeat("é", tt.runes),
				FormData: calendar.DefaultFormData(),
			})
			if tt.wantErr != errors.Is(err, repository.ErrValidation) {
				t.Errorf("Create(%d runes) error = %v, wantErr %v", tt.runes, err, tt.wantErr)
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("Create: %v", err)
			}
		})
	}
}

func Test_Update_NotFound(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	name := "x"
	_, err := f.repo.Update(context.Background(), "missing", repository.UpdateParams{Name: &name})
	if !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("Update(missing) error = %v, want ErrNotFound", err)
	}
	if repository.KindOf(err) != repository.KindNotFound {
		t.Errorf("KindOf = %v, want not found", repository.KindOf(err))
	}
}

func Test_Update_DoesNotMutateCallerFormData(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	meta := f.create(t, "Alias")

	fd := calendar.DefaultFormData()
	if _, err := f.repo.Update(context.Background(), meta.ID, repository.UpdateParams{FormData: &fd}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	fd.SelectedDays[0] = calendar.Sunday
	if got := f.get(t, meta.ID).FormData.SelectedDays[0]; got != calendar.Monday {
		t.Errorf("stored days aliased caller slice: %q", got)
	}
}

// ---------------------------------------------------------------------------
// Delete
// ---------------------------------------------------------------------------

func Test_Delete_RemovesFromIndex(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	keep := f.create(t, "Keep")
	gone := f.create(t, "Gone")

	if err := f.repo.Delete(ctx, gone.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if ids := listIDs(f.repo.List(ctx)); !reflect.DeepEqual(ids, []string{keep.ID}) {
		t.Errorf("List ids = %v, want [%s]", ids, keep.ID)
	}
	if _, err := f.repo.Get(ctx, gone.ID); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("Get(deleted) error = %v, want ErrNotFound", err)
	}
	requireConsistent(t, f)
}

func Test_Delete_IdempotentAndRemovesCompressedVariant(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	meta := f.create(t, "Both")
	f.put(t, repository.CompressedKey(meta.ID), "stale-blob")

	for i := 0; i < 2; i++ {
		if err := f.repo.Delete(ctx, meta.ID); err != nil {
			t.Fatalf("Delete #%d: %v", i+1, err)
		}
	}
	if err := f.repo.Delete(ctx, "never-existed"); err != nil {
		t.Errorf("Delete(unknown) error = %v, want nil", err)
	}
	for _, key := range []string{repository.DocKey(meta.ID), repository.CompressedKey(meta.ID)} {
		if _, ok := f.raw(t, key); ok {
			t.Errorf("%s still stored after delete", key)
		}
	}
}

// ---------------------------------------------------------------------------
// Export / Import
// ---------------------------------------------------------------------------

func Test_Export_CanonicalJSON(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	meta := f.create(t, "Export me")

	text, err := f.repo.Export(ctx, meta.ID)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	doc, err := codec.Decode(text)
	if err != nil {
		t.Fatalf("exported text does not decode: %v", err)
	}
	if !reflect.DeepEqual(doc, f.get(t, meta.ID)) {
		t.Error("exported document differs from stored document")
	}

	if _, err := f.repo.Export(ctx, "missing"); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("Export(missing) error = %v, want ErrNotFound", err)
	}
}

func Test_Import_Validation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
	}{
		{name: "unrelated object", input: `{"foo":1}`},
		{name: "not json", input: `this is not json`},
		{name: "empty", input: ``},
		{name: "array", input: `[{"meta":{},"formData":{}}]`},
		{name: "missing formData", input: `{"meta":{"name":"x"}}`},
		{name: "missing meta", input: `{"formData":{}}`},
		{name: "meta not object", input: `{"meta":"x","formData":{}}`},
		{name: "formData not object", input: `{"meta":{},"formData":[1]}`},
		{name: "unknown theme", input: `{"meta":{"name":"x"},"formData":{"colorTheme":"neon"}}`},
		{name: "quantity below one", input: `{"meta":{},"formData":{"stickerQuantities":{"a":0}}}`},
		{name: "malformed body", input: `{"meta":{},"formData":{"selectedDays":"monday"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t)
			_, err := f.repo.Import(context.Background(), tt.input)
			if !errors.Is(err, repository.ErrValidation) {
				t.Fatalf("Import(%q) error = %v, want ErrValidation", tt.input, err)
			}
			if n := len(f.repo.List(context.Background())); n != 0 {
				t.Errorf("index has %d entries after rejected import", n)
			}
		})
	}
}

func Test_Import_ExportRoundTripMintsNewID(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	orig := f.create(t, "Lucas")

	text, err := f.repo.Export(ctx, orig.ID)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	imported, err := f.repo.Import(ctx, text)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}

	if imported.ID == orig.ID {
		t.Error("import reused the original id")
	}
	if !strings.Contains(imported.Name, "imported") {
		t.Errorf("name %q lacks imported marker", imported.Name)
	}
	if imported.Name != "Lucas"+repository.ImportedSuffix {
		t.Errorf("name = %q, want %q", imported.Name, "Lucas"+repository.ImportedSuffix)
	}
	if !imported.CreatedAt.After(orig.CreatedAt) || !imported.CreatedAt.Equal(imported.UpdatedAt) {
		t.Errorf("timestamps not fresh: created %v updated %v", imported.CreatedAt, imported.UpdatedAt)
	}

	doc := f.get(t, imported.ID)
	if !reflect.DeepEqual(doc.FormData, f.get(t, orig.ID).FormData) {
		t.Error("imported form data differs from original")
	}
	if len(f.repo.List(ctx)) != 2 {
		t.Errorf("List has %d entries, want 2", len(f.repo.List(ctx)))
	}
	requireConsistent(t, f)
}

func Test_Import_LegacyDocumentIsMigrated(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	legacy := `{"meta":{"id":"old","name":"Old one"},"formData":{"selectedDays":["monday"],` +
		`"selectedActivities":[],"customActivities":[],"stickerQuantities":{},"colorTheme":"forest",` +
		`"backgroundImage":null,"options":{"uppercaseWeekdays":false}},"childPhoto":null}`

	meta, err := f.repo.Import(context.Background(), legacy)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	doc := f.get(t, meta.ID)
	if !doc.FormData.IsSingleMoment() {
		t.Errorf("dayMoments = %+v, want sentinel", doc.FormData.DayMoments)
	}
	if doc.FormData.ColorTheme != calendar.ThemeForest {
		t.Errorf("theme = %q, want forest", doc.FormData.ColorTheme)
	}
}

func Test_Import_NameIsBounded(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	long := strings.Repeat("é", 300)
	payload, err := json.Marshal(map[string]any{
		"meta":     map[string]any{"name": long},
		"formData": calendar.DefaultFormData(),
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	meta, err := f.repo.Import(context.Background(), string(payload))
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if n := len([]rune(meta.Name)); n > 200 {
		t.Errorf("name has %d runes, want <= 200", n)
	}
	if !strings.HasSuffix(meta.Name, repository.ImportedSuffix) {
		t.Errorf("name %q lacks suffix", meta.Name)
	}
}

// ---------------------------------------------------------------------------
// Get: encodings and corruption
// ---------------------------------------------------------------------------

func Test_Get_AcceptsAllEncodings(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	meta := f.create(t, "Encoded")
	want := f.get(t, meta.ID)
	text, err := codec.Encode(want)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	quoted, err := json.Marshal(text)
	if err != nil {
		t.Fatalf("marshal string: %v", err)
	}
	blob, err := codec.GzipCompressor{}.Compress(text)
	if err != nil {
		t.Fatalf("Compress: %v", err)
	}
	legacyBlob, err := codec.Base64Compressor{}.Compress(text)
	if err != nil {
		t.Fatalf("Compress: %v", err)
	}
	quotedBlob, err := json.Marshal(blob)
	if err != nil {
		t.Fatalf("marshal blob: %v", err)
	}

	tests := []struct {
		name string
		key  string
		body string
	}{
		{name: "native object", key: repository.DocKey(meta.ID), body: text},
		{name: "json string", key: repository.DocKey(meta.ID), body: string(quoted)},
		{name: "compressed under plain key", key: repository.DocKey(meta.ID), body: blob},
		{name: "compressed under compressed key", key: repository.CompressedKey(meta.ID), body: blob},
		{name: "base64 fallback blob", key: repository.CompressedKey(meta.ID), body: legacyBlob},
		{name: "json string wrapping blob", key: repository.CompressedKey(meta.ID), body: string(quotedBlob)},
	}

	for _, tt := range tests {
		ctx := context.Background()
		if err := f.engine.Apply(ctx,
			storage.Remove(repository.DocKey(meta.ID)),
			storage.Remove(repository.CompressedKey(meta.ID)),
			storage.Put(tt.key, []byte(tt.body)),
		); err != nil {
			t.Fatalf("%s: seed: %v", tt.name, err)
		}
		got, err := f.repo.Get(ctx, meta.ID)
		if err != nil {
			t.Errorf("%s: Get: %v", tt.name, err)
			continue
		}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("%s: document mismatch\n got: %+v\nwant: %+v", tt.name, got.Meta, want.Meta)
		}
	}
}

func Test_Get_MigratesWithoutRewriting(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	meta := f.create(t, "Legacy")

	legacy := `{"meta":{"id":"` + meta.ID + `","name":"Legacy"},"formData":{"selectedDays":["monday"],` +
		`"colorTheme":"default","options":{"uppercaseWeekdays":true}},"childPhoto":null}`
	f.put(t, repository.DocKey(meta.ID), legacy)

	doc := f.get(t, meta.ID)
	if !doc.FormData.IsSingleMoment() {
		t.Errorf("dayMoments = %+v, want sentinel", doc.FormData.DayMoments)
	}
	if doc.FormData.Options.ShowDayMoments {
		t.Error("showDayMoments = true, want false")
	}
	if !doc.FormData.Options.UppercaseWeekdays {
		t.Error("uppercaseWeekdays lost by migration")
	}
	if raw, _ := f.raw(t, repository.DocKey(meta.ID)); raw != legacy {
		t.Errorf("stored bytes rewritten by read:\n%s", raw)
	}
}

func Test_Get_FutureVersionStillReads(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	meta := f.create(t, "Future")
	future := `{"meta":{"id":"` + meta.ID + `","name":"Future","schemaVersion":99},` +
		`"formData":{"colorTheme":"sky","dayMoments":[{"id":"all-day","label":"","dayPercentage":100}]},"childPhoto":null}`
	f.put(t, repository.DocKey(meta.ID), future)

	doc := f.get(t, meta.ID)
	if doc.FormData.ColorTheme != calendar.ThemeSky || doc.Meta.SchemaVersion != 99 {
		t.Errorf("future document misread: %+v", doc.Meta)
	}
}

func Test_Get_CorruptRecordTolerance(t *testing.T) {
	t.Parallel()

	for _, body := range []string{"not json {{{", "{\"meta\":", "\"unterminated", "", "!!!", "[1,2]"} {
		f := newFixture(t)
		ctx := context.Background()
		meta := f.create(t, "Soon corrupt")
		other := f.create(t, "Healthy")
		before := f.repo.List(ctx)

		f.put(t, repository.DocKey(meta.ID), body)

		_, err := f.repo.Get(ctx, meta.ID)
		if !errors.Is(err, repository.ErrNotFound) || !errors.Is(err, repository.ErrCorrupt) {
			t.Errorf("Get(corrupt %q) error = %v, want ErrNotFound and ErrCorrupt", body, err)
		}
		if after := f.repo.List(ctx); !reflect.DeepEqual(after, before) {
			t.Errorf("List changed after corruption: %v", after)
		}
		if _, err := f.repo.Get(ctx, other.ID); err != nil {
			t.Errorf("healthy calendar unreadable: %v", err)
		}
	}
}

// ---------------------------------------------------------------------------
// Error model
// ---------------------------------------------------------------------------

func Test_Error_KindsAndSentinels(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err       *repository.Error
		matches   []error
		unmatched []error
	}{
		{
			err:       &repository.Error{Op: "get", ID: "x", Kind: repository.KindNotFound},
			matches:   []error{repository.ErrNotFound},
			unmatched: []error{repository.ErrCorrupt, repository.ErrValidation, repository.ErrQuotaExceeded},
		},
		{
			err:       &repository.Error{Op: "get", ID: "x", Kind: repository.KindCorrupt, Err: codec.ErrCorrupt},
			matches:   []error{repository.ErrNotFound, repository.ErrCorrupt, codec.ErrCorrupt},
			unmatched: []error{repository.ErrValidation},
		},
		{
			err:       &repository.Error{Op: "import", Kind: repository.KindValidation},
			matches:   []error{repository.ErrValidation},
			unmatched: []error{repository.ErrNotFound},
		},
		{
			err:       &repository.Error{Op: "update", ID: "x", Kind: repository.KindQuota, Err: storage.ErrQuotaExceeded},
			matches:   []error{repository.ErrQuotaExceeded, storage.ErrQuotaExceeded},
			unmatched: []error{repository.ErrNotFound},
		},
	}

	for _, tt := range tests {
		for _, target := range tt.matches {
			if !errors.Is(tt.err, target) {
				t.Errorf("%v: errors.Is(%v) = false, want true", tt.err, target)
			}
		}
		for _, target := range tt.unmatched {
			if errors.Is(tt.err, target) {
				t.Errorf("%v: errors.Is(%v) = true, want false", tt.err, target)
			}
		}
		if repository.KindOf(tt.err) != tt.err.Kind {
			t.Errorf("KindOf(%v) = %v", tt.err, repository.KindOf(tt.err))
		}
	}

	if repository.KindOf(errors.New("plain")) != repository.KindUnknown {
		t.Error("KindOf(plain error) != KindUnknown")
	}
	if got := (&repository.Error{Op: "get", ID: "abc", Kind: repository.KindNotFound}).Error(); got != "get abc: not found" {
		t.Errorf("Error() = %q", got)
	}
}
