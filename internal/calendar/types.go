// Package calendar defines the calendar document model and the editing
// operations applied to a calendar's form data.
//
// A Document is the persisted unit: the lightweight Meta kept in the
// listing index, the editor's FormData, and the optional child photo.
// The JSON tags use camelCase to match documents exported by earlier
// versions of the editor.
package calendar

import "time"

// MaxNameLength is the longest accepted calendar name, in runes. It matches
// the max tag on Meta.Name.
const MaxNameLength = 200

// ChildPhotoKey is the reserved StickerQuantities key tracking how many
// child photo stickers are printed.
const ChildPhotoKey = "childPhoto"

// Weekday is a day column shown on the calendar.
type Weekday string

const (
	Monday    Weekday = "monday"
	Tuesday   Weekday = "tuesday"
	Wednesday Weekday = "wednesday"
	Thursday  Weekday = "thursday"
	Friday    Weekday = "friday"
	Saturday  Weekday = "saturday"
	Sunday    Weekday = "sunday"
)

// PreviewMode selects what the editor preview renders.
type PreviewMode string

const (
	PreviewCalendar PreviewMode = "calendar"
	PreviewStickers PreviewMode = "stickers"
)

// Meta is the lightweight projection of a calendar kept in the listing index.
type Meta struct {
	// ID is a UUID, immutable after creation and used as the storage key suffix.
	ID string `json:"id" validate:"required"`

	// Name is the user-visible calendar name, at most MaxNameLength runes.
	Name string `json:"name" validate:"max=200"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	// PreviewImage is a data URL thumbnail of the rendered calendar.
	PreviewImage string `json:"previewImage,omitempty"`

	// IsCompressed reports that the document body is stored in the
	// compressed fallback encoding.
	IsCompressed bool `json:"isCompressed,omitempty"`

	// SchemaVersion is the document schema version. Documents written
	// before versioning existed have no value and read as 0.
	SchemaVersion int `json:"schemaVersion,omitempty"`
}

// Activity is a selectable sticker representing a routine item.
type Activity struct {
	ID        string `json:"id" validate:"required"`
	Name      string `json:"name"`
	Icon      string `json:"icon"`
	IsPreset  bool   `json:"isPreset"`
	ObjectFit string `json:"objectFit,omitempty" validate:"omitempty,oneof=contain cover fill"`
}

// DayMoment is a named subdivision of a day column with its share of the
// column height. The shares of all moments of a calendar sum to 100.
type DayMoment struct {
	ID            string `json:"id" validate:"required"`
	Label         string `json:"label"`
	DayPercentage int    `json:"dayPercentage" validate:"gte=0,lte=100"`
}

// Options are the display toggles of the calendar.
type Options struct {
	UppercaseWeekdays bool        `json:"uppercaseWeekdays"`
	ShowDayMoments    bool        `json:"showDayMoments"`
	PreviewMode       PreviewMode `json:"previewMode,omitempty" validate:"omitempty,oneof=calendar stickers"`
}

// FormData is the full editor configuration of a calendar.
type FormData struct {
	SelectedDays       []Weekday      `json:"selectedDays" validate:"dive,oneof=monday tuesday wednesday thursday friday saturday sunday"`
	SelectedActivities []Activity     `json:"selectedActivities" validate:"dive"`
	CustomActivities   []Activity     `json:"customActivities" validate:"dive"`
	StickerQuantities  map[string]int `json:"stickerQuantities" validate:"dive,min=1"`
	ColorTheme         Theme          `json:"colorTheme" validate:"theme"`
	BackgroundImage    *string        `json:"backgroundImage"`
	DayMoments         []DayMoment    `json:"dayMoments" validate:"min=1,dive"`
	Options            Options        `json:"options"`
}

// Document is the persisted unit for one user-created calendar.
type Document struct {
	Meta       Meta     `json:"meta"`
	FormData   FormData `json:"formData"`
	ChildPhoto *string  `json:"childPhoto"`
}

// Clone returns a deep copy of the document.
func (d Document) Clone() Document {
	out := d
	out.FormData = d.FormData.Clone()
	if d.ChildPhoto != nil {
		photo := *d.ChildPhoto
		out.ChildPhoto = &photo
	}
	return out
}

// Clone returns a deep copy of the form data.
func (f FormData) Clone() FormData {
	out := f
	out.SelectedDays = append([]Weekday(nil), f.SelectedDays...)
	out.SelectedActivities = append([]Activity(nil), f.SelectedActivities...)
	out.CustomActivities = append([]Activity(nil), f.CustomActivities...)
	out.DayMoments = append([]DayMoment(nil), f.DayMoments...)
	if f.StickerQuantities != nil {
		out.StickerQuantities = make(map[string]int, len(f.StickerQuantities))
		for k, v := range f.StickerQuantities {
			out.StickerQuantities[k] = v
		}
	}
	if f.BackgroundImage != nil {
		bg := *f.BackgroundImage
		out.BackgroundImage = &bg
	}
	return out
}
