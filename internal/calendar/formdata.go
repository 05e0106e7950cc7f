package calendar

import (
	"errors"
	"fmt"
	"strconv"
)

// SingleMomentID is the id of the sole moment in the single-moment sentinel.
const SingleMomentID = "all-day"

// ErrLastDayMoment is returned when removing the only remaining day moment.
var ErrLastDayMoment = errors.New("cannot remove the last day moment")

// ErrUnknownDayMoment is returned when a day moment id does not exist.
var ErrUnknownDayMoment = errors.New("unknown day moment")

// SingleMoment returns the one-element day moment list meaning
// "no subdivision of the day".
func SingleMoment() []DayMoment {
	return []DayMoment{{ID: SingleMomentID, Label: "", DayPercentage: 100}}
}

// DefaultFormData returns the form data of a freshly created calendar.
func DefaultFormData() FormData {
	return FormData{
		SelectedDays:       []Weekday{Monday, Tuesday, Wednesday, Thursday, Friday},
		SelectedActivities: []Activity{},
		CustomActivities:   []Activity{},
		StickerQuantities:  map[string]int{},
		ColorTheme:         ThemeDefault,
		BackgroundImage:    nil,
		DayMoments:         SingleMoment(),
		Options: Options{
			UppercaseWeekdays: false,
			ShowDayMoments:    false,
			PreviewMode:       PreviewCalendar,
		},
	}
}

// ---------------------------------------------------------------------------
// Sticker quantities
// ---------------------------------------------------------------------------

// Quantity returns the print quantity of a sticker, 1 when unset.
func (f *FormData) Quantity(id string) int {
	if n, ok := f.StickerQuantities[id]; ok && n >= 1 {
		return n
	}
	return 1
}

// SetQuantity sets the print quantity of a sticker, clamped to at least 1.
func (f *FormData) SetQuantity(id string, n int) {
	if f.StickerQuantities == nil {
		f.StickerQuantities = make(map[string]int)
	}
	if n < 1 {
		n = 1
	}
	f.StickerQuantities[id] = n
}

// AdjustQuantity adds delta to the print quantity of a sticker. The result
// never drops below 1.
func (f *FormData) AdjustQuantity(id string, delta int) int {
	f.SetQuantity(id, f.Quantity(id)+delta)
	return f.StickerQuantities[id]
}

// ---------------------------------------------------------------------------
// Activities
// ---------------------------------------------------------------------------

// AddActivity selects an activity. Custom activities are also added to the
// custom activity library. Selecting an already selected id is a no-op.
func (f *FormData) AddActivity(a Activity) {
	if !a.IsPreset && indexOfActivity(f.CustomActivities, a.ID) < 0 {
		f.CustomActivities = append(f.CustomActivities, a)
	}
	if indexOfActivity(f.SelectedActivities, a.ID) >= 0 {
		return
	}
	f.SelectedActivities = append(f.SelectedActivities, a)
}

// RemoveActivity deselects an activity and drops its quantity entry.
// The activity stays in the custom library.
func (f *FormData) RemoveActivity(id string) {
	if i := indexOfActivity(f.SelectedActivities, id); i >= 0 {
		f.SelectedActivities = append(f.SelectedActivities[:i], f.SelectedActivities[i+1:]...)
	}
	delete(f.StickerQuantities, id)
}

// DeleteCustomActivity removes a custom activity from the library and from
// the selection.
func (f *FormData) DeleteCustomActivity(id string) {
	if i := indexOfActivity(f.CustomActivities, id); i >= 0 {
		f.CustomActivities = append(f.CustomActivities[:i], f.CustomActivities[i+1:]...)
	}
	f.RemoveActivity(id)
}

func indexOfActivity(list []Activity, id string) int {
	for i, a := range list {
		if a.ID == id {
			return i
		}
	}
	return -1
}

// ---------------------------------------------------------------------------
// Day moments
// ---------------------------------------------------------------------------

// AddDayMoment appends a moment and splits the day evenly across all
// moments. It returns the new moment.
func (f *FormData) AddDayMoment(label string) DayMoment {
	if len(f.DayMoments) == 0 {
		f.DayMoments = SingleMoment()
	}
	m := DayMoment{ID: f.nextMomentID(), Label: label}
	f.DayMoments = append(f.DayMoments, m)

	weights := make([]float64, len(f.DayMoments))
	for i := range weights {
		weights[i] = 1
	}
	distribute(f.DayMoments, weights, 100)
	return f.DayMoments[len(f.DayMoments)-1]
}

// RemoveDayMoment removes a moment and hands its share to the remaining
// moments in proportion to their current shares.
func (f *FormData) RemoveDayMoment(id string) error {
	i := indexOfMoment(f.DayMoments, id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrUnknownDayMoment, id)
	}
	if len(f.DayMoments) == 1 {
		return ErrLastDayMoment
	}
	f.DayMoments = append(f.DayMoments[:i], f.DayMoments[i+1:]...)
	distribute(f.DayMoments, currentWeights(f.DayMoments), 100)
	return nil
}

// SetDayPercentage fixes the share of one moment (clamped to 0..100) and
// rescales the other moments so the total stays 100. A single moment
// always keeps 100.
func (f *FormData) SetDayPercentage(id string, pct int) error {
	i := indexOfMoment(f.DayMoments, id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrUnknownDayMoment, id)
	}
	if len(f.DayMoments) == 1 {
		f.DayMoments[0].DayPercentage = 100
		return nil
	}
	pct = max(0, min(100, pct))

	others := make([]DayMoment, 0, len(f.DayMoments)-1)
	for j, m := range f.DayMoments {
		if j != i {
			others = append(others, m)
		}
	}
	distribute(others, currentWeights(others), 100-pct)

	k := 0
	for j := range f.DayMoments {
		if j == i {
			f.DayMoments[j].DayPercentage = pct
			continue
		}
		f.DayMoments[j].DayPercentage = others[k].DayPercentage
		k++
	}
	return nil
}

// DayPercentageTotal returns the sum of all moment shares.
func (f *FormData) DayPercentageTotal() int {
	total := 0
	for _, m := range f.DayMoments {
		total += m.DayPercentage
	}
	return total
}

// IsSingleMoment reports whether the day has no moment subdivision.
func (f *FormData) IsSingleMoment() bool {
	return len(f.DayMoments) == 1
}

func (f *FormData) nextMomentID() string {
	for n := len(f.DayMoments) + 1; ; n++ {
		id := "moment-" + strconv.Itoa(n)
		if indexOfMoment(f.DayMoments, id) < 0 {
			return id
		}
	}
}

func indexOfMoment(list []DayMoment, id string) int {
	for i, m := range list {
		if m.ID == id {
			return i
		}
	}
	return -1
}

// currentWeights returns the moments' shares as weights, falling back to
// equal weights when every share is zero.
func currentWeights(moments []DayMoment) []float64 {
	weights := make([]float64, len(moments))
	sum := 0.0
	for i, m := range moments {
		weights[i] = float64(m.DayPercentage)
		sum += weights[i]
	}
	if sum == 0 {
		for i := range weights {
			weights[i] = 1
		}
	}
	return weights
}

// distribute assigns integer shares summing exactly to total, proportional
// to weights, using the largest remainder method. Ties go to the earlier
// moment.
func distribute(moments []DayMoment, weights []float64, total int) {
	if len(moments) == 0 {
		return
	}
	sum := 0.0
	for _, w := range weights {
		sum += w
	}

	assigned := 0
	remainders := make([]float64, len(moments))
	for i := range moments {
		exact := float64(total) * weights[i] / sum
		share := int(exact)
		moments[i].DayPercentage = share
		remainders[i] = exact - float64(share)
		assigned += share
	}

	for left := total - assigned; left > 0; left-- {
		best := 0
		for i := 1; i < len(remainders); i++ {
			if remainders[i] > remainders[best] {
				best = i
			}
		}
		moments[best].DayPercentage++
		remainders[best] = -1
	}
}
