package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"

	"github.com/JamesPrial/visual-calendar/internal/calendar"
	"github.com/JamesPrial/visual-calendar/internal/pathutil"
	"github.com/JamesPrial/visual-calendar/internal/repository"
	"github.com/JamesPrial/visual-calendar/internal/session"
	"github.com/JamesPrial/visual-calendar/internal/snapshot"
)

var headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)

var cellStyle = lipgloss.NewStyle().Padding(0, 1)

// ---------------------------------------------------------------------------
// Listing
// ---------------------------------------------------------------------------

type ListCmd struct {
	JSON bool `help:"Print the listing as JSON."`
}

func (c *ListCmd) Run(ctx *Context) error {
	list := ctx.App.Store.State().Calendars
	if c.JSON {
		data, err := json.MarshalIndent(list, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode listing: %w", err)
		}
		_, err = fmt.Fprintln(ctx.Out, string(data))
		return err
	}
	if len(list) == 0 {
		_, err := fmt.Fprintln(ctx.Out, "No calendars found")
		return err
	}

	now := ctx.Now()
	rows := make([][]string, 0, len(list))
	for _, m := range list {
		preview := "-"
		if m.PreviewImage != "" {
			preview = humanize.Bytes(uint64(len(m.PreviewImage)))
		}
		name := m.Name
		if m.IsCompressed {
			name += " (compressed)"
		}
		rows = append(rows, []string{m.ID, name, humanize.RelTime(m.UpdatedAt, now, "ago", "from now"), preview})
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		Headers("ID", "NAME", "UPDATED", "PREVIEW").
		Rows(rows...)
	_, err := fmt.Fprintln(ctx.Out, t.Render())
	return err
}

type ShowCmd struct {
	ID string `arg:"" help:"Calendar ID."`
}

func (c *ShowCmd) Run(ctx *Context) error {
	doc, err := ctx.App.Store.Load(ctx.Ctx, c.ID)
	if err != nil {
		return err
	}
	now := ctx.Now()
	fd := doc.FormData

	var b strings.Builder
	fmt.Fprintf(&b, "Name: %s\n", doc.Meta.Name)
	fmt.Fprintf(&b, "ID: %s\n", doc.Meta.ID)
	fmt.Fprintf(&b, "Created: %s (%s)\n", doc.Meta.CreatedAt.Format(time.DateTime),
		humanize.RelTime(doc.Meta.CreatedAt, now, "ago", "from now"))
	fmt.Fprintf(&b, "Updated: %s (%s)\n", doc.Meta.UpdatedAt.Format(time.DateTime),
		humanize.RelTime(doc.Meta.UpdatedAt, now, "ago", "from now"))
	fmt.Fprintf(&b, "Theme: %s\n", fd.ColorTheme)

	days := make([]string, len(fd.SelectedDays))
	for i, d := range fd.SelectedDays {
		days[i] = string(d)
	}
	if len(days) == 0 {
		days = []string{"none"}
	}
	fmt.Fprintf(&b, "Days: %s\n", strings.Join(days, ", "))
	fmt.Fprintf(&b, "Activities: %d selected, %d custom\n", len(fd.SelectedActivities), len(fd.CustomActivities))

	if !fd.IsSingleMoment() {
		moments := make([]string, len(fd.DayMoments))
		for i, m := range fd.DayMoments {
			moments[i] = fmt.Sprintf("%s %d%%", m.Label, m.DayPercentage)
		}
		fmt.Fprintf(&b, "Day moments: %s\n", strings.Join(moments, ", "))
	}
	if doc.ChildPhoto != nil {
		fmt.Fprintf(&b, "Child photo: %s\n", humanize.Bytes(uint64(len(*doc.ChildPhoto))))
	}
	if doc.Meta.PreviewImage != "" {
		fmt.Fprintf(&b, "Preview: %s\n", humanize.Bytes(uint64(len(doc.Meta.PreviewImage))))
	}
	_, err = io.WriteString(ctx.Out, b.String())
	return err
}

// ---------------------------------------------------------------------------
// Editing
// ---------------------------------------------------------------------------

type CreateCmd struct {
	Name    string   `arg:"" help:"Calendar name."`
	Days    []string `help:"Weekdays to show, e.g. monday,friday. Defaults to all." sep:","`
	Theme   string   `help:"Color theme." default:"default"`
	Moments []string `help:"Labels splitting each day, e.g. Morning,Evening." sep:","`
}

func (c *CreateCmd) Run(ctx *Context) error {
	fd := calendar.DefaultFormData()
	if len(c.Days) > 0 {
		fd.SelectedDays = make([]calendar.Weekday, len(c.Days))
		for i, d := range c.Days {
			fd.SelectedDays[i] = calendar.Weekday(strings.ToLower(strings.TrimSpace(d)))
		}
	}
	fd.ColorTheme = calendar.Theme(c.Theme)
	if len(c.Moments) > 0 {
		for _, label := range c.Moments {
			fd.AddDayMoment(strings.TrimSpace(label))
		}
		if err := fd.RemoveDayMoment(calendar.SingleMomentID); err != nil {
			return fmt.Errorf("failed to split day moments: %w", err)
		}
		fd.Options.ShowDayMoments = true
	}

	meta, err := ctx.App.Store.CreateNew(ctx.Ctx, c.Name, fd)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(ctx.Out, "Created calendar %q (%s)\n", meta.Name, meta.ID)
	return err
}

type RenameCmd struct {
	ID   string `arg:"" help:"Calendar ID."`
	Name string `arg:"" help:"New name."`
}

func (c *RenameCmd) Run(ctx *Context) error {
	doc, err := ctx.App.Store.Load(ctx.Ctx, c.ID)
	if err != nil {
		return err
	}
	meta, err := ctx.App.Store.Save(ctx.Ctx, session.SaveParams{
		ID:         c.ID,
		FormData:   doc.FormData,
		ChildPhoto: doc.ChildPhoto,
		Name:       &c.Name,
	})
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(ctx.Out, "Renamed calendar %s to %q\n", meta.ID, meta.Name)
	return err
}

type DeleteCmd struct {
	ID string `arg:"" help:"Calendar ID."`
}

func (c *DeleteCmd) Run(ctx *Context) error {
	if err := ctx.App.Store.Delete(ctx.Ctx, c.ID); err != nil {
		return err
	}
	_, err := fmt.Fprintf(ctx.Out, "Deleted calendar %s\n", c.ID)
	return err
}

type PreviewCmd struct {
	ID       string `arg:"" help:"Calendar ID."`
	HTML     string `arg:"" help:"HTML file rendering the calendar." type:"existingfile"`
	Selector string `help:"CSS selector of the element to capture." default:"body"`
}

func (c *PreviewCmd) Run(ctx *Context) error {
	if !ctx.App.Config.Snapshot.Enabled {
		return errors.New("preview snapshots are disabled; set CALENDAR_SNAPSHOTS=true")
	}
	html, err := os.ReadFile(c.HTML)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", c.HTML, err)
	}
	doc, err := ctx.App.Store.Load(ctx.Ctx, c.ID)
	if err != nil {
		return err
	}
	before := doc.Meta.PreviewImage
	meta, err := ctx.App.Store.Save(ctx.Ctx, session.SaveParams{
		ID:         c.ID,
		FormData:   doc.FormData,
		ChildPhoto: doc.ChildPhoto,
		Node:       &snapshot.Node{HTML: string(html), Selector: c.Selector},
	})
	if err != nil {
		return err
	}
	if meta.PreviewImage == "" || meta.PreviewImage == before {
		_, err = fmt.Fprintf(ctx.Out, "Saved calendar %s; no new preview was captured\n", meta.ID)
		return err
	}
	_, err = fmt.Fprintf(ctx.Out, "Updated preview of calendar %s (%s)\n", meta.ID,
		humanize.Bytes(uint64(len(meta.PreviewImage))))
	return err
}

// ---------------------------------------------------------------------------
// Import / export
// ---------------------------------------------------------------------------

type ExportCmd struct {
	ID     string `arg:"" help:"Calendar ID."`
	Output string `short:"o" help:"Write to this file instead of stdout." type:"path"`
}

func (c *ExportCmd) Run(ctx *Context) error {
	text, err := ctx.App.Store.Export(ctx.Ctx, c.ID)
	if err != nil {
		return err
	}
	if c.Output == "" {
		_, err = fmt.Fprintln(ctx.Out, text)
		return err
	}
	if err := pathutil.EnsureParent(c.Output); err != nil {
		return err
	}
	if err := os.WriteFile(c.Output, []byte(text), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", c.Output, err)
	}
	_, err = fmt.Fprintf(ctx.Out, "Exported calendar %s to %s\n", c.ID, c.Output)
	return err
}

type ImportCmd struct {
	File string `arg:"" help:"Exported calendar file, or - for stdin."`
}

func (c *ImportCmd) Run(ctx *Context) error {
	var (
		data []byte
		err  error
	)
	if c.File == "-" {
		data, err = io.ReadAll(ctx.In)
	} else {
		data, err = os.ReadFile(c.File)
	}
	if err != nil {
		return fmt.Errorf("failed to read import: %w", err)
	}
	meta, err := ctx.App.Store.Import(ctx.Ctx, string(data))
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(ctx.Out, "Imported calendar %q (%s)\n", meta.Name, meta.ID)
	return err
}

// ---------------------------------------------------------------------------
// Maintenance
// ---------------------------------------------------------------------------

type CleanupCmd struct{}

func (c *CleanupCmd) Run(ctx *Context) error {
	store := ctx.App.Store
	store.LoadList(ctx.Ctx)
	before := len(store.State().Calendars)
	evicted, err := ctx.App.Repo.Cleanup(ctx.Ctx)
	if err != nil {
		return err
	}
	store.LoadList(ctx.Ctx)
	if !evicted {
		_, err = fmt.Fprintln(ctx.Out, "Nothing to clean up")
		return err
	}
	after := len(store.State().Calendars)
	_, err = fmt.Fprintf(ctx.Out, "Removed %d old calendar(s); %d remain\n", max(before-after, 0), after)
	return err
}

type VerifyCmd struct {
	Repair bool `help:"Rebuild the index from stored documents."`
}

func (c *VerifyCmd) Run(ctx *Context) error {
	check := ctx.App.Repo.Verify
	if c.Repair {
		check = ctx.App.Repo.Repair
	}
	report, err := check(ctx.Ctx)
	if err != nil {
		return err
	}
	if c.Repair {
		ctx.App.Store.LoadList(ctx.Ctx)
	}
	printReport(ctx.Out, report)
	if !report.OK() {
		return errors.New("storage is inconsistent; run verify --repair")
	}
	return nil
}

func printReport(w io.Writer, r repository.Report) {
	fmt.Fprintf(w, "Indexed: %d\nStored: %d\n", r.Indexed, r.Stored)
	sections := []struct {
		label string
		ids   []string
	}{
		{"Dangling index entries", r.Dangling},
		{"Orphaned documents", r.Orphans},
		{"Corrupt documents", r.Corrupt},
		{"Duplicate index entries", r.Duplicates},
		{"Stored plain and compressed", r.DoubleEncoded},
	}
	for _, s := range sections {
		if len(s.ids) > 0 {
			fmt.Fprintf(w, "%s: %s\n", s.label, strings.Join(s.ids, ", "))
		}
	}
	if r.OK() {
		fmt.Fprintln(w, "Status: OK")
	} else {
		fmt.Fprintln(w, "Status: inconsistent")
	}
}

type StatsCmd struct{}

func (c *StatsCmd) Run(ctx *Context) error {
	s, err := ctx.App.Repo.Stats(ctx.Ctx)
	if err != nil {
		return err
	}
	quota := "unlimited"
	if s.QuotaBytes > 0 {
		quota = fmt.Sprintf("%s (%.0f%% used)", humanize.IBytes(uint64(s.QuotaBytes)),
			float64(s.UsedBytes)*100/float64(s.QuotaBytes))
	}
	_, err = fmt.Fprintf(ctx.Out, "Backend: %s\nCalendars: %d (%d compressed)\nUsed: %s\nQuota: %s\n",
		ctx.App.Config.Storage.Backend, s.Calendars, s.Compressed, humanize.IBytes(uint64(s.UsedBytes)), quota)
	return err
}
