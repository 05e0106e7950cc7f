package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/JamesPrial/visual-calendar/internal/calendar"
	"github.com/JamesPrial/visual-calendar/internal/repository"
	"github.com/JamesPrial/visual-calendar/internal/session"
	"github.com/JamesPrial/visual-calendar/internal/snapshot"
)

// Maintenance is the storage upkeep CalendarTools needs beyond the session
// store. *repository.Repository satisfies it.
type Maintenance interface {
	Cleanup(ctx context.Context) (bool, error)
	Verify(ctx context.Context) (repository.Report, error)
	Repair(ctx context.Context) (repository.Report, error)
	Stats(ctx context.Context) (repository.Stats, error)
}

// CalendarTools holds the tool handlers. Edits go through the session store
// so its cached listing stays current.
type CalendarTools struct {
	store *session.Store
	maint Maintenance
}

// NewCalendarTools returns handlers backed by store and maint.
func NewCalendarTools(store *session.Store, maint Maintenance) *CalendarTools {
	return &CalendarTools{store: store, maint: maint}
}

// listEntry is one line of list_calendars output.
type listEntry struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
	HasPreview   bool      `json:"hasPreview"`
	IsCompressed bool      `json:"isCompressed,omitempty"`
}

// HandleListCalendars lists the cached calendar index after refreshing it.
func (c *CalendarTools) HandleListCalendars(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	c.store.LoadList(ctx)
	list := c.store.State().Calendars
	if len(list) == 0 {
		return mcp.NewToolResultText("No calendars saved."), nil
	}

	entries := make([]listEntry, len(list))
	for i, m := range list {
		entries[i] = listEntry{
			ID:           m.ID,
			Name:         m.Name,
			CreatedAt:    m.CreatedAt,
			UpdatedAt:    m.UpdatedAt,
			HasPreview:   m.PreviewImage != "",
			IsCompressed: m.IsCompressed,
		}
	}
	return jsonResult(entries)
}

// HandleGetCalendar returns a calendar document and makes it current.
// Parameters:
//   - id (string, required): calendar id
func (c *CalendarTools) HandleGetCalendar(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, ok := requireID(request)
	if !ok {
		return mcp.NewToolResultError("Missing required parameter: id"), nil
	}
	doc, err := c.store.Load(ctx, id)
	if err != nil {
		return failure("Failed to load calendar", err), nil
	}
	return jsonResult(doc)
}

// HandleCreateCalendar creates a calendar with default form data.
// Parameters:
//   - name (string, required): calendar name
func (c *CalendarTools) HandleCreateCalendar(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := request.RequireString("name")
	if err != nil || strings.TrimSpace(name) == "" {
		return mcp.NewToolResultError("Missing required parameter: name"), nil
	}
	meta, err := c.store.CreateNew(ctx, strings.TrimSpace(name), calendar.DefaultFormData())
	if err != nil {
		return failure("Failed to create calendar", err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Created calendar %q with id %s", meta.Name, meta.ID)), nil
}

// HandleRenameCalendar renames a calendar, keeping its content.
// Parameters:
//   - id (string, required): calendar id
//   - name (string, required): new name
func (c *CalendarTools) HandleRenameCalendar(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, ok := requireID(request)
	if !ok {
		return mcp.NewToolResultError("Missing required parameter: id"), nil
	}
	name, err := request.RequireString("name")
	if err != nil || strings.TrimSpace(name) == "" {
		return mcp.NewToolResultError("Missing required parameter: name"), nil
	}
	name = strings.TrimSpace(name)

	doc, err := c.store.Load(ctx, id)
	if err != nil {
		return failure("Failed to load calendar", err), nil
	}
	meta, err := c.store.Save(ctx, session.SaveParams{
		ID:         id,
		FormData:   doc.FormData,
		ChildPhoto: doc.ChildPhoto,
		Name:       &name,
	})
	if err != nil {
		return failure("Failed to rename calendar", err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Renamed calendar %s to %q", meta.ID, meta.Name)), nil
}

// HandleDeleteCalendar deletes a calendar.
// Parameters:
//   - id (string, required): calendar id
func (c *CalendarTools) HandleDeleteCalendar(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, ok := requireID(request)
	if !ok {
		return mcp.NewToolResultError("Missing required parameter: id"), nil
	}
	if err := c.store.Delete(ctx, id); err != nil {
		return failure("Failed to delete calendar", err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Deleted calendar %s", id)), nil
}

// HandleExportCalendar returns the export text of a calendar.
// Parameters:
//   - id (string, required): calendar id
func (c *CalendarTools) HandleExportCalendar(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, ok := requireID(request)
	if !ok {
		return mcp.NewToolResultError("Missing required parameter: id"), nil
	}
	text, err := c.store.Export(ctx, id)
	if err != nil {
		return failure("Failed to export calendar", err), nil
	}
	return mcp.NewToolResultText(text), nil
}

// HandleImportCalendar stores a calendar from export text.
// Parameters:
//   - data (string, required): exported JSON
func (c *CalendarTools) HandleImportCalendar(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	data, err := request.RequireString("data")
	if err != nil || strings.TrimSpace(data) == "" {
		return mcp.NewToolResultError("Missing required parameter: data"), nil
	}
	meta, err := c.store.Import(ctx, data)
	if err != nil {
		return failure("Failed to import calendar", err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Imported calendar %q with id %s", meta.Name, meta.ID)), nil
}

// HandleUpdatePreview captures a thumbnail and saves it with the calendar.
// Parameters:
//   - id (string, required): calendar id
//   - html (string, required): rendered calendar document
//   - selector (string, optional): element to capture, default "body"
func (c *CalendarTools) HandleUpdatePreview(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, ok := requireID(request)
	if !ok {
		return mcp.NewToolResultError("Missing required parameter: id"), nil
	}
	html, err := request.RequireString("html")
	if err != nil || strings.TrimSpace(html) == "" {
		return mcp.NewToolResultError("Missing required parameter: html"), nil
	}
	selector := request.GetString("selector", "body")

	doc, err := c.store.Load(ctx, id)
	if err != nil {
		return failure("Failed to load calendar", err), nil
	}
	meta, err := c.store.Save(ctx, session.SaveParams{
		ID:         id,
		FormData:   doc.FormData,
		ChildPhoto: doc.ChildPhoto,
		Node:       &snapshot.Node{HTML: html, Selector: selector},
	})
	if err != nil {
		return failure("Failed to save calendar", err), nil
	}
	if meta.PreviewImage == doc.Meta.PreviewImage {
		return mcp.NewToolResultText(fmt.Sprintf("Saved calendar %s; no new thumbnail could be captured", id)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Updated preview of calendar %s (%s)", id,
		humanize.Bytes(uint64(len(meta.PreviewImage))))), nil
}

// HandleCleanupCalendars evicts calendars beyond the retention limit.
func (c *CalendarTools) HandleCleanupCalendars(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	c.store.LoadList(ctx)
	before := len(c.store.State().Calendars)
	evicted, err := c.maint.Cleanup(ctx)
	if err != nil {
		return failure("Cleanup failed", err), nil
	}
	c.store.LoadList(ctx)
	if !evicted {
		return mcp.NewToolResultText("Nothing to clean up."), nil
	}
	after := len(c.store.State().Calendars)
	return mcp.NewToolResultText(fmt.Sprintf("Removed %d old calendar(s); %d remain.", max(before-after, 0), after)), nil
}

// HandleVerifyStorage checks, and optionally repairs, the calendar index.
// Parameters:
//   - repair (bool, optional): rebuild the index
func (c *CalendarTools) HandleVerifyStorage(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	repair := request.GetBool("repair", false)
	check := c.maint.Verify
	if repair {
		check = c.maint.Repair
	}
	report, err := check(ctx)
	if err != nil {
		return failure("Verification failed", err), nil
	}
	c.store.LoadList(ctx)

	text := formatReport(report)
	if repair {
		text += "\nIndex rebuilt from stored documents."
	}
	return mcp.NewToolResultText(text), nil
}

// HandleStorageStats reports storage use.
func (c *CalendarTools) HandleStorageStats(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	stats, err := c.maint.Stats(ctx)
	if err != nil {
		return failure("Failed to read storage stats", err), nil
	}
	return mcp.NewToolResultText(formatStats(stats)), nil
}

func requireID(request mcp.CallToolRequest) (string, bool) {
	id, err := request.RequireString("id")
	if err != nil || strings.TrimSpace(id) == "" {
		return "", false
	}
	return strings.TrimSpace(id), true
}

// failure formats a tool error with the user-facing message and the cause.
func failure(prefix string, err error) *mcp.CallToolResult {
	msg := fmt.Sprintf("%s: %v", prefix, err)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		msg = fmt.Sprintf("%s: %s", prefix, session.MsgNotFound)
	case errors.Is(err, repository.ErrQuotaExceeded):
		msg = fmt.Sprintf("%s: %s (%v)", prefix, session.MsgQuotaExceeded, err)
	}
	return mcp.NewToolResultError(msg)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func formatReport(r repository.Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Indexed: %d\nStored: %d\n", r.Indexed, r.Stored)
	for _, section := range []struct {
		label string
		ids   []string
	}{
		{"Dangling index entries", r.Dangling},
		{"Orphaned documents", r.Orphans},
		{"Corrupt documents", r.Corrupt},
		{"Duplicate index entries", r.Duplicates},
		{"Stored plain and compressed", r.DoubleEncoded},
	} {
		if len(section.ids) > 0 {
			fmt.Fprintf(&b, "%s: %s\n", section.label, strings.Join(section.ids, ", "))
		}
	}
	if r.OK() {
		b.WriteString("Status: OK")
	} else {
		b.WriteString("Status: inconsistent")
	}
	return b.String()
}

func formatStats(s repository.Stats) string {
	quota := "unlimited"
	if s.QuotaBytes > 0 {
		quota = fmt.Sprintf("%s (%.0f%% used)", humanize.IBytes(uint64(s.QuotaBytes)),
			float64(s.UsedBytes)*100/float64(s.QuotaBytes))
	}
	return fmt.Sprintf("Calendars: %d (%d compressed)\nUsed: %s\nQuota: %s",
		s.Calendars, s.Compressed, humanize.IBytes(uint64(s.UsedBytes)), quota)
}
