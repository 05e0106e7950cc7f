// Package mcpserver exposes the calendar store as Model Context Protocol
// tools.
package mcpserver

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// listCalendarsTool returns a tool definition for listing saved calendars.
func listCalendarsTool() mcp.Tool {
	return mcp.NewTool("list_calendars",
		mcp.WithDescription("List saved calendars, most recently created last. Preview images are omitted."),
	)
}

// getCalendarTool returns a tool definition for reading one calendar.
func getCalendarTool() mcp.Tool {
	return mcp.NewTool("get_calendar",
		mcp.WithDescription("Read a calendar document, upgraded to the current schema, and make it the current calendar."),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("Calendar id")),
	)
}

// createCalendarTool returns a tool definition for creating a calendar.
func createCalendarTool() mcp.Tool {
	return mcp.NewTool("create_calendar",
		mcp.WithDescription("Create a calendar with default settings (Monday to Friday, default theme)."),
		mcp.WithString("name",
			mcp.Required(),
			mcp.Description("Calendar name, at most 200 characters")),
	)
}

// renameCalendarTool returns a tool definition for renaming a calendar.
func renameCalendarTool() mcp.Tool {
	return mcp.NewTool("rename_calendar",
		mcp.WithDescription("Rename a calendar. Its content is left unchanged."),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("Calendar id")),
		mcp.WithString("name",
			mcp.Required(),
			mcp.Description("New calendar name")),
	)
}

// deleteCalendarTool returns a tool definition for deleting a calendar.
func deleteCalendarTool() mcp.Tool {
	return mcp.NewTool("delete_calendar",
		mcp.WithDescription("Delete a calendar. Deleting an unknown id succeeds."),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("Calendar id")),
	)
}

// exportCalendarTool returns a tool definition for exporting a calendar.
func exportCalendarTool() mcp.Tool {
	return mcp.NewTool("export_calendar",
		mcp.WithDescription("Export a calendar as JSON text suitable for import_calendar."),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("Calendar id")),
	)
}

// importCalendarTool returns a tool definition for importing a calendar.
func importCalendarTool() mcp.Tool {
	return mcp.NewTool("import_calendar",
		mcp.WithDescription("Import a calendar from exported JSON text. The copy gets a new id and an \"(imported)\" name suffix."),
		mcp.WithString("data",
			mcp.Required(),
			mcp.Description("Exported calendar JSON with meta and formData objects")),
	)
}

// updatePreviewTool returns a tool definition for refreshing a thumbnail.
func updatePreviewTool() mcp.Tool {
	return mcp.NewTool("update_preview",
		mcp.WithDescription("Render HTML in a headless browser and store a thumbnail of the selected element as the calendar preview."),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("Calendar id")),
		mcp.WithString("html",
			mcp.Required(),
			mcp.Description("Standalone HTML document of the rendered calendar")),
		mcp.WithString("selector",
			mcp.Description("CSS selector of the element to capture (defaults to 'body')")),
	)
}

// cleanupCalendarsTool returns a tool definition for evicting old calendars.
func cleanupCalendarsTool() mcp.Tool {
	return mcp.NewTool("cleanup_calendars",
		mcp.WithDescription("Delete the least recently updated calendars beyond the retention limit."),
	)
}

// verifyStorageTool returns a tool definition for the integrity check.
func verifyStorageTool() mcp.Tool {
	return mcp.NewTool("verify_storage",
		mcp.WithDescription("Check that the calendar index matches the stored documents. Optionally rebuild the index."),
		mcp.WithBoolean("repair",
			mcp.Description("Rebuild the index from the stored documents")),
	)
}

// storageStatsTool returns a tool definition for storage usage.
func storageStatsTool() mcp.Tool {
	return mcp.NewTool("storage_stats",
		mcp.WithDescription("Report calendar count and storage usage against the quota."),
	)
}
