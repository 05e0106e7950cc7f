package mcpserver

import (
	"errors"

	"github.com/mark3labs/mcp-go/server"
)

// Name and Version identify the server to MCP clients.
const (
	Name    = "visual-calendar"
	Version = "1.0.0"
)

// NewServer creates an MCP server with all calendar tools registered.
func NewServer(tools *CalendarTools) (*server.MCPServer, error) {
	if tools == nil {
		return nil, errors.New("calendar tools are required")
	}

	s := server.NewMCPServer(
		Name,
		Version,
		server.WithToolCapabilities(true),
	)

	// Calendar tools
	s.AddTool(listCalendarsTool(), tools.HandleListCalendars)
	s.AddTool(getCalendarTool(), tools.HandleGetCalendar)
	s.AddTool(createCalendarTool(), tools.HandleCreateCalendar)
	s.AddTool(renameCalendarTool(), tools.HandleRenameCalendar)
	s.AddTool(deleteCalendarTool(), tools.HandleDeleteCalendar)
	s.AddTool(exportCalendarTool(), tools.HandleExportCalendar)
	s.AddTool(importCalendarTool(), tools.HandleImportCalendar)
	s.AddTool(updatePreviewTool(), tools.HandleUpdatePreview)

	// Storage maintenance tools
	s.AddTool(cleanupCalendarsTool(), tools.HandleCleanupCalendars)
	s.AddTool(verifyStorageTool(), tools.HandleVerifyStorage)
	s.AddTool(storageStatsTool(), tools.HandleStorageStats)

	return s, nil
}
