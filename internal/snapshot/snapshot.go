// Package snapshot renders calendar previews into small JPEG thumbnails.
//
// A thumbnail is returned as a data URL ready to be stored in a calendar's
// metadata. Producers never fail: any problem yields an empty string so a
// missing thumbnail never blocks a save.
package snapshot

import "context"

// Thumbnail parameters.
const (
	Width         = 480
	JPEGQuality   = 70
	DataURLPrefix = "data:image/jpeg;base64,"
)

// Node is a rendered preview subtree: a standalone HTML document and the
// CSS selector of the element to capture.
type Node struct {
	HTML     string
	Selector string
}

// Producer turns a rendered node into a thumbnail data URL, or "" when no
// thumbnail could be made.
type Producer interface {
	Snapshot(ctx context.Context, node Node) string
}

// Disabled is a Producer that never produces a thumbnail.
type Disabled struct{}

func (Disabled) Snapshot(context.Context, Node) string { return "" }
