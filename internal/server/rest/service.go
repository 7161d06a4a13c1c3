package rest

import (
	"context"

	"github.com/tripwire/logviewer/internal/activity"
	"github.com/tripwire/logviewer/internal/viewer"
)

// Viewer is the subset of *viewer.Service used by the JSON handlers.
// Defining an interface allows handlers to be tested without a filesystem.
type Viewer interface {
	Config() viewer.ConfigView
	SetDirectory(path, actor string) (string, error)
	Files() (viewer.FileList, error)
	Content(name string) (viewer.Content, error)
	Sessions(ctx context.Context, limit int) ([]activity.Record, error)
	ActiveSessions() int
}
