// Package dialog runs the host's native file and directory pickers.
//
// The pickers are host-native operations: they never involve the worker.
// Each request yields a [Result] that is sent back to the UI as
// {"cancelled":true} or {"cancelled":false,"path":"/abs/path"}. A picker that
// fails for any reason (no backend installed, the tool crashed, the user
// chose something outside the filter) is logged and reported as cancelled,
// so no error ever reaches the UI.
package dialog

import (
	"context"
	"path/filepath"
)

// Result is the outcome of one picker request.
type Result struct {
	Cancelled bool   `json:"cancelled"`
	Path      string `json:"path,omitempty"`
}

// Cancelled is the result of a dismissed or failed picker.
func Cancelled() Result {
	return Result{Cancelled: true}
}

// Selected is the result of a successful pick. Relative paths are made
// absolute; a path that cannot be resolved becomes a cancellation.
func Selected(path string) Result {
	if path == "" {
		return Cancelled()
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return Cancelled()
	}
	return Result{Path: abs}
}

// Picker is the host's native dialog facility.
type Picker interface {
	// SelectDirectory asks the user for a directory.
	SelectDirectory(ctx context.Context) Result
	// SelectFile asks the user for a file whose name ends in ext.
	SelectFile(ctx context.Context, ext string) Result
}
