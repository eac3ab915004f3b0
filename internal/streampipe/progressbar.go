package streampipe

import (
	"fmt"

	"github.com/schollz/progressbar/v3"
)

// BarRenderer adapts ProgressInfo callbacks onto a terminal progress
// bar. Kept separate from Pipeline itself so the core streaming logic
// has no terminal dependency and can run headless (e.g. under the
// batch scheduler).
type BarRenderer struct {
	bar *progressbar.ProgressBar
}

// NewBarRenderer creates a renderer for a download of the given total
// size (0 renders a spinner instead of a determinate bar).
func NewBarRenderer(totalBytes int64, description string) *BarRenderer {
	var bar *progressbar.ProgressBar
	if totalBytes > 0 {
		bar = progressbar.DefaultBytes(totalBytes, description)
	} else {
		bar = progressbar.DefaultBytes(-1, description)
	}
	return &BarRenderer{bar: bar}
}

// OnProgress is a ProgressInfo callback suitable for Pipeline.Download.
func (r *BarRenderer) OnProgress(info ProgressInfo) {
	r.bar.Set64(info.BytesTransferred)
}

// Finish marks the bar complete and prints a trailing newline.
func (r *BarRenderer) Finish() {
	r.bar.Finish()
	fmt.Println()
}
