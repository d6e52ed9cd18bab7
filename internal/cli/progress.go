package cli

import (
	"io"
	"sync"
	"time"

	"github.com/glorpus-work/sitepkg/internal/logger"
	"github.com/glorpus-work/sitepkg/pkg/download"
	"github.com/schollz/progressbar/v3"
)

// downloadBar renders download progress on w. The bar is created on the
// first report that carries a content length.
type downloadBar struct {
	mu  sync.Mutex
	w   io.Writer
	bar *progressbar.ProgressBar
}

func newDownloadBar(w io.Writer) *downloadBar {
	return &downloadBar{w: w}
}

// Func returns the callback handed to the fetcher.
func (d *downloadBar) Func(description string) download.ProgressFunc {
	return func(written, total int64) {
		d.mu.Lock()
		defer d.mu.Unlock()
		if total <= 0 {
			return
		}
		if d.bar == nil {
			d.bar = progressbar.NewOptions64(total,
				progressbar.OptionSetWriter(d.w),
				progressbar.OptionSetDescription(description),
				progressbar.OptionShowBytes(true),
				progressbar.OptionSetWidth(30),
				progressbar.OptionThrottle(100*time.Millisecond),
				progressbar.OptionEnableColorCodes(true),
				progressbar.OptionSetTheme(progressbar.Theme{
					Saucer:        "[green]=[reset]",
					SaucerHead:    "[green]>[reset]",
					SaucerPadding: " ",
					BarStart:      "[",
					BarEnd:        "]",
				}),
			)
		}
		if err := d.bar.Set(int(written)); err != nil {
			logger.Debug("Failed to update progress bar", logger.Fields{"error": err.Error()})
		}
	}
}

// Finish completes the bar if one was drawn.
func (d *downloadBar) Finish() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.bar != nil {
		_ = d.bar.Finish()
		_, _ = io.WriteString(d.w, "\n")
		d.bar = nil
	}
}
