package artifact

import (
	"fmt"
	"io"
	"time"

	"golang.org/x/time/rate"
)

// progressTracker counts bytes flowing through a download and prints
// throttled progress lines. Percentages are only computed when the total
// size is known.
type progressTracker struct {
	out     io.Writer
	label   string
	total   int64
	written int64
	limiter *rate.Limiter
}

func newProgressTracker(out io.Writer, label string, total int64, every time.Duration) *progressTracker {
	return &progressTracker{
		out:     out,
		label:   label,
		total:   total,
		limiter: rate.NewLimiter(rate.Every(every), 1),
	}
}

// Write implements io.Writer for use with io.TeeReader.
func (p *progressTracker) Write(b []byte) (int, error) {
	p.written += int64(len(b))
	if p.out != nil && p.limiter.Allow() {
		p.print("")
	}
	return len(b), nil
}

// Finish prints the final state on its own line.
func (p *progressTracker) Finish() {
	if p.out != nil {
		p.print("\n")
	}
}

// Line renders the current progress.
func (p *progressTracker) Line() string {
	if p.total > 0 {
		pct := 100.0 * float64(p.written) / float64(p.total)
		return fmt.Sprintf("%s progress: %.2f%% %d bytes", p.label, pct, p.written)
	}
	return fmt.Sprintf("%s progress: %d bytes", p.label, p.written)
}

func (p *progressTracker) print(end string) {
	_, _ = fmt.Fprint(p.out, "\r"+p.Line()+end)
}
