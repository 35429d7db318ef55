// Package progress displays checkout and transfer progress on the
// terminal. It is the determinate-progress counterpart to the teacher's
// indeterminate Spinner: checkout always knows its total operation count up
// front (the diff forest is fully materialized before the first move runs),
// so a bar is the honest representation rather than an animated guess.
package progress

import (
	"fmt"

	"github.com/pterm/pterm"

	"github.com/kdriss/caf/internal/checkout"
)

// Bar wraps a pterm progress bar, tracking one phase at a time. Phases are
// opened lazily as checkout.Progress reports a new phase name, and the
// previous phase's bar is closed out first.
type Bar struct {
	active *pterm.ProgressbarPrinter
	phase  string
}

// NewBar creates an idle Bar. Call Reporter to get the callback checkout.Apply
// expects.
func NewBar() *Bar {
	return &Bar{}
}

// Reporter returns a checkout.Progress callback that drives this bar.
func (b *Bar) Reporter() checkout.Progress {
	return func(phase string, done, total int) {
		if phase != b.phase {
			b.closeActive()
			b.phase = phase
			printer, err := pterm.DefaultProgressbar.
				WithTotal(total).
				WithTitle(phaseLabel(phase)).
				Start()
			if err == nil {
				b.active = printer
			}
		}
		if b.active != nil {
			b.active.Current = done
		}
	}
}

// Done closes out any open phase bar. Callers must invoke Done after
// checkout.Apply returns, success or failure, to leave the terminal clean.
func (b *Bar) Done() {
	b.closeActive()
}

func (b *Bar) closeActive() {
	if b.active == nil {
		return
	}
	_, _ = b.active.Stop()
	b.active = nil
}

func phaseLabel(phase string) string {
	switch phase {
	case "move":
		return "moving"
	case "remove":
		return "removing"
	case "write":
		return "writing"
	default:
		return fmt.Sprintf("checkout: %s", phase)
	}
}
