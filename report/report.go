// Package report prints the outcome of a simulation in the user's locale.
package report

import (
	"io"
	"log"

	"github.com/jeandeaual/go-locale"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/sarchlab/vmsim/timing/driver"
)

// Printer writes exit reports and statistics.
type Printer struct {
	p *message.Printer
}

// NewPrinter creates a printer for the locale of the user. It falls back to
// en-US if the locale cannot be determined.
func NewPrinter() *Printer {
	locales, err := locale.GetLocales()
	if err != nil {
		log.Printf("vmsim: locale: %v", err)
	}

	if len(locales) == 0 {
		locales = []string{"en-US"}
	}

	return &Printer{p: message.NewPrinter(message.MatchLanguage(locales...))}
}

// NewPrinterForLanguage creates a printer for a fixed language.
func NewPrinterForLanguage(tag language.Tag) *Printer {
	return &Printer{p: message.NewPrinter(tag)}
}

// Sprintf formats according to the printer's locale.
func (p *Printer) Sprintf(key message.Reference, args ...any) string {
	return p.p.Sprintf(key, args...)
}

// ExitLine returns the final line of a run.
func (p *Printer) ExitLine(r driver.ExitReport) string {
	return p.p.Sprintf("Exiting at tick %d because %s", r.StoppingTick, r.Cause)
}

// Print writes the exit line followed by the statistics of every component.
func (p *Printer) Print(w io.Writer, r driver.ExitReport, s driver.Stats, seconds float64) {
	pr := p.p

	pr.Fprintf(w, "\n%s\n\n", p.ExitLine(r))

	pr.Fprintf(w, "Simulated time:   %.9f s\n", seconds)
	pr.Fprintf(w, "Requests:         %d\n", s.Requests)
	pr.Fprintf(w, "Ticks:            %d\n", s.Ticks)
	pr.Fprintf(w, "Average latency:  %.2f ticks\n", s.AverageLatency())
	pr.Fprintf(w, "\n")

	pr.Fprintf(w, "TLB:     %d hits, %d misses, %d evictions, %d page faults\n",
		s.MMU.Hits, s.MMU.Misses, s.MMU.Evictions, s.MMU.PageFaults)
	pr.Fprintf(w, "ICache:  %d hits, %d misses, %d evictions, %d writebacks\n",
		s.ICache.Hits, s.ICache.Misses, s.ICache.Evictions, s.ICache.Writebacks)
	pr.Fprintf(w, "DCache:  %d hits, %d misses, %d evictions, %d writebacks\n",
		s.DCache.Hits, s.DCache.Misses, s.DCache.Evictions, s.DCache.Writebacks)
	pr.Fprintf(w, "MemBus:  %d transactions, %d contended, %d arbitration ticks\n",
		s.Bus.Transactions, s.Bus.Contended, s.Bus.ArbitrationTicks)
	pr.Fprintf(w, "MemCtrl: %d reads, %d writes, %d ticks\n",
		s.MemCtrl.Reads, s.MemCtrl.Writes, s.MemCtrl.Latency)
}
