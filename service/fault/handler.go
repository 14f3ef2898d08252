package fault

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/viant/valen/service/paging"
	"github.com/viant/valen/service/stats"
)

// Halter stops the processor permanently.
type Halter interface {
	Halt(reason error)
}

// Handler handles page faults. Every fault is fatal.
type Handler struct {
	halter   Halter
	output   io.Writer
	counters *stats.Counters
	notify   func(f *paging.PageFault)
	logger   *slog.Logger
}

// Option customises a Handler.
type Option func(h *Handler)

// WithOutput sets where the fault report is printed.
func WithOutput(w io.Writer) Option {
	return func(h *Handler) {
		h.output = w
	}
}

// WithStats sets the counters the fault is accounted in.
func WithStats(counters *stats.Counters) Option {
	return func(h *Handler) {
		h.counters = counters
	}
}

// WithNotify sets a callback run before the processor halts.
func WithNotify(fn func(f *paging.PageFault)) Option {
	return func(h *Handler) {
		h.notify = fn
	}
}

// WithLogger sets the handler logger.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// New creates a handler halting through halter.
func New(halter Halter, options ...Option) *Handler {
	ret := &Handler{halter: halter, output: io.Discard, logger: slog.Default()}
	for _, opt := range options {
		opt(ret)
	}
	return ret
}

// Handle reports f and halts. The processor never resumes afterwards.
func (h *Handler) Handle(f *paging.PageFault) {
	h.logger.Error("FATAL PAGE FAULT", "addr", f.Addr, "code", f.Code, "cause", f.Cause())
	_, _ = io.WriteString(h.output, Report(f))
	h.counters.Update(stats.Delta{Faults: 1})
	if h.notify != nil {
		h.notify(f)
	}
	h.halter.Halt(fmt.Errorf("fatal: %w", f))
}

// Report renders the operator-facing fault report.
func Report(f *paging.PageFault) string {
	var b strings.Builder
	b.WriteString("\n--- FATAL PAGE FAULT ---\n")
	fmt.Fprintf(&b, "Address: %v\n", f.Addr)
	fmt.Fprintf(&b, "Error Code: %d %s\n", f.Code, f.Cause())
	b.WriteString("System Halted.\n")
	return b.String()
}
