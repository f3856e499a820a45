package txlog

import (
	"context"
	"log/slog"

	"github.com/INLOpen/nexusbase/core"
	"github.com/INLOpen/nexusbase/hooks"
)

// CorruptionReporter is the sink the iterator hands to a FrameReader and
// also uses itself. Reports never terminate iteration on their own; the
// iterator's own state machine decides whether a report escalates into a
// latched status.
type CorruptionReporter interface {
	// Corruption logs a dropped or malformed record.
	Corruption(logNumber uint64, bytesDropped int, status core.Status)
	// Info logs an advisory message, e.g. a re-seek notice.
	Info(msg string, args ...any)
}

// SlogReporter reports corruption and advisories through a structured
// logger and, when present, a hook manager so external listeners can alert
// on repeated corruption or gap reseeks.
type SlogReporter struct {
	logger      *slog.Logger
	hookManager hooks.HookManager
}

// NewSlogReporter creates a CorruptionReporter backed by logger. hookManager
// may be nil, in which case only logging happens.
func NewSlogReporter(logger *slog.Logger, hookManager hooks.HookManager) *SlogReporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogReporter{
		logger:      logger.With("component", "txlog.Iterator"),
		hookManager: hookManager,
	}
}

// Corruption logs a dropped or malformed record and, if a hook manager is
// registered, fires EventOnCorruptionReported.
func (r *SlogReporter) Corruption(logNumber uint64, bytesDropped int, status core.Status) {
	r.logger.Warn("dropped corrupt WAL record",
		"log_number", logNumber,
		"bytes_dropped", bytesDropped,
		"status", status.Error(),
	)
	if r.hookManager != nil {
		r.hookManager.Trigger(context.Background(), hooks.NewOnCorruptionReportedEvent(hooks.CorruptionReportedPayload{
			LogNumber: logNumber,
			Reason:    status.Msg,
			Fatal:     status.IsCorruption(),
		}))
	}
}

// Info logs an advisory message.
func (r *SlogReporter) Info(msg string, args ...any) {
	r.logger.Info(msg, args...)
}
