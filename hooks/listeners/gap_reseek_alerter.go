package listeners

import (
	"context"
	"io"
	"log/slog"

	"github.com/INLOpen/nexusbase/hooks"
)

// GapReseekAlerterListener logs every sequence gap the iterator detects: at
// Warn when the strict reseek to the missing sequence resolved it, and at
// Error when the gap was left unresolved.
type GapReseekAlerterListener struct {
	logger *slog.Logger
}

// NewGapReseekAlerterListener creates a new listener for monitoring gap-driven reseeks.
func NewGapReseekAlerterListener(logger *slog.Logger) *GapReseekAlerterListener {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &GapReseekAlerterListener{
		logger: logger.With("component", "GapReseekAlerterListener"),
	}
}

// OnEvent handles the OnGapReseek event.
func (l *GapReseekAlerterListener) OnEvent(ctx context.Context, event hooks.HookEvent) error {
	if event.Type() != hooks.EventOnGapReseek {
		return nil
	}

	payload, ok := event.Payload().(hooks.GapReseekPayload)
	if !ok {
		l.logger.Error("Received OnGapReseek event with an unexpected payload type")
		return nil
	}

	if payload.Resolved {
		l.logger.Warn("Sequence gap detected, iterator reseeked onto next batch",
			"expected_sequence", payload.ExpectedSequence,
			"found_sequence", payload.FoundSequence,
		)
	} else {
		l.logger.Error("Sequence gap detected with no reseek target found",
			"expected_sequence", payload.ExpectedSequence,
		)
	}

	return nil
}

// Priority defines the execution order.
func (l *GapReseekAlerterListener) Priority() int { return 100 }

// IsAsync indicates this listener can run in the background.
func (l *GapReseekAlerterListener) IsAsync() bool { return true }
