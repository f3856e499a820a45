package hooks

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
)

// EventType defines the type of a hook event.
type EventType string

// --- Event Type Constants ---
const (
	// EventPostWALRotate fires after the writer rotates to a new live segment.
	EventPostWALRotate EventType = "PostWALRotate"

	// EventOnCorruptionReported fires whenever the iterator reports a
	// corrupt or truncated record, whether or not it later recovers.
	EventOnCorruptionReported EventType = "OnCorruptionReported"

	// EventOnGapReseek fires when the iterator detects a sequence gap, after
	// its strict reseek to the missing sequence has landed or failed (or at
	// once, without a reseek, when gap reseeking is disabled).
	EventOnGapReseek EventType = "OnGapReseek"

	// EventOnBatchDelivered fires each time Next moves the iterator onto an
	// accepted batch. The batch that the initial seek or a gap reseek
	// positions the iterator on does not fire it.
	EventOnBatchDelivered EventType = "OnBatchDelivered"

	// EventOnIteratorExhausted fires the first time an iterator reaches a
	// clean end of stream (no more durable data, writer caught up).
	EventOnIteratorExhausted EventType = "OnIteratorExhausted"

	// EventOnIteratorFaulted fires when the iterator cannot open a log file
	// (live or archived) and latches the resulting I/O error. Corruption
	// statuses latched by gap or end-of-log checks do not fire it.
	EventOnIteratorFaulted EventType = "OnIteratorFaulted"

	// EventOnArchiveFallback fires when the file opener could not find a
	// log number in the live directory and fell back to the archive.
	EventOnArchiveFallback EventType = "OnArchiveFallback"
)

// --- HookManager Interface and Implementation ---

// HookManager defines the interface for managing and triggering hooks.
type HookManager interface {
	// Register adds a listener for a specific event type.
	Register(eventType EventType, listener HookListener)
	// Trigger fires all registered listeners for a given event.
	// It handles synchronous vs. asynchronous execution based on the event type and listener preference.
	Trigger(ctx context.Context, event HookEvent) error
	// Stop waits for all asynchronous listeners to complete. Useful for graceful shutdown.
	Stop()
}

// HookEvent is the interface that all event objects must implement.
type HookEvent interface {
	// Type returns the type of the event.
	Type() EventType
	// Payload returns the data associated with the event.
	Payload() interface{}
}

// BaseEvent provides a base implementation for HookEvent.
type BaseEvent struct {
	eventType EventType
	payload   interface{}
}

func (e *BaseEvent) Type() EventType      { return e.eventType }
func (e *BaseEvent) Payload() interface{} { return e.payload }

// PostWALRotatePayload contains information about a WAL segment rotation.
type PostWALRotatePayload struct {
	OldSegmentIndex uint64
	NewSegmentIndex uint64
	NewSegmentPath  string
}

// NewPostWALRotateEvent creates an event for after the WAL has been rotated to a new segment.
func NewPostWALRotateEvent(payload PostWALRotatePayload) HookEvent {
	return &BaseEvent{eventType: EventPostWALRotate, payload: payload}
}

// CorruptionReportedPayload describes a single corrupt or truncated record
// encountered while decoding a batch.
type CorruptionReportedPayload struct {
	LogNumber uint64
	Offset    int64
	Reason    string
	Fatal     bool
}

// NewOnCorruptionReportedEvent creates an event for a corruption observation.
func NewOnCorruptionReportedEvent(payload CorruptionReportedPayload) HookEvent {
	return &BaseEvent{eventType: EventOnCorruptionReported, payload: payload}
}

// GapReseekPayload describes a detected sequence gap and the outcome of the
// iterator's attempt to reseek past it.
type GapReseekPayload struct {
	ExpectedSequence uint64
	FoundSequence    uint64
	Resolved         bool
}

// NewOnGapReseekEvent creates an event for a gap-driven reseek attempt.
func NewOnGapReseekEvent(payload GapReseekPayload) HookEvent {
	return &BaseEvent{eventType: EventOnGapReseek, payload: payload}
}

// BatchDeliveredPayload describes a batch handed back to the caller.
type BatchDeliveredPayload struct {
	StartSequence uint64
	LastSequence  uint64
	EntryCount    uint32
	LogNumber     uint64
}

// NewOnBatchDeliveredEvent creates an event for a delivered batch.
func NewOnBatchDeliveredEvent(payload BatchDeliveredPayload) HookEvent {
	return &BaseEvent{eventType: EventOnBatchDelivered, payload: payload}
}

// IteratorExhaustedPayload describes the point at which an iterator caught
// up to the last durable sequence number it can see.
type IteratorExhaustedPayload struct {
	LastDeliveredSequence uint64
}

// NewOnIteratorExhaustedEvent creates an event for a clean end of stream.
func NewOnIteratorExhaustedEvent(payload IteratorExhaustedPayload) HookEvent {
	return &BaseEvent{eventType: EventOnIteratorExhausted, payload: payload}
}

// IteratorFaultedPayload describes a fatal, unrecoverable iterator state.
type IteratorFaultedPayload struct {
	LogNumber uint64
	Reason    string
}

// NewOnIteratorFaultedEvent creates an event for a latched fatal fault.
func NewOnIteratorFaultedEvent(payload IteratorFaultedPayload) HookEvent {
	return &BaseEvent{eventType: EventOnIteratorFaulted, payload: payload}
}

// ArchiveFallbackPayload describes a file open that fell back from the live
// directory to the archive directory.
type ArchiveFallbackPayload struct {
	LogNumber   uint64
	LivePath    string
	ArchivePath string
}

// NewOnArchiveFallbackEvent creates an event for a live-to-archive fallback.
func NewOnArchiveFallbackEvent(payload ArchiveFallbackPayload) HookEvent {
	return &BaseEvent{eventType: EventOnArchiveFallback, payload: payload}
}

// --- HookListener Interface ---

// HookListener defines the interface for components that want to listen to events.
type HookListener interface {
	// OnEvent is called by the HookManager when a registered event is triggered.
	OnEvent(ctx context.Context, event HookEvent) error

	// Priority returns the listener's priority. Lower numbers are executed first.
	Priority() int

	// IsAsync indicates if the listener should be called asynchronously for Post-events.
	IsAsync() bool
}

// listenerWithPriority wraps a listener with its priority for sorted insertion.
type listenerWithPriority struct {
	listener HookListener
	priority int
}

// DefaultHookManager is a concrete implementation of HookManager.
type DefaultHookManager struct {
	// The map stores slices of listeners, kept sorted by priority.
	listeners map[EventType][]*listenerWithPriority
	mu        sync.RWMutex
	wg        sync.WaitGroup // For tracking async listeners
	logger    *slog.Logger
}

// NewHookManager creates a new DefaultHookManager.
func NewHookManager(logger *slog.Logger) HookManager {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &DefaultHookManager{
		listeners: make(map[EventType][]*listenerWithPriority),
		logger:    logger,
	}
}

// Register adds a listener for a specific event type, maintaining priority order.
func (m *DefaultHookManager) Register(eventType EventType, listener HookListener) {
	m.mu.Lock()
	defer m.mu.Unlock()

	item := &listenerWithPriority{
		listener: listener,
		priority: listener.Priority(),
	}

	l := m.listeners[eventType]

	// sort.Search finds the first index i where l[i].priority >= item.priority.
	idx := sort.Search(len(l), func(i int) bool {
		return l[i].priority >= item.priority
	})

	l = append(l, nil)
	copy(l[idx+1:], l[idx:])
	l[idx] = item

	m.listeners[eventType] = l
}

// Trigger fires all registered listeners for a given event in priority order.
func (m *DefaultHookManager) Trigger(ctx context.Context, event HookEvent) error {
	m.mu.RLock()
	listeners, ok := m.listeners[event.Type()]
	m.mu.RUnlock()

	if !ok || len(listeners) == 0 {
		return nil
	}

	isPreHook := strings.HasPrefix(string(event.Type()), "Pre")

	for _, item := range listeners {
		isListenerAsync := item.listener.IsAsync()

		// Pre-hooks MUST be synchronous to allow for cancellation.
		// Post-hooks can be sync or async based on the listener's preference.
		if isPreHook || !isListenerAsync {
			if isPreHook && isListenerAsync {
				m.logger.Warn("Listener for Pre-hook requested async execution, but Pre-hooks are always synchronous.", "event", event.Type(), "priority", item.priority)
			}

			if err := item.listener.OnEvent(ctx, event); err != nil {
				if isPreHook {
					return fmt.Errorf("pre-hook for event %s (priority %d) failed: %w", event.Type(), item.priority, err)
				}
				m.logger.Error("Error from synchronous post-hook listener", "event", event.Type(), "priority", item.priority, "error", err)
			}
		} else {
			m.wg.Add(1)
			go func(currentItem *listenerWithPriority) {
				defer m.wg.Done()
				if err := currentItem.listener.OnEvent(ctx, event); err != nil {
					m.logger.Error("Error from asynchronous post-hook listener", "event", event.Type(), "priority", currentItem.priority, "error", err)
				}
			}(item)
		}
	}
	return nil
}

// Stop waits for all asynchronous listeners to complete.
func (m *DefaultHookManager) Stop() {
	m.wg.Wait()
}
