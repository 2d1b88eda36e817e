package log

import "context"

// Logger receives trace events from the engine.
// Pass nil or NoopLogger to disable tracing.
type Logger interface {
	// Log records an event. Implementations must be safe for concurrent use
	// and should not block: the monitor calls Log from its probe path.
	Log(event Event)
}

// NoopLogger discards all events. It is usable as a zero value.
type NoopLogger struct{}

// Log discards the event.
func (NoopLogger) Log(Event) {}

// OrNoop returns l, or NoopLogger when l is nil.
func OrNoop(l Logger) Logger {
	if l == nil {
		return NoopLogger{}
	}
	return l
}

var _ Logger = NoopLogger{}

type episodeKey struct{}

// WithEpisode returns a context carrying a loss-episode ID. Components that
// trace with a context attach it to their events.
func WithEpisode(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, episodeKey{}, id)
}

// EpisodeFrom returns the episode ID carried by ctx, or "".
func EpisodeFrom(ctx context.Context) string {
	id, _ := ctx.Value(episodeKey{}).(string)
	return id
}
