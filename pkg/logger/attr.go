package logger

import "log/slog"

// Group creates a slog group attribute from the provided attributes.
func Group(name string, attrs ...slog.Attr) slog.Attr {
	return slog.Attr{Key: name, Value: slog.GroupValue(attrs...)}
}

// Error creates an attribute for a single error under the key "error".
// If err is nil, it returns an empty Attr.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

// Component records the component name under the key "component".
func Component(name string) slog.Attr {
	return slog.String("component", name)
}

// QueueID records the queue identifier under the key "queue_id".
func QueueID(id string) slog.Attr {
	return slog.String("queue_id", id)
}

// WatchID records the watch identifier under the key "watch_id".
func WatchID(id uint64) slog.Attr {
	return slog.Uint64("watch_id", id)
}

// NoteType records a notification type under the key "note_type".
func NoteType(t uint32) slog.Attr {
	return slog.Uint64("note_type", uint64(t))
}

// Subtype records a notification subtype under the key "subtype".
func Subtype(s uint8) slog.Attr {
	return slog.Int("subtype", int(s))
}

// Slots records a slot count under the key "slots".
func Slots(n int) slog.Attr {
	return slog.Int("slots", n)
}

// Channel records a transport channel name under the key "channel".
func Channel(name string) slog.Attr {
	return slog.String("channel", name)
}
