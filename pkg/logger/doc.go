// Package logger provides the slog factory used across watchqueue binaries
// and libraries.
//
// New builds a *slog.Logger from functional options: output format (text or
// json), minimum level, static attributes, and ContextExtractor callbacks that
// add attributes taken from the context passed to the *Context log methods.
//
// Attribute helpers such as QueueID, WatchID and NoteType keep key names
// consistent between the delivery engine, sinks and tools.
//
// # Usage
//
//	log := logger.New(
//	    logger.WithDevelopment("watchqueue-bench"),
//	    logger.WithLevel(logger.ParseLevel(os.Getenv("LOG_LEVEL"))),
//	)
//	log.Debug("queue created", logger.QueueID(q.ID()), logger.Slots(q.Capacity()))
//
// Error returns an empty attribute for a nil error, so
//
//	log.Info("sink closed", logger.Error(err))
//
// needs no nil check.
package logger
