// Package logging provides a zapcore.Core that forwards log entries for
// publishing.
package logging

import (
	"context"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"time"
)

// noPublishKey is the field key that marks log entries as not to be published.
const noPublishKey = "no_publish"

// publishBufferSize is the size of the buffer for entries to publish. Entries
// are dropped if the buffer is full.
const publishBufferSize = 256

// LogEntry is a log entry that is meant to be published.
type LogEntry struct {
	// Time is the timestamp the log entry was created.
	Time time.Time
	// Message is the log entry message.
	Message string
	// Level is the log level of the entry.
	Level zapcore.Level
	// LoggerName is the name of the logger.
	LoggerName string
	// Fields are the set fields for the log entry.
	Fields map[string]interface{}
}

// NoPublish returns a zap.Field that marks log entries as not to be published.
// Use it for loggers of components that are involved in publishing in order to
// avoid publish loops.
func NoPublish() zap.Field {
	return zap.Bool(noPublishKey, true)
}

// noPublishOmitCore forwards log entries to a channel unless they are marked
// with NoPublish.
type noPublishOmitCore struct {
	zapcore.LevelEnabler
	// lifetime stops forwarding when done.
	lifetime context.Context
	// fields are the fields added via With.
	fields []zapcore.Field
	// omit is set when a NoPublish field was added via With.
	omit bool
	// out receives the entries.
	out chan<- LogEntry
}

// NewNoPublishOmitCore creates a zapcore.Core that forwards all entries with
// the given minimum level to the returned channel until the given
// context.Context is done. Entries marked with NoPublish are omitted. If
// nobody reads from the channel, entries are dropped.
func NewNoPublishOmitCore(ctx context.Context, level zapcore.LevelEnabler) (zapcore.Core, <-chan LogEntry) {
	entries := make(chan LogEntry, publishBufferSize)
	return &noPublishOmitCore{
		LevelEnabler: level,
		lifetime:     ctx,
		fields:       make([]zapcore.Field, 0),
		out:          entries,
	}, entries
}

// isNoPublishField checks whether the given field is a NoPublish one.
func isNoPublishField(field zapcore.Field) bool {
	return field.Key == noPublishKey && field.Type == zapcore.BoolType && field.Integer == 1
}

func (c *noPublishOmitCore) With(fields []zapcore.Field) zapcore.Core {
	clone := &noPublishOmitCore{
		LevelEnabler: c.LevelEnabler,
		lifetime:     c.lifetime,
		fields:       make([]zapcore.Field, 0, len(c.fields)+len(fields)),
		omit:         c.omit,
		out:          c.out,
	}
	clone.fields = append(clone.fields, c.fields...)
	for _, field := range fields {
		if isNoPublishField(field) {
			clone.omit = true
			continue
		}
		clone.fields = append(clone.fields, field)
	}
	return clone
}

func (c *noPublishOmitCore) Check(entry zapcore.Entry, checked *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.omit || !c.Enabled(entry.Level) {
		return checked
	}
	return checked.AddCore(entry, c)
}

func (c *noPublishOmitCore) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	if c.lifetime.Err() != nil {
		return nil
	}
	enc := zapcore.NewMapObjectEncoder()
	for _, field := range c.fields {
		field.AddTo(enc)
	}
	for _, field := range fields {
		if isNoPublishField(field) {
			return nil
		}
		field.AddTo(enc)
	}
	select {
	case c.out <- LogEntry{
		Time:       entry.Time,
		Message:    entry.Message,
		Level:      entry.Level,
		LoggerName: entry.LoggerName,
		Fields:     enc.Fields,
	}:
	default:
	}
	return nil
}

func (c *noPublishOmitCore) Sync() error {
	return nil
}
