// Package publish implements the publisher fan-out: a uniform lifecycle
// around heterogeneous protocol sinks, dispatched independently so one
// slow or broken sink never delays the others.
package publish

import (
	"context"

	"tagsim/tag"
)

// Publisher is one protocol sink. Start/Stop bracket the connection
// lifecycle; Publish translates a tag update into the sink's wire form.
// Publish must honor ctx cancellation where the underlying client allows
// it; the manager additionally bounds every call with a timeout.
type Publisher interface {
	Name() string
	Start() error
	Stop()
	Publish(ctx context.Context, u tag.Update) error
	Healthy() bool
}

// Builder constructs a fresh publisher instance. Re-enabling a publisher
// at runtime re-creates it rather than reusing torn-down state.
type Builder func() (Publisher, error)

// LogFunc is the logging callback signature.
type LogFunc func(format string, args ...interface{})

// Status describes one managed publisher for the query surface.
type Status struct {
	Name    string `json:"name"`
	Enabled bool   `json:"enabled"`
	Healthy bool   `json:"healthy"`
}
