// Package log wires logrus.FieldLogger the way the rest of the codebase
// expects it: a package-level standard logger, and a WithFields-based
// convention for step and attribute context, following server.go's
// `s.Log.WithFields(logrus.Fields{...})` pattern.
package log

import "github.com/sirupsen/logrus"

// Logger is a logrus.FieldLogger, the same interface type used to hold
// the standard logger throughout server.go and eioserve/server.go.
type Logger = logrus.FieldLogger

// Standard returns the process-wide logrus standard logger.
func Standard() Logger { return logrus.StandardLogger() }

// SetLevel adjusts the standard logger's verbosity (used by the CLI's
// --verbose flag).
func SetLevel(level logrus.Level) { logrus.SetLevel(level) }

// StepFields builds the WithFields context for per-step log lines, as
// written by the josh run command.
func StepFields(replicateID string, step int64) logrus.Fields {
	return logrus.Fields{"replicate": replicateID, "step": step}
}

// AttributeFields builds a WithFields context for logging a resolution
// error, matching the (patch, attribute, event) triple carried by
// StepError.
func AttributeFields(patchKey, attribute, event string) logrus.Fields {
	return logrus.Fields{"patch": patchKey, "attribute": attribute, "event": event}
}
