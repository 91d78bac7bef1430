// Package level exposes leveled logging helpers so call sites only need to
// import one logging package. It wraps go-kit's level package.
package level

import (
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

// Debug returns a logger which emits at the debug level.
func Debug(logger log.Logger) log.Logger { return level.Debug(logger) }

// Info returns a logger which emits at the info level.
func Info(logger log.Logger) log.Logger { return level.Info(logger) }

// Warn returns a logger which emits at the warn level.
func Warn(logger log.Logger) log.Logger { return level.Warn(logger) }

// Error returns a logger which emits at the error level.
func Error(logger log.Logger) log.Logger { return level.Error(logger) }
