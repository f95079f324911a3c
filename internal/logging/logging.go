// Package logging provides the node's small, component-prefixed logging
// helper, matching the convention this codebase uses throughout
// (e.g. "eventbus: handler %q error for %s: %v").
package logging

import "log"

// Logger prefixes every message with a component name.
type Logger struct {
	component string
}

// New returns a Logger for the given component, e.g. logging.New("store").
func New(component string) *Logger {
	return &Logger{component: component}
}

func (l *Logger) Printf(format string, args ...any) {
	log.Printf(l.component+": "+format, args...)
}

func (l *Logger) Println(args ...any) {
	args = append([]any{l.component + ":"}, args...)
	log.Println(args...)
}
