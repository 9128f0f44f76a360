// Package updatererror defines the small taxonomy of error kinds the
// state machine surfaces to D-Bus clients (spec §4.6, §7). It is kept
// separate from package updater so that dbusapi can map kinds to
// D-Bus error names without importing the state machine internals.
package updatererror

import (
	"errors"
	"fmt"
)

// Kind is one of the named failure categories clients can distinguish.
type Kind string

const (
	WrongState                  Kind = "WrongState"
	LiveBoot                    Kind = "LiveBoot"
	WrongConfiguration          Kind = "WrongConfiguration"
	NotOstreeSystem              Kind = "NotOstreeSystem"
	Fetching                    Kind = "Fetching"
	MalformedAutoinstallSpec    Kind = "MalformedAutoinstallSpec"
	UnknownEntryInAutoinstallSpec Kind = "UnknownEntryInAutoinstallSpec"
	FlatpakRemoteConflict        Kind = "FlatpakRemoteConflict"
	MeteredConnection           Kind = "MeteredConnection"
	Cancelled                   Kind = "Cancelled"
	NoCollectionID               Kind = "NoCollectionId"
)

// Error is the concrete error type returned from fallible state
// machine operations; ErrorName/ErrorMessage on the D-Bus object are
// populated straight from its fields.
type Error struct {
	Kind    Kind
	Message string
}

func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// DBusName returns the fully-qualified D-Bus error name for this kind.
func (e *Error) DBusName() string {
	return "com.endlessm.Updater.Error." + string(e.Kind)
}

// As lets callers recover a *Error from a wrapped error chain, walking
// through any number of fmt.Errorf("...: %w", err) wrappers.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
