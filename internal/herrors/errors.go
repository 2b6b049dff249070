// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package herrors defines the closed set of error kinds the catalog engine
// can surface, per spec.md §7. Kind is a sum type rather than a hierarchy
// of error structs, so callers switch on Kind instead of type-asserting.
package herrors

import (
	"errors"
	"fmt"
)

// Kind is the closed set of error categories the engine distinguishes.
type Kind int

const (
	Unknown Kind = iota
	NotFound
	IoError
	PermissionDenied
	FileVanished
	CrossFilesystem
	VerificationFailed
	AlreadyLinked
	AmbiguousDevice
	UnstableIdentity
	StoreBusy
	StoreCorrupt
	PlanTerminal
	InvalidArgument
	RollbackLeftBackup
)

func (k Kind) String() string {
	switch k {
	case NotFound:
		return "NotFound"
	case IoError:
		return "IoError"
	case PermissionDenied:
		return "PermissionDenied"
	case FileVanished:
		return "FileVanished"
	case CrossFilesystem:
		return "CrossFilesystem"
	case VerificationFailed:
		return "VerificationFailed"
	case AlreadyLinked:
		return "AlreadyLinked"
	case AmbiguousDevice:
		return "AmbiguousDevice"
	case UnstableIdentity:
		return "UnstableIdentity"
	case StoreBusy:
		return "StoreBusy"
	case StoreCorrupt:
		return "StoreCorrupt"
	case PlanTerminal:
		return "PlanTerminal"
	case InvalidArgument:
		return "InvalidArgument"
	case RollbackLeftBackup:
		return "RollbackLeftBackup"
	default:
		return "Unknown"
	}
}

// Error wraps a Kind, a message, and an optional cause. It satisfies
// errors.Is (by Kind) and errors.As.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is supports errors.Is(err, herrors.New(SomeKind, "")) style sentinel
// comparisons by Kind alone, ignoring Message and Cause.
func (e *Error) Is(target error) bool {
	var te *Error
	if errors.As(target, &te) {
		return e.Kind == te.Kind
	}
	return false
}

// New creates an *Error with no wrapped cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap creates an *Error that wraps cause, preserving it for errors.Unwrap.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Of returns the Kind of err if it is (or wraps) an *Error, else Unknown.
func Of(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Unknown
}

// Is reports whether err is (or wraps) an *Error of the given kind.
func Is(err error, kind Kind) bool {
	return Of(err) == kind
}
