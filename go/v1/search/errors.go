// Copyright 2021 The Rode Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package search

import (
	"errors"
	"fmt"
	"strings"
)

type ErrorKind int

const (
	// ErrorKindBootstrap marks mapping mistakes found while building field types, schemas or mappings.
	ErrorKindBootstrap ErrorKind = iota
	// ErrorKindFieldCapability marks an operation requested on a field that does not support it.
	ErrorKindFieldCapability
	// ErrorKindIncompatible marks a field that is declared differently in the indexes targeted by one query.
	ErrorKindIncompatible
	ErrorKindTypeMismatch
	ErrorKindEncoding
	ErrorKindUnknownField
	ErrorKindInvalidArgument
	ErrorKindBackend
)

func (k ErrorKind) String() string {
	switch k {
	case ErrorKindBootstrap:
		return "bootstrap"
	case ErrorKindFieldCapability:
		return "field capability"
	case ErrorKindIncompatible:
		return "incompatible"
	case ErrorKindTypeMismatch:
		return "type mismatch"
	case ErrorKindEncoding:
		return "encoding"
	case ErrorKindUnknownField:
		return "unknown field"
	case ErrorKindInvalidArgument:
		return "invalid argument"
	case ErrorKindBackend:
		return "backend"
	}

	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

// EventContext locates an error: the indexes involved and the absolute path of the field.
type EventContext struct {
	Indexes   []string
	FieldPath string
}

func (c EventContext) render() string {
	var parts []string
	switch len(c.Indexes) {
	case 0:
	case 1:
		parts = append(parts, fmt.Sprintf("index '%s'", c.Indexes[0]))
	default:
		parts = append(parts, fmt.Sprintf("indexes [%s]", strings.Join(c.Indexes, ", ")))
	}
	if c.FieldPath != "" {
		parts = append(parts, fmt.Sprintf("field '%s'", c.FieldPath))
	}
	if len(parts) == 0 {
		return ""
	}

	return "Context: " + strings.Join(parts, ", ") + "."
}

type SearchError struct {
	Kind    ErrorKind
	Message string
	Context EventContext
	Err     error
}

func (e *SearchError) Error() string {
	msg := e.Message
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %s", msg, e.Err)
	}
	if ctx := e.Context.render(); ctx != "" {
		msg = msg + " " + ctx
	}

	return msg
}

func (e *SearchError) Unwrap() error {
	return e.Err
}

// NewError creates a SearchError without event context.
func NewError(kind ErrorKind, format string, args ...interface{}) *SearchError {
	return &SearchError{
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
	}
}

// NewFieldError creates a SearchError located on a field of the given indexes.
func NewFieldError(kind ErrorKind, indexes []string, fieldPath string, format string, args ...interface{}) *SearchError {
	return &SearchError{
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
		Context: EventContext{
			Indexes:   indexes,
			FieldPath: fieldPath,
		},
	}
}

// WithFieldContext fills in the field path and indexes of err when it is a SearchError that
// does not carry them yet. Other errors are wrapped into a SearchError of the given kind.
func WithFieldContext(err error, kind ErrorKind, indexes []string, fieldPath string) error {
	if err == nil {
		return nil
	}

	var searchErr *SearchError
	if !errors.As(err, &searchErr) {
		return &SearchError{
			Kind:    kind,
			Message: "unable to process value",
			Context: EventContext{Indexes: indexes, FieldPath: fieldPath},
			Err:     err,
		}
	}

	located := *searchErr
	if located.Context.FieldPath == "" {
		located.Context.FieldPath = fieldPath
	}
	if len(located.Context.Indexes) == 0 {
		located.Context.Indexes = indexes
	}

	return &located
}

// IsErrorKind reports whether err is, or wraps, a SearchError of the given kind.
func IsErrorKind(err error, kind ErrorKind) bool {
	var searchErr *SearchError
	if !errors.As(err, &searchErr) {
		return false
	}

	return searchErr.Kind == kind
}
