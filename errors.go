package dataflowgraph

/*
   Copyright 2018 Bruno Moura <brunotm@gmail.com>

   Licensed under the Apache License, Version 2.0 (the "License");
   you may not use this file except in compliance with the License.
   You may obtain a copy of the License at

       http://www.apache.org/licenses/LICENSE-2.0

   Unless required by applicable law or agreed to in writing, software
   distributed under the License is distributed on an "AS IS" BASIS,
   WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
   See the License for the specific language governing permissions and
   limitations under the License.
*/

import (
	"errors"
	"fmt"

	"github.com/brunotm/dataflowgraph/types"
)

// Error is the public error type for every operation in §6. Kind classifies
// the failure per the taxonomy in spec.md §7; Err, when set, wraps the
// underlying cause for errors.Is/errors.As chains.
type Error struct {
	Kind types.ErrorKind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("dataflowgraph: %s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("dataflowgraph: %s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error with the same Kind, so callers
// can do errors.Is(err, &Error{Kind: types.NotFound}).
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return other.Kind == e.Kind
	}
	return false
}

func newErr(kind types.ErrorKind, msg string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(msg, args...)}
}

func wrapErr(kind types.ErrorKind, err error, msg string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(msg, args...), Err: err}
}

var (
	errInvalidHandle     = newErr(types.InvalidHandle, "handle is default, foreign, or stale")
	errNodeNotFound      = newErr(types.NotFound, "node not found")
	errPortNotFound      = newErr(types.NotFound, "port not found")
	errConnectionMissing = newErr(types.NotConnected, "connection does not exist")
	errAlreadyConnected  = newErr(types.AlreadyConnected, "connection already exists")
	errCycleDetected     = newErr(types.CycleDetected, "topology contains a cycle")
	errTypeMismatch      = newErr(types.TypeMismatch, "value type does not match port type")
	errCategoryMismatch  = newErr(types.CategoryMismatch, "operation not valid for port usage")
	errIndexOutOfRange   = newErr(types.IndexOutOfRange, "port array index past current size")
	errZeroSizedECSType  = newErr(types.ZeroSizedECSType, "zero sized type registered for a data port")
)
