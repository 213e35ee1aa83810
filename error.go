package kmip

/* This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/. */

import (
	"github.com/pkg/errors"
)

// Errors returned by the message exchange engine. Engine functions wrap
// these with call-specific context; use errors.Cause to classify a failure.
var (
	// ErrBufferFull is signalled by the encoder when the message does not
	// fit into the current encoding buffer. It drives the buffer growth
	// loop and never escapes an engine call.
	ErrBufferFull = errors.New("kmip: encoding buffer full")

	// ErrAllocFailed reports a failure of the context's allocator
	ErrAllocFailed = errors.New("kmip: memory allocation failed")

	// ErrIOFailure reports a failed or incomplete transport read/write
	ErrIOFailure = errors.New("kmip: transport i/o failure")

	// ErrExceedMaxMessageSize reports a response whose declared length
	// exceeds the caller-supplied ceiling
	ErrExceedMaxMessageSize = errors.New("kmip: response exceeds maximum message size")

	// ErrMalformedResponse reports a decoded response violating the
	// single-batch-item envelope invariants
	ErrMalformedResponse = errors.New("kmip: malformed response message")

	// ErrObjectMismatch reports a Get response carrying anything other
	// than a raw, unwrapped symmetric key
	ErrObjectMismatch = errors.New("kmip: object type or key format mismatch")
)

// Error is a protocol-level error which additionally carries a KMIP result
// reason, so that server handlers can control the reason reported back to
// the client
type Error interface {
	error
	ResultReason() Enum
}

type protocolError struct {
	error
	reason Enum
}

func (e protocolError) ResultReason() Enum {
	return e.reason
}

func wrapError(err error, reason Enum) Error {
	return protocolError{err, reason}
}
