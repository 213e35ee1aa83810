package kmip

/* This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/. */

import (
	"encoding/binary"
	"io"
	"time"

	"github.com/pkg/errors"
)

const (
	// encodeBlockSize is the granularity of the encoding buffer; the
	// growth loop adds one block per retry
	encodeBlockSize = 1024

	// messageHeaderSize is the fixed TTLV prefix of every message: 3-byte
	// tag, 1-byte type and the 4-byte big-endian length of the remainder
	messageHeaderSize = 8

	// DefaultMaxMessageSize bounds the declared length of incoming
	// messages when the caller doesn't supply a ceiling
	DefaultMaxMessageSize int32 = 8192
)

type wireMessage interface {
	Encode(*Context) error
}

// encodeWithGrowth serializes msg into an allocator-owned buffer, retrying
// with one additional block each time the encoder reports ErrBufferFull.
// On success the returned buffer is set as the context's view and holds
// size encoded bytes (trailing capacity stays unused); on failure every
// allocation has been released and the view is empty.
func encodeWithGrowth(ctx *Context, msg wireMessage) ([]byte, int, error) {
	blocks := 1

	buf, err := ctx.Alloc.Allocate(blocks * encodeBlockSize)
	if err != nil {
		ctx.Clear()
		return nil, 0, errors.Wrapf(ErrAllocFailed, "allocating encoding buffer: %v", err)
	}

	ctx.SetBuffer(buf)

	encodeErr := msg.Encode(ctx)
	for errors.Cause(encodeErr) == ErrBufferFull {
		ctx.Alloc.Free(buf)

		blocks++

		buf, err = ctx.Alloc.Allocate(blocks * encodeBlockSize)
		if err != nil {
			ctx.Clear()
			return nil, 0, errors.Wrapf(ErrAllocFailed, "growing encoding buffer to %d blocks: %v", blocks, err)
		}

		ctx.SetBuffer(buf)
		encodeErr = msg.Encode(ctx)
	}

	if encodeErr != nil {
		ctx.Alloc.Free(buf)
		ctx.Clear()
		return nil, 0, encodeErr
	}

	return buf, ctx.Index(), nil
}

// receiveFrame reads one length-prefixed message from the transport: first
// the fixed 8-byte prefix, whose bytes 4-7 declare the length of the rest,
// then (after bounding that untrusted length by maxMessageSize) the body.
// On success the full message is set as the context's view; the returned
// buffer is exactly messageHeaderSize+length bytes, ready to decode from
// offset 0. A connection closed before the first header byte surfaces as
// io.EOF, any other shortfall as ErrIOFailure.
func receiveFrame(ctx *Context, r io.Reader, maxMessageSize int32) ([]byte, int, error) {
	buf, err := ctx.Alloc.Allocate(messageHeaderSize)
	if err != nil {
		ctx.Clear()
		return nil, 0, errors.Wrapf(ErrAllocFailed, "allocating receive buffer: %v", err)
	}

	if _, err = io.ReadFull(r, buf); err != nil {
		ctx.Alloc.Free(buf)
		ctx.Clear()

		if err == io.EOF {
			return nil, 0, io.EOF
		}

		return nil, 0, errors.Wrapf(ErrIOFailure, "reading message header: %v", err)
	}

	length := binary.BigEndian.Uint32(buf[4:8])
	if int64(length) > int64(maxMessageSize) {
		ctx.Alloc.Free(buf)
		ctx.Clear()
		return nil, 0, errors.Wrapf(ErrExceedMaxMessageSize, "declared length %d exceeds limit %d", length, maxMessageSize)
	}

	total := messageHeaderSize + int(length)

	buf, err = ctx.Alloc.Reallocate(buf, total)
	if err != nil {
		ctx.Clear()
		return nil, 0, errors.Wrapf(ErrAllocFailed, "growing receive buffer to %d bytes: %v", total, err)
	}

	if _, err = io.ReadFull(r, buf[messageHeaderSize:total]); err != nil {
		ctx.Alloc.Free(buf)
		ctx.Clear()
		return nil, 0, errors.Wrapf(ErrIOFailure, "reading message body: %v", err)
	}

	ctx.SetBuffer(buf)
	return buf, total, nil
}

// sendAll writes the full byte range in a single call; anything short of a
// complete write is fatal for the exchange
func sendAll(w io.Writer, buf []byte) error {
	n, err := w.Write(buf)
	if err != nil {
		return errors.Wrapf(ErrIOFailure, "sending message: %v", err)
	}

	if n != len(buf) {
		return errors.Wrapf(ErrIOFailure, "short write: %d of %d bytes sent", n, len(buf))
	}

	return nil
}

// exchange drives one full request/response round trip: encode with growth,
// transmit, receive the framed response, decode, and check the envelope
// invariants (exactly one batch item). On success the caller owns the
// returned buffer and must Free it and Clear the context; on failure both
// have already been taken care of.
func exchange(ctx *Context, conn io.ReadWriter, maxMessageSize int32, req *Request) (*Response, []byte, error) {
	buf, size, err := encodeWithGrowth(ctx, req)
	if err != nil {
		return nil, nil, err
	}

	err = sendAll(conn, buf[:size])

	ctx.Alloc.Free(buf)
	ctx.Clear()

	if err != nil {
		return nil, nil, err
	}

	buf, _, err = receiveFrame(ctx, conn, maxMessageSize)
	if err != nil {
		if err == io.EOF {
			err = errors.Wrap(ErrIOFailure, "connection closed before response")
		}
		return nil, nil, err
	}

	resp := &Response{}
	if err = resp.Decode(ctx); err != nil {
		ctx.Alloc.Free(buf)
		ctx.Clear()
		return nil, nil, err
	}

	if resp.Header.BatchCount != 1 || len(resp.BatchItems) == 0 {
		ctx.Alloc.Free(buf)
		ctx.Clear()
		return nil, nil, errors.Wrapf(ErrMalformedResponse,
			"batch count %d with %d batch items, expecting exactly one", resp.Header.BatchCount, len(resp.BatchItems))
	}

	return resp, buf, nil
}

func buildRequest(version ProtocolVersion, maxMessageSize int32, operation Enum, payload interface{}) *Request {
	return &Request{
		Header: RequestHeader{
			Version:             version,
			MaximumResponseSize: maxMessageSize,
			TimeStamp:           time.Now(),
			BatchCount:          1,
		},
		BatchItems: []RequestBatchItem{
			{
				Operation:      operation,
				RequestPayload: payload,
			},
		},
	}
}

// Create asks the server to create a symmetric key described by the
// template attributes and returns the new object's unique identifier. The
// identifier is freshly allocated from the default allocator and owned by
// the caller.
func Create(conn io.ReadWriter, maxMessageSize int32, template *TemplateAttribute) ([]byte, Enum, error) {
	ctx := NewContext(nil, ProtocolVersion{})
	defer ctx.Destroy()

	return CreateWithContext(ctx, conn, maxMessageSize, template)
}

// CreateWithContext is Create reusing a caller-supplied context; only the
// context's version and allocator persist across calls, the buffer view is
// scoped to this call and empty on return.
func CreateWithContext(ctx *Context, conn io.ReadWriter, maxMessageSize int32, template *TemplateAttribute) ([]byte, Enum, error) {
	payload := CreateRequest{ObjectType: OBJECT_TYPE_SYMMETRIC_KEY}
	if template != nil {
		payload.TemplateAttribute = *template
	}

	req := buildRequest(ctx.Version, maxMessageSize, OPERATION_CREATE, payload)

	resp, buf, err := exchange(ctx, conn, maxMessageSize, req)
	if err != nil {
		return nil, RESULT_STATUS_OPERATION_FAILED, err
	}

	defer func() {
		ctx.Alloc.Free(buf)
		ctx.Clear()
	}()

	item := &resp.BatchItems[0]
	if item.ResultStatus != RESULT_STATUS_SUCCESS {
		return nil, item.ResultStatus, nil
	}

	pld, ok := item.ResponsePayload.(CreateResponse)
	if !ok {
		return nil, item.ResultStatus, errors.Wrap(ErrMalformedResponse, "create response payload missing")
	}

	id, err := ctx.Alloc.Allocate(len(pld.UniqueIdentifier))
	if err != nil {
		return nil, item.ResultStatus, errors.Wrapf(ErrAllocFailed, "allocating identifier: %v", err)
	}

	copy(id, pld.UniqueIdentifier)

	return id, item.ResultStatus, nil
}

// Destroy asks the server to destroy the object with the given unique
// identifier and returns the operation's result status
func Destroy(conn io.ReadWriter, maxMessageSize int32, id []byte) (Enum, error) {
	ctx := NewContext(nil, ProtocolVersion{})
	defer ctx.Destroy()

	return DestroyWithContext(ctx, conn, maxMessageSize, id)
}

// DestroyWithContext is Destroy reusing a caller-supplied context
func DestroyWithContext(ctx *Context, conn io.ReadWriter, maxMessageSize int32, id []byte) (Enum, error) {
	req := buildRequest(ctx.Version, maxMessageSize, OPERATION_DESTROY, DestroyRequest{UniqueIdentifier: string(id)})

	resp, buf, err := exchange(ctx, conn, maxMessageSize, req)
	if err != nil {
		return RESULT_STATUS_OPERATION_FAILED, err
	}

	status := resp.BatchItems[0].ResultStatus

	ctx.Alloc.Free(buf)
	ctx.Clear()

	return status, nil
}

// GetSymmetricKey retrieves the raw key material of the symmetric key with
// the given unique identifier. Anything other than an unwrapped raw
// symmetric key fails with ErrObjectMismatch; the engine never attempts
// unwrapping. The key bytes are freshly allocated and owned by the caller.
func GetSymmetricKey(conn io.ReadWriter, maxMessageSize int32, id []byte) ([]byte, Enum, error) {
	ctx := NewContext(nil, ProtocolVersion{})
	defer ctx.Destroy()

	return GetSymmetricKeyWithContext(ctx, conn, maxMessageSize, id)
}

// GetSymmetricKeyWithContext is GetSymmetricKey reusing a caller-supplied
// context
func GetSymmetricKeyWithContext(ctx *Context, conn io.ReadWriter, maxMessageSize int32, id []byte) ([]byte, Enum, error) {
	req := buildRequest(ctx.Version, maxMessageSize, OPERATION_GET, GetRequest{UniqueIdentifier: string(id)})

	resp, buf, err := exchange(ctx, conn, maxMessageSize, req)
	if err != nil {
		return nil, RESULT_STATUS_OPERATION_FAILED, err
	}

	defer func() {
		ctx.Alloc.Free(buf)
		ctx.Clear()
	}()

	item := &resp.BatchItems[0]
	if item.ResultStatus != RESULT_STATUS_SUCCESS {
		return nil, item.ResultStatus, nil
	}

	pld, ok := item.ResponsePayload.(GetResponse)
	if !ok {
		return nil, item.ResultStatus, errors.Wrap(ErrMalformedResponse, "get response payload missing")
	}

	if pld.ObjectType != OBJECT_TYPE_SYMMETRIC_KEY {
		return nil, item.ResultStatus, errors.Wrapf(ErrObjectMismatch, "object type %#x is not a symmetric key", uint32(pld.ObjectType))
	}

	block := &pld.SymmetricKey.KeyBlock
	if block.FormatType != KEY_FORMAT_RAW || block.WrappingData != nil {
		return nil, item.ResultStatus, errors.Wrap(ErrObjectMismatch, "key block is not raw unwrapped material")
	}

	key, err := ctx.Alloc.Allocate(len(block.Value.KeyMaterial))
	if err != nil {
		return nil, item.ResultStatus, errors.Wrapf(ErrAllocFailed, "allocating key material: %v", err)
	}

	copy(key, block.Value.KeyMaterial)

	return key, item.ResultStatus, nil
}

// SendEncoded transmits a pre-encoded request and returns the raw framed
// response bytes without decoding them. This is the minimal exchange
// primitive underneath the typed operations; the response buffer is owned
// by the caller.
func SendEncoded(conn io.ReadWriter, maxMessageSize int32, request []byte) ([]byte, error) {
	ctx := NewContext(nil, ProtocolVersion{})
	defer ctx.Destroy()

	return SendEncodedWithContext(ctx, conn, maxMessageSize, request)
}

// SendEncodedWithContext is SendEncoded reusing a caller-supplied context
func SendEncodedWithContext(ctx *Context, conn io.ReadWriter, maxMessageSize int32, request []byte) ([]byte, error) {
	if err := sendAll(conn, request); err != nil {
		return nil, err
	}

	buf, total, err := receiveFrame(ctx, conn, maxMessageSize)
	if err != nil {
		if err == io.EOF {
			err = errors.Wrap(ErrIOFailure, "connection closed before response")
		}
		return nil, err
	}

	ctx.Clear()

	return buf[:total], nil
}
