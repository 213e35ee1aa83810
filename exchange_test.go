package kmip

/* This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/. */

import (
	"bytes"
	"encoding/binary"
	"strings"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

// trackingAllocator counts live buffers so tests can verify that every
// exit path of an exchange releases everything it allocated. failAt makes
// the n-th allocation (1-based, Allocate and Reallocate both count) fail.
type trackingAllocator struct {
	mu     sync.Mutex
	live   int
	sizes  []int
	calls  int
	failAt int
}

func (a *trackingAllocator) Allocate(n int) ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.calls++
	if a.failAt != 0 && a.calls == a.failAt {
		return nil, errors.New("allocation refused")
	}

	a.live++
	a.sizes = append(a.sizes, n)

	return make([]byte, n), nil
}

func (a *trackingAllocator) Reallocate(buf []byte, n int) ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.calls++
	if a.failAt != 0 && a.calls == a.failAt {
		// the old buffer is consumed even on failure
		a.live--
		return nil, errors.New("allocation refused")
	}

	a.sizes = append(a.sizes, n)

	next := make([]byte, n)
	copy(next, buf)

	return next, nil
}

func (a *trackingAllocator) Free(buf []byte) {
	if buf == nil {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	a.live--
}

func (a *trackingAllocator) liveBuffers() int {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.live
}

// testConn is a scripted io.ReadWriter: writes are captured, reads are
// served from a canned response
type testConn struct {
	wrote      bytes.Buffer
	response   *bytes.Reader
	writeErr   error
	shortWrite bool
	readCalls  int
}

func newTestConn(response []byte) *testConn {
	return &testConn{response: bytes.NewReader(response)}
}

func (c *testConn) Read(p []byte) (int, error) {
	c.readCalls++

	return c.response.Read(p)
}

func (c *testConn) Write(p []byte) (int, error) {
	if c.writeErr != nil {
		return 0, c.writeErr
	}

	if c.shortWrite {
		return c.wrote.Write(p[:len(p)/2])
	}

	return c.wrote.Write(p)
}

// rawFrame builds a framed message by hand: response tag, structure type,
// big-endian declared length, then the body verbatim
func rawFrame(declaredLength uint32, body []byte) []byte {
	frame := make([]byte, messageHeaderSize+len(body))
	frame[0], frame[1], frame[2] = 0x42, 0x00, 0x7b
	frame[3] = TYPE_STRUCTURE
	binary.BigEndian.PutUint32(frame[4:8], declaredLength)
	copy(frame[messageHeaderSize:], body)

	return frame
}

func encodeTestResponse(t *testing.T, resp *Response) []byte {
	ctx := NewContext(nil, ProtocolVersion{})
	defer ctx.Destroy()

	buf, size, err := encodeWithGrowth(ctx, resp)
	require.NoError(t, err)

	wire := append([]byte(nil), buf[:size]...)

	ctx.Alloc.Free(buf)
	ctx.Clear()

	return wire
}

func successResponse(operation Enum, payload interface{}) *Response {
	return &Response{
		Header: ResponseHeader{
			Version:    ProtocolVersion{Major: 1, Minor: 0},
			TimeStamp:  testTimeStamp,
			BatchCount: 1,
		},
		BatchItems: []ResponseBatchItem{
			{
				Operation:       operation,
				ResultStatus:    RESULT_STATUS_SUCCESS,
				ResponsePayload: payload,
			},
		},
	}
}

func getSuccessWire(t *testing.T, pld GetResponse) []byte {
	return encodeTestResponse(t, successResponse(OPERATION_GET, pld))
}

// an encoding that overflows the initial block must retry with one more
// block per attempt, releasing each undersized buffer along the way
func TestEncodeWithGrowth(t *testing.T) {
	alloc := &trackingAllocator{}
	ctx := NewContext(alloc, ProtocolVersion{})

	req := testRequest(OPERATION_CREATE, CreateRequest{
		ObjectType: OBJECT_TYPE_SYMMETRIC_KEY,
		TemplateAttribute: TemplateAttribute{
			Attributes: Attributes{
				{Name: ATTRIBUTE_NAME_NAME, Value: strings.Repeat("a", 3500)},
			},
		},
	})

	buf, size, err := encodeWithGrowth(ctx, req)
	require.NoError(t, err)
	require.Equal(t, []int{1024, 2048, 3072, 4096}, alloc.sizes)
	require.Equal(t, 1, alloc.liveBuffers())
	require.True(t, size > 3072 && size <= 4096)

	decoded := &Request{}
	ctx.SetBuffer(buf[:size])
	require.NoError(t, decoded.Decode(ctx))
	require.Equal(t, req, decoded)

	alloc.Free(buf)
	ctx.Clear()
	require.Equal(t, 0, alloc.liveBuffers())
}

func TestEncodeWithGrowthSingleBlock(t *testing.T) {
	alloc := &trackingAllocator{}
	ctx := NewContext(alloc, ProtocolVersion{})

	buf, _, err := encodeWithGrowth(ctx, testRequest(OPERATION_GET, GetRequest{UniqueIdentifier: "id-1"}))
	require.NoError(t, err)
	require.Equal(t, []int{1024}, alloc.sizes)

	alloc.Free(buf)
	ctx.Clear()
	require.Equal(t, 0, alloc.liveBuffers())
}

// every failure an exchange can hit must leave zero live buffers behind
func TestExchangeReleasesOnFailure(t *testing.T) {
	destroy := func(ctx *Context, conn *testConn) error {
		_, err := DestroyWithContext(ctx, conn, DefaultMaxMessageSize, []byte("id-1"))
		return err
	}

	bigCreate := func(ctx *Context, conn *testConn) error {
		_, _, err := CreateWithContext(ctx, conn, DefaultMaxMessageSize, &TemplateAttribute{
			Attributes: Attributes{
				{Name: ATTRIBUTE_NAME_NAME, Value: strings.Repeat("a", 3500)},
			},
		})
		return err
	}

	cases := []struct {
		name   string
		failAt int
		conn   *testConn
		run    func(ctx *Context, conn *testConn) error
		cause  error
	}{
		{
			name:   "AllocFailsFirst",
			failAt: 1,
			conn:   newTestConn(nil),
			run:    destroy,
			cause:  ErrAllocFailed,
		},
		{
			name:   "AllocFailsDuringGrowth",
			failAt: 3,
			conn:   newTestConn(nil),
			run:    bigCreate,
			cause:  ErrAllocFailed,
		},
		{
			name:  "WriteError",
			conn:  &testConn{writeErr: errors.New("broken pipe"), response: bytes.NewReader(nil)},
			run:   destroy,
			cause: ErrIOFailure,
		},
		{
			name:  "ShortWrite",
			conn:  &testConn{shortWrite: true, response: bytes.NewReader(nil)},
			run:   destroy,
			cause: ErrIOFailure,
		},
		{
			name:  "ConnectionClosedBeforeResponse",
			conn:  newTestConn(nil),
			run:   destroy,
			cause: ErrIOFailure,
		},
		{
			name:  "TruncatedHeader",
			conn:  newTestConn([]byte{0x42, 0x00, 0x7b, TYPE_STRUCTURE}),
			run:   destroy,
			cause: ErrIOFailure,
		},
		{
			name:  "TruncatedBody",
			conn:  newTestConn(rawFrame(100, make([]byte, 20))),
			run:   destroy,
			cause: ErrIOFailure,
		},
		{
			// call 1 is the encoding buffer, call 2 the receive header
			name:   "HeaderAllocFails",
			failAt: 2,
			conn:   newTestConn(rawFrame(64, make([]byte, 64))),
			run:    destroy,
			cause:  ErrAllocFailed,
		},
		{
			// call 3 is the Reallocate growing the header to the full
			// frame; its failure consumes the header buffer
			name:   "ReallocFailsForBody",
			failAt: 3,
			conn:   newTestConn(rawFrame(64, make([]byte, 64))),
			run:    destroy,
			cause:  ErrAllocFailed,
		},
		{
			name:  "GarbageBody",
			conn:  newTestConn(rawFrame(16, bytes.Repeat([]byte{0xff}, 16))),
			run:   destroy,
			cause: nil,
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			alloc := &trackingAllocator{failAt: c.failAt}
			ctx := NewContext(alloc, ProtocolVersion{})

			err := c.run(ctx, c.conn)
			require.Error(t, err)
			if c.cause != nil {
				require.Equal(t, c.cause, errors.Cause(err))
			}

			require.Equal(t, 0, alloc.liveBuffers())
			require.Nil(t, ctx.Buffer())
		})
	}
}

// a declared length above the ceiling is rejected before any body read
func TestReceiveFrameMaxMessageSize(t *testing.T) {
	alloc := &trackingAllocator{}
	ctx := NewContext(alloc, ProtocolVersion{})

	conn := newTestConn(rawFrame(9000, make([]byte, 16)))

	_, err := DestroyWithContext(ctx, conn, DefaultMaxMessageSize, []byte("id-1"))
	require.Error(t, err)
	require.Equal(t, ErrExceedMaxMessageSize, errors.Cause(err))

	require.Equal(t, 1, conn.readCalls)
	require.Equal(t, 0, alloc.liveBuffers())
}

func TestReceiveFrameZeroLength(t *testing.T) {
	alloc := &trackingAllocator{}
	ctx := NewContext(alloc, ProtocolVersion{})

	buf, total, err := receiveFrame(ctx, newTestConn(rawFrame(0, nil)), DefaultMaxMessageSize)
	require.NoError(t, err)
	require.Equal(t, messageHeaderSize, total)

	alloc.Free(buf)
	ctx.Clear()
	require.Equal(t, 0, alloc.liveBuffers())
}

// responses must carry exactly one batch item
func TestExchangeBatchCount(t *testing.T) {
	item := ResponseBatchItem{
		Operation:       OPERATION_DESTROY,
		ResultStatus:    RESULT_STATUS_SUCCESS,
		ResponsePayload: DestroyResponse{UniqueIdentifier: "id-1"},
	}

	cases := []struct {
		name string
		resp *Response
	}{
		{
			"ZeroItems",
			&Response{
				Header: ResponseHeader{Version: ProtocolVersion{Major: 1, Minor: 0}, TimeStamp: testTimeStamp, BatchCount: 0},
			},
		},
		{
			"TwoItems",
			&Response{
				Header:     ResponseHeader{Version: ProtocolVersion{Major: 1, Minor: 0}, TimeStamp: testTimeStamp, BatchCount: 2},
				BatchItems: []ResponseBatchItem{item, item},
			},
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			alloc := &trackingAllocator{}
			ctx := NewContext(alloc, ProtocolVersion{})

			conn := newTestConn(encodeTestResponse(t, c.resp))

			_, err := DestroyWithContext(ctx, conn, DefaultMaxMessageSize, []byte("id-1"))
			require.Error(t, err)
			require.Equal(t, ErrMalformedResponse, errors.Cause(err))
			require.Equal(t, 0, alloc.liveBuffers())
		})
	}
}

func TestCreateScripted(t *testing.T) {
	alloc := &trackingAllocator{}
	ctx := NewContext(alloc, ProtocolVersion{})

	conn := newTestConn(encodeTestResponse(t, successResponse(OPERATION_CREATE, CreateResponse{
		ObjectType:       OBJECT_TYPE_SYMMETRIC_KEY,
		UniqueIdentifier: "new-key-id",
	})))

	id, status, err := CreateWithContext(ctx, conn, DefaultMaxMessageSize, &TemplateAttribute{
		Attributes: Attributes{
			{Name: ATTRIBUTE_NAME_CRYPTOGRAPHIC_ALGORITHM, Value: CRYPTO_AES},
		},
	})
	require.NoError(t, err)
	require.Equal(t, RESULT_STATUS_SUCCESS, status)
	require.Equal(t, []byte("new-key-id"), id)

	// the identifier is the only buffer still alive, owned by the caller
	require.Equal(t, 1, alloc.liveBuffers())
	alloc.Free(id)
	require.Equal(t, 0, alloc.liveBuffers())

	// the request that went out must decode back to a create operation
	wire := conn.wrote.Bytes()
	ctx.SetBuffer(wire)

	sent := &Request{}
	require.NoError(t, sent.Decode(ctx))
	require.Equal(t, OPERATION_CREATE, sent.BatchItems[0].Operation)
	ctx.Clear()
}

// a failure reported by the peer is a status, not an engine error
func TestCreatePeerFailure(t *testing.T) {
	alloc := &trackingAllocator{}
	ctx := NewContext(alloc, ProtocolVersion{})

	resp := successResponse(OPERATION_CREATE, nil)
	resp.BatchItems[0].ResultStatus = RESULT_STATUS_OPERATION_FAILED
	resp.BatchItems[0].ResultReason = RESULT_REASON_INVALID_FIELD
	resp.BatchItems[0].ResultMessage = "unsupported algorithm"
	resp.BatchItems[0].ResponsePayload = nil

	conn := newTestConn(encodeTestResponse(t, resp))

	id, status, err := CreateWithContext(ctx, conn, DefaultMaxMessageSize, nil)
	require.NoError(t, err)
	require.Equal(t, RESULT_STATUS_OPERATION_FAILED, status)
	require.Nil(t, id)
	require.Equal(t, 0, alloc.liveBuffers())
}

func TestGetScripted(t *testing.T) {
	material := []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08}

	alloc := &trackingAllocator{}
	ctx := NewContext(alloc, ProtocolVersion{})

	conn := newTestConn(getSuccessWire(t, GetResponse{
		ObjectType:       OBJECT_TYPE_SYMMETRIC_KEY,
		UniqueIdentifier: "key-id",
		SymmetricKey: SymmetricKey{
			KeyBlock: KeyBlock{
				FormatType:             KEY_FORMAT_RAW,
				CryptographicAlgorithm: CRYPTO_AES,
				CryptographicLength:    64,
				Value:                  KeyValue{KeyMaterial: material},
			},
		},
	}))

	key, status, err := GetSymmetricKeyWithContext(ctx, conn, DefaultMaxMessageSize, []byte("key-id"))
	require.NoError(t, err)
	require.Equal(t, RESULT_STATUS_SUCCESS, status)
	require.Equal(t, material, key)

	require.Equal(t, 1, alloc.liveBuffers())
	alloc.Free(key)
	require.Equal(t, 0, alloc.liveBuffers())
}

// anything other than an unwrapped raw symmetric key is rejected
func TestGetValidation(t *testing.T) {
	rawBlock := KeyBlock{
		FormatType: KEY_FORMAT_RAW,
		Value:      KeyValue{KeyMaterial: []byte{0xde, 0xad, 0xbe, 0xef}},
	}

	wrappedBlock := rawBlock
	wrappedBlock.WrappingData = &KeyWrappingData{WrappingMethod: WRAPPING_METHOD_ENCRYPT}

	transparentBlock := rawBlock
	transparentBlock.FormatType = Enum(0x07)

	cases := []struct {
		name string
		pld  GetResponse
	}{
		{
			"WrongObjectType",
			GetResponse{
				ObjectType:       Enum(0x01),
				UniqueIdentifier: "key-id",
				SymmetricKey:     SymmetricKey{KeyBlock: rawBlock},
			},
		},
		{
			"NonRawFormat",
			GetResponse{
				ObjectType:       OBJECT_TYPE_SYMMETRIC_KEY,
				UniqueIdentifier: "key-id",
				SymmetricKey:     SymmetricKey{KeyBlock: transparentBlock},
			},
		},
		{
			"WrappedKey",
			GetResponse{
				ObjectType:       OBJECT_TYPE_SYMMETRIC_KEY,
				UniqueIdentifier: "key-id",
				SymmetricKey:     SymmetricKey{KeyBlock: wrappedBlock},
			},
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			alloc := &trackingAllocator{}
			ctx := NewContext(alloc, ProtocolVersion{})

			conn := newTestConn(getSuccessWire(t, c.pld))

			key, _, err := GetSymmetricKeyWithContext(ctx, conn, DefaultMaxMessageSize, []byte("key-id"))
			require.Error(t, err)
			require.Equal(t, ErrObjectMismatch, errors.Cause(err))
			require.Nil(t, key)
			require.Equal(t, 0, alloc.liveBuffers())
		})
	}
}

func TestDestroyScripted(t *testing.T) {
	alloc := &trackingAllocator{}
	ctx := NewContext(alloc, ProtocolVersion{})

	conn := newTestConn(encodeTestResponse(t, successResponse(OPERATION_DESTROY,
		DestroyResponse{UniqueIdentifier: "key-id"})))

	status, err := DestroyWithContext(ctx, conn, DefaultMaxMessageSize, []byte("key-id"))
	require.NoError(t, err)
	require.Equal(t, RESULT_STATUS_SUCCESS, status)
	require.Equal(t, 0, alloc.liveBuffers())
}

// SendEncoded ships the request bytes untouched and hands back the raw
// framed response without decoding it
func TestSendEncodedPassthrough(t *testing.T) {
	request := encodeTestResponse(t, successResponse(OPERATION_DESTROY,
		DestroyResponse{UniqueIdentifier: "ignored"}))
	responseWire := rawFrame(16, bytes.Repeat([]byte{0xff}, 16))

	alloc := &trackingAllocator{}
	ctx := NewContext(alloc, ProtocolVersion{})

	conn := newTestConn(responseWire)

	response, err := SendEncodedWithContext(ctx, conn, DefaultMaxMessageSize, request)
	require.NoError(t, err)
	require.Equal(t, request, conn.wrote.Bytes())
	require.Equal(t, responseWire, response)

	require.Equal(t, 1, alloc.liveBuffers())
	alloc.Free(response)
	require.Equal(t, 0, alloc.liveBuffers())
}

// a context survives its buffers: the same one drives consecutive
// operations after each call clears its view
func TestContextReuse(t *testing.T) {
	alloc := &trackingAllocator{}
	ctx := NewContext(alloc, ProtocolVersion{})

	for i := 0; i < 3; i++ {
		conn := newTestConn(encodeTestResponse(t, successResponse(OPERATION_DESTROY,
			DestroyResponse{UniqueIdentifier: "key-id"})))

		status, err := DestroyWithContext(ctx, conn, DefaultMaxMessageSize, []byte("key-id"))
		require.NoError(t, err)
		require.Equal(t, RESULT_STATUS_SUCCESS, status)
	}

	require.Equal(t, 0, alloc.liveBuffers())
	ctx.Destroy()
}
