package kmip

/* This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/. */

import (
	"context"
	"crypto/rand"
	"crypto/tls"
	"fmt"
	"io"
	"log"
	"net"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Server implements core KMIP server
type Server struct {
	// Listen address
	Addr string

	// TLS Configuration for the server
	TLSConfig *tls.Config

	// Log destination (if not set, log is discarded)
	Log *log.Logger

	// Supported version of KMIP, in the order of the preference
	//
	// If not set, defaults to DefaultSupportedVersions
	SupportedVersions []ProtocolVersion

	// Network read & write timeouts
	//
	// If set to zero, timeouts are not enforced
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// Upper bound on the declared length of incoming messages
	//
	// If set to zero, DefaultMaxMessageSize is used
	MaxMessageSize int32

	// Allocator for per-connection message buffers (DefaultAllocator if nil)
	Allocator Allocator

	// Store backs the default Create/Get/Destroy handlers
	//
	// If not set, an empty MemoryStore is used
	Store KeyStore

	// SessionAuthHandler is called after TLS handshake
	//
	// This handler might additionally verify client TLS cert or perform
	// any other kind of auth (say, by source address)
	SessionAuthHandler func(conn net.Conn) (sessionAuth SessionAuth, err error)

	l        net.Listener
	mu       sync.Mutex
	wg       sync.WaitGroup
	doneChan chan struct{}
	handlers map[Enum]Handler
}

// Handler processes specific KMIP operation
type Handler func(req *RequestContext, item *RequestBatchItem) (resp interface{}, err error)

// SessionAuth is the result of session authentication
type SessionAuth struct {
	ClientCertificateSerialNumber string
	CommonName                    string
}

// SessionContext is initialized for each connection
type SessionContext struct {
	// Unique session identificator
	SessionID string

	// Additional opaque data related to connection auth, as returned by Server.SessionAuthHandler
	SessionAuth SessionAuth
}

// RequestContext covers batch of requests
type RequestContext struct {
	SessionContext

	IdPlaceholder string
}

var supportedAlgorithms = []Enum{CRYPTO_AES}

// ListenAndServe creates TLS listening socket and calls Serve
//
// Channel initializedCh will be closed when listener is initialized
// (or fails to be initialized)
func (s *Server) ListenAndServe(initializedCh chan struct{}) error {
	addr := s.Addr
	if addr == "" {
		addr = ":5696"
	}

	l, err := tls.Listen("tcp", addr, s.TLSConfig)
	if err != nil {
		close(initializedCh)
		return err
	}

	return s.Serve(l, initializedCh)
}

// Serve starts accepting and serving KMIP connection on a given listener
//
// Channel initializedCh will be closed when listener is initialized
// (or fails to be initialized)
func (s *Server) Serve(l net.Listener, initializedCh chan struct{}) error {
	s.mu.Lock()
	s.l = l

	if s.Log == nil {
		s.Log = log.New(io.Discard, "", log.LstdFlags)
	}

	if len(s.SupportedVersions) == 0 {
		s.SupportedVersions = append([]ProtocolVersion(nil), DefaultSupportedVersions...)
	}

	if s.Store == nil {
		s.Store = NewMemoryStore()
	}

	if s.handlers == nil {
		s.initHandlers()
	}
	s.mu.Unlock()

	close(initializedCh)

	defer l.Close()

	lastSession := uint32(0)

	var tempDelay time.Duration

	for {
		conn, err := l.Accept()
		if err != nil {
			select {
			case <-s.getDoneChan():
				return nil
			default:
			}

			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				if tempDelay == 0 {
					tempDelay = 5 * time.Millisecond
				} else {
					tempDelay *= 2
				}
				if max := 1 * time.Second; tempDelay > max {
					tempDelay = max
				}
				s.Log.Printf("[ERROR] Accept error: %s, retrying in %s", err, tempDelay)
				time.Sleep(tempDelay)
				continue
			}

			return err
		}

		lastSession++
		tempDelay = 0

		s.wg.Add(1)
		go s.serve(conn, fmt.Sprintf("%08x", lastSession))
	}
}

// Shutdown performs graceful shutdown of KMIP server waiting for connections to be closed
//
// Context might be used to limit time to wait for draining complete
func (s *Server) Shutdown(ctx context.Context) error {
	close(s.getDoneChan())

	s.mu.Lock()
	if s.l != nil {
		s.l.Close()
		s.l = nil
	}
	s.mu.Unlock()

	waitGroupDone := make(chan struct{})

	go func() {
		s.wg.Wait()
		close(waitGroupDone)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-waitGroupDone:
		return nil
	}
}

// Handle register handler for operation
//
// Server provides default handlers for DISCOVER_VERSIONS, CREATE, GET and
// DESTROY; any other operation should be specifically enabled via Handle
func (s *Server) Handle(operation Enum, handler Handler) {
	if s.handlers == nil {
		s.initHandlers()
	}

	s.handlers[operation] = handler
}

func (s *Server) initHandlers() {
	s.handlers = make(map[Enum]Handler)
	s.handlers[OPERATION_DISCOVER_VERSIONS] = s.handleDiscoverVersions
	s.handlers[OPERATION_CREATE] = s.handleCreate
	s.handlers[OPERATION_GET] = s.handleGet
	s.handlers[OPERATION_DESTROY] = s.handleDestroy
}

func (s *Server) getDoneChan() chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.doneChan == nil {
		s.doneChan = make(chan struct{})
	}

	return s.doneChan
}

func (s *Server) maxMessageSize() int32 {
	if s.MaxMessageSize != 0 {
		return s.MaxMessageSize
	}

	return DefaultMaxMessageSize
}

func (s *Server) serve(conn net.Conn, session string) {
	defer s.wg.Done()
	defer func() {
		s.Log.Printf("[INFO] [%s] Closed connection from %s", session, conn.RemoteAddr().String())
		conn.Close()
	}()

	s.Log.Printf("[INFO] [%s] New connection from %s", session, conn.RemoteAddr().String())

	sessionCtx := &SessionContext{
		SessionID: session,
	}

	if tlsConn, ok := conn.(*tls.Conn); ok {
		if s.ReadTimeout != 0 {
			_ = conn.SetReadDeadline(time.Now().Add(s.ReadTimeout))
		}
		if s.WriteTimeout != 0 {
			_ = conn.SetWriteDeadline(time.Now().Add(s.WriteTimeout))
		}

		if err := tlsConn.Handshake(); err != nil {
			s.Log.Printf("[ERROR] [%s] Error in TLS handshake: %s", session, err)
			return
		}
	}

	s.mu.Lock()
	sessionAuthHandler := s.SessionAuthHandler
	s.mu.Unlock()

	if sessionAuthHandler != nil {
		var err error

		sessionCtx.SessionAuth, err = sessionAuthHandler(conn)
		if err != nil {
			s.Log.Printf("[ERROR] [%s] Error in session auth handler: %s", session, err)
			return
		}
	}

	ctx := NewContext(s.Allocator, ProtocolVersion{})

	for {
		if s.ReadTimeout != 0 {
			_ = conn.SetReadDeadline(time.Now().Add(s.ReadTimeout))
		}

		buf, _, err := receiveFrame(ctx, conn, s.maxMessageSize())
		if err == io.EOF {
			break
		}

		if err != nil {
			s.Log.Printf("[ERROR] [%s] Error reading KMIP message: %s", session, err)
			break
		}

		var req = &Request{}
		err = req.Decode(ctx)

		ctx.Alloc.Free(buf)
		ctx.Clear()

		if err != nil {
			s.Log.Printf("[ERROR] [%s] Error decoding KMIP message: %s", session, err)
			break
		}

		var resp *Response
		resp, err = s.handleBatch(sessionCtx, req)
		if err != nil {
			s.Log.Printf("[ERROR] [%s] Fatal error handling batch: %s", session, err)
			break
		}

		if s.WriteTimeout != 0 {
			_ = conn.SetWriteDeadline(time.Now().Add(s.WriteTimeout))
		}

		out, size, err := encodeWithGrowth(ctx, resp)
		if err != nil {
			s.Log.Printf("[ERROR] [%s] Error encoding KMIP response: %s", session, err)
			break
		}

		err = sendAll(conn, out[:size])

		ctx.Alloc.Free(out)
		ctx.Clear()

		if err != nil {
			s.Log.Printf("[ERROR] [%s] Error sending KMIP response: %s", session, err)
			break
		}
	}
}

func (s *Server) handleBatch(session *SessionContext, req *Request) (resp *Response, err error) {
	if int(req.Header.BatchCount) != len(req.BatchItems) {
		err = errors.Errorf("request batch count doesn't match number of batch items: %d != %d", req.Header.BatchCount, len(req.BatchItems))
		return
	}

	resp = &Response{
		Header: ResponseHeader{
			Version:    req.Header.Version,
			TimeStamp:  time.Now(),
			BatchCount: req.Header.BatchCount,
		},
		BatchItems: make([]ResponseBatchItem, req.Header.BatchCount),
	}

	requestCtx := &RequestContext{
		SessionContext: *session,
	}

	for i := range req.BatchItems {
		resp.BatchItems[i].Operation = req.BatchItems[i].Operation
		resp.BatchItems[i].UniqueID = append([]byte(nil), req.BatchItems[i].UniqueID...)

		var (
			batchResp interface{}
			batchErr  error
		)

		batchResp, batchErr = s.handleWrapped(requestCtx, &req.BatchItems[i])
		if batchErr != nil {
			s.Log.Printf("[WARN] [%s] Request failed, operation %v: %s", requestCtx.SessionID, operationMap[req.BatchItems[i].Operation], batchErr)

			resp.BatchItems[i].ResultStatus = RESULT_STATUS_OPERATION_FAILED
			resp.BatchItems[i].ResultMessage = batchErr.Error()
			if protoErr, ok := batchErr.(Error); ok {
				resp.BatchItems[i].ResultReason = protoErr.ResultReason()
			} else {
				resp.BatchItems[i].ResultReason = RESULT_REASON_GENERAL_FAILURE
			}
		} else {
			s.Log.Printf("[INFO] [%s] Request processed, operation %v", requestCtx.SessionID, operationMap[req.BatchItems[i].Operation])
			resp.BatchItems[i].ResultStatus = RESULT_STATUS_SUCCESS
			resp.BatchItems[i].ResponsePayload = batchResp
		}
	}

	return
}

func (s *Server) handleWrapped(request *RequestContext, item *RequestBatchItem) (resp interface{}, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = errors.Errorf("panic: %s", p)

			buf := make([]byte, 8192)

			n := runtime.Stack(buf, false)
			s.Log.Printf("[ERROR] [%s] Panic in request handler, operation %s: %s", request.SessionID, operationMap[item.Operation], string(buf[:n]))
		}
	}()

	handler := s.handlers[item.Operation]

	if handler == nil {
		err = wrapError(errors.New("operation not supported"), RESULT_REASON_OPERATION_NOT_SUPPORTED)
		return
	}

	resp, err = handler(request, item)
	return
}

func (s *Server) handleDiscoverVersions(req *RequestContext, item *RequestBatchItem) (resp interface{}, err error) {
	response := DiscoverVersionsResponse{}

	request, ok := item.RequestPayload.(DiscoverVersionsRequest)
	if !ok {
		err = wrapError(errors.New("wrong request body"), RESULT_REASON_INVALID_MESSAGE)
		return
	}

	if len(request.ProtocolVersions) == 0 {
		// return all the versions
		response.ProtocolVersions = append([]ProtocolVersion(nil), s.SupportedVersions...)
	} else {
		// find matching versions
		for _, version := range request.ProtocolVersions {
			for _, v := range s.SupportedVersions {
				if version == v {
					response.ProtocolVersions = append(response.ProtocolVersions, v)
					break
				}
			}
		}
	}

	resp = response
	return
}

/* We currently only support creating symmetric keys */
func (s *Server) handleCreate(req *RequestContext, item *RequestBatchItem) (resp interface{}, err error) {
	request, ok := item.RequestPayload.(CreateRequest)
	if !ok {
		return nil, wrapError(errors.New("wrong request body"), RESULT_REASON_INVALID_MESSAGE)
	}

	if request.ObjectType != OBJECT_TYPE_SYMMETRIC_KEY {
		return nil, wrapError(errors.Errorf("cannot create object type %v with the Create operation", request.ObjectType),
			RESULT_REASON_INVALID_FIELD)
	}

	cryptoAlgorithm := request.TemplateAttribute.Attributes.Get(ATTRIBUTE_NAME_CRYPTOGRAPHIC_ALGORITHM)
	if cryptoAlgorithm == nil {
		return nil, wrapError(errors.New("cryptographic algorithm is required"), RESULT_REASON_INVALID_FIELD)
	}

	algorithm, ok := cryptoAlgorithm.(Enum)
	if !ok || !ContainsEnum(supportedAlgorithms, algorithm) {
		return nil, wrapError(errors.New("only AES is supported"), RESULT_REASON_INVALID_FIELD)
	}

	keyLength := int32(256)
	length := request.TemplateAttribute.Attributes.Get(ATTRIBUTE_NAME_CRYPTOGRAPHIC_LENGTH)
	if length != nil {
		lengthValue, ok := length.(int32)
		if !ok {
			return nil, wrapError(errors.New("invalid cryptographic length type"), RESULT_REASON_INVALID_FIELD)
		}
		keyLength = lengthValue
	}

	if keyLength != 128 && keyLength != 192 && keyLength != 256 {
		return nil, wrapError(errors.Errorf("unsupported cryptographic length %d", keyLength), RESULT_REASON_INVALID_FIELD)
	}

	material := make([]byte, keyLength/8)
	if _, err = rand.Read(material); err != nil {
		return nil, errors.Wrap(err, "generating key material")
	}

	key := &ManagedKey{
		ID:        uuid.NewString(),
		Algorithm: algorithm,
		Length:    keyLength,
		Material:  material,
		CreatedAt: time.Now(),
	}

	if err = s.Store.Add(key); err != nil {
		return nil, errors.Wrap(err, "storing key")
	}

	req.IdPlaceholder = key.ID

	return CreateResponse{
		ObjectType:       OBJECT_TYPE_SYMMETRIC_KEY,
		UniqueIdentifier: key.ID,
	}, nil
}

/* We currently only support getting symmetric keys */
// TODO: add support for key wrapping
func (s *Server) handleGet(req *RequestContext, item *RequestBatchItem) (resp interface{}, err error) {
	request, ok := item.RequestPayload.(GetRequest)
	if !ok {
		return nil, wrapError(errors.New("wrong request body"), RESULT_REASON_INVALID_MESSAGE)
	}

	uniqueId := req.IdPlaceholder
	if request.UniqueIdentifier != "" {
		uniqueId = request.UniqueIdentifier
	}

	if request.KeyCompressionType != 0 {
		return nil, wrapError(errors.New("key compression is not supported"), RESULT_REASON_INVALID_FIELD)
	}

	key, err := s.Store.Get(uniqueId)
	if err != nil {
		return nil, wrapError(err, RESULT_REASON_ITEM_NOT_FOUND)
	}

	response := GetResponse{
		ObjectType:       OBJECT_TYPE_SYMMETRIC_KEY,
		UniqueIdentifier: key.ID,
	}
	response.SymmetricKey.KeyBlock.FormatType = KEY_FORMAT_RAW
	response.SymmetricKey.KeyBlock.CryptographicAlgorithm = key.Algorithm
	response.SymmetricKey.KeyBlock.CryptographicLength = key.Length
	response.SymmetricKey.KeyBlock.Value.KeyMaterial = append([]byte(nil), key.Material...)

	return response, nil
}

func (s *Server) handleDestroy(req *RequestContext, item *RequestBatchItem) (resp interface{}, err error) {
	request, ok := item.RequestPayload.(DestroyRequest)
	if !ok {
		return nil, wrapError(errors.New("wrong request body"), RESULT_REASON_INVALID_MESSAGE)
	}

	uniqueId := req.IdPlaceholder
	if request.UniqueIdentifier != "" {
		uniqueId = request.UniqueIdentifier
	}

	if err = s.Store.Remove(uniqueId); err != nil {
		return nil, wrapError(err, RESULT_REASON_ITEM_NOT_FOUND)
	}

	return DestroyResponse{UniqueIdentifier: uniqueId}, nil
}
