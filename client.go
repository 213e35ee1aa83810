package kmip

/* This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/. */

import (
	"crypto/tls"
	"io"
	"log"
	"time"

	"github.com/pkg/errors"
)

// Client is a KMIP client holding one TLS connection to a server. It keeps
// a long-lived protocol context whose version and allocator are reused
// across operations; each operation scopes its buffers to the call.
//
// A Client is not safe for concurrent use: operations are strictly
// request-then-response, one in flight at a time. Run concurrent operations
// on separate clients.
type Client struct {
	// Server endpoint as host:port
	Endpoint string

	// TLS client configuration
	TLSConfig *tls.Config

	// Network read & write timeouts, applied per operation
	//
	// If set to zero, timeouts are not enforced
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// Upper bound on the declared length of responses
	//
	// If set to zero, DefaultMaxMessageSize is used
	MaxMessageSize int32

	// Protocol version to speak (DefaultVersion if zero)
	Version ProtocolVersion

	// Allocator for message buffers (DefaultAllocator if nil)
	Allocator Allocator

	// Log destination (if not set, log is discarded)
	Log *log.Logger

	conn *tls.Conn
	ctx  *Context
}

// Connect establishes the TLS connection to the server
func (c *Client) Connect() error {
	if c.conn != nil {
		return errors.New("already connected")
	}

	conn, err := tls.Dial("tcp", c.Endpoint, c.TLSConfig)
	if err != nil {
		return errors.Wrapf(err, "error dialing %s", c.Endpoint)
	}

	c.conn = conn
	c.ctx = NewContext(c.Allocator, c.Version)

	if c.Log == nil {
		c.Log = log.New(io.Discard, "", log.LstdFlags)
	}

	c.Log.Printf("[INFO] Connected to %s", c.Endpoint)

	return nil
}

// Close shuts the connection down
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}

	err := c.conn.Close()
	c.conn = nil

	c.ctx.Destroy()
	c.ctx = nil

	return err
}

// Create creates a symmetric key described by the template attributes and
// returns its unique identifier
func (c *Client) Create(template *TemplateAttribute) ([]byte, Enum, error) {
	if err := c.prepare(); err != nil {
		return nil, RESULT_STATUS_OPERATION_FAILED, err
	}

	return CreateWithContext(c.ctx, c.conn, c.maxMessageSize(), template)
}

// Destroy destroys the object with the given unique identifier
func (c *Client) Destroy(id []byte) (Enum, error) {
	if err := c.prepare(); err != nil {
		return RESULT_STATUS_OPERATION_FAILED, err
	}

	return DestroyWithContext(c.ctx, c.conn, c.maxMessageSize(), id)
}

// GetSymmetricKey retrieves the raw material of the symmetric key with the
// given unique identifier
func (c *Client) GetSymmetricKey(id []byte) ([]byte, Enum, error) {
	if err := c.prepare(); err != nil {
		return nil, RESULT_STATUS_OPERATION_FAILED, err
	}

	return GetSymmetricKeyWithContext(c.ctx, c.conn, c.maxMessageSize(), id)
}

// Send transmits a pre-encoded request message and returns the raw framed
// response bytes without decoding them
func (c *Client) Send(request []byte) ([]byte, error) {
	if err := c.prepare(); err != nil {
		return nil, err
	}

	return SendEncodedWithContext(c.ctx, c.conn, c.maxMessageSize(), request)
}

// DiscoverVersions negotiates the protocol versions supported by both sides
func (c *Client) DiscoverVersions(versions []ProtocolVersion) ([]ProtocolVersion, error) {
	if err := c.prepare(); err != nil {
		return nil, err
	}

	req := buildRequest(c.ctx.Version, c.maxMessageSize(), OPERATION_DISCOVER_VERSIONS,
		DiscoverVersionsRequest{ProtocolVersions: versions})

	resp, buf, err := exchange(c.ctx, c.conn, c.maxMessageSize(), req)
	if err != nil {
		return nil, err
	}

	defer func() {
		c.ctx.Alloc.Free(buf)
		c.ctx.Clear()
	}()

	item := &resp.BatchItems[0]
	if item.ResultStatus != RESULT_STATUS_SUCCESS {
		return nil, errors.Errorf("discover versions failed: %s", item.ResultMessage)
	}

	pld, ok := item.ResponsePayload.(DiscoverVersionsResponse)
	if !ok {
		return nil, errors.Wrap(ErrMalformedResponse, "discover versions response payload missing")
	}

	return pld.ProtocolVersions, nil
}

func (c *Client) prepare() error {
	if c.conn == nil {
		return errors.New("not connected")
	}

	if c.ReadTimeout != 0 {
		_ = c.conn.SetReadDeadline(time.Now().Add(c.ReadTimeout))
	}

	if c.WriteTimeout != 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.WriteTimeout))
	}

	return nil
}

func (c *Client) maxMessageSize() int32 {
	if c.MaxMessageSize != 0 {
		return c.MaxMessageSize
	}

	return DefaultMaxMessageSize
}
