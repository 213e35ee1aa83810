package kmip

/* This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/. */

import (
	"time"

	"github.com/pkg/errors"
)

// Request is a KMIP request message
type Request struct {
	Header     RequestHeader
	BatchItems []RequestBatchItem
}

// RequestHeader is a KMIP request message header
type RequestHeader struct {
	Version             ProtocolVersion
	MaximumResponseSize int32
	TimeStamp           time.Time
	BatchCount          int32
}

// RequestBatchItem is one operation inside a request message
type RequestBatchItem struct {
	Operation      Enum
	UniqueID       []byte
	RequestPayload interface{}
}

// Response is a KMIP response message
type Response struct {
	Header     ResponseHeader
	BatchItems []ResponseBatchItem
}

// ResponseHeader is a KMIP response message header
type ResponseHeader struct {
	Version    ProtocolVersion
	TimeStamp  time.Time
	BatchCount int32
}

// ResponseBatchItem is one operation result inside a response message
type ResponseBatchItem struct {
	Operation       Enum
	UniqueID        []byte
	ResultStatus    Enum
	ResultReason    Enum
	ResultMessage   string
	ResponsePayload interface{}
}

// CreateRequest is a Create operation payload
type CreateRequest struct {
	ObjectType        Enum
	TemplateAttribute TemplateAttribute
}

// CreateResponse is a Create operation response payload
type CreateResponse struct {
	ObjectType       Enum
	UniqueIdentifier string
}

// GetRequest is a Get operation payload
type GetRequest struct {
	UniqueIdentifier   string
	KeyCompressionType Enum
}

// GetResponse is a Get operation response payload
type GetResponse struct {
	ObjectType       Enum
	UniqueIdentifier string
	SymmetricKey     SymmetricKey
}

// DestroyRequest is a Destroy operation payload
type DestroyRequest struct {
	UniqueIdentifier string
}

// DestroyResponse is a Destroy operation response payload
type DestroyResponse struct {
	UniqueIdentifier string
}

// DiscoverVersionsRequest is a Discover Versions operation payload
type DiscoverVersionsRequest struct {
	ProtocolVersions []ProtocolVersion
}

// DiscoverVersionsResponse is a Discover Versions operation response payload
type DiscoverVersionsResponse struct {
	ProtocolVersions []ProtocolVersion
}

// TemplateAttribute carries the attributes of a managed object
type TemplateAttribute struct {
	Attributes Attributes
}

// Attribute is a single named attribute; Value is an Enum, an int32 or a
// string depending on the attribute
type Attribute struct {
	Name  string
	Value interface{}
}

// Attributes is a list of attributes
type Attributes []Attribute

// Get returns the value of the first attribute with the given name, or nil
func (a Attributes) Get(name string) interface{} {
	for i := range a {
		if a[i].Name == name {
			return a[i].Value
		}
	}

	return nil
}

// SymmetricKey is a KMIP symmetric key managed object
type SymmetricKey struct {
	KeyBlock KeyBlock
}

// KeyBlock describes key material, its format and optional wrapping
type KeyBlock struct {
	FormatType             Enum
	CryptographicAlgorithm Enum
	CryptographicLength    int32
	Value                  KeyValue
	WrappingData           *KeyWrappingData
}

// KeyValue holds the raw key material
type KeyValue struct {
	KeyMaterial []byte
}

// KeyWrappingData describes how wrapped key material was protected
type KeyWrappingData struct {
	WrappingMethod Enum
}

// Encode serializes the request message into the context's buffer,
// returning ErrBufferFull if it doesn't fit
func (req *Request) Encode(ctx *Context) error {
	mark, err := ctx.beginStructure(TAG_REQUEST_MESSAGE)
	if err != nil {
		return err
	}

	if err = req.Header.encode(ctx); err != nil {
		return err
	}

	for i := range req.BatchItems {
		if err = req.BatchItems[i].encode(ctx); err != nil {
			return err
		}
	}

	ctx.endStructure(mark)
	return nil
}

// Decode deserializes the request message from the context's buffer
func (req *Request) Decode(ctx *Context) error {
	end, err := ctx.decodeStructure(TAG_REQUEST_MESSAGE)
	if err != nil {
		return err
	}

	if err = req.Header.decode(ctx); err != nil {
		return err
	}

	req.BatchItems = nil
	for ctx.idx < end {
		var item RequestBatchItem

		if err = item.decode(ctx); err != nil {
			return err
		}

		req.BatchItems = append(req.BatchItems, item)
	}

	return nil
}

func (h *RequestHeader) encode(ctx *Context) error {
	mark, err := ctx.beginStructure(TAG_REQUEST_HEADER)
	if err != nil {
		return err
	}

	if err = encodeProtocolVersion(ctx, h.Version); err != nil {
		return err
	}

	if h.MaximumResponseSize > 0 {
		if err = ctx.encodeInt32(TAG_MAXIMUM_RESPONSE_SIZE, h.MaximumResponseSize); err != nil {
			return err
		}
	}

	if !h.TimeStamp.IsZero() {
		if err = ctx.encodeInt64(TAG_TIME_STAMP, TYPE_DATE_TIME, h.TimeStamp.Unix()); err != nil {
			return err
		}
	}

	if err = ctx.encodeInt32(TAG_BATCH_COUNT, h.BatchCount); err != nil {
		return err
	}

	ctx.endStructure(mark)
	return nil
}

func (h *RequestHeader) decode(ctx *Context) error {
	end, err := ctx.decodeStructure(TAG_REQUEST_HEADER)
	if err != nil {
		return err
	}

	if h.Version, err = decodeProtocolVersion(ctx); err != nil {
		return err
	}

	for ctx.idx < end {
		switch ctx.peekTag() {
		case TAG_MAXIMUM_RESPONSE_SIZE:
			if h.MaximumResponseSize, err = ctx.decodeInt32(TAG_MAXIMUM_RESPONSE_SIZE); err != nil {
				return err
			}
		case TAG_TIME_STAMP:
			var ts int64
			if ts, err = ctx.decodeInt64(TAG_TIME_STAMP, TYPE_DATE_TIME); err != nil {
				return err
			}
			h.TimeStamp = time.Unix(ts, 0).UTC()
		case TAG_BATCH_COUNT:
			if h.BatchCount, err = ctx.decodeInt32(TAG_BATCH_COUNT); err != nil {
				return err
			}
		default:
			if err = ctx.skipItem(); err != nil {
				return err
			}
		}
	}

	return nil
}

func (bi *RequestBatchItem) encode(ctx *Context) error {
	mark, err := ctx.beginStructure(TAG_BATCH_ITEM)
	if err != nil {
		return err
	}

	if err = ctx.encodeEnum(TAG_OPERATION, bi.Operation); err != nil {
		return err
	}

	if len(bi.UniqueID) > 0 {
		if err = ctx.encodeBytes(TAG_UNIQUE_BATCH_ITEM_ID, bi.UniqueID); err != nil {
			return err
		}
	}

	if err = encodeRequestPayload(ctx, bi.RequestPayload); err != nil {
		return err
	}

	ctx.endStructure(mark)
	return nil
}

func (bi *RequestBatchItem) decode(ctx *Context) error {
	end, err := ctx.decodeStructure(TAG_BATCH_ITEM)
	if err != nil {
		return err
	}

	if bi.Operation, err = ctx.decodeEnum(TAG_OPERATION); err != nil {
		return err
	}

	if ctx.peekTag() == TAG_UNIQUE_BATCH_ITEM_ID {
		if bi.UniqueID, err = ctx.decodeBytes(TAG_UNIQUE_BATCH_ITEM_ID); err != nil {
			return err
		}
	}

	if bi.RequestPayload, err = decodeRequestPayload(ctx, bi.Operation); err != nil {
		return err
	}

	ctx.idx = end
	return nil
}

// Encode serializes the response message into the context's buffer,
// returning ErrBufferFull if it doesn't fit
func (resp *Response) Encode(ctx *Context) error {
	mark, err := ctx.beginStructure(TAG_RESPONSE_MESSAGE)
	if err != nil {
		return err
	}

	if err = resp.Header.encode(ctx); err != nil {
		return err
	}

	for i := range resp.BatchItems {
		if err = resp.BatchItems[i].encode(ctx); err != nil {
			return err
		}
	}

	ctx.endStructure(mark)
	return nil
}

// Decode deserializes the response message from the context's buffer
func (resp *Response) Decode(ctx *Context) error {
	end, err := ctx.decodeStructure(TAG_RESPONSE_MESSAGE)
	if err != nil {
		return err
	}

	if err = resp.Header.decode(ctx); err != nil {
		return err
	}

	resp.BatchItems = nil
	for ctx.idx < end {
		var item ResponseBatchItem

		if err = item.decode(ctx); err != nil {
			return err
		}

		resp.BatchItems = append(resp.BatchItems, item)
	}

	return nil
}

func (h *ResponseHeader) encode(ctx *Context) error {
	mark, err := ctx.beginStructure(TAG_RESPONSE_HEADER)
	if err != nil {
		return err
	}

	if err = encodeProtocolVersion(ctx, h.Version); err != nil {
		return err
	}

	if !h.TimeStamp.IsZero() {
		if err = ctx.encodeInt64(TAG_TIME_STAMP, TYPE_DATE_TIME, h.TimeStamp.Unix()); err != nil {
			return err
		}
	}

	if err = ctx.encodeInt32(TAG_BATCH_COUNT, h.BatchCount); err != nil {
		return err
	}

	ctx.endStructure(mark)
	return nil
}

func (h *ResponseHeader) decode(ctx *Context) error {
	end, err := ctx.decodeStructure(TAG_RESPONSE_HEADER)
	if err != nil {
		return err
	}

	if h.Version, err = decodeProtocolVersion(ctx); err != nil {
		return err
	}

	for ctx.idx < end {
		switch ctx.peekTag() {
		case TAG_TIME_STAMP:
			var ts int64
			if ts, err = ctx.decodeInt64(TAG_TIME_STAMP, TYPE_DATE_TIME); err != nil {
				return err
			}
			h.TimeStamp = time.Unix(ts, 0).UTC()
		case TAG_BATCH_COUNT:
			if h.BatchCount, err = ctx.decodeInt32(TAG_BATCH_COUNT); err != nil {
				return err
			}
		default:
			if err = ctx.skipItem(); err != nil {
				return err
			}
		}
	}

	return nil
}

func (bi *ResponseBatchItem) encode(ctx *Context) error {
	mark, err := ctx.beginStructure(TAG_BATCH_ITEM)
	if err != nil {
		return err
	}

	if err = ctx.encodeEnum(TAG_OPERATION, bi.Operation); err != nil {
		return err
	}

	if len(bi.UniqueID) > 0 {
		if err = ctx.encodeBytes(TAG_UNIQUE_BATCH_ITEM_ID, bi.UniqueID); err != nil {
			return err
		}
	}

	if err = ctx.encodeEnum(TAG_RESULT_STATUS, bi.ResultStatus); err != nil {
		return err
	}

	if bi.ResultReason != 0 {
		if err = ctx.encodeEnum(TAG_RESULT_REASON, bi.ResultReason); err != nil {
			return err
		}
	}

	if bi.ResultMessage != "" {
		if err = ctx.encodeText(TAG_RESULT_MESSAGE, bi.ResultMessage); err != nil {
			return err
		}
	}

	if bi.ResponsePayload != nil {
		if err = encodeResponsePayload(ctx, bi.ResponsePayload); err != nil {
			return err
		}
	}

	ctx.endStructure(mark)
	return nil
}

func (bi *ResponseBatchItem) decode(ctx *Context) error {
	end, err := ctx.decodeStructure(TAG_BATCH_ITEM)
	if err != nil {
		return err
	}

	if bi.Operation, err = ctx.decodeEnum(TAG_OPERATION); err != nil {
		return err
	}

	if ctx.peekTag() == TAG_UNIQUE_BATCH_ITEM_ID {
		if bi.UniqueID, err = ctx.decodeBytes(TAG_UNIQUE_BATCH_ITEM_ID); err != nil {
			return err
		}
	}

	if bi.ResultStatus, err = ctx.decodeEnum(TAG_RESULT_STATUS); err != nil {
		return err
	}

	if ctx.peekTag() == TAG_RESULT_REASON {
		if bi.ResultReason, err = ctx.decodeEnum(TAG_RESULT_REASON); err != nil {
			return err
		}
	}

	if ctx.peekTag() == TAG_RESULT_MESSAGE {
		if bi.ResultMessage, err = ctx.decodeText(TAG_RESULT_MESSAGE); err != nil {
			return err
		}
	}

	if ctx.idx < end && ctx.peekTag() == TAG_RESPONSE_PAYLOAD {
		if bi.ResponsePayload, err = decodeResponsePayload(ctx, bi.Operation); err != nil {
			return err
		}
	}

	ctx.idx = end
	return nil
}

func encodeProtocolVersion(ctx *Context, v ProtocolVersion) error {
	mark, err := ctx.beginStructure(TAG_PROTOCOL_VERSION)
	if err != nil {
		return err
	}

	if err = ctx.encodeInt32(TAG_PROTOCOL_VERSION_MAJOR, v.Major); err != nil {
		return err
	}

	if err = ctx.encodeInt32(TAG_PROTOCOL_VERSION_MINOR, v.Minor); err != nil {
		return err
	}

	ctx.endStructure(mark)
	return nil
}

func decodeProtocolVersion(ctx *Context) (ProtocolVersion, error) {
	var v ProtocolVersion

	if _, err := ctx.decodeStructure(TAG_PROTOCOL_VERSION); err != nil {
		return v, err
	}

	var err error
	if v.Major, err = ctx.decodeInt32(TAG_PROTOCOL_VERSION_MAJOR); err != nil {
		return v, err
	}

	if v.Minor, err = ctx.decodeInt32(TAG_PROTOCOL_VERSION_MINOR); err != nil {
		return v, err
	}

	return v, nil
}

func encodeRequestPayload(ctx *Context, payload interface{}) error {
	mark, err := ctx.beginStructure(TAG_REQUEST_PAYLOAD)
	if err != nil {
		return err
	}

	switch p := payload.(type) {
	case CreateRequest:
		if err = ctx.encodeEnum(TAG_OBJECT_TYPE, p.ObjectType); err != nil {
			return err
		}
		if err = encodeTemplateAttribute(ctx, &p.TemplateAttribute); err != nil {
			return err
		}
	case GetRequest:
		if p.UniqueIdentifier != "" {
			if err = ctx.encodeText(TAG_UNIQUE_IDENTIFIER, p.UniqueIdentifier); err != nil {
				return err
			}
		}
		if p.KeyCompressionType != 0 {
			if err = ctx.encodeEnum(TAG_KEY_COMPRESSION_TYPE, p.KeyCompressionType); err != nil {
				return err
			}
		}
	case DestroyRequest:
		if p.UniqueIdentifier != "" {
			if err = ctx.encodeText(TAG_UNIQUE_IDENTIFIER, p.UniqueIdentifier); err != nil {
				return err
			}
		}
	case DiscoverVersionsRequest:
		for _, v := range p.ProtocolVersions {
			if err = encodeProtocolVersion(ctx, v); err != nil {
				return err
			}
		}
	default:
		return errors.Errorf("unsupported request payload type %T", payload)
	}

	ctx.endStructure(mark)
	return nil
}

func decodeRequestPayload(ctx *Context, operation Enum) (interface{}, error) {
	end, err := ctx.decodeStructure(TAG_REQUEST_PAYLOAD)
	if err != nil {
		return nil, err
	}

	switch operation {
	case OPERATION_CREATE:
		var p CreateRequest
		for ctx.idx < end {
			switch ctx.peekTag() {
			case TAG_OBJECT_TYPE:
				if p.ObjectType, err = ctx.decodeEnum(TAG_OBJECT_TYPE); err != nil {
					return nil, err
				}
			case TAG_TEMPLATE_ATTRIBUTE:
				if err = decodeTemplateAttribute(ctx, &p.TemplateAttribute); err != nil {
					return nil, err
				}
			default:
				if err = ctx.skipItem(); err != nil {
					return nil, err
				}
			}
		}
		return p, nil
	case OPERATION_GET:
		var p GetRequest
		for ctx.idx < end {
			switch ctx.peekTag() {
			case TAG_UNIQUE_IDENTIFIER:
				if p.UniqueIdentifier, err = ctx.decodeText(TAG_UNIQUE_IDENTIFIER); err != nil {
					return nil, err
				}
			case TAG_KEY_COMPRESSION_TYPE:
				if p.KeyCompressionType, err = ctx.decodeEnum(TAG_KEY_COMPRESSION_TYPE); err != nil {
					return nil, err
				}
			default:
				if err = ctx.skipItem(); err != nil {
					return nil, err
				}
			}
		}
		return p, nil
	case OPERATION_DESTROY:
		var p DestroyRequest
		for ctx.idx < end {
			switch ctx.peekTag() {
			case TAG_UNIQUE_IDENTIFIER:
				if p.UniqueIdentifier, err = ctx.decodeText(TAG_UNIQUE_IDENTIFIER); err != nil {
					return nil, err
				}
			default:
				if err = ctx.skipItem(); err != nil {
					return nil, err
				}
			}
		}
		return p, nil
	case OPERATION_DISCOVER_VERSIONS:
		var p DiscoverVersionsRequest
		for ctx.idx < end {
			v, verr := decodeProtocolVersion(ctx)
			if verr != nil {
				return nil, verr
			}
			p.ProtocolVersions = append(p.ProtocolVersions, v)
		}
		return p, nil
	default:
		return nil, errors.Errorf("unsupported operation %v in request", operation)
	}
}

func encodeResponsePayload(ctx *Context, payload interface{}) error {
	mark, err := ctx.beginStructure(TAG_RESPONSE_PAYLOAD)
	if err != nil {
		return err
	}

	switch p := payload.(type) {
	case CreateResponse:
		if err = ctx.encodeEnum(TAG_OBJECT_TYPE, p.ObjectType); err != nil {
			return err
		}
		if err = ctx.encodeText(TAG_UNIQUE_IDENTIFIER, p.UniqueIdentifier); err != nil {
			return err
		}
	case GetResponse:
		if err = ctx.encodeEnum(TAG_OBJECT_TYPE, p.ObjectType); err != nil {
			return err
		}
		if err = ctx.encodeText(TAG_UNIQUE_IDENTIFIER, p.UniqueIdentifier); err != nil {
			return err
		}
		if err = encodeSymmetricKey(ctx, &p.SymmetricKey); err != nil {
			return err
		}
	case DestroyResponse:
		if err = ctx.encodeText(TAG_UNIQUE_IDENTIFIER, p.UniqueIdentifier); err != nil {
			return err
		}
	case DiscoverVersionsResponse:
		for _, v := range p.ProtocolVersions {
			if err = encodeProtocolVersion(ctx, v); err != nil {
				return err
			}
		}
	default:
		return errors.Errorf("unsupported response payload type %T", payload)
	}

	ctx.endStructure(mark)
	return nil
}

func decodeResponsePayload(ctx *Context, operation Enum) (interface{}, error) {
	end, err := ctx.decodeStructure(TAG_RESPONSE_PAYLOAD)
	if err != nil {
		return nil, err
	}

	switch operation {
	case OPERATION_CREATE:
		var p CreateResponse
		for ctx.idx < end {
			switch ctx.peekTag() {
			case TAG_OBJECT_TYPE:
				if p.ObjectType, err = ctx.decodeEnum(TAG_OBJECT_TYPE); err != nil {
					return nil, err
				}
			case TAG_UNIQUE_IDENTIFIER:
				if p.UniqueIdentifier, err = ctx.decodeText(TAG_UNIQUE_IDENTIFIER); err != nil {
					return nil, err
				}
			default:
				if err = ctx.skipItem(); err != nil {
					return nil, err
				}
			}
		}
		return p, nil
	case OPERATION_GET:
		var p GetResponse
		for ctx.idx < end {
			switch ctx.peekTag() {
			case TAG_OBJECT_TYPE:
				if p.ObjectType, err = ctx.decodeEnum(TAG_OBJECT_TYPE); err != nil {
					return nil, err
				}
			case TAG_UNIQUE_IDENTIFIER:
				if p.UniqueIdentifier, err = ctx.decodeText(TAG_UNIQUE_IDENTIFIER); err != nil {
					return nil, err
				}
			case TAG_SYMMETRIC_KEY:
				if err = decodeSymmetricKey(ctx, &p.SymmetricKey); err != nil {
					return nil, err
				}
			default:
				if err = ctx.skipItem(); err != nil {
					return nil, err
				}
			}
		}
		return p, nil
	case OPERATION_DESTROY:
		var p DestroyResponse
		for ctx.idx < end {
			switch ctx.peekTag() {
			case TAG_UNIQUE_IDENTIFIER:
				if p.UniqueIdentifier, err = ctx.decodeText(TAG_UNIQUE_IDENTIFIER); err != nil {
					return nil, err
				}
			default:
				if err = ctx.skipItem(); err != nil {
					return nil, err
				}
			}
		}
		return p, nil
	case OPERATION_DISCOVER_VERSIONS:
		var p DiscoverVersionsResponse
		for ctx.idx < end {
			v, verr := decodeProtocolVersion(ctx)
			if verr != nil {
				return nil, verr
			}
			p.ProtocolVersions = append(p.ProtocolVersions, v)
		}
		return p, nil
	default:
		return nil, errors.Errorf("unsupported operation %v in response", operation)
	}
}

func encodeTemplateAttribute(ctx *Context, ta *TemplateAttribute) error {
	mark, err := ctx.beginStructure(TAG_TEMPLATE_ATTRIBUTE)
	if err != nil {
		return err
	}

	for i := range ta.Attributes {
		if err = encodeAttribute(ctx, &ta.Attributes[i]); err != nil {
			return err
		}
	}

	ctx.endStructure(mark)
	return nil
}

func decodeTemplateAttribute(ctx *Context, ta *TemplateAttribute) error {
	end, err := ctx.decodeStructure(TAG_TEMPLATE_ATTRIBUTE)
	if err != nil {
		return err
	}

	ta.Attributes = nil
	for ctx.idx < end {
		var a Attribute

		if err = decodeAttribute(ctx, &a); err != nil {
			return err
		}

		ta.Attributes = append(ta.Attributes, a)
	}

	return nil
}

func encodeAttribute(ctx *Context, a *Attribute) error {
	mark, err := ctx.beginStructure(TAG_ATTRIBUTE)
	if err != nil {
		return err
	}

	if err = ctx.encodeText(TAG_ATTRIBUTE_NAME, a.Name); err != nil {
		return err
	}

	switch v := a.Value.(type) {
	case Enum:
		err = ctx.encodeEnum(TAG_ATTRIBUTE_VALUE, v)
	case int32:
		err = ctx.encodeInt32(TAG_ATTRIBUTE_VALUE, v)
	case string:
		err = ctx.encodeText(TAG_ATTRIBUTE_VALUE, v)
	default:
		return errors.Errorf("unsupported value type %T for attribute %q", a.Value, a.Name)
	}

	if err != nil {
		return err
	}

	ctx.endStructure(mark)
	return nil
}

func decodeAttribute(ctx *Context, a *Attribute) error {
	end, err := ctx.decodeStructure(TAG_ATTRIBUTE)
	if err != nil {
		return err
	}

	if a.Name, err = ctx.decodeText(TAG_ATTRIBUTE_NAME); err != nil {
		return err
	}

	if ctx.peekTag() != TAG_ATTRIBUTE_VALUE {
		return errors.Errorf("attribute %q carries no value", a.Name)
	}

	tag, typ, length, err := ctx.decodeTTL()
	if err != nil {
		return err
	}

	switch typ {
	case TYPE_ENUMERATION, TYPE_INTEGER:
		if length != 4 || ctx.idx+8 > len(ctx.buf) {
			return errors.Errorf("truncated value for attribute %q", a.Name)
		}
		word := uint32(ctx.buf[ctx.idx])<<24 | uint32(ctx.buf[ctx.idx+1])<<16 |
			uint32(ctx.buf[ctx.idx+2])<<8 | uint32(ctx.buf[ctx.idx+3])
		if typ == TYPE_ENUMERATION {
			a.Value = Enum(word)
		} else {
			a.Value = int32(word)
		}
		ctx.idx += 8
	case TYPE_TEXT_STRING:
		padding := ttlvPadding(length)
		if ctx.idx+length+padding > len(ctx.buf) {
			return errors.Errorf("truncated value for attribute %q", a.Name)
		}
		a.Value = string(ctx.buf[ctx.idx : ctx.idx+length])
		ctx.idx += length + padding
	default:
		return errors.Errorf("unsupported value type %02x for attribute %q (tag %06x)", typ, a.Name, uint32(tag))
	}

	ctx.idx = end
	return nil
}

func encodeSymmetricKey(ctx *Context, key *SymmetricKey) error {
	mark, err := ctx.beginStructure(TAG_SYMMETRIC_KEY)
	if err != nil {
		return err
	}

	if err = encodeKeyBlock(ctx, &key.KeyBlock); err != nil {
		return err
	}

	ctx.endStructure(mark)
	return nil
}

func decodeSymmetricKey(ctx *Context, key *SymmetricKey) error {
	end, err := ctx.decodeStructure(TAG_SYMMETRIC_KEY)
	if err != nil {
		return err
	}

	for ctx.idx < end {
		switch ctx.peekTag() {
		case TAG_KEY_BLOCK:
			if err = decodeKeyBlock(ctx, &key.KeyBlock); err != nil {
				return err
			}
		default:
			if err = ctx.skipItem(); err != nil {
				return err
			}
		}
	}

	return nil
}

func encodeKeyBlock(ctx *Context, block *KeyBlock) error {
	mark, err := ctx.beginStructure(TAG_KEY_BLOCK)
	if err != nil {
		return err
	}

	if err = ctx.encodeEnum(TAG_KEY_FORMAT_TYPE, block.FormatType); err != nil {
		return err
	}

	valueMark, err := ctx.beginStructure(TAG_KEY_VALUE)
	if err != nil {
		return err
	}

	if err = ctx.encodeBytes(TAG_KEY_MATERIAL, block.Value.KeyMaterial); err != nil {
		return err
	}

	ctx.endStructure(valueMark)

	if block.CryptographicAlgorithm != 0 {
		if err = ctx.encodeEnum(TAG_CRYPTOGRAPHIC_ALGORITHM, block.CryptographicAlgorithm); err != nil {
			return err
		}
	}

	if block.CryptographicLength != 0 {
		if err = ctx.encodeInt32(TAG_CRYPTOGRAPHIC_LENGTH, block.CryptographicLength); err != nil {
			return err
		}
	}

	if block.WrappingData != nil {
		wrapMark, werr := ctx.beginStructure(TAG_KEY_WRAPPING_DATA)
		if werr != nil {
			return werr
		}
		if err = ctx.encodeEnum(TAG_WRAPPING_METHOD, block.WrappingData.WrappingMethod); err != nil {
			return err
		}
		ctx.endStructure(wrapMark)
	}

	ctx.endStructure(mark)
	return nil
}

func decodeKeyBlock(ctx *Context, block *KeyBlock) error {
	end, err := ctx.decodeStructure(TAG_KEY_BLOCK)
	if err != nil {
		return err
	}

	for ctx.idx < end {
		switch ctx.peekTag() {
		case TAG_KEY_FORMAT_TYPE:
			if block.FormatType, err = ctx.decodeEnum(TAG_KEY_FORMAT_TYPE); err != nil {
				return err
			}
		case TAG_CRYPTOGRAPHIC_ALGORITHM:
			if block.CryptographicAlgorithm, err = ctx.decodeEnum(TAG_CRYPTOGRAPHIC_ALGORITHM); err != nil {
				return err
			}
		case TAG_CRYPTOGRAPHIC_LENGTH:
			if block.CryptographicLength, err = ctx.decodeInt32(TAG_CRYPTOGRAPHIC_LENGTH); err != nil {
				return err
			}
		case TAG_KEY_VALUE:
			var valueEnd int
			if valueEnd, err = ctx.decodeStructure(TAG_KEY_VALUE); err != nil {
				return err
			}
			for ctx.idx < valueEnd {
				if ctx.peekTag() == TAG_KEY_MATERIAL {
					if block.Value.KeyMaterial, err = ctx.decodeBytes(TAG_KEY_MATERIAL); err != nil {
						return err
					}
				} else if err = ctx.skipItem(); err != nil {
					return err
				}
			}
		case TAG_KEY_WRAPPING_DATA:
			var wrapEnd int
			if wrapEnd, err = ctx.decodeStructure(TAG_KEY_WRAPPING_DATA); err != nil {
				return err
			}
			block.WrappingData = &KeyWrappingData{}
			for ctx.idx < wrapEnd {
				if ctx.peekTag() == TAG_WRAPPING_METHOD {
					if block.WrappingData.WrappingMethod, err = ctx.decodeEnum(TAG_WRAPPING_METHOD); err != nil {
						return err
					}
				} else if err = ctx.skipItem(); err != nil {
					return err
				}
			}
		default:
			if err = ctx.skipItem(); err != nil {
				return err
			}
		}
	}

	return nil
}
