package kmip

/* This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/. */

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// TTLV primitives over the context's buffer view. Every item is laid out as
// a 3-byte tag, a 1-byte type and a 4-byte big-endian length, followed by
// the value padded to a multiple of 8 bytes. Encoding into a buffer that is
// too small fails with ErrBufferFull so that the caller can grow the buffer
// and retry; decoding past the end of the buffer is a hard error.

const ttlHeaderSize = 8

func ttlvPadding(length int) int {
	return (8 - length%8) % 8
}

func (ctx *Context) encodeTTL(tag Tag, typ byte, length int) error {
	if ctx.idx+ttlHeaderSize > len(ctx.buf) {
		return ErrBufferFull
	}

	b := ctx.buf[ctx.idx:]
	b[0] = byte(tag >> 16)
	b[1] = byte(tag >> 8)
	b[2] = byte(tag)
	b[3] = typ
	binary.BigEndian.PutUint32(b[4:8], uint32(length))

	ctx.idx += ttlHeaderSize
	return nil
}

func (ctx *Context) encodeInt32(tag Tag, value int32) error {
	return ctx.encodeWord(tag, TYPE_INTEGER, uint32(value))
}

func (ctx *Context) encodeEnum(tag Tag, value Enum) error {
	return ctx.encodeWord(tag, TYPE_ENUMERATION, uint32(value))
}

// encodeWord encodes a 4-byte value padded with 4 trailing zero bytes
func (ctx *Context) encodeWord(tag Tag, typ byte, value uint32) error {
	if ctx.idx+ttlHeaderSize+8 > len(ctx.buf) {
		return ErrBufferFull
	}

	_ = ctx.encodeTTL(tag, typ, 4)

	b := ctx.buf[ctx.idx:]
	binary.BigEndian.PutUint32(b[0:4], value)
	binary.BigEndian.PutUint32(b[4:8], 0)

	ctx.idx += 8
	return nil
}

func (ctx *Context) encodeInt64(tag Tag, typ byte, value int64) error {
	if ctx.idx+ttlHeaderSize+8 > len(ctx.buf) {
		return ErrBufferFull
	}

	_ = ctx.encodeTTL(tag, typ, 8)

	binary.BigEndian.PutUint64(ctx.buf[ctx.idx:], uint64(value))

	ctx.idx += 8
	return nil
}

func (ctx *Context) encodeText(tag Tag, value string) error {
	return ctx.encodeVariable(tag, TYPE_TEXT_STRING, []byte(value))
}

func (ctx *Context) encodeBytes(tag Tag, value []byte) error {
	return ctx.encodeVariable(tag, TYPE_BYTE_STRING, value)
}

func (ctx *Context) encodeVariable(tag Tag, typ byte, value []byte) error {
	padding := ttlvPadding(len(value))

	if ctx.idx+ttlHeaderSize+len(value)+padding > len(ctx.buf) {
		return ErrBufferFull
	}

	_ = ctx.encodeTTL(tag, typ, len(value))

	copy(ctx.buf[ctx.idx:], value)
	for i := 0; i < padding; i++ {
		ctx.buf[ctx.idx+len(value)+i] = 0
	}

	ctx.idx += len(value) + padding
	return nil
}

// beginStructure encodes a structure header with a zero length and returns
// its position; endStructure patches the length once the fields are in.
func (ctx *Context) beginStructure(tag Tag) (int, error) {
	mark := ctx.idx

	if err := ctx.encodeTTL(tag, TYPE_STRUCTURE, 0); err != nil {
		return 0, err
	}

	return mark, nil
}

func (ctx *Context) endStructure(mark int) {
	binary.BigEndian.PutUint32(ctx.buf[mark+4:mark+8], uint32(ctx.idx-mark-ttlHeaderSize))
}

func (ctx *Context) decodeTTL() (Tag, byte, int, error) {
	if ctx.idx+ttlHeaderSize > len(ctx.buf) {
		return 0, 0, 0, errors.Errorf("truncated TTLV header at offset %d", ctx.idx)
	}

	b := ctx.buf[ctx.idx:]
	tag := Tag(b[0])<<16 | Tag(b[1])<<8 | Tag(b[2])
	typ := b[3]
	length := int(binary.BigEndian.Uint32(b[4:8]))

	if length < 0 || ctx.idx+ttlHeaderSize+length > len(ctx.buf) {
		return 0, 0, 0, errors.Errorf("TTLV item %06x overflows buffer: %d bytes at offset %d", uint32(tag), length, ctx.idx)
	}

	ctx.idx += ttlHeaderSize
	return tag, typ, length, nil
}

// peekTag returns the tag of the next item without consuming it, or zero if
// no complete header remains
func (ctx *Context) peekTag() Tag {
	if ctx.idx+ttlHeaderSize > len(ctx.buf) {
		return 0
	}

	b := ctx.buf[ctx.idx:]
	return Tag(b[0])<<16 | Tag(b[1])<<8 | Tag(b[2])
}

func (ctx *Context) expectTTL(tag Tag, typ byte) (int, error) {
	gotTag, gotTyp, length, err := ctx.decodeTTL()
	if err != nil {
		return 0, err
	}

	if gotTag != tag {
		return 0, errors.Errorf("unexpected tag %06x, expecting %06x", uint32(gotTag), uint32(tag))
	}

	if gotTyp != typ {
		return 0, errors.Errorf("unexpected type %02x for tag %06x, expecting %02x", gotTyp, uint32(tag), typ)
	}

	return length, nil
}

func (ctx *Context) decodeInt32(tag Tag) (int32, error) {
	v, err := ctx.decodeWord(tag, TYPE_INTEGER)
	return int32(v), err
}

func (ctx *Context) decodeEnum(tag Tag) (Enum, error) {
	v, err := ctx.decodeWord(tag, TYPE_ENUMERATION)
	return Enum(v), err
}

func (ctx *Context) decodeWord(tag Tag, typ byte) (uint32, error) {
	length, err := ctx.expectTTL(tag, typ)
	if err != nil {
		return 0, err
	}

	if length != 4 {
		return 0, errors.Errorf("unexpected length %d for tag %06x, expecting 4", length, uint32(tag))
	}

	if ctx.idx+8 > len(ctx.buf) {
		return 0, errors.Errorf("truncated value for tag %06x", uint32(tag))
	}

	value := binary.BigEndian.Uint32(ctx.buf[ctx.idx:])

	ctx.idx += 8
	return value, nil
}

func (ctx *Context) decodeInt64(tag Tag, typ byte) (int64, error) {
	length, err := ctx.expectTTL(tag, typ)
	if err != nil {
		return 0, err
	}

	if length != 8 {
		return 0, errors.Errorf("unexpected length %d for tag %06x, expecting 8", length, uint32(tag))
	}

	if ctx.idx+8 > len(ctx.buf) {
		return 0, errors.Errorf("truncated value for tag %06x", uint32(tag))
	}

	value := int64(binary.BigEndian.Uint64(ctx.buf[ctx.idx:]))

	ctx.idx += 8
	return value, nil
}

func (ctx *Context) decodeText(tag Tag) (string, error) {
	value, err := ctx.decodeVariable(tag, TYPE_TEXT_STRING)
	return string(value), err
}

func (ctx *Context) decodeBytes(tag Tag) ([]byte, error) {
	value, err := ctx.decodeVariable(tag, TYPE_BYTE_STRING)
	if value != nil {
		value = append([]byte(nil), value...)
	}
	return value, err
}

func (ctx *Context) decodeVariable(tag Tag, typ byte) ([]byte, error) {
	length, err := ctx.expectTTL(tag, typ)
	if err != nil {
		return nil, err
	}

	padding := ttlvPadding(length)

	if ctx.idx+length+padding > len(ctx.buf) {
		return nil, errors.Errorf("truncated value for tag %06x", uint32(tag))
	}

	value := ctx.buf[ctx.idx : ctx.idx+length]

	ctx.idx += length + padding
	return value, nil
}

// decodeStructure consumes a structure header and returns the offset just
// past its last field
func (ctx *Context) decodeStructure(tag Tag) (int, error) {
	length, err := ctx.expectTTL(tag, TYPE_STRUCTURE)
	if err != nil {
		return 0, err
	}

	return ctx.idx + length, nil
}

// skipItem consumes the next item whatever it is
func (ctx *Context) skipItem() error {
	tag, _, length, err := ctx.decodeTTL()
	if err != nil {
		return err
	}

	advance := length + ttlvPadding(length)
	if ctx.idx+advance > len(ctx.buf) {
		return errors.Errorf("truncated value for tag %06x", uint32(tag))
	}

	ctx.idx += advance
	return nil
}
