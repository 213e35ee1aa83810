package kmip

/* This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/. */

// Context bundles the per-call state of the message exchange engine: the
// protocol version to speak, the allocator, and the view onto the buffer
// currently being encoded or decoded.
//
// A Context is not safe for concurrent use. The buffer view is scoped to a
// single in-flight call even when the Context itself is reused across calls
// (the *WithContext conventions); only Version and Alloc persist.
type Context struct {
	Version ProtocolVersion
	Alloc   Allocator

	buf []byte
	idx int
}

// NewContext creates a Context. A nil allocator selects DefaultAllocator,
// a zero version selects DefaultVersion.
func NewContext(alloc Allocator, version ProtocolVersion) *Context {
	if alloc == nil {
		alloc = DefaultAllocator
	}

	if version == (ProtocolVersion{}) {
		version = DefaultVersion
	}

	return &Context{Version: version, Alloc: alloc}
}

// SetBuffer points the context at a buffer and rewinds the cursor. The
// buffer stays owned by the caller; after any reallocation the caller must
// SetBuffer again so that no stale view survives.
func (ctx *Context) SetBuffer(buf []byte) {
	ctx.buf = buf
	ctx.idx = 0
}

// Clear drops the buffer view without touching the buffer itself
func (ctx *Context) Clear() {
	ctx.buf = nil
	ctx.idx = 0
}

// Reset zeroes the buffer and rewinds the cursor, keeping the view
func (ctx *Context) Reset() {
	for i := range ctx.buf {
		ctx.buf[i] = 0
	}

	ctx.idx = 0
}

// Rewind moves the cursor back to the start of the buffer
func (ctx *Context) Rewind() {
	ctx.idx = 0
}

// Buffer returns the current buffer view
func (ctx *Context) Buffer() []byte {
	return ctx.buf
}

// Index returns the current cursor position
func (ctx *Context) Index() int {
	return ctx.idx
}

// Destroy tears the context down at the end of an engine-owned call
func (ctx *Context) Destroy() {
	ctx.Clear()
}
