// Package kmip implements the client-side message exchange engine of the
// KMIP protocol, together with a matching server for testing and embedding.
//
// The engine turns a logical operation (Create a key, Get key material,
// Destroy a key) into a framed TTLV message, transmits it over a byte
// stream, receives and validates the length-prefixed response and extracts
// the typed result. Encoding buffers grow in fixed-size blocks until the
// message fits; the declared length of incoming messages is bounded by a
// caller-supplied ceiling before any allocation happens.
//
// Operations come in two conventions: Create, Destroy, GetSymmetricKey and
// SendEncoded own a protocol context for the duration of the call, while
// the *WithContext variants reuse a caller-supplied Context across calls
// (only its version and allocator persist; buffers stay scoped to the
// call). Every exit path releases every buffer the call allocated.
//
// Supported Operations:
// The client engine implements Create, Get and Destroy for symmetric keys,
// plus a raw passthrough for pre-encoded requests. Every message carries
// exactly one batch item; responses with any other batch count are
// rejected. The server side additionally answers Discover Versions and can
// be extended with custom handlers via Server.Handle.
//
// Compatibility:
//   - Tested KMIP versions: 1.0 to 1.4.

package kmip

/* This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/. */
