package kmip

/* This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/. */

// Allocator is the allocation strategy used by a Context for every buffer
// the exchange engine owns. The default delegates to the Go runtime; tests
// substitute tracking or faulty implementations to verify that every exit
// path releases exactly what it acquired.
type Allocator interface {
	// Allocate returns a zeroed buffer of n bytes
	Allocate(n int) ([]byte, error)

	// Reallocate grows buf to n bytes, zero-filling the extension. The
	// old slice is consumed: it is released by Reallocate on both the
	// success and the failure path and must not be used again.
	Reallocate(buf []byte, n int) ([]byte, error)

	// Free releases a buffer obtained from Allocate or Reallocate
	Free(buf []byte)
}

// DefaultAllocator is used by contexts created without an explicit allocator
var DefaultAllocator Allocator = runtimeAllocator{}

type runtimeAllocator struct{}

func (runtimeAllocator) Allocate(n int) ([]byte, error) {
	return make([]byte, n), nil
}

func (runtimeAllocator) Reallocate(buf []byte, n int) ([]byte, error) {
	if n <= cap(buf) {
		grown := buf[:n]
		for i := len(buf); i < n; i++ {
			grown[i] = 0
		}
		return grown, nil
	}

	grown := make([]byte, n)
	copy(grown, buf)
	return grown, nil
}

func (runtimeAllocator) Free([]byte) {}
