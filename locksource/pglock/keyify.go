package pglock

import (
	"hash/fnv"
	"unsafe"
)

// Keyify hashes a lock key, such as a download URL, into the 64-bit
// advisory lock space, serialized into a []byte for the wire.
func keyify(key string) []byte {
	h := fnv.New64a()
	// Unsafe provides mutable access to "key"; the Write call does not
	// modify its argument, so no copy is needed.
	h.Write(unsafe.Slice(unsafe.StringData(key), len(key)))
	b := make([]byte, 0, 8)
	return h.Sum(b)
}
