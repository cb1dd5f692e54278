package format

import "unsafe"

// Raw memory access. The allocator keeps all of its bookkeeping inside the
// memory it manages, so headers are read and written through these helpers
// instead of Go structs.

// Word reads the machine word stored at addr.
func Word(addr uintptr) uintptr {
	return *(*uintptr)(unsafe.Pointer(addr))
}

// SetWord writes v to the machine word at addr.
func SetWord(addr, v uintptr) {
	*(*uintptr)(unsafe.Pointer(addr)) = v
}

// U32 reads the uint32 stored at addr.
func U32(addr uintptr) uint32 {
	return *(*uint32)(unsafe.Pointer(addr))
}

// SetU32 writes v to the uint32 at addr.
func SetU32(addr uintptr, v uint32) {
	*(*uint32)(unsafe.Pointer(addr)) = v
}

// Bytes returns a slice over the n bytes starting at addr.
func Bytes(addr, n uintptr) []byte {
	if n == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(addr)), n)
}

// Move copies n bytes from src to dst. The ranges may overlap.
func Move(dst, src, n uintptr) {
	if n == 0 || dst == src {
		return
	}
	copy(Bytes(dst, n), Bytes(src, n))
}

// Fill sets n bytes starting at addr to b.
func Fill(addr, n uintptr, b byte) {
	buf := Bytes(addr, n)
	for i := range buf {
		buf[i] = b
	}
}
