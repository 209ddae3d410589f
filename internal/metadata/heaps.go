package metadata

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"unicode/utf16"

	"cilscope/internal/cilfmt"
)

type stringHeap []byte

// get returns the null-terminated UTF-8 string at offset.
func (h stringHeap) get(off uint32) (string, error) {
	if int(off) >= len(h) {
		if off == 0 {
			return "", nil
		}
		return "", fmt.Errorf("%w: #Strings offset 0x%x out of range", ErrBadMetadata, off)
	}
	end := bytes.IndexByte(h[off:], 0)
	if end < 0 {
		return "", fmt.Errorf("%w: unterminated #Strings entry at 0x%x", ErrBadMetadata, off)
	}
	return string(h[off : int(off)+end]), nil
}

type blobHeap []byte

// get returns the blob at offset (compressed length prefix, then bytes).
func (h blobHeap) get(off uint32) ([]byte, error) {
	if int(off) >= len(h) {
		if off == 0 {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: #Blob offset 0x%x out of range", ErrBadMetadata, off)
	}
	n, w, err := cilfmt.DecodeCompressedUint32(h[off:])
	if err != nil {
		return nil, fmt.Errorf("#Blob 0x%x: %w", off, err)
	}
	start := int(off) + w
	if start+int(n) > len(h) {
		return nil, fmt.Errorf("%w: #Blob entry at 0x%x overruns heap", ErrBadMetadata, off)
	}
	return h[start : start+int(n)], nil
}

type userStringHeap []byte

// get decodes the UTF-16LE user string at offset. The blob carries a trailing
// flag byte which is dropped.
func (h userStringHeap) get(off uint32) (string, error) {
	if int(off) >= len(h) {
		return "", fmt.Errorf("%w: #US offset 0x%x out of range", ErrTokenRange, off)
	}
	n, w, err := cilfmt.DecodeCompressedUint32(h[off:])
	if err != nil {
		return "", fmt.Errorf("#US 0x%x: %w", off, err)
	}
	start := int(off) + w
	if start+int(n) > len(h) {
		return "", fmt.Errorf("%w: #US entry at 0x%x overruns heap", ErrBadMetadata, off)
	}
	if n == 0 {
		return "", nil
	}
	raw := h[start : start+int(n)-1]
	units := make([]uint16, len(raw)/2)
	for i := range units {
		units[i] = binary.LittleEndian.Uint16(raw[2*i:])
	}
	return string(utf16.Decode(units)), nil
}

type guidHeap []byte

// get returns the 16-byte GUID at 1-based index.
func (h guidHeap) get(idx uint32) ([]byte, error) {
	if idx == 0 {
		return nil, nil
	}
	off := int(idx-1) * 16
	if off+16 > len(h) {
		return nil, fmt.Errorf("%w: #GUID index %d out of range", ErrBadMetadata, idx)
	}
	return h[off : off+16], nil
}
