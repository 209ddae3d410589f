package metadata

import (
	"bytes"
	"debug/pe"
	"encoding/binary"
	"fmt"
	"os"

	"cilscope/internal/cilfmt"
)

// cliHeaderDir is the index of the CLR runtime header data directory.
const cliHeaderDir = 14

// metadataSignature is "BSJB" read as a little-endian uint32.
const metadataSignature = 0x424A5342

// Image is a PE file carrying ECMA-335 metadata.
type Image struct {
	Path            string
	data            []byte
	sections        []*pe.Section
	RuntimeVersion  string // metadata root version string, e.g. "v4.0.30319"
	CLIFlags        uint32
	EntryPointToken cilfmt.Token
	streams         map[string][]byte
}

// OpenImage reads and parses the PE image at path.
func OpenImage(path string) (*Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("metadata: open: %w", err)
	}
	img, err := ParseImage(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	img.Path = path
	return img, nil
}

// ParseImage parses an in-memory PE image.
func ParseImage(data []byte) (*Image, error) {
	f, err := pe.NewFile(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotPE, err)
	}
	defer f.Close()

	var dirs []pe.DataDirectory
	switch oh := f.OptionalHeader.(type) {
	case *pe.OptionalHeader32:
		dirs = oh.DataDirectory[:oh.NumberOfRvaAndSizes]
	case *pe.OptionalHeader64:
		dirs = oh.DataDirectory[:oh.NumberOfRvaAndSizes]
	}
	if len(dirs) <= cliHeaderDir || dirs[cliHeaderDir].VirtualAddress == 0 {
		return nil, ErrNoCLIHeader
	}

	img := &Image{data: data, sections: f.Sections}
	cli, err := img.slice(dirs[cliHeaderDir].VirtualAddress, 72)
	if err != nil {
		return nil, fmt.Errorf("cli header: %w", err)
	}
	mdRVA := binary.LittleEndian.Uint32(cli[8:])
	mdSize := binary.LittleEndian.Uint32(cli[12:])
	img.CLIFlags = binary.LittleEndian.Uint32(cli[16:])
	img.EntryPointToken = cilfmt.Token(binary.LittleEndian.Uint32(cli[20:]))

	root, err := img.slice(mdRVA, mdSize)
	if err != nil {
		return nil, fmt.Errorf("metadata root: %w", err)
	}
	if err := img.parseRoot(root); err != nil {
		return nil, err
	}
	return img, nil
}

// Offset maps an RVA to a file offset.
func (img *Image) Offset(rva uint32) (int, error) {
	for _, s := range img.sections {
		size := s.VirtualSize
		if s.Size > size {
			size = s.Size
		}
		if rva >= s.VirtualAddress && rva < s.VirtualAddress+size {
			off := int(rva-s.VirtualAddress) + int(s.Offset)
			if off >= len(img.data) {
				break
			}
			return off, nil
		}
	}
	return 0, fmt.Errorf("%w: rva 0x%x not in any section", ErrBadMetadata, rva)
}

// slice returns n bytes at rva.
func (img *Image) slice(rva, n uint32) ([]byte, error) {
	off, err := img.Offset(rva)
	if err != nil {
		return nil, err
	}
	if off+int(n) > len(img.data) {
		return nil, fmt.Errorf("%w: rva 0x%x+%d past end of file", ErrBadMetadata, rva, n)
	}
	return img.data[off : off+int(n)], nil
}

// At returns a stream positioned at rva over the rest of the file.
func (img *Image) At(rva uint32) (*cilfmt.Stream, error) {
	off, err := img.Offset(rva)
	if err != nil {
		return nil, err
	}
	return cilfmt.NewStreamAt(img.data, off), nil
}

// parseRoot reads the metadata root and stream headers (II.24.2.1-2).
func (img *Image) parseRoot(root []byte) error {
	s := cilfmt.NewStream(root)
	sig, err := s.ReadUint32()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadMetadata, err)
	}
	if sig != metadataSignature {
		return fmt.Errorf("%w: bad signature 0x%08x", ErrBadMetadata, sig)
	}
	if err := s.Skip(8); err != nil { // major, minor, reserved
		return fmt.Errorf("%w: %v", ErrBadMetadata, err)
	}
	vlen, err := s.ReadUint32()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadMetadata, err)
	}
	ver, err := s.ReadBytes(int(vlen))
	if err != nil {
		return fmt.Errorf("%w: version: %v", ErrBadMetadata, err)
	}
	img.RuntimeVersion = string(bytes.TrimRight(ver, "\x00"))
	if err := s.Skip(2); err != nil { // flags
		return fmt.Errorf("%w: %v", ErrBadMetadata, err)
	}
	n, err := s.ReadUint16()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadMetadata, err)
	}

	img.streams = make(map[string][]byte, n)
	for i := 0; i < int(n); i++ {
		off, err := s.ReadUint32()
		if err != nil {
			return fmt.Errorf("%w: stream header %d: %v", ErrBadMetadata, i, err)
		}
		size, err := s.ReadUint32()
		if err != nil {
			return fmt.Errorf("%w: stream header %d: %v", ErrBadMetadata, i, err)
		}
		name, err := s.ReadCString()
		if err != nil {
			return fmt.Errorf("%w: stream header %d: %v", ErrBadMetadata, i, err)
		}
		s.Align(4)
		if uint64(off)+uint64(size) > uint64(len(root)) {
			return fmt.Errorf("%w: stream %s out of bounds", ErrBadMetadata, name)
		}
		img.streams[name] = root[off : off+size]
	}
	return nil
}

// Stream returns the named metadata stream (e.g. "#Strings").
func (img *Image) Stream(name string) ([]byte, bool) {
	b, ok := img.streams[name]
	return b, ok
}
