package scan

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/zstd"
)

const (
	fileMagic   = "PXSC"
	fileVersion = 1

	// maxElements bounds allocations made from untrusted headers.
	maxElements = 1 << 28
)

// FileExt is the extension of scan files.
const FileExt = ".pxscan"

// File is the content of a scan file: the modality that was swept, the count
// cube and its DAC table.
type File struct {
	Modality string
	Cube     *Cube
	DAC      *DACTable
}

type fileHeader struct {
	Magic       [4]byte
	Version     uint16
	ModalityLen uint8
	_           uint8
	Settings    uint32
	Samples     uint32
	Chips       uint32
	Pixels      uint32
	DACSettings uint32
	DACChips    uint32
}

// Encode writes f to w as a zstd-compressed little-endian stream.
func Encode(w io.Writer, f *File) error {
	if len(f.Modality) > 255 {
		return fmt.Errorf("modality name too long: %d bytes", len(f.Modality))
	}
	enc, err := zstd.NewWriter(w)
	if err != nil {
		return fmt.Errorf("zstd encode: %w", err)
	}

	shape := f.Cube.Shape()
	ds, dc := f.DAC.Dims()
	hdr := fileHeader{
		Version:     fileVersion,
		ModalityLen: uint8(len(f.Modality)),
		Settings:    uint32(shape.Settings),
		Samples:     uint32(shape.Samples),
		Chips:       uint32(shape.Chips),
		Pixels:      uint32(shape.Pixels),
		DACSettings: uint32(ds),
		DACChips:    uint32(dc),
	}
	copy(hdr.Magic[:], fileMagic)

	bw := bufio.NewWriter(enc)
	for _, v := range []any{hdr, []byte(f.Modality), f.Cube.data, f.DAC.data} {
		if err := binary.Write(bw, binary.LittleEndian, v); err != nil {
			_ = enc.Close()
			return fmt.Errorf("write scan: %w", err)
		}
	}
	if err := bw.Flush(); err != nil {
		_ = enc.Close()
		return fmt.Errorf("write scan: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("zstd encode: %w", err)
	}
	return nil
}

// Decode reads a scan stream written by Encode.
func Decode(r io.Reader) (*File, error) {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("zstd decode: %w", err)
	}
	defer dec.Close()
	br := bufio.NewReader(dec)

	var hdr fileHeader
	if err := binary.Read(br, binary.LittleEndian, &hdr); err != nil {
		return nil, fmt.Errorf("%w: read header: %v", ErrBadFile, err)
	}
	if string(hdr.Magic[:]) != fileMagic {
		return nil, fmt.Errorf("%w: bad magic %q", ErrBadFile, hdr.Magic[:])
	}
	if hdr.Version != fileVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrBadFile, hdr.Version)
	}

	shape := Shape{
		Settings: int(hdr.Settings),
		Samples:  int(hdr.Samples),
		Chips:    int(hdr.Chips),
		Pixels:   int(hdr.Pixels),
	}
	if err := shape.validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadFile, err)
	}
	n, ok := elements(hdr.Settings, hdr.Samples, hdr.Chips, hdr.Pixels)
	dacLen, dacOK := elements(hdr.DACSettings, hdr.DACChips)
	if !ok || !dacOK {
		return nil, fmt.Errorf("%w: payload too large", ErrBadFile)
	}

	modality := make([]byte, hdr.ModalityLen)
	if _, err := io.ReadFull(br, modality); err != nil {
		return nil, fmt.Errorf("%w: read modality: %v", ErrBadFile, err)
	}
	counts := make([]uint32, n)
	if err := binary.Read(br, binary.LittleEndian, counts); err != nil {
		return nil, fmt.Errorf("%w: read counts: %v", ErrBadFile, err)
	}
	codes := make([]uint32, dacLen)
	if err := binary.Read(br, binary.LittleEndian, codes); err != nil {
		return nil, fmt.Errorf("%w: read dac table: %v", ErrBadFile, err)
	}

	cube, err := NewCube(shape, counts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadFile, err)
	}
	dac, err := NewDACTable(int(hdr.DACSettings), int(hdr.DACChips), codes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadFile, err)
	}
	return &File{Modality: string(modality), Cube: cube, DAC: dac}, nil
}

// elements multiplies dims, failing once the product passes maxElements.
func elements(dims ...uint32) (uint64, bool) {
	n := uint64(1)
	for _, d := range dims {
		n *= uint64(d)
		if n > maxElements {
			return 0, false
		}
	}
	return n, true
}

// WriteFile saves f to path.
func WriteFile(path string, f *File) error {
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create scan file: %w", err)
	}
	if err := Encode(out, f); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// ReadFile loads a scan file from path.
func ReadFile(path string) (*File, error) {
	in, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open scan file: %w", err)
	}
	defer in.Close()
	return Decode(in)
}
