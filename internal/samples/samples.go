// Package samples reads the sample files produced at capture time: a
// fixed header describing the image, followed by sparse per-offset
// sample counts.
package samples

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

var magic = [4]byte{'S', 'Y', 'R', 'P'}

const Version = 1

var (
	ErrBadMagic = errors.New("not a sample file")
	ErrVersion  = errors.New("unsupported sample file version")
)

// Header is the capture-time metadata of a sample file.
type Header struct {
	Kernel    bool
	Mtime     int64  // mtime of the image when samples were captured
	NrSamples uint64 // sample-addressable extent of the image
}

type fileHeader struct {
	Magic     [4]byte
	Version   uint32
	Kernel    uint32
	_         uint32
	Mtime     int64
	NrSamples uint64
	NrRecords uint32
	_         uint32
}

type record struct {
	Offset uint64
	Count  uint32
	_      uint32
}

// File is a fully read sample file.
type File struct {
	Header Header
	counts map[uint64]uint64
}

func Read(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	sf, err := ReadFrom(f)
	if err != nil {
		return nil, fmt.Errorf("sample file %s: %w", path, err)
	}
	return sf, nil
}

func ReadFrom(r io.Reader) (*File, error) {
	var hdr fileHeader
	if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	if hdr.Magic != magic {
		return nil, ErrBadMagic
	}
	if hdr.Version != Version {
		return nil, fmt.Errorf("%w: %d", ErrVersion, hdr.Version)
	}

	counts := make(map[uint64]uint64, hdr.NrRecords)
	for i := uint32(0); i < hdr.NrRecords; i++ {
		var rec record
		if err := binary.Read(r, binary.LittleEndian, &rec); err != nil {
			return nil, fmt.Errorf("reading record %d: %w", i, err)
		}
		counts[rec.Offset] += uint64(rec.Count)
	}

	return &File{
		Header: Header{
			Kernel:    hdr.Kernel != 0,
			Mtime:     hdr.Mtime,
			NrSamples: hdr.NrSamples,
		},
		counts: counts,
	}, nil
}

// Counts returns sample counts keyed by absolute image file offset. The
// map is owned by the File.
func (f *File) Counts() map[uint64]uint64 { return f.counts }

// Total is the sum of all sample counts.
func (f *File) Total() uint64 {
	var t uint64
	for _, c := range f.counts {
		t += c
	}
	return t
}

// Write serializes a sample file; used by capture tooling and tests.
func Write(w io.Writer, hdr Header, counts map[uint64]uint64) error {
	var kernel uint32
	if hdr.Kernel {
		kernel = 1
	}
	fh := fileHeader{
		Magic:     magic,
		Version:   Version,
		Kernel:    kernel,
		Mtime:     hdr.Mtime,
		NrSamples: hdr.NrSamples,
		NrRecords: uint32(len(counts)),
	}
	if err := binary.Write(w, binary.LittleEndian, &fh); err != nil {
		return err
	}
	for off, cnt := range counts {
		if err := binary.Write(w, binary.LittleEndian, &record{Offset: off, Count: uint32(cnt)}); err != nil {
			return err
		}
	}
	return nil
}
