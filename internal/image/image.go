package image

import (
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sys/unix"

	"github.com/perftools/symreport/internal/elfio"
)

var ErrNoKernelText = errors.New("kernel image has no .text section")

// Image is the handle to an opened binary image. Kernel and module
// samples are recorded as offsets into the code section rather than
// absolute file offsets, so for those images SectOffset carries the
// .text file position used to rebase them.
type Image struct {
	reader     *elfio.Reader
	kernel     bool
	sectOffset uint64
	nrSamples  uint64 // sample-addressable size of the image file
}

// Open opens the image at path and validates it against the metadata
// recorded at capture time. A mismatched mtime is only a warning: the
// binary may have been rebuilt in place, and resolution can still be
// useful, but the caller should treat attributions as possibly stale.
// nrSamples is the sample-addressable extent recorded at capture time;
// when zero the image's file size is used.
func Open(path string, kernel bool, expectedMtime int64, nrSamples uint64) (*Image, error) {
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return nil, fmt.Errorf("stat image %s: %w", path, err)
	}
	if expectedMtime != 0 && st.Mtim.Sec != expectedMtime {
		slog.Warn("Image modification time does not match the sample file; wrong or rebuilt binary?",
			"path", path, "image_mtime", st.Mtim.Sec, "sample_mtime", expectedMtime)
	}

	r, err := elfio.Open(path)
	if err != nil {
		return nil, err
	}

	if nrSamples == 0 {
		nrSamples = uint64(st.Size)
	}
	img := &Image{reader: r, kernel: kernel, nrSamples: nrSamples}
	if kernel {
		sect := findSection(r.Sections(), ".text")
		if sect == nil {
			r.Close()
			return nil, fmt.Errorf("%w: %s", ErrNoKernelText, path)
		}
		img.sectOffset = sect.FileOffset
		slog.Debug("Adjusting kernel samples by .text file position", "offset", img.sectOffset)
	}
	return img, nil
}

func findSection(sections []elfio.Section, name string) *elfio.Section {
	for i := range sections {
		if sections[i].Name == name {
			return &sections[i]
		}
	}
	return nil
}

func (i *Image) Close() error { return i.reader.Close() }

func (i *Image) Path() string { return i.reader.Path() }

func (i *Image) Kernel() bool { return i.kernel }

// SectOffset is the file-offset adjustment applied to kernel/module
// samples; zero for ordinary images.
func (i *Image) SectOffset() uint64 { return i.sectOffset }

// Extent is the total sample-addressable extent of the image.
func (i *Image) Extent() uint64 { return i.nrSamples + i.sectOffset }

func (i *Image) Sections() []elfio.Section { return i.reader.Sections() }

func (i *Image) Symbols() []elfio.RawSymbol { return i.reader.Symbols() }

func (i *Image) HasDebugInfo() bool { return i.reader.HasDebugInfo() }

func (i *Image) NearestLine(section int, pc uint64) (*elfio.LineResult, bool) {
	return i.reader.NearestLine(section, pc)
}
