package elfio

import (
	"debug/dwarf"
	"debug/elf"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strings"
)

var (
	ErrNotFound = errors.New("image file not found")
	ErrFormat   = errors.New("unrecognized image format")
)

// Section is the subset of section information the resolver needs.
type Section struct {
	Name       string
	FileOffset uint64
	Addr       uint64 // virtual base of the section in the loaded image
	Size       uint64
	Code       bool
	Alloc      bool
	Debug      bool
}

// RawSymbol is a symbol as found in the image: Value is the symbol's
// offset within its section, Section an index into Sections().
type RawSymbol struct {
	Name     string
	Value    uint64
	Section  int
	Function bool
}

// LineResult is the outcome of a NearestLine query. Reader hands out a
// pointer to a single reader-owned result; see NearestLine.
type LineResult struct {
	Filename string
	Function string
	Line     int
}

// Reader exposes sections, symbols and debug line info of one ELF image.
type Reader struct {
	path     string
	file     *elf.File
	closer   io.Closer
	sections []Section
	symbols  []RawSymbol
	dwarf    *dwarf.Data

	// scratch state reused across NearestLine calls
	entry  dwarf.LineEntry
	result LineResult
}

// Open opens and validates an image file. A missing file maps to
// ErrNotFound and a file debug/elf cannot recognize to ErrFormat; both
// are fatal to the callers in this repo.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, err
	}
	ef, err := elf.NewFile(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: %s: %v", ErrFormat, path, err)
	}

	r := &Reader{path: path, file: ef, closer: f}
	r.loadSections()
	if err := r.loadSymbols(); err != nil {
		slog.Debug("No symbol tables in image", "path", path, "error", err)
	}
	if d, err := ef.DWARF(); err == nil {
		r.dwarf = d
	} else {
		slog.Debug("DWARF data not available", "path", path, "error", err)
	}
	return r, nil
}

func (r *Reader) Path() string { return r.path }

func (r *Reader) Close() error {
	if r.closer == nil {
		return nil
	}
	err := r.closer.Close()
	r.closer = nil
	return err
}

// Sections returns the image's sections. The slice is owned by the
// Reader and must be treated as read-only.
func (r *Reader) Sections() []Section { return r.sections }

// Symbols returns the raw symbols from .symtab and .dynsym, in discovery
// order. The slice is owned by the Reader and must be treated as read-only.
func (r *Reader) Symbols() []RawSymbol { return r.symbols }

// HasDebugInfo reports whether the image carries any debug sections.
func (r *Reader) HasDebugInfo() bool {
	for i := range r.sections {
		if r.sections[i].Debug {
			return true
		}
	}
	return false
}

func (r *Reader) loadSections() {
	r.sections = make([]Section, 0, len(r.file.Sections))
	for _, s := range r.file.Sections {
		r.sections = append(r.sections, Section{
			Name:       s.Name,
			FileOffset: s.Offset,
			Addr:       s.Addr,
			Size:       s.Size,
			Code:       s.Flags&elf.SHF_EXECINSTR != 0,
			Alloc:      s.Flags&elf.SHF_ALLOC != 0,
			Debug:      strings.HasPrefix(s.Name, ".debug") || strings.HasPrefix(s.Name, ".zdebug"),
		})
	}
}

func (r *Reader) loadSymbols() error {
	syms := make([]elf.Symbol, 0)
	if st, err := r.file.Symbols(); err == nil {
		syms = append(syms, st...)
	}
	if st, err := r.file.DynamicSymbols(); err == nil {
		syms = append(syms, st...)
	}
	if len(syms) == 0 {
		return errors.New("no symbol tables available in ELF")
	}

	for _, s := range syms {
		idx := int(s.Section)
		if idx < 0 || idx >= len(r.sections) {
			continue
		}
		sect := &r.sections[idx]
		if s.Value < sect.Addr {
			// absolute or misplaced symbol, not addressable within the section
			continue
		}
		r.symbols = append(r.symbols, RawSymbol{
			Name:     s.Name,
			Value:    s.Value - sect.Addr,
			Section:  idx,
			Function: elf.ST_TYPE(s.Info) == elf.STT_FUNC,
		})
	}
	return nil
}

// NearestLine looks up the debug line entry covering pc, an offset within
// the given section. The returned LineResult points at a single buffer
// owned by the Reader: issuing another query at a different address
// overwrites it. Callers that need an earlier result after probing other
// addresses must re-issue the earlier query.
func (r *Reader) NearestLine(section int, pc uint64) (*LineResult, bool) {
	if r.dwarf == nil || section < 0 || section >= len(r.sections) {
		return nil, false
	}
	addr := r.sections[section].Addr + pc

	rdr := r.dwarf.Reader()
	cu, err := rdr.SeekPC(addr)
	if err != nil || cu == nil {
		return nil, false
	}
	lr, err := r.dwarf.LineReader(cu)
	if err != nil || lr == nil {
		return nil, false
	}
	if err := lr.SeekPC(addr, &r.entry); err != nil {
		return nil, false
	}

	r.result.Filename = ""
	if r.entry.File != nil {
		r.result.Filename = r.entry.File.Name
	}
	r.result.Line = r.entry.Line
	r.result.Function = r.functionAt(rdr, addr)
	return &r.result, true
}

// functionAt scans the current compile unit's subprograms for the one
// containing addr. rdr is positioned just past the compile unit entry.
func (r *Reader) functionAt(rdr *dwarf.Reader, addr uint64) string {
	for {
		ent, err := rdr.Next()
		if err != nil || ent == nil {
			return ""
		}
		if ent.Tag == dwarf.TagCompileUnit {
			return ""
		}
		if ent.Tag != dwarf.TagSubprogram {
			continue
		}
		ranges, err := r.dwarf.Ranges(ent)
		if err != nil {
			continue
		}
		for _, rg := range ranges {
			if addr >= rg[0] && addr < rg[1] {
				if name, ok := ent.Val(dwarf.AttrName).(string); ok {
					return name
				}
				return ""
			}
		}
	}
}
