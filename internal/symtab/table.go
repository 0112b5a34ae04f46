package symtab

import (
	"log/slog"
	"sort"
	"strings"

	"github.com/perftools/symreport/internal/elfio"
)

// ImageInfo is what the symbol table needs from an opened image.
type ImageInfo interface {
	Sections() []elfio.Section
	Symbols() []elfio.RawSymbol
	NearestLine(section int, pc uint64) (*elfio.LineResult, bool)
	Extent() uint64
}

// Symbol is one entry of the built table. Value is the symbol's offset
// within its section, VMA its virtual address in the loaded image.
type Symbol struct {
	Name     string
	VMA      uint64
	Size     uint64
	Value    uint64
	Section  int
	Function bool
}

// Table is the ordered, deduplicated, sized symbol table of one image.
// It is immutable once built, so concurrent readers need no locking.
type Table struct {
	syms     []Symbol
	sections []elfio.Section
	img      ImageInfo
	metrics  *Metrics
}

// Symbols that would never be worth attributing samples to.
var boringSymbols = []string{
	"gcc2_compiled.",
	"_init",
}

func interesting(sym *elfio.RawSymbol, sections []elfio.Section) bool {
	if sym.Section < 0 || sym.Section >= len(sections) {
		return false
	}
	if !sections[sym.Section].Code {
		return false
	}
	if sym.Name == "" {
		return false
	}
	// compiler-internal local labels
	if strings.HasPrefix(sym.Name, ".L") {
		return false
	}
	for _, b := range boringSymbols {
		if sym.Name == b {
			return false
		}
	}
	return true
}

// Build constructs the symbol table for img. Raw symbols are filtered to
// those in code sections, stably sorted by vma, deduplicated, sized from
// the distance to the next symbol's file position, and finally stripped
// of exact matches of excluded. An image with no usable symbols yields an
// empty table, which is not an error; check Empty.
func Build(img ImageInfo, excluded map[string]struct{}, metrics *Metrics) *Table {
	sections := append([]elfio.Section(nil), img.Sections()...)
	raw := img.Symbols()

	syms := make([]Symbol, 0, len(raw))
	for i := range raw {
		if !interesting(&raw[i], sections) {
			metrics.dropped("boring")
			continue
		}
		syms = append(syms, Symbol{
			Name:     raw[i].Name,
			VMA:      raw[i].Value + sections[raw[i].Section].Addr,
			Value:    raw[i].Value,
			Section:  raw[i].Section,
			Function: raw[i].Function,
		})
	}

	// Stable sort so that discovery order decides among equal vmas below.
	sort.SliceStable(syms, func(i, j int) bool { return syms[i].VMA < syms[j].VMA })

	syms = dedupByVMA(syms, metrics)

	// Sizes come from the distance to the next symbol's absolute file
	// position; the last symbol extends to the image extent.
	for i := range syms {
		start := absStart(&syms[i], sections)
		var end uint64
		if i+1 < len(syms) {
			end = absStart(&syms[i+1], sections)
		} else {
			end = img.Extent()
		}
		if end > start {
			syms[i].Size = end - start
		}
	}

	if len(excluded) > 0 {
		kept := syms[:0]
		for i := range syms {
			if _, ok := excluded[syms[i].Name]; ok {
				slog.Debug("Excluding symbol", "name", syms[i].Name)
				metrics.dropped("excluded")
				continue
			}
			kept = append(kept, syms[i])
		}
		syms = kept
	}

	slog.Debug("Built symbol table", "symbols", len(syms))
	return &Table{syms: syms, sections: sections, img: img, metrics: metrics}
}

// dedupByVMA keeps one symbol per vma in a single forward pass. Among
// duplicates a function-flagged entry wins over a non-function one;
// otherwise the first in stable-sorted order is kept. Attributing the
// same samples to two symbols would double-count them.
func dedupByVMA(syms []Symbol, metrics *Metrics) []Symbol {
	if len(syms) == 0 {
		return syms
	}
	out := syms[:1]
	for i := 1; i < len(syms); i++ {
		last := &out[len(out)-1]
		if syms[i].VMA != last.VMA {
			out = append(out, syms[i])
			continue
		}
		metrics.dropped("duplicate")
		if syms[i].Function && !last.Function {
			*last = syms[i]
		}
	}
	return out
}

func absStart(sym *Symbol, sections []elfio.Section) uint64 {
	return sections[sym.Section].FileOffset + sym.Value
}

// Empty reports whether the image carried no usable symbols. Callers
// typically fall back to whole-image attribution.
func (t *Table) Empty() bool { return len(t.syms) == 0 }

func (t *Table) Len() int { return len(t.syms) }

func (t *Table) At(i int) Symbol { return t.syms[i] }

// IndexOf returns the index of the symbol with exactly this name, or -1.
func (t *Table) IndexOf(name string) int {
	for i := range t.syms {
		if t.syms[i].Name == name {
			return i
		}
	}
	return -1
}
