package inventory

import (
	"bytes"
	"debug/elf"
	"debug/macho"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/blakesmith/ar"

	"stubgen/internal/symbol"
)

const (
	machoTypeMask = 0x0e
	machoSect     = 0x0e
	machoExt      = 0x01
)

// ReadArchive lists defined global code symbols of every object member of an ar archive.
// Members that are neither ELF nor Mach-O (symbol index, string table) are skipped.
// A malformed archive yields an error, never a panic.
func ReadArchive(r io.Reader, f Filter) (set symbol.Set, err error) {
	set = symbol.NewSet()
	data, err := io.ReadAll(r)
	if err != nil {
		return set, fmt.Errorf("read archive: %w", err)
	}
	data, err = canonicalHeaders(data)
	if err != nil {
		return set, err
	}

	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("malformed archive: %v", p)
		}
	}()

	rd := ar.NewReader(bytes.NewReader(data))
	for {
		hdr, err := rd.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return set, fmt.Errorf("read archive header: %w", err)
		}

		member, err := io.ReadAll(io.LimitReader(rd, hdr.Size))
		if err != nil {
			return set, fmt.Errorf("read member %q: %w", hdr.Name, err)
		}
		member = stripBSDName(hdr.Name, member)

		for _, raw := range objectSymbols(member) {
			if name, ok := f.accept(raw); ok {
				set.Add(name)
			}
		}
	}
	return set, nil
}

const (
	headerSize = 60
	modeField  = 40
	sizeField  = 48
	magicField = 58
)

// canonicalHeaders checks every member header and rewrites its mode field to
// the six-digit octal form the ar reader expects. GNU ar writes short modes,
// "0" for the symbol index. Trailing bytes too short for a header are dropped.
func canonicalHeaders(data []byte) ([]byte, error) {
	if !bytes.HasPrefix(data, []byte(ar.GLOBAL_HEADER)) {
		return nil, errors.New("not an ar archive")
	}
	off := len(ar.GLOBAL_HEADER)
	for off+headerSize <= len(data) {
		hdr := data[off : off+headerSize]
		if string(hdr[magicField:]) != "`\n" {
			return nil, fmt.Errorf("bad member header at offset %d", off)
		}
		size, err := strconv.ParseInt(strings.TrimSpace(string(hdr[sizeField:magicField])), 10, 64)
		if err != nil || size < 0 {
			return nil, fmt.Errorf("bad member size at offset %d", off)
		}
		copy(hdr[modeField:sizeField], "100644  ")

		next := int64(off+headerSize) + size + size%2
		if next > int64(len(data)) && int64(off+headerSize)+size > int64(len(data)) {
			return nil, fmt.Errorf("member at offset %d truncated", off)
		}
		off = int(min(next, int64(len(data))))
	}
	return data[:off], nil
}

// stripBSDName removes the inline member name that BSD archives store in front of
// the data when the header name has the form "#1/<len>".
func stripBSDName(name string, data []byte) []byte {
	name = strings.TrimSpace(name)
	if !strings.HasPrefix(name, "#1/") {
		return data
	}
	n, err := strconv.Atoi(strings.TrimSpace(name[3:]))
	if err != nil || n < 0 || n > len(data) {
		return data
	}
	return data[n:]
}

func objectSymbols(data []byte) []string {
	if names, err := elfSymbols(data); err == nil {
		return names
	}
	if names, err := machoSymbols(data); err == nil {
		return names
	}
	return nil
}

func elfSymbols(data []byte) ([]string, error) {
	f, err := elf.NewFile(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	syms, err := f.Symbols()
	if errors.Is(err, elf.ErrNoSymbols) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var names []string
	for _, s := range syms {
		if elf.ST_BIND(s.Info) != elf.STB_GLOBAL || s.Section == elf.SHN_UNDEF {
			continue
		}
		if elf.ST_TYPE(s.Info) != elf.STT_FUNC {
			continue
		}
		names = append(names, s.Name)
	}
	return names, nil
}

func machoSymbols(data []byte) ([]string, error) {
	f, err := macho.NewFile(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if f.Symtab == nil {
		return nil, nil
	}

	var names []string
	for _, s := range f.Symtab.Syms {
		if s.Type&machoExt == 0 || s.Type&machoTypeMask != machoSect {
			continue
		}
		if !isTextSection(f, s.Sect) {
			continue
		}
		names = append(names, s.Name)
	}
	return names, nil
}

// isTextSection reports whether the 1-based section ordinal refers to __TEXT,__text.
func isTextSection(f *macho.File, ordinal uint8) bool {
	idx := int(ordinal) - 1
	if idx < 0 || idx >= len(f.Sections) {
		return false
	}
	s := f.Sections[idx]
	return s.Seg == "__TEXT" && s.Name == "__text"
}
