package memory

import (
	"strings"
	"unicode/utf8"

	memerrors "github.com/cadre-oss/agentmem/internal/errors"
)

const bullet = "- "

// File is the parsed form of a memory file: one header line followed by a
// flat list of single-line entries.
type File struct {
	Header  string
	Entries []string
}

// NewFile returns an empty file with the given header.
func NewFile(header string) *File {
	return &File{Header: header, Entries: []string{}}
}

// Parse reads a memory file. The first line starting with '#' is the header.
// Blank lines are skipped and a leading "- " bullet is stripped; any other
// line is kept verbatim so hand-written files survive a rewrite.
func Parse(raw []byte) (*File, error) {
	if !utf8.Valid(raw) {
		return nil, memerrors.New(memerrors.CodeIO, "memory file is not valid UTF-8").
			WithSuggestion("repair or clear the file")
	}
	f := NewFile("")
	first := true
	for _, line := range strings.Split(string(raw), "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		if first {
			first = false
			if strings.HasPrefix(line, "#") {
				f.Header = line
				continue
			}
		}
		f.Entries = append(f.Entries, strings.TrimPrefix(line, bullet))
	}
	return f, nil
}

// Bytes renders the file in its on-disk form.
func (f *File) Bytes() []byte {
	var sb strings.Builder
	sb.Grow(f.Size())
	sb.WriteString(f.Header)
	sb.WriteByte('\n')
	for _, e := range f.Entries {
		sb.WriteString(bullet)
		sb.WriteString(e)
		sb.WriteByte('\n')
	}
	return []byte(sb.String())
}

// Size is the byte length of the rendered file.
func (f *File) Size() int {
	n := len(f.Header) + 1
	for _, e := range f.Entries {
		n += len(bullet) + len(e) + 1
	}
	return n
}

// withEntries returns a copy of f holding entries.
func (f *File) withEntries(entries []string) *File {
	cp := make([]string, len(entries))
	copy(cp, entries)
	return &File{Header: f.Header, Entries: cp}
}

// ValidateEntry enforces the entry rules: non-empty, single line, valid UTF-8.
func ValidateEntry(entry string) error {
	if strings.TrimSpace(entry) == "" {
		return memerrors.New(memerrors.CodeValidation, "entry is empty")
	}
	if strings.ContainsAny(entry, "\r\n") {
		return memerrors.New(memerrors.CodeValidation, "entry must be a single line").
			WithSuggestion("split multi-line facts into separate entries")
	}
	if !utf8.ValidString(entry) {
		return memerrors.New(memerrors.CodeValidation, "entry is not valid UTF-8")
	}
	return nil
}
