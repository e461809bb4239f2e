// Package scanner is a signature-based content scanner for uploaded files.
// It flags executables, scripts, the EICAR test string and files whose
// content contradicts their extension.
package scanner

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"scholarship/internal/application/ports"
)

const defaultMaxSize = 10 << 20

// eicar is the industry-standard antivirus test string.
const eicar = `X5O!P%@AP[4\PZX54(P^)7CC)7}$EICAR-STANDARD-ANTIVIRUS-TEST-FILE!$H+H*`

type signature struct {
	magic          []byte
	classification ports.Classification
	label          string
}

var executableSignatures = []signature{
	{[]byte("MZ"), ports.ClassificationExecutable, "windows executable"},
	{[]byte("\x7fELF"), ports.ClassificationExecutable, "elf binary"},
	{[]byte{0xfe, 0xed, 0xfa, 0xce}, ports.ClassificationExecutable, "mach-o binary"},
	{[]byte{0xfe, 0xed, 0xfa, 0xcf}, ports.ClassificationExecutable, "mach-o binary"},
	{[]byte{0xcf, 0xfa, 0xed, 0xfe}, ports.ClassificationExecutable, "mach-o binary"},
	{[]byte{0xca, 0xfe, 0xba, 0xbe}, ports.ClassificationExecutable, "java class or fat binary"},
	{[]byte("#!"), ports.ClassificationScript, "shebang script"},
}

// extension -> accepted leading bytes
var expectedMagic = map[string][][]byte{
	".pdf":  {[]byte("%PDF-")},
	".png":  {[]byte("\x89PNG\r\n\x1a\n")},
	".jpg":  {[]byte{0xff, 0xd8, 0xff}},
	".jpeg": {[]byte{0xff, 0xd8, 0xff}},
	".gif":  {[]byte("GIF87a"), []byte("GIF89a")},
}

var scriptMarkers = [][]byte{
	[]byte("<script"),
	[]byte("/JavaScript"),
	[]byte("/Launch"),
}

type Scanner struct {
	maxSize int
}

type Option func(*Scanner)

// WithMaxSize caps accepted file size in bytes.
func WithMaxSize(n int) Option {
	return func(s *Scanner) {
		if n > 0 {
			s.maxSize = n
		}
	}
}

func New(opts ...Option) *Scanner {
	s := &Scanner{maxSize: defaultMaxSize}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Scan classifies a single file. A non-nil error means the scan itself
// failed; unsafe content is reported through the result.
func (s *Scanner) Scan(ctx context.Context, file ports.File) (ports.ScanResult, error) {
	if err := ctx.Err(); err != nil {
		return ports.ScanResult{}, err
	}
	content := file.Content
	if len(content) > s.maxSize {
		return unsafe(ports.ClassificationOversized, fmt.Sprintf("%d bytes exceeds limit", len(content))), nil
	}
	if bytes.Contains(content, []byte(eicar)) {
		return unsafe(ports.ClassificationTestVirus, "eicar test signature"), nil
	}
	for _, sig := range executableSignatures {
		if bytes.HasPrefix(content, sig.magic) {
			return unsafe(sig.classification, sig.label), nil
		}
	}

	ext := strings.ToLower(filepath.Ext(file.Name))
	if accepted, ok := expectedMagic[ext]; ok && len(content) > 0 {
		if !hasAnyPrefix(content, accepted) {
			return unsafe(ports.ClassificationDisguised, "content does not match "+ext), nil
		}
	}
	if ext == ".pdf" {
		for _, marker := range scriptMarkers {
			if bytes.Contains(content, marker) {
				return unsafe(ports.ClassificationScript, "embedded active content"), nil
			}
		}
	}
	if ext == ".html" || ext == ".htm" || ext == ".svg" {
		if bytes.Contains(bytes.ToLower(content), []byte("<script")) {
			return unsafe(ports.ClassificationScript, "embedded script"), nil
		}
	}
	return ports.ScanResult{Safe: true, Classification: ports.ClassificationClean}, nil
}

func unsafe(c ports.Classification, details string) ports.ScanResult {
	return ports.ScanResult{Safe: false, Classification: c, Details: details}
}

func hasAnyPrefix(content []byte, prefixes [][]byte) bool {
	for _, p := range prefixes {
		if bytes.HasPrefix(content, p) {
			return true
		}
	}
	return false
}
