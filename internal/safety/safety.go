// Package safety scans upload content for byte sequences that indicate
// active content or smuggled executables. It is a heuristic screen, not a
// malware scanner: every check is a raw substring match.
package safety

import (
	"bytes"
	"fmt"
	"io"

	"github.com/dmitrijs2005/filevault/internal/signature"
)

// Verdict is the outcome of a scan. Reason is always set and, for unsafe
// content, names the first pattern that matched.
type Verdict struct {
	Safe   bool
	Reason string
}

func safe(reason string) Verdict   { return Verdict{Safe: true, Reason: reason} }
func unsafe(reason string) Verdict { return Verdict{Safe: false, Reason: reason} }

type pattern struct {
	name  string
	bytes []byte
}

func p(s string) pattern { return pattern{name: s, bytes: []byte(s)} }

// Order matters: the first hit is the one reported.
var pdfPatterns = [...]pattern{
	p("/JavaScript"),
	p("/JS"),
	p("/OpenAction"),
	p("/AA"),
	p("/Launch"),
	p("/SubmitForm"),
	p("/ImportData"),
	p("/GoTo"),
	p("/GoToR"),
	p("/GoToE"),
	p("/URI"),
	p("/EmbeddedFile"),
	p("/RichMedia"),
	p("/Flash"),
	p("/XFA"),
}

var imagePatterns = [...]pattern{
	p("<?php"),
	p("<%"),
	p("<script"),
	p("eval("),
	p("base64_decode"),
	p("exec("),
	p("system("),
	p("passthru("),
	p("shell_exec"),
}

// Matched anywhere in the content, not just at offset 0.
var executableHeaders = [...]pattern{
	{name: "MZ", bytes: []byte{0x4D, 0x5A}},
	{name: "ELF", bytes: []byte{0x7F, 0x45, 0x4C, 0x46}},
	{name: "Mach-O", bytes: []byte{0xFE, 0xED, 0xFA, 0xCE}},
}

// Analyze scans content as type t.
func Analyze(content []byte, t signature.Type) Verdict {
	if len(content) == 0 {
		return unsafe("file stream is empty")
	}

	switch t {
	case signature.PDF:
		if hit, ok := firstMatch(content, pdfPatterns[:]); ok {
			return unsafe("PDF contains suspicious element: " + hit)
		}
		if _, ok := firstMatch(content, executableHeaders[:]); ok {
			return unsafe("PDF contains embedded executable content")
		}
		return safe("PDF is safe")
	case signature.JPG, signature.PNG:
		if hit, ok := firstMatch(content, imagePatterns[:]); ok {
			return unsafe("image contains suspicious embedded content: " + hit)
		}
		if _, ok := firstMatch(content, executableHeaders[:]); ok {
			return unsafe("image contains embedded executable content")
		}
		return safe("image is safe")
	default:
		return unsafe("unsupported file type")
	}
}

// AnalyzeReader reads r from the start and scans it as type t. Any failure
// to read produces an unsafe verdict; the read position of r is restored.
func AnalyzeReader(r io.ReadSeeker, t signature.Type) (v Verdict) {
	defer func() {
		if rec := recover(); rec != nil {
			v = unsafe(fmt.Sprintf("error analyzing file: %v", rec))
		}
	}()

	if r == nil {
		return unsafe("file stream is empty")
	}

	pos, err := r.Seek(0, io.SeekCurrent)
	if err != nil {
		return unsafe("error analyzing file: " + err.Error())
	}
	defer func() { _, _ = r.Seek(pos, io.SeekStart) }()

	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return unsafe("error analyzing file: " + err.Error())
	}
	content, err := io.ReadAll(r)
	if err != nil {
		return unsafe("error analyzing file: " + err.Error())
	}
	return Analyze(content, t)
}

func firstMatch(content []byte, patterns []pattern) (string, bool) {
	for _, pat := range patterns {
		if bytes.Contains(content, pat.bytes) {
			return pat.name, true
		}
	}
	return "", false
}
