package qasm

import (
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"
)

// Dialect versions.
const (
	CanonicalVersion = "2.0"
	NewerVersion     = "3.0"
)

// CanonicalInclude is the standard gate library directive of the canonical dialect.
const CanonicalInclude = `include "qelib1.inc";`

const (
	defaultQuantumName   = "q"
	defaultClassicalName = "c"
	defaultRegisterSize  = 2
)

var (
	versionRe   = regexp.MustCompile(`^\s*OPENQASM\s+([^\s;]+)\s*;?`)
	identRe     = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
	measureRe   = regexp.MustCompile(`\bmeasure\b`)
	includeRe   = regexp.MustCompile(`^include\s+"([^"]*)"\s*;?$`)
	firstWordRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*`)
)

// stdlibIncludes are include targets replaced by CanonicalInclude in 3.0 input.
var stdlibIncludes = map[string]bool{
	"stdgates.inc": true,
	"qelib1.inc":   true,
}

// unsupported lists OpenQASM 3.0 statements that are passed through without
// being lowered.
var unsupported = map[string]bool{
	"if": true, "else": true, "for": true, "while": true, "switch": true, "case": true,
	"def": true, "defcal": true, "extern": true, "box": true, "import": true,
	"return": true, "break": true, "continue": true,
	"int": true, "uint": true, "float": true, "angle": true, "bool": true,
	"complex": true, "const": true, "duration": true, "stretch": true,
	"input": true, "output": true, "let": true,
	"ctrl": true, "negctrl": true, "inv": true, "pow": true,
}

// Diagnostic is a non-fatal note about a line that was passed through as-is.
type Diagnostic struct {
	Line      int    `json:"line"`
	Construct string `json:"construct"`
	Message   string `json:"message"`
}

// Result is the outcome of a successful Normalize call.
type Result struct {
	Text        string
	Version     string // version declared by the input
	Diagnostics []Diagnostic
}

// Normalize rewrites circuit text into the canonical dialect. Canonical input
// only gains the standard include when it is missing; 3.0 input is rewritten
// line by line. Errors are always *TranslationError.
func Normalize(text string) (Result, error) {
	if strings.TrimSpace(text) == "" {
		return Result{}, &TranslationError{Kind: ErrMissingVersion, Input: text}
	}

	lines := strings.Split(text, "\n")
	vIdx, version := findVersion(lines)
	if vIdx < 0 {
		return Result{}, &TranslationError{Kind: ErrMissingVersion, Input: text}
	}

	switch version {
	case "2", CanonicalVersion:
		return normalizeCanonical(text, lines, vIdx, version), nil
	case "3", NewerVersion:
		return normalizeNewer(text, lines, vIdx, version)
	default:
		return Result{}, &TranslationError{
			Kind:     ErrUnsupportedVersion,
			Line:     vIdx + 1,
			LineText: strings.TrimSpace(lines[vIdx]),
			Version:  version,
			Input:    text,
		}
	}
}

// findVersion returns the index of the first version statement and the
// declared version, or -1.
func findVersion(lines []string) (int, string) {
	inComment := false
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if inComment {
			inComment = !strings.Contains(trimmed, "*/")
			continue
		}
		if strings.HasPrefix(trimmed, "/*") && !strings.Contains(trimmed[2:], "*/") {
			inComment = true
			continue
		}
		if m := versionRe.FindStringSubmatch(line); m != nil {
			return i, m[1]
		}
	}
	return -1, ""
}

func normalizeCanonical(text string, lines []string, vIdx int, version string) Result {
	for _, line := range lines {
		if m := includeRe.FindStringSubmatch(strings.TrimSpace(line)); m != nil && m[1] == "qelib1.inc" {
			return Result{Text: text, Version: version}
		}
	}

	out := make([]string, 0, len(lines)+1)
	out = append(out, lines[:vIdx+1]...)
	out = append(out, CanonicalInclude)
	out = append(out, lines[vIdx+1:]...)
	return Result{Text: strings.Join(out, "\n"), Version: version}
}

// translator holds the state of one 3.0 → 2.0 pass.
type translator struct {
	input       string
	out         []string
	diagnostics []Diagnostic
	hasQuantum  bool
	hasClassic  bool
	inComment   bool
}

func normalizeNewer(text string, lines []string, vIdx int, version string) (Result, error) {
	t := &translator{input: text, out: make([]string, 0, len(lines)+4)}

	t.out = append(t.out, lines[:vIdx]...)

	m := versionRe.FindStringIndex(lines[vIdx])
	indent := leadingSpace(lines[vIdx])
	t.out = append(t.out, indent+"OPENQASM "+CanonicalVersion+";", indent+CanonicalInclude)
	headerEnd := len(t.out)

	if rest := strings.TrimSpace(lines[vIdx][m[1]:]); rest != "" {
		if err := t.line(vIdx+1, indent+rest); err != nil {
			return Result{}, err
		}
	}
	for i := vIdx + 1; i < len(lines); i++ {
		if err := t.line(i+1, lines[i]); err != nil {
			return Result{}, err
		}
	}

	// Extend the header over include directives that directly follow it.
	for headerEnd < len(t.out) && strings.HasPrefix(strings.TrimSpace(t.out[headerEnd]), "include") {
		headerEnd++
	}

	var defaults []string
	if !t.hasQuantum {
		defaults = append(defaults, fmt.Sprintf("qreg %s[%d];", defaultQuantumName, defaultRegisterSize))
	}
	if !t.hasClassic {
		defaults = append(defaults, fmt.Sprintf("creg %s[%d];", defaultClassicalName, defaultRegisterSize))
	}
	if len(defaults) > 0 {
		t.out = slices.Insert(t.out, headerEnd, defaults...)
	}

	return Result{
		Text:        strings.Join(t.out, "\n"),
		Version:     version,
		Diagnostics: t.diagnostics,
	}, nil
}

// line classifies and emits a single input line.
func (t *translator) line(num int, raw string) error {
	trimmed := strings.TrimSpace(raw)

	if t.inComment {
		if strings.Contains(trimmed, "*/") {
			t.inComment = false
		}
		t.out = append(t.out, raw)
		return nil
	}
	// A closed leading block comment is kept in front of the rewritten
	// statement.
	rest, lead := trimmed, ""
	if strings.HasPrefix(trimmed, "/*") {
		end := strings.Index(trimmed[2:], "*/")
		if end < 0 {
			t.inComment = true
			t.out = append(t.out, raw)
			return nil
		}
		end += 4
		lead = trimmed[:end] + " "
		rest = strings.TrimSpace(trimmed[end:])
	}

	code, comment := splitComment(rest)
	if code == "" {
		t.out = append(t.out, raw)
		return nil
	}
	indent := leadingSpace(raw) + lead
	emit := func(stmt string) {
		if comment != "" {
			stmt += " " + comment
		}
		t.out = append(t.out, indent+stmt)
	}

	if m := includeRe.FindStringSubmatch(code); m != nil && stdlibIncludes[m[1]] {
		return nil
	}

	switch {
	case hasKeyword(code, "qubit"):
		d, err := parseDeclaration(code, "qubit", defaultQuantumName)
		if err != nil {
			return lineError(err, t.input, num, trimmed)
		}
		if d.measure != "" {
			return lineError(ErrMalformedDeclaration, t.input, num, trimmed)
		}
		t.hasQuantum = true
		emit(fmt.Sprintf("qreg %s[%d];", d.name, d.size))
	case hasKeyword(code, "bit"):
		d, err := parseDeclaration(code, "bit", defaultClassicalName)
		if err != nil {
			return lineError(err, t.input, num, trimmed)
		}
		t.hasClassic = true
		emit(fmt.Sprintf("creg %s[%d];", d.name, d.size))
		if d.measure != "" {
			t.out = append(t.out, fmt.Sprintf("%smeasure %s -> %s;", indent, d.measure, d.name))
		}
	case hasKeyword(code, "qreg"):
		t.hasQuantum = true
		t.out = append(t.out, raw)
	case hasKeyword(code, "creg"):
		t.hasClassic = true
		t.out = append(t.out, raw)
	case unsupported[firstWordRe.FindString(code)]:
		word := firstWordRe.FindString(code)
		t.diagnostics = append(t.diagnostics, Diagnostic{
			Line:      num,
			Construct: word,
			Message:   fmt.Sprintf("OpenQASM 3 construct %q is not lowered and was passed through", word),
		})
		t.out = append(t.out, raw)
	case strings.Contains(code, "=") && measureRe.MatchString(code):
		target, source, ok := splitMeasurement(code)
		if !ok {
			return lineError(ErrMalformedMeasurement, t.input, num, trimmed)
		}
		emit(fmt.Sprintf("measure %s -> %s;", source, target))
	default:
		t.out = append(t.out, raw)
	}
	return nil
}

type declaration struct {
	name    string
	size    int
	measure string // source operand of a "= measure" initializer
}

// parseDeclaration parses "kw[N] name", "kw name" and "kw[N] name = measure src".
func parseDeclaration(code, kw, defaultName string) (declaration, error) {
	body := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(code[len(kw):]), ";"))
	d := declaration{size: 1}

	if strings.HasPrefix(body, "[") {
		end := strings.Index(body, "]")
		if end < 0 {
			return d, ErrMalformedDeclaration
		}
		n, err := strconv.Atoi(strings.TrimSpace(body[1:end]))
		if err != nil || n <= 0 {
			return d, ErrMalformedDeclaration
		}
		d.size = n
		body = strings.TrimSpace(body[end+1:])
	}

	name := body
	if i := strings.Index(body, "="); i >= 0 {
		name = strings.TrimSpace(body[:i])
		init := strings.TrimSpace(body[i+1:])
		if !hasKeyword(init, "measure") {
			return d, ErrMalformedDeclaration
		}
		d.measure = strings.TrimSpace(init[len("measure"):])
		if d.measure == "" {
			return d, ErrMalformedMeasurement
		}
	}

	switch {
	case name == "":
		d.name = defaultName
	case identRe.MatchString(name):
		d.name = name
	default:
		return d, ErrMalformedDeclaration
	}
	return d, nil
}

// splitMeasurement splits "target = measure source" into its two operands.
func splitMeasurement(code string) (target, source string, ok bool) {
	parts := strings.Split(strings.TrimSuffix(code, ";"), "=")
	if len(parts) != 2 {
		return "", "", false
	}
	target = strings.TrimSpace(parts[0])
	rhs := strings.TrimSpace(parts[1])
	if target == "" || !hasKeyword(rhs, "measure") {
		return "", "", false
	}
	source = strings.TrimSpace(rhs[len("measure"):])
	if source == "" || measureRe.MatchString(source) {
		return "", "", false
	}
	return target, source, true
}

// hasKeyword reports whether s starts with kw followed by a word boundary.
func hasKeyword(s, kw string) bool {
	if !strings.HasPrefix(s, kw) {
		return false
	}
	if len(s) == len(kw) {
		return true
	}
	switch s[len(kw)] {
	case ' ', '\t', '[', ';':
		return true
	}
	return false
}

// splitComment separates a trailing line comment from code.
func splitComment(s string) (code, comment string) {
	if i := strings.Index(s, "//"); i >= 0 {
		return strings.TrimSpace(s[:i]), s[i:]
	}
	return s, ""
}

func leadingSpace(s string) string {
	return s[:len(s)-len(strings.TrimLeft(s, " \t"))]
}
