// Package toon encodes and decodes the binding manifest in TOON
// (Token-Oriented Object Notation), with JSON as an alternative format.
package toon

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/phobologic/bindgen/internal/model"
)

var (
	needsQuoting = regexp.MustCompile(`[,:"\\{}\[\]]`)
	looksNumeric = regexp.MustCompile(`^-?(?:0|[1-9]\d*)(?:\.\d+)?$`)
	keywords     = map[string]struct{}{
		"true":  {},
		"false": {},
		"null":  {},
	}
	tableHeader = regexp.MustCompile(`^(\w+)\[(\d+)\]\{([^}]*)\}:$`)
)

var bindingColumns = []string{"binding", "kind", "qualname", "signature", "header", "line"}

// Encode converts a manifest into TOON format.
func Encode(m *model.Manifest) string {
	var parts []string

	parts = append(parts, fmt.Sprintf("module: %s", encodeValue(m.Module)))

	rows := make([][]string, 0, len(m.Entries))
	for i := range m.Entries {
		e := &m.Entries[i]
		rows = append(rows, []string{
			e.Binding,
			string(e.Kind),
			e.QualName,
			e.Signature,
			e.Header,
			strconv.Itoa(e.Line),
		})
	}
	parts = append(parts, Tabular("bindings", bindingColumns, rows))

	return strings.Join(parts, "\n") + "\n"
}

// Decode parses a manifest written by Encode.
func Decode(r io.Reader) (*model.Manifest, error) {
	sc := bufio.NewScanner(r)
	m := &model.Manifest{}
	lineNo := 0
	next := func() (string, bool) {
		for sc.Scan() {
			lineNo++
			if strings.TrimSpace(sc.Text()) != "" {
				return sc.Text(), true
			}
		}
		return "", false
	}

	line, ok := next()
	if !ok {
		return nil, errors.New("empty manifest")
	}
	value, found := strings.CutPrefix(line, "module: ")
	if !found {
		return nil, errors.Newf("line %d: expected module, got %q", lineNo, line)
	}
	module, err := decodeCells(value)
	if err != nil || len(module) != 1 {
		return nil, errors.Newf("line %d: bad module value %q", lineNo, value)
	}
	m.Module = module[0]

	line, ok = next()
	if !ok {
		return nil, errors.New("missing bindings table")
	}
	match := tableHeader.FindStringSubmatch(line)
	if match == nil || match[1] != "bindings" {
		return nil, errors.Newf("line %d: expected bindings table, got %q", lineNo, line)
	}
	if match[3] != strings.Join(bindingColumns, ",") {
		return nil, errors.Newf("line %d: unexpected columns %q", lineNo, match[3])
	}
	n, _ := strconv.Atoi(match[2])

	for i := 0; i < n; i++ {
		line, ok = next()
		if !ok {
			return nil, errors.Newf("bindings table declares %d rows, found %d", n, i)
		}
		cells, err := decodeCells(strings.TrimPrefix(line, "  "))
		if err != nil {
			return nil, errors.Wrapf(err, "line %d", lineNo)
		}
		if len(cells) != len(bindingColumns) {
			return nil, errors.Newf("line %d: expected %d cells, got %d", lineNo, len(bindingColumns), len(cells))
		}
		lineNum, err := strconv.Atoi(cells[5])
		if err != nil {
			return nil, errors.Wrapf(err, "line %d: bad line number", lineNo)
		}
		m.Entries = append(m.Entries, model.ManifestEntry{
			Binding:   cells[0],
			Kind:      model.Kind(cells[1]),
			QualName:  cells[2],
			Signature: cells[3],
			Header:    cells[4],
			Line:      lineNum,
		})
	}
	if line, ok := next(); ok {
		return nil, errors.Newf("line %d: unexpected content %q", lineNo, line)
	}
	return m, errors.Wrap(sc.Err(), "reading manifest")
}

// EncodeJSON writes the manifest as indented JSON.
func EncodeJSON(w io.Writer, m *model.Manifest) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return errors.Wrap(enc.Encode(m), "encoding manifest")
}

// DecodeJSON reads a manifest written by EncodeJSON.
func DecodeJSON(r io.Reader) (*model.Manifest, error) {
	m := &model.Manifest{}
	if err := json.NewDecoder(r).Decode(m); err != nil {
		return nil, errors.Wrap(err, "decoding manifest")
	}
	return m, nil
}

// Tabular renders one TOON table.
func Tabular(name string, columns []string, rows [][]string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s[%d]{%s}:", name, len(rows), strings.Join(columns, ","))
	for _, row := range rows {
		encoded := make([]string, len(row))
		for i, cell := range row {
			encoded[i] = encodeValue(cell)
		}
		fmt.Fprintf(&b, "\n  %s", strings.Join(encoded, ","))
	}
	return b.String()
}

func encodeValue(value string) string {
	if value == "" {
		return `""`
	}

	if value != strings.TrimSpace(value) {
		return quote(value)
	}

	if strings.ContainsAny(value, "\n\r\t") {
		return quote(value)
	}

	if _, ok := keywords[strings.ToLower(value)]; ok {
		return quote(value)
	}

	if looksNumeric.MatchString(value) {
		return value
	}

	if needsQuoting.MatchString(value) {
		return quote(value)
	}

	if strings.HasPrefix(value, "-") {
		return quote(value)
	}

	return value
}

func quote(value string) string {
	escaped := strings.ReplaceAll(value, `\`, `\\`)
	escaped = strings.ReplaceAll(escaped, `"`, `\"`)
	escaped = strings.ReplaceAll(escaped, "\n", `\n`)
	escaped = strings.ReplaceAll(escaped, "\r", `\r`)
	escaped = strings.ReplaceAll(escaped, "\t", `\t`)
	return `"` + escaped + `"`
}

// decodeCells splits a row on commas outside quotes and unescapes quoted
// cells.
func decodeCells(row string) ([]string, error) {
	var cells []string
	var cur strings.Builder
	quoted, inQuote, escaped := false, false, false

	flush := func() {
		cells = append(cells, cur.String())
		cur.Reset()
		quoted = false
	}
	for i := 0; i < len(row); i++ {
		ch := row[i]
		switch {
		case escaped:
			switch ch {
			case 'n':
				cur.WriteByte('\n')
			case 'r':
				cur.WriteByte('\r')
			case 't':
				cur.WriteByte('\t')
			default:
				cur.WriteByte(ch)
			}
			escaped = false
		case inQuote && ch == '\\':
			escaped = true
		case inQuote && ch == '"':
			inQuote = false
		case inQuote:
			cur.WriteByte(ch)
		case ch == '"' && cur.Len() == 0 && !quoted:
			inQuote, quoted = true, true
		case ch == ',':
			flush()
		default:
			cur.WriteByte(ch)
		}
	}
	if inQuote {
		return nil, errors.Newf("unterminated quote in %q", row)
	}
	flush()
	return cells, nil
}
