package netlist

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

type parseOptions struct {
	values map[string]float64
}

// Option configures Parse.
type Option func(*parseOptions)

// WithValues overrides element values by kind. Recognised keys are "Ri",
// "Rc", "Rb", "Rl", "I" and "V"; every element of the matching kind takes
// the given value. Text netlists may omit the value column for kinds that
// have an override.
func WithValues(values map[string]float64) Option {
	return func(o *parseOptions) {
		if o.values == nil {
			o.values = make(map[string]float64, len(values))
		}
		for k, v := range values {
			o.values[k] = v
		}
	}
}

// Parse reads a netlist in either CSV or whitespace separated form. The
// format is chosen from the first content line: a comma selects CSV.
func Parse(r io.Reader, opts ...Option) (*Netlist, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNetlistFormat, err)
	}
	if isCSV(data) {
		return ParseCSV(bytes.NewReader(data), opts...)
	}
	return ParseText(bytes.NewReader(data), opts...)
}

// ParseFile picks the format from the file extension, falling back to
// content detection.
func ParseFile(path string, opts ...Option) (*Netlist, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return ParseCSV(f, opts...)
	case ".cir", ".net", ".txt":
		return ParseText(f, opts...)
	}
	return Parse(f, opts...)
}

func isCSV(data []byte) bool {
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || isComment(line) {
			continue
		}
		return strings.Contains(line, ",")
	}
	return false
}

// blankComments empties every comment line so the CSV reader skips it.
func blankComments(data []byte) []byte {
	lines := bytes.Split(data, []byte("\n"))
	for i, line := range lines {
		if isComment(strings.TrimSpace(string(line))) {
			lines[i] = nil
		}
	}
	return bytes.Join(lines, []byte("\n"))
}

func isComment(line string) bool {
	return strings.HasPrefix(line, "#") || strings.HasPrefix(line, "*") || strings.HasPrefix(line, ";")
}

// ParseCSV reads a table with a header row naming at least the columns
// desc, node1, node2 and value, in any order.
func ParseCSV(r io.Reader, opts ...Option) (*Netlist, error) {
	o := collect(opts)

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNetlistFormat, err)
	}
	cr := csv.NewReader(bytes.NewReader(blankComments(data)))
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: empty input", ErrNetlistFormat)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNetlistFormat, err)
	}

	cols := make(map[string]int, len(header))
	for i, h := range header {
		name := strings.ToLower(strings.TrimSpace(h))
		if name == "description" {
			name = "desc"
		}
		cols[name] = i
	}
	for _, want := range []string{"desc", "node1", "node2", "value"} {
		if _, ok := cols[want]; !ok {
			return nil, fmt.Errorf("%w: missing column %q", ErrNetlistFormat, want)
		}
	}

	var elements []Element
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrNetlistFormat, err)
		}
		field := func(name string) string {
			i := cols[name]
			if i >= len(rec) {
				return ""
			}
			return strings.TrimSpace(rec[i])
		}
		e, err := o.element(field("desc"), field("node1"), field("node2"), field("value"), true)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %w", ErrNetlistFormat, line, err)
		}
		elements = append(elements, e)
	}
	return finish(elements)
}

// ParseText reads one element per line as "desc node1 node2 value". Lines
// starting with '#', '*' or ';' are comments.
func ParseText(r io.Reader, opts ...Option) (*Netlist, error) {
	o := collect(opts)

	var elements []Element
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || isComment(text) {
			continue
		}
		fields := strings.Fields(text)
		if len(fields) < 3 {
			return nil, fmt.Errorf("%w: line %d: expected desc node1 node2 value, got %q", ErrNetlistFormat, line, text)
		}
		value := ""
		if len(fields) > 3 {
			value = fields[3]
		}
		e, err := o.element(fields[0], fields[1], fields[2], value, false)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %w", ErrNetlistFormat, line, err)
		}
		elements = append(elements, e)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNetlistFormat, err)
	}
	return finish(elements)
}

func collect(opts []Option) *parseOptions {
	o := &parseOptions{}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *parseOptions) element(desc, n1, n2, value string, strictValue bool) (Element, error) {
	kind, ok := KindOf(desc)
	if !ok {
		return Element{}, fmt.Errorf("unknown element %q", desc)
	}
	node1, err := strconv.Atoi(n1)
	if err != nil {
		return Element{}, fmt.Errorf("%s: node1 %q is not an integer", desc, n1)
	}
	node2, err := strconv.Atoi(n2)
	if err != nil {
		return Element{}, fmt.Errorf("%s: node2 %q is not an integer", desc, n2)
	}

	override, hasOverride := o.values[kind.overrideKey()]
	v, err := strconv.ParseFloat(value, 64)
	switch {
	case hasOverride:
		if err != nil && strictValue && value != "" {
			return Element{}, fmt.Errorf("%s: value %q is not a number", desc, value)
		}
		v = override
	case err != nil:
		return Element{}, fmt.Errorf("%s: value %q is not a number", desc, value)
	}

	return Element{Desc: desc, Node1: node1, Node2: node2, Value: v}, nil
}

func finish(elements []Element) (*Netlist, error) {
	if len(elements) == 0 {
		return nil, fmt.Errorf("%w: no elements", ErrNetlistFormat)
	}
	nl := New(elements)
	if err := nl.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNetlistFormat, err)
	}
	return nl, nil
}
