package gdb

import (
	"fmt"
	"strconv"
	"strings"
)

// RecordKind classifies a GDB/MI output line.
type RecordKind int

const (
	RecordUnknown RecordKind = iota
	RecordResult             // ^done, ^running, ^error, ...
	RecordExec               // *stopped, *running
	RecordStatus             // +download
	RecordNotify             // =breakpoint-modified, =thread-group-started
	RecordConsole            // ~"text"
	RecordTarget             // @"text"
	RecordLog                // &"text"
	RecordPrompt             // (gdb)
)

// Record is one parsed line of MI output.
type Record struct {
	Kind RecordKind
	// Token is the command token echoed back, or -1.
	Token int
	Class string
	// Results are the comma-separated name=value pairs after the class.
	Results Tuple
	// Text is the payload of stream records.
	Text string
}

// Value is an MI value: Const, Tuple or List.
type Value interface {
	miValue()
}

// Const is a c-string value.
type Const string

// Result is a name=value pair.
type Result struct {
	Name  string
	Value Value
}

// Tuple is {name=value,...}. Field order is kept and names may repeat.
type Tuple []Result

// List is [value,...] or [name=value,...]. Elements of the second form are
// stored as single-field tuples.
type List []Value

func (Const) miValue() {}
func (Tuple) miValue() {}
func (List) miValue()  {}

// Get returns the first field called name.
func (t Tuple) Get(name string) (Value, bool) {
	for _, r := range t {
		if r.Name == name {
			return r.Value, true
		}
	}
	return nil, false
}

// String returns the c-string field called name, or "".
func (t Tuple) String(name string) string {
	if v, ok := t.Get(name); ok {
		if c, ok := v.(Const); ok {
			return string(c)
		}
	}
	return ""
}

// Tuple returns the tuple field called name.
func (t Tuple) Tuple(name string) (Tuple, bool) {
	if v, ok := t.Get(name); ok {
		tu, ok := v.(Tuple)
		return tu, ok
	}
	return nil, false
}

// List returns the list field called name.
func (t Tuple) List(name string) (List, bool) {
	if v, ok := t.Get(name); ok {
		l, ok := v.(List)
		return l, ok
	}
	return nil, false
}

// ParseRecord parses one line of MI output.
func ParseRecord(line string) (Record, error) {
	line = strings.TrimRight(line, "\r\n")
	rec := Record{Token: -1}

	if strings.TrimSpace(line) == "(gdb)" {
		rec.Kind = RecordPrompt
		return rec, nil
	}

	i := 0
	for i < len(line) && line[i] >= '0' && line[i] <= '9' {
		i++
	}
	if i > 0 {
		tok, err := strconv.Atoi(line[:i])
		if err != nil {
			return rec, fmt.Errorf("bad token in %q: %w", line, err)
		}
		rec.Token = tok
	}
	if i >= len(line) {
		return rec, fmt.Errorf("empty MI record %q", line)
	}

	p := &miParser{s: line, pos: i + 1}
	switch line[i] {
	case '~', '@', '&':
		rec.Kind = map[byte]RecordKind{'~': RecordConsole, '@': RecordTarget, '&': RecordLog}[line[i]]
		text, err := p.cstring()
		if err != nil {
			return rec, err
		}
		rec.Text = text
		return rec, nil
	case '^':
		rec.Kind = RecordResult
	case '*':
		rec.Kind = RecordExec
	case '+':
		rec.Kind = RecordStatus
	case '=':
		rec.Kind = RecordNotify
	default:
		rec.Kind = RecordUnknown
		rec.Text = line
		return rec, nil
	}

	rec.Class = p.word()
	if rec.Class == "" {
		return rec, fmt.Errorf("missing record class in %q", line)
	}
	for p.more() {
		if err := p.expect(','); err != nil {
			return rec, err
		}
		r, err := p.result()
		if err != nil {
			return rec, err
		}
		rec.Results = append(rec.Results, r)
	}
	return rec, nil
}

type miParser struct {
	s   string
	pos int
}

func (p *miParser) more() bool {
	return p.pos < len(p.s)
}

func (p *miParser) peek() byte {
	if p.pos < len(p.s) {
		return p.s[p.pos]
	}
	return 0
}

func (p *miParser) expect(c byte) error {
	if p.peek() != c {
		return fmt.Errorf("expected %q at offset %d of %q", c, p.pos, p.s)
	}
	p.pos++
	return nil
}

// word reads a variable or class name.
func (p *miParser) word() string {
	start := p.pos
	for p.more() {
		c := p.peek()
		if c == '=' || c == ',' || c == '{' || c == '}' || c == '[' || c == ']' || c == '"' {
			break
		}
		p.pos++
	}
	return p.s[start:p.pos]
}

func (p *miParser) result() (Result, error) {
	name := p.word()
	if name == "" {
		return Result{}, fmt.Errorf("missing variable name at offset %d of %q", p.pos, p.s)
	}
	if err := p.expect('='); err != nil {
		return Result{}, err
	}
	v, err := p.value()
	if err != nil {
		return Result{}, err
	}
	return Result{Name: name, Value: v}, nil
}

func (p *miParser) value() (Value, error) {
	switch p.peek() {
	case '"':
		s, err := p.cstring()
		return Const(s), err
	case '{':
		p.pos++
		var t Tuple
		for p.peek() != '}' {
			if len(t) > 0 {
				if err := p.expect(','); err != nil {
					return nil, err
				}
			}
			r, err := p.result()
			if err != nil {
				return nil, err
			}
			t = append(t, r)
		}
		p.pos++
		return t, nil
	case '[':
		p.pos++
		var l List
		for p.peek() != ']' {
			if len(l) > 0 {
				if err := p.expect(','); err != nil {
					return nil, err
				}
			}
			if !p.more() {
				return nil, fmt.Errorf("unterminated list in %q", p.s)
			}
			if c := p.peek(); c == '"' || c == '{' || c == '[' {
				v, err := p.value()
				if err != nil {
					return nil, err
				}
				l = append(l, v)
				continue
			}
			r, err := p.result()
			if err != nil {
				return nil, err
			}
			l = append(l, Tuple{r})
		}
		p.pos++
		return l, nil
	default:
		return nil, fmt.Errorf("unexpected %q at offset %d of %q", p.peek(), p.pos, p.s)
	}
}

// cstring reads a double-quoted C string with escapes.
func (p *miParser) cstring() (string, error) {
	if err := p.expect('"'); err != nil {
		return "", err
	}
	var sb strings.Builder
	for {
		if !p.more() {
			return "", fmt.Errorf("unterminated string in %q", p.s)
		}
		c := p.s[p.pos]
		p.pos++
		switch c {
		case '"':
			return sb.String(), nil
		case '\\':
			if !p.more() {
				return "", fmt.Errorf("dangling escape in %q", p.s)
			}
			e := p.s[p.pos]
			p.pos++
			switch e {
			case 'n':
				sb.WriteByte('\n')
			case 't':
				sb.WriteByte('\t')
			case 'r':
				sb.WriteByte('\r')
			case 'e':
				sb.WriteByte(0x1b)
			case 'a':
				sb.WriteByte('\a')
			case 'b':
				sb.WriteByte('\b')
			case 'f':
				sb.WriteByte('\f')
			case 'v':
				sb.WriteByte('\v')
			case '0', '1', '2', '3', '4', '5', '6', '7':
				n := int(e - '0')
				for k := 0; k < 2 && p.more() && p.peek() >= '0' && p.peek() <= '7'; k++ {
					n = n*8 + int(p.peek()-'0')
					p.pos++
				}
				sb.WriteByte(byte(n))
			default:
				sb.WriteByte(e)
			}
		default:
			sb.WriteByte(c)
		}
	}
}

// quote renders s as an MI c-string argument.
func quote(s string) string {
	var sb strings.Builder
	sb.WriteByte('"')
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '"', '\\':
			sb.WriteByte('\\')
			sb.WriteByte(c)
		case '\n':
			sb.WriteString(`\n`)
		default:
			sb.WriteByte(c)
		}
	}
	sb.WriteByte('"')
	return sb.String()
}
