package symtab

import (
	_ "embed"
	"fmt"
	"io"
	"text/template"

	"gopkg.in/yaml.v3"
)

//go:embed templates/symbol_table.c.tmpl
var cTemplateText string

var cTemplate = template.Must(template.New("symbol_table.c").Parse(cTemplateText))

// Format names an output rendering of a table.
type Format string

const (
	FormatC    Format = "c"
	FormatYAML Format = "yaml"
	FormatText Format = "text"
)

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(s); f {
	case FormatC, FormatYAML, FormatText:
		return f, nil
	default:
		return "", fmt.Errorf("unknown symbol table format %q (want c, yaml or text)", s)
	}
}

// yamlDoc is the on-disk YAML shape.
type yamlDoc struct {
	Version int     `yaml:"version"`
	Count   int     `yaml:"count"`
	Symbols []Entry `yaml:"symbols"`
}

const yamlVersion = 1

// Write renders the table in the given format.
func (t *Table) Write(w io.Writer, format Format) error {
	switch format {
	case FormatC:
		return t.WriteC(w)
	case FormatYAML:
		return t.WriteYAML(w)
	case FormatText:
		return t.WriteText(w)
	default:
		return fmt.Errorf("unknown symbol table format %q", format)
	}
}

// WriteC renders the table as the C source compiled into the kernel.
func (t *Table) WriteC(w io.Writer) error {
	data := struct {
		Entries []Entry
		Len     int
	}{t.entries, len(t.entries)}
	if err := cTemplate.Execute(w, data); err != nil {
		return fmt.Errorf("rendering C symbol table: %w", err)
	}
	return nil
}

// WriteYAML renders the table as YAML.
func (t *Table) WriteYAML(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	doc := yamlDoc{Version: yamlVersion, Count: len(t.entries), Symbols: t.entries}
	if err := enc.Encode(&doc); err != nil {
		return fmt.Errorf("encoding symbol table: %w", err)
	}
	return enc.Close()
}

// WriteText renders one "0xADDR name" line per symbol.
func (t *Table) WriteText(w io.Writer) error {
	for _, e := range t.entries {
		if _, err := fmt.Fprintf(w, "0x%08x %s\n", e.Address, e.Name); err != nil {
			return err
		}
	}
	return nil
}

// LoadYAML reads a table written by WriteYAML.
func LoadYAML(r io.Reader) (*Table, error) {
	var doc yamlDoc
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decoding symbol table: %w", err)
	}
	if doc.Version != yamlVersion {
		return nil, fmt.Errorf("unsupported symbol table version: %d (expected %d)", doc.Version, yamlVersion)
	}
	return NewTable(doc.Symbols), nil
}
