package symtab

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strconv"
)

// objdumpLine matches one row of `objdump -t` output for an ELF file:
//
//	08000190 g     F .text	00000024 main
//
// address, seven flag characters (scope, strength, constructor, warning,
// indirect, debug, type), section, size or alignment, name.
var objdumpLine = regexp.MustCompile(
	`^([0-9a-fA-F]+)\s(.)(.)(.)(.)(.)(.)(.)\s(.+)\s([0-9a-fA-F]+)\s(.+)`)

const (
	groupAddress = 1
	groupType    = 8
	groupName    = 11
)

// functionType is the type flag objdump prints for function symbols.
const functionType = "F"

// Parse reads objdump symbol table text and builds a table of its function
// symbols. Lines that do not look like symbol rows, or whose address does
// not fit in 32 bits, are skipped.
func Parse(r io.Reader) (*Table, error) {
	var entries []Entry
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		e, ok := ParseLine(scanner.Text())
		if ok {
			entries = append(entries, e)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading symbol dump: %w", err)
	}
	return NewTable(entries), nil
}

// ParseLine parses a single dump row. It reports false for rows that are
// malformed or are not function symbols.
func ParseLine(line string) (Entry, bool) {
	m := objdumpLine.FindStringSubmatch(line)
	if m == nil || m[groupType] != functionType {
		return Entry{}, false
	}
	addr, err := strconv.ParseUint(m[groupAddress], 16, 32)
	if err != nil {
		return Entry{}, false
	}
	return Entry{Address: uint32(addr), Name: m[groupName]}, true
}
