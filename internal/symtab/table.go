package symtab

import (
	"slices"
	"sort"
)

// NoSymbol is what Resolve returns for an address below every known
// function, or when the table is empty.
const NoSymbol = "??"

// Entry is one function symbol.
type Entry struct {
	Address uint32 `yaml:"address"`
	Name    string `yaml:"name"`
}

// Table is an immutable, address-sorted set of function symbols.
type Table struct {
	entries []Entry
	byName  map[string]uint32
}

// NewTable sorts entries by address and returns a table over them. The sort
// is stable. Entries with an empty name are dropped.
func NewTable(entries []Entry) *Table {
	sorted := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if e.Name == "" {
			continue
		}
		sorted = append(sorted, e)
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Address < sorted[j].Address
	})

	byName := make(map[string]uint32, len(sorted))
	for _, e := range sorted {
		if _, ok := byName[e.Name]; !ok {
			byName[e.Name] = e.Address
		}
	}
	return &Table{entries: sorted, byName: byName}
}

// Len returns the number of symbols.
func (t *Table) Len() int {
	return len(t.entries)
}

// Entries returns a copy of the sorted symbols.
func (t *Table) Entries() []Entry {
	return slices.Clone(t.entries)
}

// Find returns the entry with the greatest address <= addr.
func (t *Table) Find(addr uint32) (Entry, bool) {
	i := sort.Search(len(t.entries), func(i int) bool {
		return t.entries[i].Address > addr
	})
	if i == 0 {
		return Entry{}, false
	}
	// Step back over equal addresses so the first occurrence in dump order wins.
	j := i - 1
	for j > 0 && t.entries[j-1].Address == t.entries[i-1].Address {
		j--
	}
	return t.entries[j], true
}

// Resolve returns the name of the function containing addr, or NoSymbol.
func (t *Table) Resolve(addr uint32) string {
	e, ok := t.Find(addr)
	if !ok {
		return NoSymbol
	}
	return e.Name
}

// Address returns the address of the named function.
func (t *Table) Address(name string) (uint32, bool) {
	addr, ok := t.byName[name]
	return addr, ok
}
