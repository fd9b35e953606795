// Package symtab builds and queries the address to function-name table of a
// kernel image.
//
// A table is built from the text that `objdump -t` prints for an ELF file.
// Only function symbols (type flag F) are kept, and the table is sorted by
// address with a stable sort, so that two functions sharing an address
// resolve to whichever came first in the dump.
//
//	f, _ := os.Open("symbols.txt")
//	table, err := symtab.Parse(f)
//	name := table.Resolve(0x08000410)
//
// Resolution returns the function with the greatest address not above the
// query. Function ends are not recorded, so an address past the last
// function resolves to the last function, and an address below the first
// function resolves to NoSymbol.
//
// The same table is rendered as a C translation unit compiled into the
// kernel (WriteC) and as YAML consumed by the other taskscope commands
// (WriteYAML, LoadYAML).
package symtab
