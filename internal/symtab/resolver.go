package symtab

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/ianlancetaylor/demangle"
)

// DefaultCacheSize bounds the number of demangled names a Resolver keeps.
const DefaultCacheSize = 1024

// Resolver answers address queries against a table for the inspection
// commands. Unlike Table it can demangle C++ names, and it caches the
// demangled form since the same handful of functions come up on every halt.
type Resolver struct {
	table    *Table
	demangle bool
	cache    *lru.Cache[string, string]
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithDemangling turns demangling of resolved names on or off.
func WithDemangling(on bool) ResolverOption {
	return func(r *Resolver) {
		r.demangle = on
	}
}

// NewResolver wraps table.
func NewResolver(table *Table, opts ...ResolverOption) (*Resolver, error) {
	cache, err := lru.New[string, string](DefaultCacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating name cache: %w", err)
	}
	r := &Resolver{table: table, cache: cache}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Table returns the underlying table.
func (r *Resolver) Table() *Table {
	return r.table
}

// Resolve returns the (optionally demangled) name of the function
// containing addr, or NoSymbol.
func (r *Resolver) Resolve(addr uint32) string {
	name := r.table.Resolve(addr)
	if !r.demangle || name == NoSymbol {
		return name
	}
	if d, ok := r.cache.Get(name); ok {
		return d
	}
	d := demangle.Filter(name, demangle.NoParams)
	r.cache.Add(name, d)
	return d
}

// Address returns the address of the named function.
func (r *Resolver) Address(name string) (uint32, bool) {
	return r.table.Address(name)
}
