// Package profile holds the catalog of kernel layouts taskscope knows how
// to inspect: where the current task lives, how task records and buddy
// allocators are laid out, and which code locations mark context switches.
package profile

import (
	_ "embed"
	"fmt"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/muurk/taskscope/internal/frame"
	"github.com/muurk/taskscope/internal/target"
)

//go:embed profiles/profiles.yaml
var profilesYAML []byte

// DefaultName is the profile used when none is selected.
const DefaultName = "f4os"

// Profile describes one kernel revision on one board.
type Profile struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Arch        string `yaml:"arch"`
	Board       string `yaml:"board"`
	Verified    bool   `yaml:"verified"`

	Task      TaskLayout  `yaml:"task"`
	Buddy     BuddyLayout `yaml:"buddy"`
	Locations Locations   `yaml:"locations"`
	Acquire   Acquire     `yaml:"acquire"`
	I2C       []string    `yaml:"i2c"`
	Memory    Memory      `yaml:"memory"`

	Notes string `yaml:"notes"`
}

// TaskLayout describes the current-task global and the task record.
type TaskLayout struct {
	// Current is the symbol holding the current task pointer.
	Current string `yaml:"current"`
	// NodeTask is set when Current points at a list node that in turn
	// points at the task record.
	NodeTask *target.Field `yaml:"node_task,omitempty"`
	Entry    target.Field  `yaml:"entry"`
	StackTop target.Field  `yaml:"stack_top"`
	// Link is the offset of the ring node inside the record Current
	// points at. Kernels that thread tasks through an embedded list
	// member have a non-zero Link.
	Link uint32 `yaml:"link,omitempty"`
	// RingHead is the symbol of the list head the ring runs through, if
	// the kernel keeps one. It is not a task.
	RingHead string `yaml:"ring_head,omitempty"`
	// Next is the ring link, relative to the ring node.
	Next target.Field `yaml:"next"`
}

// RingNode returns the ring node of the record at addr.
func (l TaskLayout) RingNode(addr uint32) uint32 {
	return addr + l.Link
}

// Record returns the record containing the ring node at node.
func (l TaskLayout) Record(node uint32) uint32 {
	return node - l.Link
}

// Buddy allocator styles.
const (
	// BuddyStruct is a struct buddy with min/max orders and a pointer to
	// its bucket array.
	BuddyStruct = "struct"
	// BuddyArray is a bare global array of bucket heads with orders
	// fixed at build time.
	BuddyArray = "array"
)

// BuddyLayout describes a buddy allocator and its free-list nodes.
type BuddyLayout struct {
	Style      string   `yaml:"style"`
	Allocators []string `yaml:"allocators"`

	MaxOrder target.Field `yaml:"max_order"`
	MinOrder target.Field `yaml:"min_order"`
	List     target.Field `yaml:"list"`

	FixedMinOrder int `yaml:"fixed_min_order"`
	FixedMaxOrder int `yaml:"fixed_max_order"`

	NodeOrder target.Field `yaml:"node_order"`
	NodeNext  target.Field `yaml:"node_next"`
}

// Locations are the code points the interrupt and restore watchers break on.
type Locations struct {
	ContextSwitch  string `yaml:"context_switch"`
	SupervisorCall string `yaml:"supervisor_call"`
	TaskSwap       string `yaml:"task_swap"`
	Restore        string `yaml:"restore"`
}

// Acquire holds the three probe points of the semaphore acquire path.
type Acquire struct {
	Attempt string `yaml:"attempt"`
	Fail    string `yaml:"fail"`
	Succeed string `yaml:"succeed"`
}

// Memory is the RAM region dumped for offline inspection.
type Memory struct {
	RAMBase uint32 `yaml:"ram_base"`
	RAMSize uint32 `yaml:"ram_size"`
}

// UnknownProfileError is returned for a profile name not in the catalog.
type UnknownProfileError struct {
	Name      string
	Available []string
}

func (e *UnknownProfileError) Error() string {
	return fmt.Sprintf("unknown kernel profile %q (available: %v)", e.Name, e.Available)
}

// Catalog holds every known profile.
type Catalog struct {
	Profiles []*Profile

	index map[string]*Profile
	mu    sync.RWMutex
}

type catalogContainer struct {
	Profiles []*Profile `yaml:"profiles"`
}

var (
	globalCatalog     *Catalog
	globalCatalogOnce sync.Once
	globalCatalogErr  error
)

// Load returns the embedded catalog. It is parsed once.
func Load() (*Catalog, error) {
	globalCatalogOnce.Do(func() {
		globalCatalog, globalCatalogErr = Parse(profilesYAML)
	})
	return globalCatalog, globalCatalogErr
}

// Parse builds a catalog from YAML and validates every profile in it.
func Parse(data []byte) (*Catalog, error) {
	var container catalogContainer
	if err := yaml.Unmarshal(data, &container); err != nil {
		return nil, fmt.Errorf("failed to parse profiles: %w", err)
	}

	c := &Catalog{
		Profiles: container.Profiles,
		index:    make(map[string]*Profile, len(container.Profiles)),
	}
	for _, p := range c.Profiles {
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("profile %q: %w", p.Name, err)
		}
		if _, dup := c.index[p.Name]; dup {
			return nil, fmt.Errorf("duplicate profile %q", p.Name)
		}
		c.index[p.Name] = p
	}
	return c, nil
}

// Get returns the named profile.
func (c *Catalog) Get(name string) (*Profile, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	p, ok := c.index[name]
	if !ok {
		return nil, &UnknownProfileError{Name: name, Available: c.namesLocked()}
	}
	return p, nil
}

// Names returns every profile name, sorted.
func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.namesLocked()
}

func (c *Catalog) namesLocked() []string {
	names := make([]string, 0, len(c.index))
	for name := range c.index {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Lookup loads the embedded catalog and returns the named profile.
func Lookup(name string) (*Profile, error) {
	c, err := Load()
	if err != nil {
		return nil, err
	}
	if name == "" {
		name = DefaultName
	}
	return c.Get(name)
}

func validField(f target.Field) bool {
	switch f.Size {
	case 1, 2, 4:
		return f.Offset >= 0
	}
	return false
}

// Validate checks that the profile is usable.
func (p *Profile) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("missing name")
	}
	if _, err := frame.LookupArch(p.Arch); err != nil {
		return err
	}
	if p.Task.Current == "" {
		return fmt.Errorf("task.current is required")
	}
	for name, f := range map[string]target.Field{
		"task.entry":       p.Task.Entry,
		"task.stack_top":   p.Task.StackTop,
		"task.next":        p.Task.Next,
		"buddy.node_order": p.Buddy.NodeOrder,
		"buddy.node_next":  p.Buddy.NodeNext,
	} {
		if !validField(f) {
			return fmt.Errorf("%s: invalid field %+v", name, f)
		}
	}
	if p.Task.Link%target.WordSize != 0 {
		return fmt.Errorf("task.link: offset %d is not word aligned", p.Task.Link)
	}
	if p.Task.NodeTask != nil && !validField(*p.Task.NodeTask) {
		return fmt.Errorf("task.node_task: invalid field %+v", *p.Task.NodeTask)
	}

	switch p.Buddy.Style {
	case BuddyStruct:
		for name, f := range map[string]target.Field{
			"buddy.max_order": p.Buddy.MaxOrder,
			"buddy.min_order": p.Buddy.MinOrder,
			"buddy.list":      p.Buddy.List,
		} {
			if !validField(f) {
				return fmt.Errorf("%s: invalid field %+v", name, f)
			}
		}
	case BuddyArray:
		if p.Buddy.FixedMinOrder < 0 || p.Buddy.FixedMaxOrder < p.Buddy.FixedMinOrder {
			return fmt.Errorf("buddy: invalid fixed order range [%d, %d]",
				p.Buddy.FixedMinOrder, p.Buddy.FixedMaxOrder)
		}
	default:
		return fmt.Errorf("buddy.style: unknown style %q", p.Buddy.Style)
	}
	return nil
}

// Architecture returns the frame geometry of the profile's processor.
func (p *Profile) Architecture() *frame.Arch {
	a, err := frame.LookupArch(p.Arch)
	if err != nil {
		// Validate rejects profiles with unknown architectures.
		panic(err)
	}
	return a
}

func (p *Profile) String() string {
	verified := ""
	if p.Verified {
		verified = " (verified)"
	}
	return fmt.Sprintf("%s - %s [%s/%s]%s", p.Name, p.Description, p.Arch, p.Board, verified)
}

// FormatLayout renders the profile for the profiles command.
func (p *Profile) FormatLayout() string {
	indirection := "none"
	if p.Task.NodeTask != nil {
		indirection = fmt.Sprintf("+%d", p.Task.NodeTask.Offset)
	}
	ringHead := ""
	if p.Task.RingHead != "" {
		ringHead = fmt.Sprintf(" (head %s)", p.Task.RingHead)
	}
	return fmt.Sprintf(`Task:
  current:        %s
  node->task:     %s
  entry:          +%d
  stack_top:      +%d
  ring node:      +%d%s
  next:           node+%d

Buddy (%s):
  allocators:     %v
  node order:     +%d
  node next:      +%d

Locations:
  context switch: %s
  supervisor call: %s
  task swap:      %s
  restore:        %s

Memory:
  ram:            0x%08x (+0x%x)`,
		p.Task.Current, indirection, p.Task.Entry.Offset, p.Task.StackTop.Offset, p.Task.Link, ringHead, p.Task.Next.Offset,
		p.Buddy.Style, p.Buddy.Allocators, p.Buddy.NodeOrder.Offset, p.Buddy.NodeNext.Offset,
		p.Locations.ContextSwitch, p.Locations.SupervisorCall, p.Locations.TaskSwap, p.Locations.Restore,
		p.Memory.RAMBase, p.Memory.RAMSize,
	)
}
