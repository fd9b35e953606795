package config

import (
	"sort"
	"time"
)

// Registry represents the entire user configuration file.
type Registry struct {
	Version  int                `yaml:"version"`
	Defaults *Defaults          `yaml:"defaults,omitempty"`
	Targets  map[string]*Target `yaml:"targets,omitempty"` // Keyed by preset name
}

// Defaults apply to every command unless a target preset or a flag
// overrides them.
type Defaults struct {
	Target      string `yaml:"target,omitempty"` // Preset used when --target is not given
	GDBPath     string `yaml:"gdb_path,omitempty"`
	ObjdumpPath string `yaml:"objdump_path,omitempty"`
	Profile     string `yaml:"profile,omitempty"` // Kernel layout profile name
	Demangle    bool   `yaml:"demangle"`
}

// Target is a named board setup: where its OpenOCD server listens and which
// kernel image runs on it.
type Target struct {
	Description string    `yaml:"description,omitempty"`
	OpenOCDHost string    `yaml:"openocd_host,omitempty"`
	OpenOCDPort int       `yaml:"openocd_port,omitempty"`
	ELF         string    `yaml:"elf,omitempty"`     // Kernel image with debug symbols
	Profile     string    `yaml:"profile,omitempty"` // Overrides Defaults.Profile
	LastUsed    time.Time `yaml:"last_used,omitempty"`
}

// Settings is the merged view of the defaults and one target preset.
type Settings struct {
	Target      string
	GDBPath     string
	ObjdumpPath string
	OpenOCDHost string
	OpenOCDPort int
	ELF         string
	Profile     string
	Demangle    bool
}

// Built-in values used when neither the file nor a flag sets one.
const (
	DefaultGDBPath     = "arm-none-eabi-gdb"
	DefaultObjdumpPath = "arm-none-eabi-objdump"
	DefaultOpenOCDHost = "localhost"
	DefaultOpenOCDPort = 3333
)

func defaultDefaults() *Defaults {
	return &Defaults{
		GDBPath:     DefaultGDBPath,
		ObjdumpPath: DefaultObjdumpPath,
	}
}

// NewRegistry creates a new Registry with default values.
func NewRegistry() *Registry {
	return &Registry{
		Version:  1,
		Defaults: defaultDefaults(),
		Targets:  make(map[string]*Target),
	}
}

// GetTarget returns nil if no preset has that name.
func (r *Registry) GetTarget(name string) *Target {
	return r.Targets[name]
}

// EnsureTarget returns the named preset, creating an empty one if needed.
func (r *Registry) EnsureTarget(name string) *Target {
	if r.Targets == nil {
		r.Targets = make(map[string]*Target)
	}
	if t, ok := r.Targets[name]; ok {
		return t
	}
	t := &Target{}
	r.Targets[name] = t
	return t
}

// RemoveTarget deletes a preset and reports whether it existed. A default
// pointing at it is cleared.
func (r *Registry) RemoveTarget(name string) bool {
	if _, ok := r.Targets[name]; !ok {
		return false
	}
	delete(r.Targets, name)
	if r.Defaults != nil && r.Defaults.Target == name {
		r.Defaults.Target = ""
	}
	return true
}

// TouchTarget records that a preset was just used.
func (r *Registry) TouchTarget(name string) {
	if t := r.GetTarget(name); t != nil {
		t.LastUsed = time.Now()
	}
}

// TargetNames returns the preset names in sorted order.
func (r *Registry) TargetNames() []string {
	names := make([]string, 0, len(r.Targets))
	for name := range r.Targets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Resolve merges the defaults with the named preset. An empty name selects
// Defaults.Target, and no preset at all is fine. Naming a preset that does
// not exist is an error.
func (r *Registry) Resolve(name string) (Settings, error) {
	d := r.Defaults
	if d == nil {
		d = defaultDefaults()
	}
	s := Settings{
		GDBPath:     or(d.GDBPath, DefaultGDBPath),
		ObjdumpPath: or(d.ObjdumpPath, DefaultObjdumpPath),
		OpenOCDHost: DefaultOpenOCDHost,
		OpenOCDPort: DefaultOpenOCDPort,
		Profile:     d.Profile,
		Demangle:    d.Demangle,
	}

	if name == "" {
		name = d.Target
	}
	if name == "" {
		return s, nil
	}
	t := r.GetTarget(name)
	if t == nil {
		return s, &UnknownTargetError{Name: name, Known: r.TargetNames()}
	}

	s.Target = name
	s.OpenOCDHost = or(t.OpenOCDHost, s.OpenOCDHost)
	if t.OpenOCDPort != 0 {
		s.OpenOCDPort = t.OpenOCDPort
	}
	s.ELF = t.ELF
	s.Profile = or(t.Profile, s.Profile)
	return s, nil
}

func or(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}
