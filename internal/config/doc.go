// Package config manages the taskscope user configuration file.
//
// The file holds named target presets (which OpenOCD server to talk to and
// which kernel image runs on the board) and defaults for the toolchain
// paths and kernel layout profile. Command-line flags override both.
//
// # Configuration File Location
//
//   - $TASKSCOPE_CONFIG, if set
//   - Linux: $XDG_CONFIG_HOME/taskscope/config.yaml or $HOME/.config/taskscope/config.yaml
//   - macOS: $HOME/.config/taskscope/config.yaml
//   - Windows: %LOCALAPPDATA%\taskscope\config.yaml
//
// # Example
//
//	version: 1
//	defaults:
//	  target: discovery
//	  profile: f4os
//	targets:
//	  discovery:
//	    openocd_host: localhost
//	    openocd_port: 3333
//	    elf: build/f4os.elf
//	  bench:
//	    openocd_host: 10.0.0.12
//	    elf: legacy/f4os.elf
//	    profile: f4os-legacy
//
// # Thread Safety
//
// The global registry is loaded once with sync.Once. Writes go through a
// temporary file and a rename, guarded by a mutex.
package config
