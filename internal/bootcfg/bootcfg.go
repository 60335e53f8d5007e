// Package bootcfg reads the boot manifest: the root device, its
// filesystem type, the init binary's path, the initial working
// directory, and the initial TTY device -- the sole boot arguments
// the core recognizes per design §6. Device-tree parsing and general
// CLI argument parsing remain out of scope; this just decodes the
// small TOML document the loader hands the core.
package bootcfg

import (
	"fmt"

	"github.com/BurntSushi/toml"
)

// Config is the decoded boot manifest.
type Config struct {
	RootDevice string `toml:"root_device"`
	RootFSType string `toml:"root_fstype"`
	InitPath   string `toml:"init_path"`
	InitCwd    string `toml:"init_cwd"`
	TTYDevice  string `toml:"tty_device"`
}

// Default returns the build-time default manifest, used when no boot
// manifest is supplied.
func Default() Config {
	return Config{
		RootDevice: "virtio0",
		RootFSType: "ext4",
		InitPath:   "/sbin/init",
		InitCwd:    "/",
		TTYDevice:  "uart0",
	}
}

// Parse decodes a TOML boot manifest, filling in defaults for any
// field the manifest leaves unset.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if _, err := toml.Decode(string(data), &cfg); err != nil {
		return Config{}, fmt.Errorf("bootcfg: decode manifest: %w", err)
	}
	return cfg, nil
}
