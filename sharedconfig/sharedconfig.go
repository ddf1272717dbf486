// Package sharedconfig holds the default locations shared by the pihealth
// binaries, so the view, pull and api tools find the daemon's database
// without extra flags.
package sharedconfig

import (
	"path/filepath"

	"github.com/decred/dcrd/dcrutil"
)

const (
	DefaultConfigFilename = "pihealthd.conf"
	DefaultDataDirname    = "data"
	DefaultDBFilename     = "pihealth.db"
)

var (
	// DefaultHomeDir points to the pihealth daemon home directory.
	DefaultHomeDir = dcrutil.AppDataDir("pihealthd", false)

	// DefaultConfigFile points to the pihealth daemon configuration file.
	DefaultConfigFile = filepath.Join(DefaultHomeDir, DefaultConfigFilename)

	// DefaultDataDir points to the pihealth daemon default data directory.
	DefaultDataDir = filepath.Join(DefaultHomeDir, DefaultDataDirname)

	// DefaultDBPath points to the metrics database file.
	DefaultDBPath = filepath.Join(DefaultDataDir, DefaultDBFilename)
)
