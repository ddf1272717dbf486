package main

import (
	"bytes"
	"flag"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/jrick/flagfile"
	"github.com/pihealth/pihealth/sharedconfig"
	"github.com/pihealth/pihealth/util"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

var (
	defaultHomeDir    = sharedconfig.DefaultHomeDir
	defaultConfigFile = filepath.Join(defaultHomeDir, "pihealthpull.conf")
	defaultIdentity   = filepath.Join(os.Getenv("HOME"), ".ssh", "id_ed25519")
	defaultKnownHosts = filepath.Join(os.Getenv("HOME"), ".ssh", "known_hosts")
)

func versionString() string {
	return "0.2.0"
}

type config struct {
	Config      flag.Value
	ShowVersion bool
	Host        string
	User        string
	Port        int
	Identity    string
	RemotePath  string
	LocalPath   string
	Insecure    bool
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage of pihealthpull:
  pihealthpull [flags]
Flags:
  -C value
        config file
  -host string
        hostname or address of the monitored machine (default "rpi4")
  -user string
        ssh user (default "admin")
  -port int
        ssh port (default 22)
  -i string
        ssh identity file
  -remote string
        remote database path
  -local string
        local path to save the database
  -insecure
        skip host key verification
  -V	Show version and exit
`)
	os.Exit(2)
}

func (c *config) FlagSet() *flag.FlagSet {
	fs := flag.NewFlagSet("pihealthpull", flag.ExitOnError)
	configParser := flagfile.Parser{AllowUnknown: false}
	c.Config = configParser.ConfigFlag(fs)
	fs.Var(c.Config, "C", "config file")
	fs.BoolVar(&c.ShowVersion, "V", false, "")
	fs.StringVar(&c.Host, "host", "rpi4", "")
	fs.StringVar(&c.User, "user", "admin", "")
	fs.IntVar(&c.Port, "port", 22, "")
	fs.StringVar(&c.Identity, "i", defaultIdentity, "")
	fs.StringVar(&c.RemotePath, "remote", sharedconfig.DefaultDBPath, "")
	fs.StringVar(&c.LocalPath, "local", sharedconfig.DefaultDBPath, "")
	fs.BoolVar(&c.Insecure, "insecure", false, "")
	fs.Usage = usage
	return fs
}

func loadConfig() (*config, []string, error) {
	cfg := &config{}
	fs := cfg.FlagSet()
	args := os.Args[1:]

	if len(args) >= 2 && args[0] == "-C" {
		err := cfg.Config.Set(args[1])
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid value %q for flag "+
				"-C: %s\n", args[1], err)
			os.Exit(1)
		}
		args = args[2:]
	} else if util.FileExists(defaultConfigFile) {
		err := cfg.Config.Set(defaultConfigFile)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}

	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}
	return cfg, fs.Args(), nil
}

// hostKeyCallback returns the host key verifier. The known_hosts file is
// used unless -insecure was given.
func hostKeyCallback(cfg *config) (ssh.HostKeyCallback, error) {
	if cfg.Insecure {
		return ssh.InsecureIgnoreHostKey(), nil
	}
	return knownhosts.New(defaultKnownHosts)
}

// pull copies the remote database file to the local path. The remote file is
// streamed through the ssh session and written atomically so an interrupted
// transfer never clobbers a previous copy. The database file is
// self-contained, a wholesale copy is a consistent snapshot at rest.
func pull(cfg *config) error {
	hostKey, err := hostKeyCallback(cfg)
	if err != nil {
		return fmt.Errorf("host key verification: %w", err)
	}
	if !util.FileExists(cfg.Identity) {
		return fmt.Errorf("identity file %v does not exist", cfg.Identity)
	}
	auth, err := util.PublicKeyFile(cfg.Identity)
	if err != nil {
		return fmt.Errorf("identity %v: %w", cfg.Identity, err)
	}

	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	client, err := ssh.Dial("tcp", addr, &ssh.ClientConfig{
		User:            cfg.User,
		Auth:            []ssh.AuthMethod{auth},
		HostKeyCallback: hostKey,
		Timeout:         30 * time.Second,
	})
	if err != nil {
		return fmt.Errorf("dial %v: %w", addr, err)
	}
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return err
	}
	defer session.Close()

	// The database is single-host telemetry so buffering it is fine, and
	// it guarantees the local copy is only replaced once the remote read
	// completed successfully.
	out, err := session.Output(fmt.Sprintf("cat %q", cfg.RemotePath))
	if err != nil {
		return fmt.Errorf("remote read %v: %w", cfg.RemotePath, err)
	}
	if err := util.WriteFileAtomic(cfg.LocalPath, bytes.NewReader(out)); err != nil {
		return err
	}

	fmt.Printf("Pulled %v:%v to %v\n", cfg.Host, cfg.RemotePath,
		cfg.LocalPath)
	return nil
}

func main() {
	cfg, args, err := loadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if cfg.ShowVersion {
		fmt.Println("pihealthpull version", versionString())
		os.Exit(0)
	}
	if len(args) != 0 {
		usage()
	}
	if err := pull(cfg); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
