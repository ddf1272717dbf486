package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/jrick/flagfile"
	"github.com/pihealth/pihealth/database"
	"github.com/pihealth/pihealth/database/sqlite"
	"github.com/pihealth/pihealth/series"
	"github.com/pihealth/pihealth/sharedconfig"
)

var (
	defaultConfigFile = filepath.Join(sharedconfig.DefaultHomeDir,
		"pihealthview.conf")
)

func versionString() string {
	return "0.2.0"
}

type config struct {
	Config      flag.Value
	ShowVersion bool
	DB          string
	Hours       int
	Interface   string
	AvgWindow   int
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage of pihealthview:
  pihealthview [flags]
Flags:
  -C value
        config file
  -db string
        metrics database path
  -hours int
        hours of data to display (default 24)
  -interface string
        only show the named network interface
  -avg int
        moving average window for the summary (default 5)
  -V	Show version and exit
`)
	os.Exit(2)
}

func (c *config) FlagSet() *flag.FlagSet {
	fs := flag.NewFlagSet("pihealthview", flag.ExitOnError)
	configParser := flagfile.Parser{AllowUnknown: false}
	c.Config = configParser.ConfigFlag(fs)
	fs.Var(c.Config, "C", "config file")
	fs.BoolVar(&c.ShowVersion, "V", false, "")
	fs.StringVar(&c.DB, "db", sharedconfig.DefaultDBPath, "")
	fs.IntVar(&c.Hours, "hours", 24, "")
	fs.StringVar(&c.Interface, "interface", "", "")
	fs.IntVar(&c.AvgWindow, "avg", 5, "")
	fs.Usage = usage
	return fs
}

// fileExists reports whether the named file or directory exists.
func fileExists(name string) bool {
	if _, err := os.Stat(name); err != nil {
		if os.IsNotExist(err) {
			return false
		}
	}
	return true
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
	} else if fileExists(defaultConfigFile) {
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

// optional renders a possibly absent reading with its unit.
func optional(v series.Value, format string) string {
	if !v.Present {
		return "n/a"
	}
	return fmt.Sprintf(format, v.Float64)
}

func report(cfg *config) error {
	db, err := sqlite.New(database.Config{Path: cfg.DB})
	if err != nil {
		return err
	}
	if err := db.Open(); err != nil {
		return err
	}
	defer db.Close()

	rows, err := db.ByTimespan(cfg.Hours)
	if err != nil {
		return err
	}
	metrics, network, err := series.Reshape(rows)
	if err != nil {
		return err
	}
	if len(metrics.Timestamps) == 0 {
		fmt.Printf("No data found for the last %v hours\n", cfg.Hours)
		return nil
	}

	if cfg.Interface != "" {
		network = series.FilterInterface(network, cfg.Interface)
		if len(network) == 0 {
			fmt.Printf("Interface %v not found\n", cfg.Interface)
		}
	}

	n := len(metrics.Timestamps)
	fmt.Printf("%v samples over the last %v hours (%v .. %v)\n\n",
		n, cfg.Hours,
		metrics.Timestamps[0].Format("2006-01-02 15:04:05"),
		metrics.Timestamps[n-1].Format("2006-01-02 15:04:05"))

	w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	fmt.Fprintf(w, "CPU\t%.1f%%\n", series.LatestFloat(metrics.CPUPercent))
	fmt.Fprintf(w, "Memory\t%.1f%%\n", series.LatestFloat(metrics.MemoryPercent))
	fmt.Fprintf(w, "Disk\t%.1f%%\n", series.LatestFloat(metrics.DiskPercent))
	fmt.Fprintf(w, "Temperature\t%v\n",
		optional(lastValue(metrics.Temperature), "%.1f C"))
	fmt.Fprintf(w, "CPU frequency\t%v\n",
		optional(lastValue(metrics.CPUFrequency), "%.0f MHz"))
	fmt.Fprintf(w, "Voltage\t%v\n",
		optional(lastValue(metrics.Voltage), "%.4f V"))
	fmt.Fprintf(w, "Uptime\t%.0fs\n", series.LatestFloat(metrics.Uptime))
	if avg := series.MovingAverage(metrics.Temperature, cfg.AvgWindow); len(avg) > 0 {
		fmt.Fprintf(w, "Temperature (avg %v)\t%.1f C\n", cfg.AvgWindow,
			avg[len(avg)-1])
	}
	w.Flush()

	if len(network) == 0 {
		return nil
	}
	names := make([]string, 0, len(network))
	for name := range network {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Printf("\nInterfaces:\n")
	w = tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	fmt.Fprintf(w, "  name\tsamples\tsent\trecv\terrors\tdrops\n")
	for _, name := range names {
		ifc := network[name]
		k := len(ifc.Timestamps)
		if k == 0 {
			continue
		}
		fmt.Fprintf(w, "  %v\t%v\t%v\t%v\t%v\t%v\n", name, k,
			series.FormatByteCount(ifc.BytesSent[k-1]),
			series.FormatByteCount(ifc.BytesRecv[k-1]),
			ifc.ErrIn[k-1]+ifc.ErrOut[k-1],
			ifc.DropIn[k-1]+ifc.DropOut[k-1])
	}
	w.Flush()

	return nil
}

// lastValue returns the final element of a series so absent trailing
// readings render as n/a instead of the zero sentinel.
func lastValue(values []series.Value) series.Value {
	if len(values) == 0 {
		return series.Value{}
	}
	return values[len(values)-1]
}

func main() {
	cfg, args, err := loadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if cfg.ShowVersion {
		fmt.Println("pihealthview version", versionString())
		os.Exit(0)
	}
	if len(args) != 0 {
		fmt.Fprintf(os.Stderr, "unexpected arguments: %v\n",
			strings.Join(args, " "))
		usage()
	}
	if err := report(cfg); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
