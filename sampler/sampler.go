// Package sampler collects one health snapshot per call from the local host.
package sampler

import (
	"database/sql"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/pihealth/pihealth/database"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
	gopsnet "github.com/shirou/gopsutil/v3/net"
)

const (
	// thermalZonePath is the Raspberry Pi CPU temperature source, in
	// millidegrees Celsius.
	thermalZonePath = "/sys/class/thermal/thermal_zone0/temp"

	// vcgencmdBin reports the core voltage on a Raspberry Pi.
	vcgencmdBin = "vcgencmd"

	// cpuSampleInterval is how long the CPU utilization sample blocks.
	cpuSampleInterval = time.Second
)

// Sampler collects snapshots. The probe locations are fields so tests can
// point them at fixtures.
type Sampler struct {
	diskPath    string
	thermalPath string
	vcgencmd    string
}

// Option overrides a probe location.
type Option func(*Sampler)

// WithDiskPath sets the mount point measured for disk utilization.
func WithDiskPath(path string) Option {
	return func(s *Sampler) {
		if path != "" {
			s.diskPath = path
		}
	}
}

func New(opts ...Option) *Sampler {
	s := &Sampler{
		diskPath:    "/",
		thermalPath: thermalZonePath,
		vcgencmd:    vcgencmdBin,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Collect takes one snapshot of the host plus the per-interface counters.
// Temperature, CPU frequency and voltage are optional; when their source is
// unavailable the field stays absent rather than zero. A missing network
// counter source yields a nil map, not an error.
func (s *Sampler) Collect() (*database.MetricSnapshot, map[string]database.NetCounters, error) {
	cpuPct, err := cpu.Percent(cpuSampleInterval, false)
	if err != nil || len(cpuPct) == 0 {
		return nil, nil, fmt.Errorf("cpu percent: %w", err)
	}
	vm, err := mem.VirtualMemory()
	if err != nil {
		return nil, nil, fmt.Errorf("virtual memory: %w", err)
	}
	du, err := disk.Usage(s.diskPath)
	if err != nil {
		return nil, nil, fmt.Errorf("disk usage %v: %w", s.diskPath, err)
	}
	uptime, err := host.Uptime()
	if err != nil {
		return nil, nil, fmt.Errorf("uptime: %w", err)
	}

	m := &database.MetricSnapshot{
		Timestamp:     database.FormatTimestamp(time.Now()),
		CPUPercent:    cpuPct[0],
		MemoryPercent: vm.UsedPercent,
		DiskPercent:   du.UsedPercent,
		Uptime:        float64(uptime),
	}
	if t, err := s.temperature(); err != nil {
		log.Debugf("temperature unavailable: %v", err)
	} else {
		m.Temperature = sql.NullFloat64{Float64: t, Valid: true}
	}
	if f, err := cpuFrequency(); err != nil {
		log.Debugf("cpu frequency unavailable: %v", err)
	} else {
		m.CPUFrequency = sql.NullFloat64{Float64: f, Valid: true}
	}
	if v, err := s.voltage(); err != nil {
		log.Debugf("voltage unavailable: %v", err)
	} else {
		m.Voltage = sql.NullFloat64{Float64: v, Valid: true}
	}

	counters, err := gopsnet.IOCounters(true)
	if err != nil {
		log.Warnf("network counters unavailable: %v", err)
		return m, nil, nil
	}
	network := make(map[string]database.NetCounters, len(counters))
	for _, c := range counters {
		network[c.Name] = database.NetCounters{
			BytesSent:   c.BytesSent,
			BytesRecv:   c.BytesRecv,
			PacketsSent: c.PacketsSent,
			PacketsRecv: c.PacketsRecv,
			ErrIn:       c.Errin,
			ErrOut:      c.Errout,
			DropIn:      c.Dropin,
			DropOut:     c.Dropout,
		}
	}

	return m, network, nil
}

// temperature reads the thermal zone file and converts to Celsius.
func (s *Sampler) temperature() (float64, error) {
	raw, err := os.ReadFile(s.thermalPath)
	if err != nil {
		return 0, err
	}
	milli, err := strconv.ParseFloat(strings.TrimSpace(string(raw)), 64)
	if err != nil {
		return 0, fmt.Errorf("parse %v: %w", s.thermalPath, err)
	}
	return milli / 1000.0, nil
}

// cpuFrequency returns the current CPU frequency in MHz.
func cpuFrequency() (float64, error) {
	info, err := cpu.Info()
	if err != nil {
		return 0, err
	}
	if len(info) == 0 || info[0].Mhz == 0 {
		return 0, fmt.Errorf("no frequency reported")
	}
	return info[0].Mhz, nil
}

// voltage runs vcgencmd and parses its "volt=0.8563V" output.
func (s *Sampler) voltage() (float64, error) {
	out, err := exec.Command(s.vcgencmd, "measure_volts", "core").Output()
	if err != nil {
		return 0, err
	}
	return parseVolts(string(out))
}

func parseVolts(out string) (float64, error) {
	v := strings.TrimSpace(out)
	v = strings.TrimPrefix(v, "volt=")
	v = strings.TrimSuffix(v, "V")
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("parse vcgencmd output %q: %w", out, err)
	}
	return f, nil
}
