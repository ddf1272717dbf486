package database

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Database is the storage contract for health snapshots. Writers call Insert
// once per sampling tick; readers use the three query patterns. Queries never
// fail for absent data, they return empty results.
type Database interface {
	Open() error  // Open database handle and create+upgrade schema
	Close() error // Close database

	// Insert writes one snapshot and all of its per-interface counter
	// rows atomically. Either everything from the call becomes visible
	// or nothing does.
	Insert(m *MetricSnapshot, network map[string]NetCounters) error

	// Recent returns up to limit snapshots, most recent timestamp first,
	// each joined with its network stat rows.
	Recent(limit int) ([]SnapshotRow, error)

	// ByTimespan returns all snapshots newer than hours hours, oldest
	// first, each joined with its network stat rows.
	ByTimespan(hours int) ([]SnapshotRow, error)

	// ByInterface returns the counter rows of a single interface within
	// the time window, annotated with the parent snapshot timestamp,
	// oldest first.
	ByInterface(iface string, hours int) ([]InterfaceStat, error)
}

const (
	Version = 1

	DefaultMetricsTable = "health_metrics"
	DefaultNetworkTable = "network_stats"
)

// ErrValidation is returned by Insert when a required snapshot field is
// missing or malformed. Nothing is written in that case.
var ErrValidation = errors.New("invalid snapshot")

// TimestampLayout is the ISO-8601 layout snapshots carry. The width is fixed
// so that string comparison on the timestamp column stays chronological.
const TimestampLayout = "2006-01-02T15:04:05.000000"

// timestampLayouts are the accepted input layouts, tried in order.
var timestampLayouts = []string{
	TimestampLayout,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	time.RFC3339Nano,
}

// FormatTimestamp renders t in the canonical snapshot layout.
func FormatTimestamp(t time.Time) string {
	return t.Format(TimestampLayout)
}

// ParseTimestamp parses a snapshot timestamp.
func ParseTimestamp(s string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
}

// MetricSnapshot is one timestamped sample of whole-system scalar metrics.
// Temperature, CPUFrequency and Voltage are optional readings; Valid=false
// means the sensor was not available, which is distinct from a zero reading.
type MetricSnapshot struct {
	ID            uint64          `db:"id"`
	Timestamp     string          `db:"timestamp"`
	CPUPercent    float64         `db:"cpu_percent"`
	MemoryPercent float64         `db:"memory_percent"`
	DiskPercent   float64         `db:"disk_percent"`
	Temperature   sql.NullFloat64 `db:"temperature"`
	CPUFrequency  sql.NullFloat64 `db:"cpu_frequency"`
	Uptime        float64         `db:"uptime"`
	Voltage       sql.NullFloat64 `db:"voltage"`
}

// Validate reports whether the snapshot may be inserted. The percentage
// fields are deliberately not range checked; transient sensor read errors may
// produce out-of-range values and the store is tolerant of them.
func (m *MetricSnapshot) Validate() error {
	if m == nil {
		return fmt.Errorf("%w: nil snapshot", ErrValidation)
	}
	if m.Timestamp == "" {
		return fmt.Errorf("%w: timestamp required", ErrValidation)
	}
	if _, err := ParseTimestamp(m.Timestamp); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return nil
}

// NetCounters are the raw counters of one interface at sample time. They are
// monotonic at the OS level but the store treats them as opaque integers.
type NetCounters struct {
	BytesSent   uint64 `db:"bytes_sent"`
	BytesRecv   uint64 `db:"bytes_recv"`
	PacketsSent uint64 `db:"packets_sent"`
	PacketsRecv uint64 `db:"packets_recv"`
	ErrIn       uint64 `db:"errin"`
	ErrOut      uint64 `db:"errout"`
	DropIn      uint64 `db:"dropin"`
	DropOut     uint64 `db:"dropout"`
}

// NetworkStat prefixes NetCounters with the database identifiers. The
// anonymous structure keeps the counter fields shared with the sampler.
type NetworkStat struct {
	ID        uint64 `db:"id"`
	MetricID  uint64 `db:"metric_id"`
	Interface string `db:"interface"`
	NetCounters
}

// InterfaceStat is a network stat annotated with its parent snapshot
// timestamp, as returned by ByInterface.
type InterfaceStat struct {
	Timestamp string `db:"timestamp"`
	NetworkStat
}

// SnapshotRow is one snapshot joined with its network stat rows, in
// insertion order. Network may be empty.
type SnapshotRow struct {
	MetricSnapshot
	Network []NetworkStat
}

// Config controls where the store writes and which tables it owns. Only Path
// is required; empty table names fall back to the defaults.
type Config struct {
	Path         string // database file
	MetricsTable string
	NetworkTable string
}

func (cfg *Config) metricsTable() string {
	if cfg.MetricsTable == "" {
		return DefaultMetricsTable
	}
	return cfg.MetricsTable
}

func (cfg *Config) networkTable() string {
	if cfg.NetworkTable == "" {
		return DefaultNetworkTable
	}
	return cfg.NetworkTable
}

// Queries is the SQL for one Config's table names.
type Queries struct {
	SelectVersion string

	InsertMetric      string
	InsertNetworkStat string

	SelectRecent             string
	SelectByTimespan         string
	SelectNetworkByMetricIDs string
	SelectByInterface        string

	Schema []string
}

var (
	selectVersion = "SELECT version FROM version LIMIT 1;"

	insertMetricFormat = `
INSERT INTO %[1]s (
	timestamp,
	cpu_percent,
	memory_percent,
	disk_percent,
	temperature,
	cpu_frequency,
	uptime,
	voltage)
VALUES (
	:timestamp,
	:cpu_percent,
	:memory_percent,
	:disk_percent,
	:temperature,
	:cpu_frequency,
	:uptime,
	:voltage);
`

	insertNetworkStatFormat = `
INSERT INTO %[2]s (
	metric_id,
	interface,
	bytes_sent,
	bytes_recv,
	packets_sent,
	packets_recv,
	errin,
	errout,
	dropin,
	dropout)
VALUES (
	:metric_id,
	:interface,
	:bytes_sent,
	:bytes_recv,
	:packets_sent,
	:packets_recv,
	:errin,
	:errout,
	:dropin,
	:dropout);
`

	selectRecentFormat = `
SELECT * FROM %[1]s
ORDER BY timestamp DESC
LIMIT ?;
`

	selectByTimespanFormat = `
SELECT * FROM %[1]s
WHERE timestamp > ?
ORDER BY timestamp;
`

	selectNetworkByMetricIDsFormat = `
SELECT * FROM %[2]s
WHERE metric_id IN (?)
ORDER BY metric_id, id;
`

	selectByInterfaceFormat = `
SELECT n.*, m.timestamp FROM %[2]s n
JOIN %[1]s m ON m.id = n.metric_id
WHERE n.interface = ? AND m.timestamp > ?
ORDER BY m.timestamp;
`

	// schemaV1Formats must be safe to run on every Open. Upgrades are
	// additive only; nothing here may alter existing data.
	schemaV1Formats = []string{`
CREATE TABLE IF NOT EXISTS version (version INTEGER);
`, `
INSERT INTO version (version)
SELECT 1 WHERE NOT EXISTS (SELECT 1 FROM version);
`, `
CREATE TABLE IF NOT EXISTS %[1]s (
	id		INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp	TEXT NOT NULL,
	cpu_percent	REAL,
	memory_percent	REAL,
	disk_percent	REAL,
	temperature	REAL,
	cpu_frequency	REAL,
	uptime		REAL,
	voltage		REAL);
`, `
CREATE TABLE IF NOT EXISTS %[2]s (
	id		INTEGER PRIMARY KEY AUTOINCREMENT,
	metric_id	INTEGER NOT NULL REFERENCES %[1]s(id),
	interface	TEXT NOT NULL,
	bytes_sent	INTEGER,
	bytes_recv	INTEGER,
	packets_sent	INTEGER,
	packets_recv	INTEGER,
	errin		INTEGER,
	errout		INTEGER,
	dropin		INTEGER,
	dropout		INTEGER);
`, `
CREATE INDEX IF NOT EXISTS idx_%[1]s_timestamp ON %[1]s(timestamp);
`, `
CREATE INDEX IF NOT EXISTS idx_%[2]s_metric_id ON %[2]s(metric_id);
`}
)

// Queries expands the SQL templates with the configured table names.
func (cfg *Config) Queries() *Queries {
	mt, nt := cfg.metricsTable(), cfg.networkTable()
	expand := func(format string) string {
		if !strings.Contains(format, "%") {
			return format
		}
		return fmt.Sprintf(format, mt, nt)
	}
	q := &Queries{
		SelectVersion:            selectVersion,
		InsertMetric:             expand(insertMetricFormat),
		InsertNetworkStat:        expand(insertNetworkStatFormat),
		SelectRecent:             expand(selectRecentFormat),
		SelectByTimespan:         expand(selectByTimespanFormat),
		SelectNetworkByMetricIDs: expand(selectNetworkByMetricIDsFormat),
		SelectByInterface:        expand(selectByInterfaceFormat),
	}
	for _, s := range schemaV1Formats {
		q.Schema = append(q.Schema, expand(s))
	}
	return q
}
