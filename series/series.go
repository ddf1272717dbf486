// Package series reshapes row-oriented query results into column-oriented
// series for charting. It is a pure transform; it never touches storage.
package series

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pihealth/pihealth/database"
)

// Value is a single sample that may be absent. A field is absent when the
// sensor was unavailable at sample time, which is distinct from a reading of
// zero. Absence is propagated to the renderer; it is never coerced to zero
// here.
type Value struct {
	Float64 float64
	Present bool
}

// Some returns a present Value.
func Some(f float64) Value {
	return Value{Float64: f, Present: true}
}

func fromNull(n sql.NullFloat64) Value {
	return Value{Float64: n.Float64, Present: n.Valid}
}

// MarshalJSON renders a present value as a number and an absent one as null.
func (v Value) MarshalJSON() ([]byte, error) {
	if !v.Present {
		return []byte("null"), nil
	}
	return json.Marshal(v.Float64)
}

// UnmarshalJSON accepts a number or null.
func (v *Value) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*v = Value{}
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*v = Some(f)
	return nil
}

// Metrics holds one ordered sequence per scalar snapshot field. All
// sequences are aligned by index to Timestamps.
type Metrics struct {
	Timestamps    []time.Time `json:"timestamps"`
	CPUPercent    []float64   `json:"cpu_percent"`
	MemoryPercent []float64   `json:"memory_percent"`
	DiskPercent   []float64   `json:"disk_percent"`
	Uptime        []float64   `json:"uptime"`
	Temperature   []Value     `json:"temperature"`
	CPUFrequency  []Value     `json:"cpu_frequency"`
	Voltage       []Value     `json:"voltage"`
}

// Interface holds the sequences observed for one network interface. Its
// Timestamps are the sample times the interface was actually present for,
// so different interfaces may have different lengths.
type Interface struct {
	Timestamps  []time.Time `json:"timestamps"`
	BytesSent   []uint64    `json:"bytes_sent"`
	BytesRecv   []uint64    `json:"bytes_recv"`
	PacketsSent []uint64    `json:"packets_sent"`
	PacketsRecv []uint64    `json:"packets_recv"`
	ErrIn       []uint64    `json:"errin"`
	ErrOut      []uint64    `json:"errout"`
	DropIn      []uint64    `json:"dropin"`
	DropOut     []uint64    `json:"dropout"`
}

// Reshape converts a batch of joined snapshot rows into column-oriented
// series: one sequence per scalar field aligned to the snapshot timestamps,
// and one sub-series per interface keyed by interface name.
func Reshape(rows []database.SnapshotRow) (*Metrics, map[string]*Interface, error) {
	m := &Metrics{}
	network := make(map[string]*Interface)

	for _, row := range rows {
		ts, err := database.ParseTimestamp(row.Timestamp)
		if err != nil {
			return nil, nil, fmt.Errorf("snapshot %v: %w", row.ID, err)
		}
		m.Timestamps = append(m.Timestamps, ts)
		m.CPUPercent = append(m.CPUPercent, row.CPUPercent)
		m.MemoryPercent = append(m.MemoryPercent, row.MemoryPercent)
		m.DiskPercent = append(m.DiskPercent, row.DiskPercent)
		m.Uptime = append(m.Uptime, row.Uptime)
		m.Temperature = append(m.Temperature, fromNull(row.Temperature))
		m.CPUFrequency = append(m.CPUFrequency, fromNull(row.CPUFrequency))
		m.Voltage = append(m.Voltage, fromNull(row.Voltage))

		for _, ns := range row.Network {
			ifc, ok := network[ns.Interface]
			if !ok {
				ifc = &Interface{}
				network[ns.Interface] = ifc
			}
			ifc.Timestamps = append(ifc.Timestamps, ts)
			ifc.BytesSent = append(ifc.BytesSent, ns.BytesSent)
			ifc.BytesRecv = append(ifc.BytesRecv, ns.BytesRecv)
			ifc.PacketsSent = append(ifc.PacketsSent, ns.PacketsSent)
			ifc.PacketsRecv = append(ifc.PacketsRecv, ns.PacketsRecv)
			ifc.ErrIn = append(ifc.ErrIn, ns.ErrIn)
			ifc.ErrOut = append(ifc.ErrOut, ns.ErrOut)
			ifc.DropIn = append(ifc.DropIn, ns.DropIn)
			ifc.DropOut = append(ifc.DropOut, ns.DropOut)
		}
	}

	return m, network, nil
}

// FilterInterface narrows the per-interface map to the named interface. An
// empty name returns the input unchanged; an unknown name returns an empty
// map. The input map is never mutated.
func FilterInterface(network map[string]*Interface, name string) map[string]*Interface {
	if len(network) == 0 || name == "" {
		return network
	}
	if ifc, ok := network[name]; ok {
		return map[string]*Interface{name: ifc}
	}
	return map[string]*Interface{}
}
