package series

import (
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/pihealth/pihealth/database"
)

func row(id uint64, ts time.Time, ifaces ...string) database.SnapshotRow {
	r := database.SnapshotRow{
		MetricSnapshot: database.MetricSnapshot{
			ID:            id,
			Timestamp:     database.FormatTimestamp(ts),
			CPUPercent:    float64(id),
			MemoryPercent: float64(id) * 2,
			DiskPercent:   float64(id) * 3,
			Uptime:        float64(id) * 100,
		},
	}
	for _, name := range ifaces {
		r.Network = append(r.Network, database.NetworkStat{
			MetricID:  id,
			Interface: name,
			NetCounters: database.NetCounters{
				BytesSent: id * 10,
				BytesRecv: id * 20,
			},
		})
	}
	return r
}

func TestReshape(t *testing.T) {
	base := time.Date(2026, 8, 30, 10, 0, 0, 0, time.Local)
	rows := []database.SnapshotRow{
		row(1, base, "eth0"),
		row(2, base.Add(time.Minute), "wlan0"),
		row(3, base.Add(2*time.Minute), "eth0"),
		row(4, base.Add(3*time.Minute), "wlan0"),
		row(5, base.Add(4*time.Minute), "eth0"),
	}
	rows[0].Temperature = sql.NullFloat64{Float64: 45.5, Valid: true}

	metrics, network, err := Reshape(rows)
	if err != nil {
		t.Fatal(err)
	}

	if len(metrics.Timestamps) != 5 {
		t.Fatalf("got %v timestamps, want 5", len(metrics.Timestamps))
	}
	if !metrics.Timestamps[0].Equal(base) {
		t.Errorf("timestamp[0] = %v, want %v", metrics.Timestamps[0], base)
	}
	if metrics.CPUPercent[2] != 3 || metrics.MemoryPercent[2] != 6 {
		t.Errorf("scalar columns misaligned: %+v", metrics)
	}

	// Optional columns keep absence explicit and stay aligned.
	if len(metrics.Temperature) != 5 {
		t.Fatalf("got %v temperature values, want 5",
			len(metrics.Temperature))
	}
	if !metrics.Temperature[0].Present ||
		metrics.Temperature[0].Float64 != 45.5 {
		t.Errorf("temperature[0] = %+v, want present 45.5",
			metrics.Temperature[0])
	}
	if metrics.Temperature[1].Present {
		t.Errorf("temperature[1] should be absent")
	}

	// An interface only contributes for the samples it appeared in, so
	// the two interfaces have different lengths.
	if len(network) != 2 {
		t.Fatalf("got %v interfaces, want 2", len(network))
	}
	eth := network["eth0"]
	if eth == nil || len(eth.Timestamps) != 3 {
		t.Fatalf("eth0: %+v", eth)
	}
	wlan := network["wlan0"]
	if wlan == nil || len(wlan.Timestamps) != 2 {
		t.Fatalf("wlan0: %+v", wlan)
	}
	if eth.BytesSent[0] != 10 || eth.BytesSent[2] != 50 {
		t.Errorf("eth0 bytes_sent: %v", eth.BytesSent)
	}
	if !wlan.Timestamps[0].Equal(base.Add(time.Minute)) {
		t.Errorf("wlan0 timestamp[0] = %v", wlan.Timestamps[0])
	}
}

func TestReshapeEmpty(t *testing.T) {
	metrics, network, err := Reshape(nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(metrics.Timestamps) != 0 {
		t.Errorf("got %v timestamps, want 0", len(metrics.Timestamps))
	}
	if len(network) != 0 {
		t.Errorf("got %v interfaces, want 0", len(network))
	}
}

func TestReshapeBadTimestamp(t *testing.T) {
	rows := []database.SnapshotRow{{
		MetricSnapshot: database.MetricSnapshot{
			ID:        7,
			Timestamp: "garbage",
		},
	}}
	if _, _, err := Reshape(rows); err == nil {
		t.Fatal("expected error for bad timestamp")
	}
}

func TestFilterInterface(t *testing.T) {
	base := time.Date(2026, 8, 30, 10, 0, 0, 0, time.Local)
	_, network, err := Reshape([]database.SnapshotRow{
		row(1, base, "eth0", "wlan0"),
	})
	if err != nil {
		t.Fatal(err)
	}

	// Empty name returns the input unchanged.
	got := FilterInterface(network, "")
	if len(got) != 2 {
		t.Errorf("got %v interfaces, want 2", len(got))
	}

	got = FilterInterface(network, "eth0")
	if len(got) != 1 || got["eth0"] == nil {
		t.Errorf("got %v", got)
	}

	// Unknown name filters everything out.
	got = FilterInterface(network, "tun9")
	if len(got) != 0 {
		t.Errorf("got %v interfaces for unknown name, want 0", len(got))
	}

	// The input is never mutated.
	if len(network) != 2 {
		t.Errorf("input map mutated: %v", network)
	}
}

func TestValueJSON(t *testing.T) {
	b, err := json.Marshal([]Value{Some(1.5), {}})
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != "[1.5,null]" {
		t.Errorf("got %s, want [1.5,null]", b)
	}

	var vs []Value
	if err := json.Unmarshal([]byte("[2.25,null]"), &vs); err != nil {
		t.Fatal(err)
	}
	if len(vs) != 2 || !vs[0].Present || vs[0].Float64 != 2.25 ||
		vs[1].Present {
		t.Errorf("got %+v", vs)
	}
}
