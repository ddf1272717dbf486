package series

import (
	"testing"
)

func TestLatest(t *testing.T) {
	if got := Latest(nil); got != 0 {
		t.Errorf("Latest(nil) = %v, want 0", got)
	}
	if got := Latest([]Value{{}, {}}); got != 0 {
		t.Errorf("Latest(all absent) = %v, want 0", got)
	}
	// The trailing absent value is skipped.
	vs := []Value{Some(1), Some(2), {}}
	if got := Latest(vs); got != 2 {
		t.Errorf("Latest = %v, want 2", got)
	}
	if got := Latest([]Value{Some(3)}); got != 3 {
		t.Errorf("Latest = %v, want 3", got)
	}
}

func TestLatestFloat(t *testing.T) {
	if got := LatestFloat(nil); got != 0 {
		t.Errorf("LatestFloat(nil) = %v, want 0", got)
	}
	if got := LatestFloat([]float64{1, 2, 3}); got != 3 {
		t.Errorf("LatestFloat = %v, want 3", got)
	}
}

func TestEvenIndices(t *testing.T) {
	got := EvenIndices(0, 9, 1)
	if len(got) != 1 || got[0] != 0 {
		t.Errorf("num=1: got %v", got)
	}
	got = EvenIndices(0, 9, 0)
	if len(got) != 1 || got[0] != 0 {
		t.Errorf("num=0: got %v", got)
	}

	got = EvenIndices(0, 9, 10)
	if len(got) != 10 {
		t.Fatalf("got %v indices, want 10", len(got))
	}
	for i, idx := range got {
		if idx != i {
			t.Errorf("index[%d] = %v, want %v", i, idx, i)
		}
	}

	got = EvenIndices(0, 9, 3)
	if len(got) != 3 || got[0] != 0 || got[2] != 9 {
		t.Errorf("got %v, want endpoints 0 and 9", got)
	}
	// Indices never exceed end.
	for _, idx := range EvenIndices(0, 4, 20) {
		if idx > 4 {
			t.Errorf("index %v out of range", idx)
		}
	}
}

func TestDownsample(t *testing.T) {
	vs := make([]Value, 10)
	for i := range vs {
		vs[i] = Some(float64(i))
	}

	// Shorter than points is unchanged.
	got := Downsample(vs, 20)
	if len(got) != 10 {
		t.Errorf("got %v values, want 10", len(got))
	}
	got = Downsample(vs, 0)
	if len(got) != 10 {
		t.Errorf("points=0: got %v values, want 10", len(got))
	}

	got = Downsample(vs, 4)
	if len(got) != 4 {
		t.Fatalf("got %v values, want 4", len(got))
	}
	if got[0].Float64 != 0 || got[3].Float64 != 9 {
		t.Errorf("endpoints not kept: %+v", got)
	}
}

func TestMovingAverage(t *testing.T) {
	if got := MovingAverage(nil, 3); got != nil {
		t.Errorf("got %v, want nil", got)
	}
	if got := MovingAverage([]Value{Some(1)}, 0); got != nil {
		t.Errorf("window=0: got %v, want nil", got)
	}
	if got := MovingAverage([]Value{Some(1)}, 2); got != nil {
		t.Errorf("window>len: got %v, want nil", got)
	}

	vs := []Value{Some(1), Some(2), Some(3), Some(4)}
	got := MovingAverage(vs, 2)
	want := []float64{1.5, 2.5, 3.5}
	if len(got) != len(want) {
		t.Fatalf("got %v values, want %v", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("avg[%d] = %v, want %v", i, got[i], want[i])
		}
	}

	// Absent values are skipped inside a window.
	vs = []Value{Some(2), {}, Some(4)}
	got = MovingAverage(vs, 3)
	if len(got) != 1 || got[0] != 3 {
		t.Errorf("got %v, want [3]", got)
	}

	// A window of only absent values averages to 0.
	vs = []Value{{}, {}}
	got = MovingAverage(vs, 2)
	if len(got) != 1 || got[0] != 0 {
		t.Errorf("got %v, want [0]", got)
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		v    Value
		want string
	}{
		{Value{}, "0 B"},
		{Some(0), "0.00 B"},
		{Some(500), "500.00 B"},
		{Some(1536), "1.50 KB"},
		{Some(1048576), "1.00 MB"},
		{Some(1073741824), "1.00 GB"},
	}
	for _, tc := range tests {
		if got := FormatBytes(tc.v); got != tc.want {
			t.Errorf("FormatBytes(%+v) = %q, want %q", tc.v, got, tc.want)
		}
	}
}

func TestFormatByteCount(t *testing.T) {
	if got := FormatByteCount(1536); got != "1.50 KB" {
		t.Errorf("got %q, want %q", got, "1.50 KB")
	}
}
