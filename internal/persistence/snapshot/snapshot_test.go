package snapshot

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSessionRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session", "session.snap.zst")
	in := SessionV1{
		Origin:        [2]int{-3, 7},
		Position:      [3]float64{12.5, 0, -4},
		Velocity:      [3]float64{1, 0, 2},
		Absolute:      [3]float64{-755.5, 0, 1788},
		RegionSize:    256,
		VertexSpacing: 1,
		NoiseKind:     "simplex",
		NoiseSeed:     1337,
		Shifts:        9,
	}
	if err := WriteSession(path, in); err != nil {
		t.Fatalf("WriteSession: %v", err)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Fatalf("temp file left behind: %v", err)
	}
	out, err := ReadSession(path)
	if err != nil {
		t.Fatalf("ReadSession: %v", err)
	}
	if out.Header.Version != Version || out.Header.SavedAt.IsZero() {
		t.Fatalf("header: %+v", out.Header)
	}
	out.Header = in.Header
	if out != in {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", out, in)
	}
}

func TestReadSessionMissing(t *testing.T) {
	_, err := ReadSession(filepath.Join(t.TempDir(), "nope.snap.zst"))
	if !os.IsNotExist(err) {
		t.Fatalf("expected not-exist, got %v", err)
	}
}
