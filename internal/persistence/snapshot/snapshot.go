package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"
)

const Version = 1

type Header struct {
	Version int       `json:"version"`
	SavedAt time.Time `json:"saved_at"`
}

// SessionV1 is what the server needs to resume a walk where it stopped. The
// absolute position is origin*region_distance + local position, so it stays
// valid when the geometry changes between runs.
type SessionV1 struct {
	Header Header `json:"header"`

	Origin   [2]int     `json:"origin"`
	Position [3]float64 `json:"position"`
	Velocity [3]float64 `json:"velocity"`
	Absolute [3]float64 `json:"absolute"`

	RegionSize    int     `json:"region_size"`
	VertexSpacing float64 `json:"vertex_spacing"`
	NoiseKind     string  `json:"noise_kind"`
	NoiseSeed     int64   `json:"noise_seed"`
	Shifts        uint64  `json:"shifts"`
}

// WriteSession writes a JSON header line followed by the gob-encoded
// session, zstd-compressed, via a temp file and rename.
func WriteSession(path string, s SessionV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	s.Header.Version = Version
	if s.Header.SavedAt.IsZero() {
		s.Header.SavedAt = time.Now().UTC()
	}

	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if err := writeSession(f, s); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func writeSession(f *os.File, s SessionV1) error {
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	bw := bufio.NewWriter(enc)

	hb, _ := json.Marshal(s.Header)
	if _, err := bw.Write(hb); err != nil {
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return err
	}
	if err := gob.NewEncoder(bw).Encode(&s); err != nil {
		return fmt.Errorf("gob encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	return enc.Close()
}

func ReadSession(path string) (SessionV1, error) {
	var s SessionV1
	f, err := os.Open(path)
	if err != nil {
		return s, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return s, err
	}
	defer dec.Close()

	br := bufio.NewReader(dec)
	line, err := br.ReadBytes('\n')
	if err != nil {
		return s, fmt.Errorf("read header: %w", err)
	}
	var h Header
	if err := json.Unmarshal(line, &h); err != nil {
		return s, fmt.Errorf("decode header: %w", err)
	}
	if h.Version != Version {
		return s, fmt.Errorf("unsupported session version %d", h.Version)
	}
	if err := gob.NewDecoder(br).Decode(&s); err != nil {
		return s, fmt.Errorf("gob decode: %w", err)
	}
	return s, nil
}
