package tilestore

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"

	"github.com/klauspost/compress/zstd"

	"github.com/Inzarcon/Terrain3D-InfiniteProceduralDemo/internal/terrain/region"
)

const codecVersion = 1

// Header is the JSON line written ahead of the sample body in tile files.
type Header struct {
	Version int `json:"version"`
	X       int `json:"x"`
	Y       int `json:"y"`
	Size    int `json:"size"`
}

// Shared coders; EncodeAll/DecodeAll are safe for concurrent use.
var (
	blobEncoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	blobDecoder, _ = zstd.NewReader(nil)
)

func samplesToBytes(samples []float32) []byte {
	b := make([]byte, 4*len(samples))
	for i, v := range samples {
		binary.LittleEndian.PutUint32(b[i*4:], math.Float32bits(v))
	}
	return b
}

func bytesToSamples(b []byte, size int) ([]float32, error) {
	if len(b) != 4*size*size {
		return nil, fmt.Errorf("sample body length mismatch: got %d want %d", len(b), 4*size*size)
	}
	out := make([]float32, size*size)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out, nil
}

// encodeBlob compresses a raster body for row storage.
func encodeBlob(r region.Raster) []byte {
	return blobEncoder.EncodeAll(samplesToBytes(r.Samples), nil)
}

func decodeBlob(blob []byte, size int) (region.Raster, error) {
	raw, err := blobDecoder.DecodeAll(blob, nil)
	if err != nil {
		return region.Raster{}, fmt.Errorf("zstd decode: %w", err)
	}
	samples, err := bytesToSamples(raw, size)
	if err != nil {
		return region.Raster{}, err
	}
	return region.Raster{Size: size, Samples: samples}, nil
}

// writeTile streams a header line and the raster body through zstd.
func writeTile(w io.Writer, virtual region.Location, r region.Raster) error {
	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	bw := bufio.NewWriterSize(enc, 64*1024)

	hb, _ := json.Marshal(Header{Version: codecVersion, X: virtual.X, Y: virtual.Y, Size: r.Size})
	if _, err := bw.Write(hb); err != nil {
		_ = enc.Close()
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		_ = enc.Close()
		return err
	}
	if _, err := bw.Write(samplesToBytes(r.Samples)); err != nil {
		_ = enc.Close()
		return err
	}
	if err := bw.Flush(); err != nil {
		_ = enc.Close()
		return err
	}
	return enc.Close()
}

func readTile(rd io.Reader, virtual region.Location) (region.Raster, error) {
	dec, err := zstd.NewReader(rd)
	if err != nil {
		return region.Raster{}, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 64*1024)
	line, err := br.ReadBytes('\n')
	if err != nil {
		return region.Raster{}, fmt.Errorf("read header: %w", err)
	}
	var h Header
	if err := json.Unmarshal(line, &h); err != nil {
		return region.Raster{}, fmt.Errorf("decode header: %w", err)
	}
	if h.Version != codecVersion {
		return region.Raster{}, fmt.Errorf("unsupported tile version %d", h.Version)
	}
	if h.X != virtual.X || h.Y != virtual.Y {
		return region.Raster{}, fmt.Errorf("tile key mismatch: file has (%d,%d) want %v", h.X, h.Y, virtual)
	}
	if h.Size <= 0 || h.Size > 4096 {
		return region.Raster{}, fmt.Errorf("bad tile size %d", h.Size)
	}
	body, err := io.ReadAll(br)
	if err != nil {
		return region.Raster{}, fmt.Errorf("read body: %w", err)
	}
	samples, err := bytesToSamples(body, h.Size)
	if err != nil {
		return region.Raster{}, err
	}
	return region.Raster{Size: h.Size, Samples: samples}, nil
}
