package engine

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"github.com/liliang-cn/hatvec"
	"github.com/liliang-cn/hatvec/pkg/hat"
	"github.com/liliang-cn/hatvec/pkg/store"
)

const (
	hatxMagic   = "HATX"
	hatxVersion = uint32(1)
)

// Save writes the engine's config, tree, and chunk payloads to path as a
// HATX v1 file: magic, config block, pre-order node dump, chunk payloads,
// trailing CRC32. The write goes to a temp file in the same directory,
// guarded by an advisory lock on the sibling file path+".lock", then
// renamed atomically into place so a crash mid-write never leaves a
// truncated file at path itself.
func (e *Engine) Save(path string) error {
	lock := flock.New(path + ".lock")
	if err := lock.Lock(); err != nil {
		return wrapErr("save", fmt.Errorf("acquire lock: %w", err))
	}
	defer lock.Unlock()

	body := e.encodeHatx()
	crc := crc32.ChecksumIEEE(body)
	var crcBytes [4]byte
	binary.LittleEndian.PutUint32(crcBytes[:], crc)
	body = append(body, crcBytes[:]...)

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".hatx-tmp-*")
	if err != nil {
		return wrapErr("save", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(body); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return wrapErr("save", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return wrapErr("save", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return wrapErr("save", err)
	}
	return nil
}

func (e *Engine) encodeHatx() []byte {
	buf := new(bytes.Buffer)
	buf.WriteString(hatxMagic)
	writeU32le(buf, hatxVersion)

	writeU32le(buf, uint32(e.cfg.Dim))
	buf.WriteByte(byte(e.cfg.Metric))
	buf.WriteByte(boolByte(e.cfg.NormalizeOnInsert))
	writeU32le(buf, uint32(e.cfg.BeamWidth))
	writeF32le(buf, float32(e.cfg.TemporalWeight))
	writeF32le(buf, float32(e.cfg.PropagationThreshold))

	nodes := e.tree.Walk()
	writeU32le(buf, uint32(len(nodes)))
	for _, n := range nodes {
		buf.WriteByte(byte(n.Level))
		buf.Write(n.ID[:])
		buf.Write(n.ParentID[:])
		writeU64le(buf, uint64(n.Timestamp.UnixMilli()))
		writeU32le(buf, uint32(n.Count))
		for _, f := range n.Centroid {
			writeF32le(buf, f)
		}
	}

	var payloads []store.Entry
	e.store.Iter(func(entry store.Entry) bool {
		payloads = append(payloads, entry)
		return true
	})
	writeU32le(buf, uint32(len(payloads)))
	for _, p := range payloads {
		buf.Write(p.ID[:])
		writeU32le(buf, uint32(len(p.Payload)))
		buf.Write(p.Payload)
	}

	return buf.Bytes()
}

// Load reads a HATX v1 file from path and returns a fresh Engine
// reconstructed from it. expectedDim, if non-zero, must match the file's
// dimensionality or loading fails; pass 0 to accept whatever dimension the
// file declares. Options (WithLogger, WithStore, WithClock) apply to the
// returned engine the same as New.
func Load(path string, expectedDim int, opts ...Option) (*Engine, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, wrapErr("load", err)
	}
	if len(data) < 4 {
		return nil, wrapErr("load", hatvec.ErrFormat)
	}

	body, trailingCRC := data[:len(data)-4], data[len(data)-4:]
	want := binary.LittleEndian.Uint32(trailingCRC)
	if crc32.ChecksumIEEE(body) != want {
		return nil, wrapErr("load", hatvec.ErrFormat)
	}

	r := bytes.NewReader(body)
	magic := make([]byte, 4)
	if _, err := readFullLE(r, magic); err != nil || string(magic) != hatxMagic {
		return nil, wrapErr("load", hatvec.ErrFormat)
	}
	version, err := readU32le(r)
	if err != nil || version != hatxVersion {
		return nil, wrapErr("load", hatvec.ErrFormat)
	}

	dim, err := readU32le(r)
	if err != nil {
		return nil, wrapErr("load", hatvec.ErrFormat)
	}
	if expectedDim != 0 && int(dim) != expectedDim {
		return nil, wrapErr("load", hatvec.ErrDimensionMismatch)
	}
	metricByte, err := r.ReadByte()
	if err != nil {
		return nil, wrapErr("load", hatvec.ErrFormat)
	}
	normByte, err := r.ReadByte()
	if err != nil {
		return nil, wrapErr("load", hatvec.ErrFormat)
	}
	beamWidth, err := readU32le(r)
	if err != nil {
		return nil, wrapErr("load", hatvec.ErrFormat)
	}
	temporalWeight, err := readF32le(r)
	if err != nil {
		return nil, wrapErr("load", hatvec.ErrFormat)
	}
	propagationThreshold, err := readF32le(r)
	if err != nil {
		return nil, wrapErr("load", hatvec.ErrFormat)
	}

	cfg := hatvec.DefaultConfig(int(dim))
	cfg.Metric = hatvec.Metric(metricByte)
	cfg.NormalizeOnInsert = normByte != 0
	cfg.BeamWidth = int(beamWidth)
	cfg.TemporalWeight = float64(temporalWeight)
	cfg.PropagationThreshold = float64(propagationThreshold)

	nodeCount, err := readU32le(r)
	if err != nil {
		return nil, wrapErr("load", hatvec.ErrFormat)
	}
	records := make([]hat.NodeRecord, 0, nodeCount)
	for i := uint32(0); i < nodeCount; i++ {
		levelByte, err := r.ReadByte()
		if err != nil {
			return nil, wrapErr("load", hatvec.ErrFormat)
		}
		var id, parentID hatvec.Id
		if _, err := readFullLE(r, id[:]); err != nil {
			return nil, wrapErr("load", hatvec.ErrFormat)
		}
		if _, err := readFullLE(r, parentID[:]); err != nil {
			return nil, wrapErr("load", hatvec.ErrFormat)
		}
		ts, err := readU64le(r)
		if err != nil {
			return nil, wrapErr("load", hatvec.ErrFormat)
		}
		count, err := readU32le(r)
		if err != nil {
			return nil, wrapErr("load", hatvec.ErrFormat)
		}
		centroid := make(hatvec.Point, dim)
		for j := range centroid {
			centroid[j], err = readF32le(r)
			if err != nil {
				return nil, wrapErr("load", hatvec.ErrFormat)
			}
		}
		records = append(records, hat.NodeRecord{
			Level:     hat.Level(levelByte),
			ID:        id,
			ParentID:  parentID,
			Timestamp: time.UnixMilli(int64(ts)).UTC(),
			Count:     int(count),
			Centroid:  centroid,
		})
	}

	e := New(cfg, opts...)
	tree, err := hat.FromRecords(e.treeConfig(), records)
	if err != nil {
		return nil, wrapErr("load", err)
	}
	tree.SetClock(e.now)
	e.tree = tree

	payloadCount, err := readU32le(r)
	if err != nil {
		return nil, wrapErr("load", hatvec.ErrFormat)
	}
	for i := uint32(0); i < payloadCount; i++ {
		var id hatvec.Id
		if _, err := readFullLE(r, id[:]); err != nil {
			return nil, wrapErr("load", hatvec.ErrFormat)
		}
		payloadLen, err := readU32le(r)
		if err != nil {
			return nil, wrapErr("load", hatvec.ErrFormat)
		}
		payload := make([]byte, payloadLen)
		if _, err := readFullLE(r, payload); err != nil {
			return nil, wrapErr("load", hatvec.ErrFormat)
		}
		vector, ok := e.tree.ChunkVector(id)
		if !ok {
			return nil, wrapErr("load", hatvec.ErrFormat)
		}
		if err := e.store.PlaceWithID(id, vector, payload); err != nil {
			return nil, wrapErr("load", err)
		}
	}

	return e, nil
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

func writeU32le(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func writeU64le(buf *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	buf.Write(b[:])
}

func writeF32le(buf *bytes.Buffer, f float32) {
	writeU32le(buf, math.Float32bits(f))
}

func readU32le(r *bytes.Reader) (uint32, error) {
	var b [4]byte
	if _, err := readFullLE(r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}

func readU64le(r *bytes.Reader) (uint64, error) {
	var b [8]byte
	if _, err := readFullLE(r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b[:]), nil
}

func readF32le(r *bytes.Reader) (float32, error) {
	bits, err := readU32le(r)
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(bits), nil
}

func readFullLE(r *bytes.Reader, b []byte) (int, error) {
	if len(b) == 0 {
		return 0, nil
	}
	n, err := r.Read(b)
	if err != nil || n != len(b) {
		return n, fmt.Errorf("%w: short read", hatvec.ErrFormat)
	}
	return n, nil
}
