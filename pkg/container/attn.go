// Package container implements the attention-state wire formats: the ATTN
// v1 record (one turn of conversation plus its embedding and optional
// compressed key/value cache) and the ATNB v1 batch that groups many
// records under an optional session/document scope. Encoding follows the
// length-prefixed, little-endian binary style the module uses throughout
// (see HATX in pkg/engine).
package container

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"unicode/utf8"

	"github.com/liliang-cn/hatvec"
)

// Role identifies the speaker of an attention-state record.
type Role uint8

const (
	RoleSystem    Role = 0
	RoleUser      Role = 1
	RoleAssistant Role = 2
	RoleTool      Role = 3
	RoleContext   Role = 4
)

func (r Role) valid() bool {
	return r <= RoleContext
}

// CompressedKV carries an opaque compressed key/value cache alongside a
// record. Data is stored and round-tripped byte-exact; this package never
// interprets it.
type CompressedKV struct {
	Model     string
	NumLayers uint32
	NumHeads  uint32
	HeadDim   uint32
	SeqLen    uint32
	Quant     string
	Data      []byte
}

// AttentionState is one ATTN v1 record: a timestamped, role-tagged turn
// with its text, embedding, optional compressed KV cache, and metadata.
type AttentionState struct {
	ID          hatvec.Id
	TimestampMs int64
	Role        Role
	Text        string
	Embedding   hatvec.Point
	KV          *CompressedKV // nil when kv_present = 0
	Metadata    map[string]string
}

const (
	attnMagic   = "ATTN"
	attnVersion = uint32(1)
)

// EncodeATTN serializes s as an ATTN v1 record.
func EncodeATTN(s *AttentionState) ([]byte, error) {
	if !s.Role.valid() {
		return nil, hatvec.ErrInvalidRole
	}
	if !utf8.ValidString(s.Text) {
		return nil, hatvec.ErrInvalidText
	}
	for k, v := range s.Metadata {
		if !utf8.ValidString(k) || !utf8.ValidString(v) {
			return nil, hatvec.ErrInvalidText
		}
	}

	buf := new(bytes.Buffer)
	buf.WriteString(attnMagic)
	writeU32(buf, attnVersion)
	buf.Write(s.ID[:])
	writeU64(buf, uint64(s.TimestampMs))
	buf.WriteByte(byte(s.Role))

	writeU32(buf, uint32(len(s.Text)))
	buf.WriteString(s.Text)

	writeU32(buf, uint32(len(s.Embedding)))
	for _, f := range s.Embedding {
		writeF32(buf, f)
	}

	if s.KV == nil {
		buf.WriteByte(0)
	} else {
		buf.WriteByte(1)
		kvBytes, err := encodeKV(s.KV)
		if err != nil {
			return nil, err
		}
		writeU64(buf, uint64(len(kvBytes)))
		buf.Write(kvBytes)
	}

	writeU32(buf, uint32(len(s.Metadata)))
	for k, v := range s.Metadata {
		writeU32(buf, uint32(len(k)))
		buf.WriteString(k)
		writeU32(buf, uint32(len(v)))
		buf.WriteString(v)
	}

	return buf.Bytes(), nil
}

// DecodeATTN parses an ATTN v1 record, rejecting wrong magic, unsupported
// version, truncation, an invalid role byte, or non-UTF-8 text.
func DecodeATTN(data []byte) (*AttentionState, error) {
	r := bytes.NewReader(data)

	magic := make([]byte, 4)
	if _, err := readFull(r, magic); err != nil || string(magic) != attnMagic {
		return nil, hatvec.ErrFormat
	}
	version, err := readU32(r)
	if err != nil || version != attnVersion {
		return nil, hatvec.ErrFormat
	}

	var id hatvec.Id
	if _, err := readFull(r, id[:]); err != nil {
		return nil, hatvec.ErrFormat
	}

	ts, err := readU64(r)
	if err != nil {
		return nil, hatvec.ErrFormat
	}

	roleByte, err := r.ReadByte()
	if err != nil {
		return nil, hatvec.ErrFormat
	}
	role := Role(roleByte)
	if !role.valid() {
		return nil, hatvec.ErrInvalidRole
	}

	text, err := readString(r)
	if err != nil {
		return nil, err
	}
	if !utf8.ValidString(text) {
		return nil, hatvec.ErrInvalidText
	}

	embLen, err := readU32(r)
	if err != nil {
		return nil, hatvec.ErrFormat
	}
	emb := make(hatvec.Point, embLen)
	for i := range emb {
		emb[i], err = readF32(r)
		if err != nil {
			return nil, hatvec.ErrFormat
		}
	}

	kvPresent, err := r.ReadByte()
	if err != nil {
		return nil, hatvec.ErrFormat
	}
	var kv *CompressedKV
	if kvPresent == 1 {
		kvLen, err := readU64(r)
		if err != nil {
			return nil, hatvec.ErrFormat
		}
		kvBytes := make([]byte, kvLen)
		if _, err := readFull(r, kvBytes); err != nil {
			return nil, hatvec.ErrFormat
		}
		kv, err = decodeKV(kvBytes)
		if err != nil {
			return nil, err
		}
	} else if kvPresent != 0 {
		return nil, hatvec.ErrFormat
	}

	metaCount, err := readU32(r)
	if err != nil {
		return nil, hatvec.ErrFormat
	}
	var meta map[string]string
	if metaCount > 0 {
		meta = make(map[string]string, metaCount)
		for i := uint32(0); i < metaCount; i++ {
			k, err := readString(r)
			if err != nil {
				return nil, err
			}
			v, err := readString(r)
			if err != nil {
				return nil, err
			}
			if !utf8.ValidString(k) || !utf8.ValidString(v) {
				return nil, hatvec.ErrInvalidText
			}
			meta[k] = v
		}
	}

	return &AttentionState{
		ID:          id,
		TimestampMs: int64(ts),
		Role:        role,
		Text:        text,
		Embedding:   emb,
		KV:          kv,
		Metadata:    meta,
	}, nil
}

func encodeKV(kv *CompressedKV) ([]byte, error) {
	if !utf8.ValidString(kv.Model) || !utf8.ValidString(kv.Quant) {
		return nil, hatvec.ErrInvalidText
	}
	buf := new(bytes.Buffer)
	writeU32(buf, uint32(len(kv.Model)))
	buf.WriteString(kv.Model)
	writeU32(buf, kv.NumLayers)
	writeU32(buf, kv.NumHeads)
	writeU32(buf, kv.HeadDim)
	writeU32(buf, kv.SeqLen)
	writeU32(buf, uint32(len(kv.Quant)))
	buf.WriteString(kv.Quant)
	writeU64(buf, uint64(len(kv.Data)))
	buf.Write(kv.Data)
	return buf.Bytes(), nil
}

func decodeKV(data []byte) (*CompressedKV, error) {
	r := bytes.NewReader(data)
	model, err := readString(r)
	if err != nil {
		return nil, err
	}
	numLayers, err := readU32(r)
	if err != nil {
		return nil, hatvec.ErrFormat
	}
	numHeads, err := readU32(r)
	if err != nil {
		return nil, hatvec.ErrFormat
	}
	headDim, err := readU32(r)
	if err != nil {
		return nil, hatvec.ErrFormat
	}
	seqLen, err := readU32(r)
	if err != nil {
		return nil, hatvec.ErrFormat
	}
	quant, err := readString(r)
	if err != nil {
		return nil, err
	}
	dataLen, err := readU64(r)
	if err != nil {
		return nil, hatvec.ErrFormat
	}
	payload := make([]byte, dataLen)
	if _, err := readFull(r, payload); err != nil {
		return nil, hatvec.ErrFormat
	}
	return &CompressedKV{
		Model:     model,
		NumLayers: numLayers,
		NumHeads:  numHeads,
		HeadDim:   headDim,
		SeqLen:    seqLen,
		Quant:     quant,
		Data:      payload,
	}, nil
}

func writeU32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func writeU64(buf *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	buf.Write(b[:])
}

func writeF32(buf *bytes.Buffer, f float32) {
	writeU32(buf, math.Float32bits(f))
}

func readU32(r *bytes.Reader) (uint32, error) {
	var b [4]byte
	if _, err := readFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}

func readU64(r *bytes.Reader) (uint64, error) {
	var b [8]byte
	if _, err := readFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b[:]), nil
}

func readF32(r *bytes.Reader) (float32, error) {
	bits, err := readU32(r)
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(bits), nil
}

func readString(r *bytes.Reader) (string, error) {
	n, err := readU32(r)
	if err != nil {
		return "", hatvec.ErrFormat
	}
	b := make([]byte, n)
	if _, err := readFull(r, b); err != nil {
		return "", hatvec.ErrFormat
	}
	return string(b), nil
}

func readFull(r *bytes.Reader, b []byte) (int, error) {
	if len(b) == 0 {
		return 0, nil
	}
	n, err := r.Read(b)
	if err != nil || n != len(b) {
		return n, fmt.Errorf("%w: short read", hatvec.ErrFormat)
	}
	return n, nil
}
