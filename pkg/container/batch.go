package container

import (
	"bytes"

	"github.com/liliang-cn/hatvec"
)

const (
	atnbMagic   = "ATNB"
	atnbVersion = uint32(1)
)

// Batch is an ATNB v1 batch: an ordered list of attention states optionally
// scoped to a session and/or document.
type Batch struct {
	SessionID  *hatvec.Id
	DocumentID *hatvec.Id
	States     []*AttentionState
}

// EncodeATNB serializes b as an ATNB v1 batch.
func EncodeATNB(b *Batch) ([]byte, error) {
	buf := new(bytes.Buffer)
	buf.WriteString(atnbMagic)
	writeU32(buf, atnbVersion)

	if b.SessionID != nil {
		buf.WriteByte(1)
		buf.Write(b.SessionID[:])
	} else {
		buf.WriteByte(0)
	}
	if b.DocumentID != nil {
		buf.WriteByte(1)
		buf.Write(b.DocumentID[:])
	} else {
		buf.WriteByte(0)
	}

	writeU32(buf, uint32(len(b.States)))
	for _, s := range b.States {
		rec, err := EncodeATTN(s)
		if err != nil {
			return nil, err
		}
		writeU64(buf, uint64(len(rec)))
		buf.Write(rec)
	}

	return buf.Bytes(), nil
}

// DecodeATNB parses an ATNB v1 batch, rejecting wrong magic, unsupported
// version, or truncation; each contained record is validated by DecodeATTN.
func DecodeATNB(data []byte) (*Batch, error) {
	r := bytes.NewReader(data)

	magic := make([]byte, 4)
	if _, err := readFull(r, magic); err != nil || string(magic) != atnbMagic {
		return nil, hatvec.ErrFormat
	}
	version, err := readU32(r)
	if err != nil || version != atnbVersion {
		return nil, hatvec.ErrFormat
	}

	b := &Batch{}

	sessionPresent, err := r.ReadByte()
	if err != nil {
		return nil, hatvec.ErrFormat
	}
	if sessionPresent == 1 {
		var id hatvec.Id
		if _, err := readFull(r, id[:]); err != nil {
			return nil, hatvec.ErrFormat
		}
		b.SessionID = &id
	} else if sessionPresent != 0 {
		return nil, hatvec.ErrFormat
	}

	documentPresent, err := r.ReadByte()
	if err != nil {
		return nil, hatvec.ErrFormat
	}
	if documentPresent == 1 {
		var id hatvec.Id
		if _, err := readFull(r, id[:]); err != nil {
			return nil, hatvec.ErrFormat
		}
		b.DocumentID = &id
	} else if documentPresent != 0 {
		return nil, hatvec.ErrFormat
	}

	count, err := readU32(r)
	if err != nil {
		return nil, hatvec.ErrFormat
	}
	b.States = make([]*AttentionState, 0, count)
	for i := uint32(0); i < count; i++ {
		stateLen, err := readU64(r)
		if err != nil {
			return nil, hatvec.ErrFormat
		}
		stateBytes := make([]byte, stateLen)
		if _, err := readFull(r, stateBytes); err != nil {
			return nil, hatvec.ErrFormat
		}
		st, err := DecodeATTN(stateBytes)
		if err != nil {
			return nil, err
		}
		b.States = append(b.States, st)
	}

	return b, nil
}
