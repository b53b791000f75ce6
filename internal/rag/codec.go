package rag

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// indexMagic prefixes every serialized index.
var indexMagic = []byte("DQIX")

// indexFormatVersion is bumped whenever the payload layout changes
// incompatibly.
const indexFormatVersion = 1

// headerLen is the magic plus the big-endian CRC-32 of the payload.
const headerLen = 8

// Field numbers of the index payload.
const (
	fieldVersion protowire.Number = 1
	fieldModel   protowire.Number = 2
	fieldDims    protowire.Number = 3
	fieldEntry   protowire.Number = 4

	fieldEntryText   protowire.Number = 1
	fieldEntryVector protowire.Number = 2
)

// MarshalBinary serializes the index as "DQIX", a CRC-32 (IEEE) of the
// payload, and a protobuf wire-format payload.
func (ix *VectorIndex) MarshalBinary() ([]byte, error) {
	var payload []byte
	payload = protowire.AppendTag(payload, fieldVersion, protowire.VarintType)
	payload = protowire.AppendVarint(payload, indexFormatVersion)
	payload = protowire.AppendTag(payload, fieldModel, protowire.BytesType)
	payload = protowire.AppendString(payload, ix.model)
	payload = protowire.AppendTag(payload, fieldDims, protowire.VarintType)
	payload = protowire.AppendVarint(payload, uint64(ix.dims))

	for _, e := range ix.entries {
		var msg []byte
		msg = protowire.AppendTag(msg, fieldEntryText, protowire.BytesType)
		msg = protowire.AppendString(msg, e.text)

		packed := make([]byte, 0, 4*len(e.vector))
		for _, x := range e.vector {
			packed = protowire.AppendFixed32(packed, math.Float32bits(x))
		}
		msg = protowire.AppendTag(msg, fieldEntryVector, protowire.BytesType)
		msg = protowire.AppendBytes(msg, packed)

		payload = protowire.AppendTag(payload, fieldEntry, protowire.BytesType)
		payload = protowire.AppendBytes(payload, msg)
	}

	out := make([]byte, headerLen, headerLen+len(payload))
	copy(out, indexMagic)
	binary.BigEndian.PutUint32(out[4:], crc32.ChecksumIEEE(payload))
	return append(out, payload...), nil
}

// UnmarshalIndex decodes bytes produced by MarshalBinary. Any framing,
// checksum, or structural failure is a KindIndexCorrupt error.
func UnmarshalIndex(data []byte) (*VectorIndex, error) {
	if len(data) < headerLen || !bytes.Equal(data[:4], indexMagic) {
		return nil, Errorf(KindIndexCorrupt, "index: bad header")
	}
	payload := data[headerLen:]
	if want := binary.BigEndian.Uint32(data[4:headerLen]); crc32.ChecksumIEEE(payload) != want {
		return nil, Errorf(KindIndexCorrupt, "index: checksum mismatch")
	}

	ix := &VectorIndex{}
	var version uint64
	var dims uint64
	var rawEntries [][]byte

	for len(payload) > 0 {
		num, typ, n := protowire.ConsumeTag(payload)
		if n < 0 {
			return nil, corrupt("tag", protowire.ParseError(n))
		}
		payload = payload[n:]

		switch {
		case num == fieldVersion && typ == protowire.VarintType:
			version, n = protowire.ConsumeVarint(payload)
		case num == fieldModel && typ == protowire.BytesType:
			ix.model, n = protowire.ConsumeString(payload)
		case num == fieldDims && typ == protowire.VarintType:
			dims, n = protowire.ConsumeVarint(payload)
		case num == fieldEntry && typ == protowire.BytesType:
			var b []byte
			b, n = protowire.ConsumeBytes(payload)
			rawEntries = append(rawEntries, b)
		default:
			n = protowire.ConsumeFieldValue(num, typ, payload)
		}
		if n < 0 {
			return nil, corrupt(fmt.Sprintf("field %d", num), protowire.ParseError(n))
		}
		payload = payload[n:]
	}

	if version != indexFormatVersion {
		return nil, Errorf(KindIndexCorrupt, "index: unsupported format version %d", version)
	}
	if len(rawEntries) > 0 && dims == 0 {
		return nil, Errorf(KindIndexCorrupt, "index: %d entries with zero dimensions", len(rawEntries))
	}
	ix.dims = int(dims) //nolint:gosec // bounded by the vector length check below

	ix.entries = make([]entry, 0, len(rawEntries))
	for i, raw := range rawEntries {
		e, err := decodeEntry(raw)
		if err != nil {
			return nil, corrupt(fmt.Sprintf("entry %d", i), err)
		}
		if len(e.vector) != ix.dims {
			return nil, Errorf(KindIndexCorrupt,
				"index: entry %d has %d dimensions, want %d", i, len(e.vector), ix.dims)
		}
		if !finite(e.vector) {
			return nil, Errorf(KindIndexCorrupt, "index: entry %d has a non-finite component", i)
		}
		e.norm = l2(e.vector)
		ix.entries = append(ix.entries, e)
	}
	return ix, nil
}

// decodeEntry decodes one nested entry message.
func decodeEntry(b []byte) (entry, error) {
	var e entry
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return e, protowire.ParseError(n)
		}
		b = b[n:]

		switch {
		case num == fieldEntryText && typ == protowire.BytesType:
			e.text, n = protowire.ConsumeString(b)
		case num == fieldEntryVector && typ == protowire.BytesType:
			var packed []byte
			packed, n = protowire.ConsumeBytes(b)
			if n >= 0 {
				v, err := unpackFloats(packed)
				if err != nil {
					return e, err
				}
				e.vector = v
			}
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return e, protowire.ParseError(n)
		}
		b = b[n:]
	}
	return e, nil
}

// unpackFloats decodes a packed repeated fixed32 float field.
func unpackFloats(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("packed vector length %d is not a multiple of 4", len(b))
	}
	out := make([]float32, 0, len(b)/4)
	for len(b) > 0 {
		bits, n := protowire.ConsumeFixed32(b)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		out = append(out, math.Float32frombits(bits))
		b = b[n:]
	}
	return out, nil
}

// corrupt wraps a decode failure as a KindIndexCorrupt error.
func corrupt(what string, err error) *Error {
	return NewError(KindIndexCorrupt, "index: decode "+what, err)
}
