package format

import (
	"encoding/binary"
	"errors"
)

// ErrInsufficientData is returned when a buffer is too short to contain
// the structure being unmarshaled.
var ErrInsufficientData = errors.New("format: insufficient data")

// MarshalHeader encodes a JsetHeader into its fixed 24-byte wire form.
func MarshalHeader(h *JsetHeader) []byte {
	buf := make([]byte, JsetHeaderSize)
	binary.LittleEndian.PutUint64(buf[0:8], h.Seq)
	binary.LittleEndian.PutUint64(buf[8:16], h.LastSeq)
	binary.LittleEndian.PutUint32(buf[16:20], h.U64sUsed)
	binary.LittleEndian.PutUint32(buf[20:24], h.Flags)
	return buf
}

// UnmarshalHeader decodes a JsetHeader from its fixed 24-byte wire form.
func UnmarshalHeader(data []byte, h *JsetHeader) error {
	if len(data) < JsetHeaderSize {
		return ErrInsufficientData
	}
	h.Seq = binary.LittleEndian.Uint64(data[0:8])
	h.LastSeq = binary.LittleEndian.Uint64(data[8:16])
	h.U64sUsed = binary.LittleEndian.Uint32(data[16:20])
	h.Flags = binary.LittleEndian.Uint32(data[20:24])
	return nil
}

// MarshalEntry encodes a JsetEntry's fixed prefix plus payload.
func MarshalEntry(e *JsetEntry) []byte {
	buf := make([]byte, JsetEntryHeaderSize+len(e.Payload))
	binary.LittleEndian.PutUint16(buf[0:2], e.U64s)
	buf[2] = e.BtreeID
	buf[3] = e.Type
	buf[4] = e.Level
	// buf[5:8] is pad, left zero
	copy(buf[JsetEntryHeaderSize:], e.Payload)
	return buf
}

// UnmarshalEntry decodes a JsetEntry's fixed prefix and slices its
// payload from data without copying. data must outlive the returned
// entry's Payload field.
func UnmarshalEntry(data []byte) (*JsetEntry, int, error) {
	if len(data) < JsetEntryHeaderSize {
		return nil, 0, ErrInsufficientData
	}
	e := &JsetEntry{
		U64s:    binary.LittleEndian.Uint16(data[0:2]),
		BtreeID: data[2],
		Type:    data[3],
		Level:   data[4],
	}
	payloadWords := int(e.U64s) - JsetEntryHeaderSize/8
	if payloadWords < 0 {
		return nil, 0, ErrInsufficientData
	}
	payloadBytes := payloadWords * 8
	total := JsetEntryHeaderSize + payloadBytes
	if len(data) < total {
		return nil, 0, ErrInsufficientData
	}
	e.Payload = data[JsetEntryHeaderSize:total]
	return e, total, nil
}

// MarshalPayload encodes a sequence of jset_entry records as they appear
// following a jset_header on disk.
func MarshalPayload(entries []*JsetEntry) []byte {
	size := 0
	for _, e := range entries {
		size += e.EntrySize()
	}
	buf := make([]byte, 0, size)
	for _, e := range entries {
		buf = append(buf, MarshalEntry(e)...)
	}
	return buf
}

// UnmarshalPayload decodes a sequence of jset_entry records from a
// payload of the given length in 64-bit words.
func UnmarshalPayload(data []byte, u64sUsed uint32) ([]*JsetEntry, error) {
	want := int(u64sUsed) * 8
	if len(data) < want {
		return nil, ErrInsufficientData
	}
	data = data[:want]

	var entries []*JsetEntry
	for len(data) > 0 {
		e, n, err := UnmarshalEntry(data)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
		data = data[n:]
	}
	return entries, nil
}

// BucketArray is the dedicated superblock section recording the fixed
// list of journal bucket extents, as `{ le64 buckets[] }`.
type BucketArray struct {
	Buckets []uint64
}

// MarshalBucketArray encodes the bucket-extent list as little-endian
// u64s, for persistence via the superblock writer.
func MarshalBucketArray(b *BucketArray) []byte {
	buf := make([]byte, len(b.Buckets)*8)
	for i, v := range b.Buckets {
		binary.LittleEndian.PutUint64(buf[i*8:i*8+8], v)
	}
	return buf
}

// UnmarshalBucketArray decodes a bucket-extent list.
func UnmarshalBucketArray(data []byte) (*BucketArray, error) {
	if len(data)%8 != 0 {
		return nil, ErrInsufficientData
	}
	b := &BucketArray{Buckets: make([]uint64, len(data)/8)}
	for i := range b.Buckets {
		b.Buckets[i] = binary.LittleEndian.Uint64(data[i*8 : i*8+8])
	}
	return b, nil
}
