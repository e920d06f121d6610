package format

import "testing"

func TestHeaderRoundTrip(t *testing.T) {
	h := &JsetHeader{
		Seq:      42,
		LastSeq:  40,
		U64sUsed: 17,
		Flags:    FlagNoFlush,
	}

	buf := MarshalHeader(h)
	if len(buf) != JsetHeaderSize {
		t.Fatalf("MarshalHeader len = %d, want %d", len(buf), JsetHeaderSize)
	}

	var got JsetHeader
	if err := UnmarshalHeader(buf, &got); err != nil {
		t.Fatalf("UnmarshalHeader: %v", err)
	}
	if got != *h {
		t.Errorf("round trip mismatch: got %+v, want %+v", got, *h)
	}
}

func TestUnmarshalHeaderShortBuffer(t *testing.T) {
	var h JsetHeader
	if err := UnmarshalHeader(make([]byte, JsetHeaderSize-1), &h); err != ErrInsufficientData {
		t.Fatalf("expected ErrInsufficientData, got %v", err)
	}
}

func TestEntryRoundTrip(t *testing.T) {
	payload := []byte{1, 2, 3, 4, 5, 6, 7, 8} // one 64-bit word
	e := &JsetEntry{
		U64s:    uint16(JsetEntryHeaderSize/8 + len(payload)/8),
		BtreeID: 3,
		Type:    EntryTypeBtreeKeys,
		Level:   0,
		Payload: payload,
	}

	buf := MarshalEntry(e)
	got, n, err := UnmarshalEntry(buf)
	if err != nil {
		t.Fatalf("UnmarshalEntry: %v", err)
	}
	if n != len(buf) {
		t.Errorf("consumed %d bytes, want %d", n, len(buf))
	}
	if got.BtreeID != e.BtreeID || got.Type != e.Type || got.Level != e.Level {
		t.Errorf("entry prefix mismatch: got %+v", got)
	}
	if string(got.Payload) != string(payload) {
		t.Errorf("payload mismatch: got %v, want %v", got.Payload, payload)
	}
}

func TestPayloadRoundTripMultipleEntries(t *testing.T) {
	entries := []*JsetEntry{
		{U64s: uint16(JsetEntryHeaderSize/8 + 1), BtreeID: 0, Type: EntryTypeBtreeKeys, Payload: make([]byte, 8)},
		{U64s: uint16(JsetEntryHeaderSize / 8), BtreeID: 1, Type: EntryTypeBtreeRoot},
	}

	buf := MarshalPayload(entries)
	var u64sUsed uint32
	for _, e := range entries {
		u64sUsed += uint32(e.U64s)
	}

	got, err := UnmarshalPayload(buf, u64sUsed)
	if err != nil {
		t.Fatalf("UnmarshalPayload: %v", err)
	}
	if len(got) != len(entries) {
		t.Fatalf("got %d entries, want %d", len(got), len(entries))
	}
	for i := range entries {
		if got[i].BtreeID != entries[i].BtreeID || got[i].Type != entries[i].Type {
			t.Errorf("entry %d mismatch: got %+v, want %+v", i, got[i], entries[i])
		}
	}
}

func TestBucketArrayRoundTrip(t *testing.T) {
	b := &BucketArray{Buckets: []uint64{100, 200, 300, 0xFFFFFFFFFFFFFFFF}}
	buf := MarshalBucketArray(b)

	got, err := UnmarshalBucketArray(buf)
	if err != nil {
		t.Fatalf("UnmarshalBucketArray: %v", err)
	}
	if len(got.Buckets) != len(b.Buckets) {
		t.Fatalf("got %d buckets, want %d", len(got.Buckets), len(b.Buckets))
	}
	for i := range b.Buckets {
		if got.Buckets[i] != b.Buckets[i] {
			t.Errorf("bucket %d = %d, want %d", i, got.Buckets[i], b.Buckets[i])
		}
	}
}

func TestUnmarshalBucketArrayMisaligned(t *testing.T) {
	if _, err := UnmarshalBucketArray(make([]byte, 7)); err != ErrInsufficientData {
		t.Fatalf("expected ErrInsufficientData, got %v", err)
	}
}
