package format

// JsetHeader prefixes every on-disk journal entry.
type JsetHeader struct {
	Seq      uint64 // this entry's sequence
	LastSeq  uint64 // oldest still-pinned seq at close time
	U64sUsed uint32 // payload length in 64-bit words
	Flags    uint32
}

// JsetEntry is one record within a jset_header's payload. Payload is the
// raw bkey bytes following the fixed-width prefix; its length in 64-bit
// words is U64s minus the prefix's own word count.
type JsetEntry struct {
	U64s    uint16
	BtreeID uint8
	Type    uint8
	Level   uint8
	Payload []byte
}

// EntrySize returns the number of bytes this entry occupies on disk,
// including its fixed-width prefix.
func (e *JsetEntry) EntrySize() int {
	return JsetEntryHeaderSize + len(e.Payload)
}
