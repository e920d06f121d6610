// Package format implements the bit-exact on-disk encoding for journal
// entries: the jset_header that prefixes every written entry and the
// jset_entry records that make up its payload.
package format

// JsetHeaderSize is the fixed size in bytes of a jset_header.
const JsetHeaderSize = 24 // seq(8) + last_seq(8) + u64s_used(4) + flags(4)

// JsetEntryHeaderSize is the fixed size in bytes of a jset_entry's
// fixed-width prefix, before its bkey payload.
const JsetEntryHeaderSize = 8 // u64s(2) + btree_id(1) + type(1) + level(1) + pad[3]

// Entry types recorded in jset_entry.Type. btree_keys carries ordinary
// B-tree inserts; btree_root records a B-tree's current root at write
// time and is written into the trailing suffix reserved at open_entry.
const (
	EntryTypeBtreeKeys uint8 = 0
	EntryTypeBtreeRoot uint8 = 1
	EntryTypeUsrData   uint8 = 2
)

// HeaderFlags bits for JsetHeader.Flags.
const (
	FlagNone uint32 = 0
	// FlagNoFlush marks an entry that does not require device cache
	// flush/FUA before being considered durable (metadata-only writes
	// covered by a later flush).
	FlagNoFlush uint32 = 1 << 0
)
