package journal

import (
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
)

// RenderReservationState writes a human-readable snapshot of the
// reservation word and both entry buffers' lifecycle state to w. This is
// a debug surface only; nothing in the journal core depends on it.
func (c *JournalCore) RenderReservationState(w io.Writer) {
	c.mu.Lock()
	word := c.res.load()
	curEntryU64s := c.curEntryU64s
	c.mu.Unlock()

	fmt.Fprintf(w, "journal %s\n", c.id)

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"buffer", "state", "seq", "count", "size"})
	for idx := uint64(0); idx < 2; idx++ {
		buf := c.buffers[idx]
		marker := ""
		if idx == word.idx() && word.isOpen() {
			marker = " (open)"
		}
		table.Append([]string{
			fmt.Sprintf("%d%s", idx, marker),
			buf.getState().String(),
			fmt.Sprintf("%d", buf.seq),
			fmt.Sprintf("%d", word.count(idx)),
			humanize.Bytes(uint64(buf.size)),
		})
	}
	table.Render()

	fmt.Fprintf(w, "cur_entry_u64s=%d prev_buf_unwritten=%t error=%t\n",
		curEntryU64s, word.prevBufUnwritten(), word.isError())
}

// RenderPinLists writes a human-readable snapshot of the pin FIFO to w:
// one row per outstanding seq, its refcount, and how many flushers are
// still pending versus already run.
func (c *JournalCore) RenderPinLists(w io.Writer) {
	c.pins.mu.Lock()
	defer c.pins.mu.Unlock()

	fmt.Fprintf(w, "pin fifo: last_seq=%d cur_seq=%d depth=%d/%d\n",
		c.pins.lastSeq, c.pins.curSeq, len(c.pins.entries), c.pins.depth)

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"seq", "refcount", "pending", "flushed"})
	for seq := c.pins.lastSeq; seq <= c.pins.curSeq; seq++ {
		pl, ok := c.pins.entries[seq]
		if !ok {
			continue
		}
		table.Append([]string{
			fmt.Sprintf("%d", pl.seq),
			fmt.Sprintf("%d", pl.refcount),
			humanize.Comma(int64(len(pl.pending))),
			humanize.Comma(int64(len(pl.flushed))),
		})
	}
	table.Render()
}
