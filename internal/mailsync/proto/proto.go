// Package proto renders the wire-exact untagged IMAP responses this
// core produces: EXPUNGE (standard or QRESYNC/VANISHED form) and
// EXISTS. No other wire output is produced by this core.
package proto

import (
	"fmt"
	"io"
	"sort"
)

// RenderExpunge writes one EXPUNGE notification for ids, already
// sorted ascending by the caller. In QRESYNC mode it writes a single
// "* VANISHED <uid-set>\r\n" using compressed range syntax; otherwise
// it writes one "* <n> EXPUNGE\r\n" per id, in the order given.
func RenderExpunge(w io.Writer, isQResync bool, ids []uint32) error {
	if len(ids) == 0 {
		return nil
	}
	if isQResync {
		_, err := fmt.Fprintf(w, "* VANISHED %s\r\n", compressRanges(ids))
		return err
	}
	for _, id := range ids {
		if _, err := fmt.Fprintf(w, "* %d EXPUNGE\r\n", id); err != nil {
			return err
		}
	}
	return nil
}

// RenderExists writes "* <total> EXISTS\r\n".
func RenderExists(w io.Writer, total int) error {
	_, err := fmt.Fprintf(w, "* %d EXISTS\r\n", total)
	return err
}

// compressRanges renders an ascending uid list as IMAP sequence-set
// syntax, collapsing consecutive runs into "a:b" ranges.
func compressRanges(ids []uint32) string {
	sorted := append([]uint32(nil), ids...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var sb []string
	i := 0
	for i < len(sorted) {
		start := sorted[i]
		end := start
		j := i + 1
		for j < len(sorted) && sorted[j] == end+1 {
			end = sorted[j]
			j++
		}
		if start == end {
			sb = append(sb, fmt.Sprintf("%d", start))
		} else {
			sb = append(sb, fmt.Sprintf("%d:%d", start, end))
		}
		i = j
	}

	out := ""
	for i, part := range sb {
		if i > 0 {
			out += ","
		}
		out += part
	}
	return out
}
