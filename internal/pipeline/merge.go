package pipeline

import (
	"strings"

	"fleetimport/internal/coerce"
	"fleetimport/internal/loader"
	"fleetimport/internal/storage"
)

// MergeMarker is the synthetic header carrying merge provenance on every
// merged row.
const MergeMarker = "_merge"

const (
	// MergeFull marks a left row that matched at least one right row.
	MergeFull = "full"
	// MergePartial marks a left row kept standalone because no right row
	// shared its key.
	MergePartial = "partial"
)

// MergeSheets joins two sheets describing the same logical entity on a
// composite business key. Every left row pairs with each matching right row
// (a one-to-many join yields one merged record per match); right cells win
// on header collision. Left rows with no match are kept standalone and
// flagged partial. Right-only rows are dropped.
func MergeSheets(left, right *loader.Sheet, leftKeys, rightKeys []string) *loader.Sheet {
	index := make(map[string][]loader.Row)
	for _, r := range right.Rows {
		k := compositeKey(r, rightKeys)
		if k == "" {
			continue
		}
		index[k] = append(index[k], r)
	}

	headers := append([]string(nil), left.Headers...)
	have := make(map[string]bool, len(headers))
	for _, h := range headers {
		have[h] = true
	}
	for _, h := range right.Headers {
		if !have[h] {
			headers = append(headers, h)
			have[h] = true
		}
	}
	headers = append(headers, MergeMarker)

	out := &loader.Sheet{
		Name:    left.Name + "+" + right.Name,
		Headers: headers,
	}
	for _, lr := range left.Rows {
		matches := index[compositeKey(lr, leftKeys)]
		if len(matches) == 0 {
			merged := cloneRow(lr, len(lr)+1)
			merged[MergeMarker] = MergePartial
			out.Rows = append(out.Rows, merged)
			continue
		}
		for _, rr := range matches {
			merged := cloneRow(lr, len(lr)+len(rr)+1)
			for h, v := range rr {
				merged[h] = v
			}
			merged[MergeMarker] = MergeFull
			out.Rows = append(out.Rows, merged)
		}
	}
	return out
}

// compositeKey concatenates the normalized text of each key field. Empty
// when any component is null, so incomplete keys never match.
func compositeKey(row loader.Row, keys []string) string {
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		s, _ := coerce.TextValue(row[k]).(string)
		if s == "" {
			return ""
		}
		parts = append(parts, storage.NormalizeKey(s))
	}
	return strings.Join(parts, "|")
}

func cloneRow(r loader.Row, capacity int) loader.Row {
	out := make(loader.Row, capacity)
	for k, v := range r {
		out[k] = v
	}
	return out
}
