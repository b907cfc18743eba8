// Package planner implements the buffer planner (spec component C5): it
// assigns every intermediate tensor a byte offset into one shared arena,
// such that tensors whose live ranges overlap never alias.
//
// Both strategies here — naive and greedy-by-size — are ported directly
// from original_source/onnx2code/memory.py, which in turn mirrors
// TFLite's memory offset calculation (see that file's header comment for
// the paper/blog/reference-code citations). The smaller of the two
// arenas wins, matching that file's find_best_layout.
package planner

import (
	"sort"

	"github.com/orneryd/onnx2code/pkg/onnxir"
)

// Layout is the result of planning: the total arena size and each
// tensor's byte offset into it, keyed by tensor name.
type Layout struct {
	ArenaSize int
	Offsets   map[string]int
}

// Plan computes the live-range-aware layout for records, excluding any
// tensor welded to an output (spec §4.4's second edge case — callers are
// expected to have already filtered those out via
// onnxir.Catalogue.WeldedToOutput before building records).
func Plan(records []onnxir.UsageRecord) Layout {
	if len(records) == 0 {
		return Layout{Offsets: map[string]int{}}
	}

	naiveTotal, naiveOffsets := naive(records)
	greedyTotal, greedyOffsets := greedyBySize(records)

	total, offsets := naiveTotal, naiveOffsets
	if greedyTotal < naiveTotal {
		total, offsets = greedyTotal, greedyOffsets
	}

	byName := make(map[string]int, len(records))
	for i, r := range records {
		byName[r.TensorName] = offsets[i]
	}
	return Layout{ArenaSize: total, Offsets: byName}
}

// naive places every tensor back-to-back in appearance order, with no
// sharing at all — arena size is the sum of every tensor's size.
func naive(records []onnxir.UsageRecord) (int, []int) {
	total := 0
	offsets := make([]int, len(records))
	for i, r := range records {
		offsets[i] = total
		total += r.Size
	}
	return total, offsets
}

type sizeSorted struct {
	rec   onnxir.UsageRecord
	index int
}

// greedyBySize is TFLite's greedy-by-size memory offset calculation:
// tensors are visited largest-first, and each is placed in the smallest
// offset-axis gap among already-placed, live-range-overlapping tensors
// that fits it; failing that, immediately after the highest end offset
// among those overlapping placed tensors (offset 0 when none overlap).
// Ties on gap size break by first-fit (lowest offset) because
// placed tensors are scanned in increasing-offset order.
func greedyBySize(records []onnxir.UsageRecord) (int, []int) {
	n := len(records)
	sorted := make([]sizeSorted, n)
	for i, r := range records {
		sorted[i] = sizeSorted{rec: r, index: i}
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].rec.Size > sorted[j].rec.Size
	})

	offsets := make([]int, n) // keyed by original (pre-sort) index
	var orderedAllocs []int   // positions into `sorted`, kept offset-ordered

	total := 0
	for ti := range sorted {
		t := sorted[ti]

		prevOffset := 0
		bestOffset := -1
		smallestGap := -1

		for _, allocatedID := range orderedAllocs {
			placed := sorted[allocatedID]
			if placed.rec.LastOp < t.rec.FirstOp || placed.rec.FirstOp > t.rec.LastOp {
				continue
			}

			curOffset := offsets[placed.index]
			if curOffset >= prevOffset {
				gap := curOffset - prevOffset
				if gap >= t.rec.Size && (smallestGap == -1 || gap < smallestGap) {
					smallestGap = gap
					bestOffset = prevOffset
				}
			}
			if end := curOffset + placed.rec.Size; end > prevOffset {
				prevOffset = end
			}
		}

		if bestOffset == -1 {
			bestOffset = prevOffset
		}

		offsets[t.index] = bestOffset
		if end := bestOffset + t.rec.Size; end > total {
			total = end
		}

		orderedAllocs = append(orderedAllocs, ti)
		sort.SliceStable(orderedAllocs, func(i, j int) bool {
			return offsets[sorted[orderedAllocs[i]].index] < offsets[sorted[orderedAllocs[j]].index]
		})
	}

	return total, offsets
}

// BuildRecords derives usage records for every intermediate tensor in
// cat that is not welded to an output, from the emitted op list: for
// each such tensor, first_op is the index of the call that produces it
// and last_op is the index of the last call that consumes it. A tensor
// consumed only by the final output (no later call reads it) gets
// last_op = first_op + 1, per spec §4.4's first edge case, so it still
// occupies a live slot across the call that writes the output.
func BuildRecords(cat *onnxir.Catalogue, calls []onnxir.OperationCall) []onnxir.UsageRecord {
	firstOp := make(map[string]int)
	lastOp := make(map[string]int)

	for i, call := range calls {
		for _, out := range call.Outputs {
			if _, seen := firstOp[out.Name]; !seen {
				firstOp[out.Name] = i
			}
		}
		for _, in := range call.Inputs {
			lastOp[in.Name] = i
		}
	}

	var records []onnxir.UsageRecord
	for _, t := range cat.Ordered() {
		if t.Tag != onnxir.TagIntermediate {
			continue
		}
		if cat.WeldedToOutput(t.Name) {
			continue
		}
		first, ok := firstOp[t.Name]
		if !ok {
			continue
		}
		last, ok := lastOp[t.Name]
		if !ok || last <= first {
			last = first + 1
		}
		records = append(records, onnxir.UsageRecord{
			TensorName: t.Name,
			FirstOp:    first,
			LastOp:     last,
			Size:       t.Size,
		})
	}
	return records
}
