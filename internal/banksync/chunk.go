package banksync

import (
	"fmt"
	"time"
)

// chunkStep is the gateway's time resolution. Consecutive chunks are separated
// by exactly one step so no instant is requested twice.
const chunkStep = time.Second

// DateRange is an inclusive [From, To] window.
type DateRange struct {
	From time.Time
	To   time.Time
}

func (r DateRange) String() string {
	return fmt.Sprintf("%s..%s", r.From.Format(time.RFC3339), r.To.Format(time.RFC3339))
}

// ChunkRange splits [from, to] into ordered, non-overlapping inclusive windows,
// each spanning less than maxDays days. Together they cover [from, to] exactly.
// from == to yields a single zero-width window; from > to yields none.
func ChunkRange(from, to time.Time, maxDays int) []DateRange {
	if maxDays <= 0 {
		maxDays = DefaultChunkDays
	}
	if from.After(to) {
		return nil
	}

	span := time.Duration(maxDays)*24*time.Hour - chunkStep

	var chunks []DateRange
	for start := from; !start.After(to); {
		end := start.Add(span)
		if end.After(to) {
			end = to
		}
		chunks = append(chunks, DateRange{From: start, To: end})
		start = end.Add(chunkStep)
	}
	return chunks
}
