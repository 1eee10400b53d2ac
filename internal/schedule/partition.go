package schedule

// Range is a half-open index range [Start, End).
type Range struct {
	Start int
	End   int
}

func (r Range) Len() int { return r.End - r.Start }

// Partition splits [0, total) into lanes contiguous ranges of
// ceil(total/lanes) items each; trailing ranges may be short or empty.
func Partition(total, lanes int) []Range {
	if lanes < 1 {
		return nil
	}
	if total < 0 {
		total = 0
	}
	size := (total + lanes - 1) / lanes
	out := make([]Range, lanes)
	for i := range out {
		start := min(i*size, total)
		out[i] = Range{Start: start, End: min(start+size, total)}
	}
	return out
}

// Assignment is the fixed work slice of one CPU lane.
type Assignment struct {
	Lane        string
	Connections Range
	Nodes       Range
	Tasks       Range
}
