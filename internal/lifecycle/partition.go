package lifecycle

import "fmt"

// Allocation is one rank's contiguous slice of the ordered work units.
type Allocation struct {
	Rank   int
	Offset int
	Count  int
}

// End returns the exclusive end offset.
func (a Allocation) End() int {
	return a.Offset + a.Count
}

// Empty reports whether the rank has no local work.
func (a Allocation) Empty() bool {
	return a.Count == 0
}

// Partition splits total units over size ranks: each rank gets total/size
// units and the first total%size ranks get one more. Offsets are the running
// sum of lower ranks' counts.
func Partition(total, size int) ([]Allocation, error) {
	if size < 1 {
		return nil, fmt.Errorf("partition: group size must be at least 1, got %d", size)
	}
	if total < 0 {
		return nil, fmt.Errorf("partition: negative work unit count %d", total)
	}
	base, extra := total/size, total%size
	out := make([]Allocation, size)
	offset := 0
	for rank := range out {
		count := base
		if rank < extra {
			count++
		}
		out[rank] = Allocation{Rank: rank, Offset: offset, Count: count}
		offset += count
	}
	return out, nil
}

// AllocationFor returns rank's allocation without building the full table.
func AllocationFor(total, rank, size int) (Allocation, error) {
	if size < 1 {
		return Allocation{}, fmt.Errorf("partition: group size must be at least 1, got %d", size)
	}
	if rank < 0 || rank >= size {
		return Allocation{}, fmt.Errorf("partition: rank %d out of range for group of %d", rank, size)
	}
	if total < 0 {
		return Allocation{}, fmt.Errorf("partition: negative work unit count %d", total)
	}
	base, extra := total/size, total%size
	count := base
	if rank < extra {
		count++
	}
	return Allocation{Rank: rank, Offset: rank*base + min(rank, extra), Count: count}, nil
}
