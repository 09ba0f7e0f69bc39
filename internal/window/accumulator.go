package window

// Accumulator counts valid records per source for one window. Only sources
// with at least one record have an entry.
type Accumulator struct {
	counts map[string]int
	order  []string
	total  int
}

func NewAccumulator() *Accumulator {
	return &Accumulator{
		counts: make(map[string]int),
	}
}

// Observe increments the count of source and returns the new count
func (a *Accumulator) Observe(source string) int {
	count, seen := a.counts[source]
	if !seen {
		a.order = append(a.order, source)
	}
	count++
	a.counts[source] = count
	a.total++
	return count
}

func (a *Accumulator) Count(source string) int {
	return a.counts[source]
}

// Len is the number of distinct sources
func (a *Accumulator) Len() int {
	return len(a.counts)
}

// Total is the number of observed records
func (a *Accumulator) Total() int {
	return a.total
}
