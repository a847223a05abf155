package router

// Ledger is a per-key bounded attempt counter. It is session-scoped and
// owned by one Router; counts survive strategy changes and reset only
// on an exact-key success.
type Ledger struct {
	ceiling int
	counts  map[string]int
}

const defaultCeiling = 3

func NewLedger(ceiling int) *Ledger {
	if ceiling <= 0 {
		ceiling = defaultCeiling
	}
	return &Ledger{
		ceiling: ceiling,
		counts:  make(map[string]int),
	}
}

func (l *Ledger) Increment(key string) int {
	l.counts[key]++
	return l.counts[key]
}

func (l *Ledger) Exceeded(key string) bool {
	return l.counts[key] >= l.ceiling
}

func (l *Ledger) Reset(key string) {
	delete(l.counts, key)
}

func (l *Ledger) Count(key string) int {
	return l.counts[key]
}
