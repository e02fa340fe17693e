package render

// TraceEntry records one unit entered during a render
type TraceEntry struct {
	Kind Kind
	Path string
}

// Trace collects the units entered by a top-level call and every nested call
// it makes, outermost first. It is shared by value of the pointer and is not
// safe for concurrent use; each top-level call owns its own Trace.
type Trace struct {
	entries []TraceEntry
}

// Enter records that a unit of the given kind is about to be evaluated
func (t *Trace) Enter(kind Kind, path string) {
	t.entries = append(t.entries, TraceEntry{Kind: kind, Path: path})
}

// Entries returns a copy of the recorded entries
func (t *Trace) Entries() []TraceEntry {
	return append([]TraceEntry(nil), t.entries...)
}

// Len returns the number of recorded entries
func (t *Trace) Len() int {
	return len(t.entries)
}
