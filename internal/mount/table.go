package mount

import "sync"

// entry is one (client-host, dirpath) mount-table row.
type entry struct {
	client string
	path   string
}

// Table is the process-wide mount table: advisory bookkeeping of which
// clients have MNT'd which exports, read by DUMP and mutated by
// MNT/UMNT/UMNTALL. Losing this state never denies file access.
type Table struct {
	mu      sync.Mutex
	entries []entry
}

func NewTable() *Table {
	return &Table{}
}

func (t *Table) Add(client, path string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, e := range t.entries {
		if e.client == client && e.path == path {
			return
		}
	}
	t.entries = append(t.entries, entry{client: client, path: path})
}

func (t *Table) Remove(client, path string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := t.entries[:0]
	for _, e := range t.entries {
		if e.client == client && e.path == path {
			continue
		}
		out = append(out, e)
	}
	t.entries = out
}

func (t *Table) RemoveAll(client string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := t.entries[:0]
	for _, e := range t.entries {
		if e.client == client {
			continue
		}
		out = append(out, e)
	}
	t.entries = out
}

// Dump returns a snapshot of (client, path) pairs.
func (t *Table) Dump() [][2]string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([][2]string, len(t.entries))
	for i, e := range t.entries {
		out[i] = [2]string{e.client, e.path}
	}
	return out
}
