package orchestrator

// commandCacheCap bounds how many command_id outcomes the orchestrator
// keeps, so a long-lived subject's cache can't grow without bound. It
// comfortably covers checkpointEventThreshold commands between
// continue-as-new boundaries with headroom for rejections, which don't
// advance eventsSinceCheckpoint at all.
const commandCacheCap = 4096

// commandCache is the command-idempotency cache: the replayed-signal
// guard every handler consults before doing anything else. It is kept
// as its own type, rather than a bare map, because it has to survive
// continue-as-new — newCommandCache reseeds it from the carried-over
// OrchestratorInput.Commands, and snapshot() hands back what to carry
// forward, in FIFO-eviction order so the cache never grows past cap.
type commandCache struct {
	records map[string]commandRecord
	order   []string
	cap     int
}

func newCommandCache(cap int, seed []commandCacheEntry) *commandCache {
	c := &commandCache{
		records: make(map[string]commandRecord, len(seed)),
		order:   make([]string, 0, len(seed)),
		cap:     cap,
	}
	for _, e := range seed {
		c.set(e.CommandID, e.Record)
	}
	return c
}

func (c *commandCache) get(commandID string) (commandRecord, bool) {
	rec, ok := c.records[commandID]
	return rec, ok
}

func (c *commandCache) set(commandID string, rec commandRecord) {
	if _, exists := c.records[commandID]; !exists {
		c.order = append(c.order, commandID)
	}
	c.records[commandID] = rec
	for len(c.order) > c.cap {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.records, oldest)
	}
}

// snapshot returns the cache's entries in insertion order, ready to
// carry into OrchestratorInput.Commands for the next continue-as-new.
func (c *commandCache) snapshot() []commandCacheEntry {
	out := make([]commandCacheEntry, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, commandCacheEntry{CommandID: id, Record: c.records[id]})
	}
	return out
}
