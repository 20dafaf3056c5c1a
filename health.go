package sockhub

import (
	"encoding/json"
	"net/http"
	"os"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

// Stats is a snapshot of broker load.
type Stats struct {
	Node       string         `json:"node"`
	Sessions   int64          `json:"sessions"`
	Namespaces map[string]int `json:"namespaces"` // path -> sockets
	Nicknames  int            `json:"nicknames"`
	Uptime     string         `json:"uptime"`
	RSS        uint64         `json:"rss,omitempty"`
	CPUPercent float64        `json:"cpuPercent,omitempty"`
}

// Stats returns current counters and, when available, process resource
// usage.
func (b *Broker) Stats() Stats {
	st := Stats{
		Node:       b.nodeID,
		Sessions:   b.sessions.Load(),
		Namespaces: make(map[string]int),
		Uptime:     time.Since(b.started).Round(time.Second).String(),
	}

	b.nsMu.RLock()
	for path, ns := range b.namespaces {
		st.Namespaces[path] = ns.Len()
		st.Nicknames += ns.nicknames.Len()
	}
	b.nsMu.RUnlock()

	if p, err := process.NewProcess(int32(os.Getpid())); err == nil {
		if mem, err := p.MemoryInfo(); err == nil {
			st.RSS = mem.RSS
		}
		if cpu, err := p.CPUPercent(); err == nil {
			st.CPUPercent = cpu
		}
	} else {
		b.log.Debug("process stats unavailable", "err", err)
	}
	return st
}

// HealthHandler reports broker status as JSON.
func (b *Broker) HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"stats":     b.Stats(),
	})
}
