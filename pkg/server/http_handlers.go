package server

import (
	"encoding/json"
	"log"
	"net/http"
	"sort"
	"strconv"
	"time"
)

// ServerInfo is the externally visible shape of a registry entry.
// Connection identifiers stay internal.
type ServerInfo struct {
	Name     string `json:"name"`
	IP       string `json:"ip"`
	TLS      bool   `json:"tls"`
	Port     uint16 `json:"port"`
	Official bool   `json:"official"`
	Players  uint32 `json:"players"`
}

// ServersHandler serves the current server list as a JSON array
func (s *Server) ServersHandler(w http.ResponseWriter, r *http.Request) {
	if s.metrics != nil {
		s.metrics.RecordListRequest()
	}

	entries := s.registry.Snapshot()

	// Stable order for consumers; map iteration order would make
	// pagination useless
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Name != entries[j].Name {
			return entries[i].Name < entries[j].Name
		}
		if c := entries[i].IP.Compare(entries[j].IP); c != 0 {
			return c < 0
		}
		return entries[i].Port < entries[j].Port
	})

	offset, limit := parsePagination(r)
	if offset > len(entries) {
		offset = len(entries)
	}
	entries = entries[offset:]
	if limit >= 0 && limit < len(entries) {
		entries = entries[:limit]
	}

	infos := make([]ServerInfo, 0, len(entries))
	for _, e := range entries {
		infos = append(infos, ServerInfo{
			Name:     e.Name,
			IP:       e.IP.String(),
			TLS:      e.TLS,
			Port:     e.Port,
			Official: e.Official,
			Players:  e.Players,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*") // Allow CORS for external websites
	if err := json.NewEncoder(w).Encode(infos); err != nil {
		log.Printf("Error encoding servers JSON: %v", err)
	}
}

// parsePagination reads optional offset/limit query parameters.
// Missing or malformed values fall back to the full list.
func parsePagination(r *http.Request) (offset, limit int) {
	offset = 0
	limit = -1

	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			limit = n
		}
	}
	return offset, limit
}

// HealthHandler serves health check status
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{
		"status":             "healthy",
		"uptime_seconds":     int64(time.Since(s.startTime).Seconds()),
		"registered_servers": s.registry.Len(),
		"open_connections":   s.sessions.Count(),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(health); err != nil {
		log.Printf("Error encoding health JSON: %v", err)
	}
}
