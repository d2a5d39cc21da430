package handlers

import (
	"encoding/json"
	"net/http"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
)

// NodeRow is one row of the node listing.
type NodeRow struct {
	ID       string `json:"id"`
	Endpoint string `json:"endpoint"`
	Distance int    `json:"distance"`
	LastSeen string `json:"last_seen,omitempty"`
	Failures int    `json:"failures"`
}

// NodesPageData carries the node listing page contents.
type NodesPageData struct {
	SiteName string
	Nodes    []NodeRow
}

func (h *FrontendHandler) nodeRows() []NodeRow {
	entries := h.table.Snapshot()
	rows := make([]NodeRow, 0, len(entries))
	for i := range entries {
		e := &entries[i]
		row := NodeRow{
			ID:       e.ID.String(),
			Endpoint: e.Endpoint.String(),
			Distance: e.Distance,
			Failures: e.Stats().FailureCount(),
		}
		if t := e.Stats().LastSeen(); !t.IsZero() {
			row.LastSeen = t.Format(time.RFC3339)
		}
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Distance < rows[j].Distance })
	return rows
}

// Nodes serves the node listing page.
func (h *FrontendHandler) Nodes(w http.ResponseWriter, r *http.Request) {
	h.render(w, "nodes", NodesPageData{SiteName: h.siteName, Nodes: h.nodeRows()})
}

// NodesJSON serves the node listing as JSON.
func (h *FrontendHandler) NodesJSON(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(h.nodeRows()); err != nil {
		logrus.WithError(err).Debug("webui: json encode failed")
	}
}
