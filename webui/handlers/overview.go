package handlers

import (
	"net/http"
	"time"

	"github.com/Thyanin/aleth/enode"
)

// OverviewPageData carries the overview page contents.
type OverviewPageData struct {
	SiteName     string
	SelfID       string
	SelfEndpoint string
	Enode        string
	Uptime       string

	RegistrySize int
	TableSize    int
	StoredNodes  int

	PacketsSent     uint64
	PacketsReceived uint64
	SendErrors      uint64
	ReceiveErrors   uint64
	RateLimited     uint64
}

// Overview serves the landing page.
func (h *FrontendHandler) Overview(w http.ResponseWriter, r *http.Request) {
	self := h.table.Self()
	data := OverviewPageData{
		SiteName:     h.siteName,
		SelfID:       self.ID.String(),
		SelfEndpoint: self.Endpoint.String(),
		Enode:        enode.Format(self),
		Uptime:       time.Since(h.startTime).Round(time.Second).String(),
		RegistrySize: len(h.table.Nodes()),
		TableSize:    len(h.table.Snapshot()),
	}

	if h.database != nil {
		if count, err := h.database.CountNodes(); err == nil {
			data.StoredNodes = count
		}
	}
	if h.transport != nil {
		snap := h.transport.Metrics().Snapshot()
		data.PacketsSent = snap.PacketsSent
		data.PacketsReceived = snap.PacketsReceived
		data.SendErrors = snap.SendErrors
		data.ReceiveErrors = snap.ReceiveErrors
		data.RateLimited = snap.RateLimited
	}

	h.render(w, "overview", data)
}
