// Package handlers implements the webui page and API handlers.
package handlers

import (
	"html/template"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tdewolff/minify"
	minhtml "github.com/tdewolff/minify/html"

	"github.com/Thyanin/aleth/db"
	"github.com/Thyanin/aleth/discover"
	"github.com/Thyanin/aleth/transport"
)

// FrontendHandler serves the status pages from live table state.
type FrontendHandler struct {
	siteName  string
	table     *discover.NodeTable
	transport *transport.UDPTransport
	database  *db.Database
	startTime time.Time

	minifier  *minify.M
	templates *template.Template
}

// NewFrontendHandler builds the handler set. The transport and
// database may be nil (dormant table, in-memory run); the affected
// sections render empty.
func NewFrontendHandler(siteName string, table *discover.NodeTable, udp *transport.UDPTransport, database *db.Database) *FrontendHandler {
	m := minify.New()
	m.AddFunc("text/html", minhtml.Minify)

	return &FrontendHandler{
		siteName:  siteName,
		table:     table,
		transport: udp,
		database:  database,
		startTime: time.Now(),
		minifier:  m,
		templates: template.Must(template.New("webui").Parse(pageTemplates)),
	}
}

// render executes a template and serves the minified result.
func (h *FrontendHandler) render(w http.ResponseWriter, name string, data interface{}) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	mw := h.minifier.Writer("text/html", w)
	defer mw.Close()
	if err := h.templates.ExecuteTemplate(mw, name, data); err != nil {
		logrus.WithError(err).Error("webui: template render failed")
	}
}

const pageTemplates = `
{{define "head"}}<!DOCTYPE html>
<html>
<head>
	<title>{{.SiteName}}</title>
	<style>
		body { font-family: monospace; margin: 2em; }
		table { border-collapse: collapse; }
		th, td { border: 1px solid #999; padding: 4px 8px; text-align: left; }
		nav a { margin-right: 1em; }
	</style>
</head>
<body>
<nav><a href="/">overview</a><a href="/nodes">nodes</a><a href="/metrics">metrics</a></nav>
<h1>{{.SiteName}}</h1>{{end}}

{{define "foot"}}</body></html>{{end}}

{{define "overview"}}{{template "head" .}}
<h2>Host</h2>
<table>
	<tr><th>node id</th><td>{{.SelfID}}</td></tr>
	<tr><th>endpoint</th><td>{{.SelfEndpoint}}</td></tr>
	<tr><th>enode</th><td>{{.Enode}}</td></tr>
	<tr><th>uptime</th><td>{{.Uptime}}</td></tr>
</table>
<h2>Routing table</h2>
<table>
	<tr><th>registry entries</th><td>{{.RegistrySize}}</td></tr>
	<tr><th>seated entries</th><td>{{.TableSize}}</td></tr>
	<tr><th>persisted entries</th><td>{{.StoredNodes}}</td></tr>
</table>
<h2>Transport</h2>
<table>
	<tr><th>packets sent</th><td>{{.PacketsSent}}</td></tr>
	<tr><th>packets received</th><td>{{.PacketsReceived}}</td></tr>
	<tr><th>send errors</th><td>{{.SendErrors}}</td></tr>
	<tr><th>receive errors</th><td>{{.ReceiveErrors}}</td></tr>
	<tr><th>rate limited</th><td>{{.RateLimited}}</td></tr>
</table>
{{template "foot" .}}{{end}}

{{define "nodes"}}{{template "head" .}}
<h2>Seated nodes ({{len .Nodes}})</h2>
<table>
	<tr><th>node id</th><th>endpoint</th><th>distance</th><th>last seen</th><th>failures</th></tr>
	{{range .Nodes}}
	<tr><td>{{.ID}}</td><td>{{.Endpoint}}</td><td>{{.Distance}}</td><td>{{.LastSeen}}</td><td>{{.Failures}}</td></tr>
	{{end}}
</table>
{{template "foot" .}}{{end}}
`
