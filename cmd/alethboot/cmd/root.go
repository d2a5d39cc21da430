// Package cmd implements the alethboot command line interface.
package cmd

import (
	"crypto/ecdsa"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Thyanin/aleth/crypto"
	"github.com/Thyanin/aleth/db"
	"github.com/Thyanin/aleth/discover"
	"github.com/Thyanin/aleth/discover/node"
	"github.com/Thyanin/aleth/enode"
	"github.com/Thyanin/aleth/transport"
	"github.com/Thyanin/aleth/webui"
)

var (
	configPath    string
	privateKeyHex string
	keyFilePath   string
	bindAddr      string
	bindPort      int
	bootnodesFlag string
	nodeDBPath    string
	allowLocal    bool
	disabled      bool
	logLevel      string

	enableWebUI bool
	webUIHost   string
	webUIPort   int
	webUISite   string

	rootCmd = &cobra.Command{
		Use:   "alethboot",
		Short: "Kademlia discovery bootnode",
		Long: `Alethboot runs a standalone peer discovery node.

It maintains a Kademlia routing table over signed UDP datagrams,
answers FINDNODE queries, and continuously discovers new peers.
Discovered nodes can be persisted to sqlite and inspected through
an optional web UI.`,
		RunE: runBootnode,
	}
)

// fileConfig is the optional YAML configuration file. Flags given on
// the command line win over file values.
type fileConfig struct {
	PrivateKey string   `yaml:"privateKey"`
	KeyFile    string   `yaml:"keyFile"`
	BindAddr   string   `yaml:"bindAddr"`
	BindPort   int      `yaml:"bindPort"`
	Bootnodes  []string `yaml:"bootnodes"`
	NodeDB     string   `yaml:"nodedb"`
	AllowLocal bool     `yaml:"allowLocal"`
	LogLevel   string   `yaml:"logLevel"`

	WebUI struct {
		Enabled  bool   `yaml:"enabled"`
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		SiteName string `yaml:"siteName"`
	} `yaml:"webui"`
}

func init() {
	rootCmd.Flags().StringVar(&configPath, "config", "", "Path to YAML config file")
	rootCmd.Flags().StringVar(&privateKeyHex, "private-key", "", "Private key in hex format")
	rootCmd.Flags().StringVar(&keyFilePath, "key-file", "", "Path to key file (generated when missing)")
	rootCmd.Flags().StringVar(&bindAddr, "bind-addr", "0.0.0.0", "IP address to bind to")
	rootCmd.Flags().IntVar(&bindPort, "bind-port", 30303, "UDP port to bind to")
	rootCmd.Flags().StringVar(&bootnodesFlag, "bootnodes", "", "Comma-separated list of bootstrap enode URLs")
	rootCmd.Flags().StringVar(&nodeDBPath, "nodedb", "", "Path to node database file (empty = no persistence)")
	rootCmd.Flags().BoolVar(&allowLocal, "allow-local", false, "Admit loopback and private addresses into the table")
	rootCmd.Flags().BoolVar(&disabled, "disabled", false, "Run with a dormant table (no socket, no discovery)")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "info", "Log level (trace, debug, info, warn, error)")

	rootCmd.Flags().BoolVar(&enableWebUI, "web-ui", false, "Enable web UI")
	rootCmd.Flags().StringVar(&webUIHost, "web-host", "0.0.0.0", "Web UI host")
	rootCmd.Flags().IntVar(&webUIPort, "web-port", 8080, "Web UI port")
	rootCmd.Flags().StringVar(&webUISite, "web-sitename", "Alethboot", "Web UI site name")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func applyFileConfig(cmd *cobra.Command) error {
	if configPath == "" {
		return nil
	}
	data, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}

	if !cmd.Flags().Changed("private-key") && fc.PrivateKey != "" {
		privateKeyHex = fc.PrivateKey
	}
	if !cmd.Flags().Changed("key-file") && fc.KeyFile != "" {
		keyFilePath = fc.KeyFile
	}
	if !cmd.Flags().Changed("bind-addr") && fc.BindAddr != "" {
		bindAddr = fc.BindAddr
	}
	if !cmd.Flags().Changed("bind-port") && fc.BindPort != 0 {
		bindPort = fc.BindPort
	}
	if !cmd.Flags().Changed("bootnodes") && len(fc.Bootnodes) > 0 {
		bootnodesFlag = strings.Join(fc.Bootnodes, ",")
	}
	if !cmd.Flags().Changed("nodedb") && fc.NodeDB != "" {
		nodeDBPath = fc.NodeDB
	}
	if !cmd.Flags().Changed("allow-local") {
		allowLocal = fc.AllowLocal
	}
	if !cmd.Flags().Changed("log-level") && fc.LogLevel != "" {
		logLevel = fc.LogLevel
	}
	if !cmd.Flags().Changed("web-ui") {
		enableWebUI = fc.WebUI.Enabled
	}
	if !cmd.Flags().Changed("web-host") && fc.WebUI.Host != "" {
		webUIHost = fc.WebUI.Host
	}
	if !cmd.Flags().Changed("web-port") && fc.WebUI.Port != 0 {
		webUIPort = fc.WebUI.Port
	}
	if !cmd.Flags().Changed("web-sitename") && fc.WebUI.SiteName != "" {
		webUISite = fc.WebUI.SiteName
	}
	return nil
}

func loadKey() (*ecdsa.PrivateKey, error) {
	switch {
	case privateKeyHex != "":
		return crypto.ParseKey(privateKeyHex)
	case keyFilePath != "":
		return crypto.LoadOrGenerateKey(keyFilePath)
	default:
		return crypto.GenerateKey()
	}
}

// tableEventHandler consumes membership events delivered by
// ProcessEvents: it logs them and keeps the transport's trust set in
// step with the table, so seated peers are never rate limited. Dropped
// events carry only the node id, so the address trusted at add time is
// remembered here.
type tableEventHandler struct {
	logger  logrus.FieldLogger
	table   *discover.NodeTable
	limiter *transport.RateLimiter

	mu      sync.Mutex
	trusted map[node.ID]net.IP
}

func newTableEventHandler(logger logrus.FieldLogger, table *discover.NodeTable, limiter *transport.RateLimiter) *tableEventHandler {
	return &tableEventHandler{
		logger:  logger,
		table:   table,
		limiter: limiter,
		trusted: make(map[node.ID]net.IP),
	}
}

func (h *tableEventHandler) NodeEvent(ev discover.Event) {
	h.logger.WithFields(logrus.Fields{
		"node":  ev.ID.String(),
		"event": ev.Kind.String(),
	}).Info("table membership changed")

	if h.limiter == nil {
		return
	}
	switch ev.Kind {
	case discover.NodeAdded:
		n, ok := h.table.NodeByID(ev.ID)
		if !ok {
			return
		}
		h.mu.Lock()
		_, already := h.trusted[ev.ID]
		if !already {
			h.trusted[ev.ID] = n.Endpoint.IP
		}
		h.mu.Unlock()
		if !already {
			h.limiter.Trust(n.Endpoint.IP)
		}
	case discover.NodeDropped:
		h.mu.Lock()
		ip, ok := h.trusted[ev.ID]
		delete(h.trusted, ev.ID)
		h.mu.Unlock()
		if ok {
			h.limiter.Untrust(ip)
		}
	}
}

func runBootnode(cmd *cobra.Command, args []string) error {
	if err := applyFileConfig(cmd); err != nil {
		return err
	}

	logger := logrus.StandardLogger()
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", logLevel, err)
	}
	logger.SetLevel(level)

	key, err := loadKey()
	if err != nil {
		return err
	}
	node.AllowLocal = allowLocal

	// bind the discovery socket; failure is not fatal, the table runs
	// dormant and the caller can still inspect it
	var udp *transport.UDPTransport
	if !disabled {
		udp, err = transport.NewUDPTransport(&transport.Config{
			ListenAddr:     fmt.Sprintf("%s:%d", bindAddr, bindPort),
			Logger:         logger.WithField("module", "transport"),
			RateLimitPerIP: 100,
			RateLimitBurst: 200,
		})
		if err != nil {
			logger.WithError(err).Warn("failed to bind discovery socket, discovery disabled")
			udp = nil
		} else {
			defer udp.Close()
			if err := udp.Metrics().Register(prometheus.DefaultRegisterer); err != nil {
				logger.WithError(err).Warn("failed to register transport metrics")
			}
		}
	}

	cfg := &discover.Config{
		PrivateKey: key,
		Enabled:    !disabled && udp != nil,
		Logger:     logger.WithField("module", "discover"),
	}
	var tr discover.Transport
	if udp != nil {
		tr = udp
	}
	table, err := discover.New(cfg, tr)
	if err != nil {
		return err
	}

	var limiter *transport.RateLimiter
	if udp != nil {
		limiter = udp.RateLimiter()
	}
	table.SetEventHandler(newTableEventHandler(logger.WithField("module", "table"), table, limiter))

	var database *db.Database
	if nodeDBPath != "" {
		database, err = db.NewDatabase(nodeDBPath, logger.WithField("module", "db"))
		if err != nil {
			return err
		}
		defer database.Close()
	}

	if err := table.Start(); err != nil {
		return err
	}
	defer table.Stop()

	logger.WithField("enode", enode.Format(table.Self())).Info("local node ready")

	// seed the table: persisted nodes first, then configured bootnodes
	if database != nil {
		stored, err := database.GetNodes()
		if err != nil {
			logger.WithError(err).Warn("failed to load persisted nodes")
		} else {
			for _, row := range stored {
				table.AddNode(row.ToNode(), discover.RelationKnown)
			}
			seedLog := logger.WithField("count", len(stored))
			if last, err := database.LastSnapshotTime(); err == nil {
				seedLog = seedLog.WithField("age", time.Since(last).Round(time.Second))
			}
			seedLog.Info("seeded table from database")
		}
	}
	for _, raw := range strings.Split(bootnodesFlag, ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		bn, err := enode.Parse(raw)
		if err != nil {
			logger.WithError(err).WithField("enode", raw).Warn("skipping invalid bootnode")
			continue
		}
		table.AddNode(bn, discover.RelationKnown)
	}

	if udp != nil {
		table.Lookup(node.RandomID())
	}

	if enableWebUI {
		webui.StartHTTPServer(&webui.Config{
			Host:     webUIHost,
			Port:     webUIPort,
			SiteName: webUISite,
		}, logger.WithField("module", "webui"), table, udp, database)
	}

	stop := make(chan struct{})
	go eventPump(table, stop)
	if database != nil {
		go snapshotLoop(table, database, logger, stop)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.WithField("signal", sig.String()).Info("shutting down")
	close(stop)
	return nil
}

// eventPump periodically drains table membership events to the
// registered handler.
func eventPump(table *discover.NodeTable, stop <-chan struct{}) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			table.ProcessEvents()
		case <-stop:
			table.ProcessEvents()
			return
		}
	}
}

// snapshotLoop persists the routing table on a timer.
func snapshotLoop(table *discover.NodeTable, database *db.Database, logger logrus.FieldLogger, stop <-chan struct{}) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			entries := table.Snapshot()
			if err := database.StoreSnapshot(entries); err != nil {
				logger.WithError(err).Warn("failed to persist table snapshot")
				continue
			}
			if err := database.SetLastSnapshotTime(time.Now()); err != nil {
				logger.WithError(err).Warn("failed to record snapshot time")
			}
			logger.WithField("count", len(entries)).Debug("persisted table snapshot")
		case <-stop:
			if err := database.StoreSnapshot(table.Snapshot()); err != nil {
				logger.WithError(err).Warn("failed to persist final snapshot")
				return
			}
			if err := database.SetLastSnapshotTime(time.Now()); err != nil {
				logger.WithError(err).Warn("failed to record snapshot time")
			}
			return
		}
	}
}
