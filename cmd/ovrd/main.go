// Copyright 2025 Certen Protocol

// Command ovrd runs a single overeality node: an embedded CometBFT
// consensus engine driving the ABCI Application in pkg/consensus, backed
// by the VKV-based ledger in pkg/ledger.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	cmtcfg "github.com/cometbft/cometbft/config"
	cmtlog "github.com/cometbft/cometbft/libs/log"
	"github.com/cometbft/cometbft/node"
	"github.com/cometbft/cometbft/p2p"
	"github.com/cometbft/cometbft/privval"
	"github.com/cometbft/cometbft/proxy"
	cmttypes "github.com/cometbft/cometbft/types"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ovrchain/ovrd/pkg/config"
	"github.com/ovrchain/ovrd/pkg/consensus"
	"github.com/ovrchain/ovrd/pkg/kvdb"
	"github.com/ovrchain/ovrd/pkg/ledger"
)

// HealthStatus tracks node readiness for the /healthz endpoint.
type HealthStatus struct {
	Status    string `json:"status"` // "starting", "ok", "error"
	Height    uint64 `json:"height"`
	startTime time.Time
	mu        sync.RWMutex
}

func (h *HealthStatus) Set(status string, height uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Status = status
	h.Height = height
}

func (h *HealthStatus) ToJSON() []byte {
	h.mu.RLock()
	defer h.mu.RUnlock()
	data, _ := json.Marshal(struct {
		Status        string `json:"status"`
		Height        uint64 `json:"height"`
		UptimeSeconds int64  `json:"uptime_seconds"`
	}{h.Status, h.Height, int64(time.Since(h.startTime).Seconds())})
	return data
}

var health = &HealthStatus{Status: "starting", startTime: time.Now()}

func main() {
	log.SetOutput(os.Stdout)
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	log.Printf("🚀 starting overeality node")

	var (
		showHelp = flag.Bool("help", false, "Show help message")
	)
	flag.Parse()
	if *showHelp {
		flag.Usage()
		return
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	store, err := kvdb.OpenStore(cfg.DataDir)
	if err != nil {
		log.Fatalf("open store: %v", err)
	}

	l, err := ledger.Open(store, cfg.DataDir)
	if err != nil {
		log.Fatalf("open ledger: %v", err)
	}

	app := consensus.NewApplication(l)

	n, err := buildCometNode(cfg, app)
	if err != nil {
		log.Fatalf("build cometbft node: %v", err)
	}

	if err := n.Start(); err != nil {
		log.Fatalf("start cometbft node: %v", err)
	}
	defer n.Stop()

	go serveOperational(cfg)

	height, _ := l.Info()
	health.Set("ok", height)
	log.Printf("✅ node running: chain=%s height=%d p2p=%s rpc=%s", cfg.ChainName, height, cfg.P2PListenAddr, cfg.RPCListenAddr)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Printf("🛑 shutting down")
}

// buildCometNode constructs an in-process CometBFT node around app, creating
// private validator / node key / genesis material under cfg.DataDir if this
// is the node's first run.
func buildCometNode(cfg *config.Config, app *consensus.Application) (*node.Node, error) {
	home := filepath.Join(cfg.DataDir, "cometbft")
	cometCfg := cmtcfg.DefaultConfig()
	cometCfg.RootDir = home
	cometCfg.Moniker = cfg.ChainName
	cometCfg.DBBackend = "goleveldb"
	cometCfg.P2P.ListenAddress = cfg.P2PListenAddr
	cometCfg.RPC.ListenAddress = cfg.RPCListenAddr
	cometCfg.TxIndex.Indexer = "kv"

	cmtcfg.EnsureRoot(home)

	pv := privval.LoadOrGenFilePV(cometCfg.PrivValidatorKeyFile(), cometCfg.PrivValidatorStateFile())
	nodeKey, err := p2p.LoadOrGenNodeKey(cometCfg.NodeKeyFile())
	if err != nil {
		return nil, fmt.Errorf("load or generate node key: %w", err)
	}

	if err := writeGenesisIfMissing(cometCfg, cfg, pv); err != nil {
		return nil, fmt.Errorf("write genesis: %w", err)
	}

	logger := cmtlog.NewTMLogger(cmtlog.NewSyncWriter(os.Stdout)).With("module", "cometbft")

	return node.NewNode(
		cometCfg,
		pv,
		nodeKey,
		proxy.NewLocalClientCreator(app),
		node.DefaultGenesisDocProviderFunc(cometCfg),
		node.DefaultDBProvider,
		node.DefaultMetricsProvider(cometCfg.Instrumentation),
		logger,
	)
}

// writeGenesisIfMissing writes a single-validator genesis document the
// first time this node starts; app_state carries the node's own genesis
// JSON (chain identity plus initial OFUEL balances), passed through to
// Application.InitChain verbatim as AppStateBytes.
func writeGenesisIfMissing(cometCfg *cmtcfg.Config, cfg *config.Config, pv *privval.FilePV) error {
	genFile := cometCfg.GenesisFile()
	if _, err := os.Stat(genFile); err == nil {
		return nil
	}

	pubKey, err := pv.GetPubKey()
	if err != nil {
		return fmt.Errorf("get validator pubkey: %w", err)
	}

	appState, err := config.LoadGenesisFile(cfg.GenesisPath)
	if err != nil {
		return err
	}

	doc := &cmttypes.GenesisDoc{
		ChainID:         fmt.Sprintf("%d", cfg.ChainID),
		GenesisTime:     time.Now().UTC(),
		InitialHeight:   1,
		ConsensusParams: cmttypes.DefaultConsensusParams(),
		Validators: []cmttypes.GenesisValidator{
			{Address: pubKey.Address(), PubKey: pubKey, Power: 1, Name: cometCfg.Moniker},
		},
		AppState: appState,
	}
	return doc.SaveAs(genFile)
}

// serveOperational exposes /healthz on cfg.HealthAddr and /metrics on
// cfg.MetricsAddr, the only HTTP surface this node runs outside of
// CometBFT's own RPC.
func serveOperational(cfg *config.Config) {
	healthMux := http.NewServeMux()
	healthMux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write(health.ToJSON())
	})
	go func() {
		log.Printf("📡 health endpoint listening on %s", cfg.HealthAddr)
		if err := http.ListenAndServe(cfg.HealthAddr, healthMux); err != nil && err != http.ErrServerClosed {
			log.Printf("⚠️ health HTTP server stopped: %v", err)
		}
	}()

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	log.Printf("📡 metrics endpoint listening on %s", cfg.MetricsAddr)
	if err := http.ListenAndServe(cfg.MetricsAddr, metricsMux); err != nil && err != http.ErrServerClosed {
		log.Printf("⚠️ metrics HTTP server stopped: %v", err)
	}
}
