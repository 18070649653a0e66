// Command sensor-mesh runs one node of the mesh: it wires the
// membership table, the outbound/inbound transport, the LWW state
// engine, the synthetic sensor manager, the replication publisher and
// the read-only HTTP surface together, then blocks until SIGINT or
// SIGTERM.
//
// Grounded on original_source/main.py's SensorMeshNode.start/stop,
// translated from asyncio task groups into an errgroup-fenced set of
// goroutines.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
	kingpin "gopkg.in/alecthomas/kingpin.v2"

	"github.com/jabolina/sensor-mesh/internal/config"
	"github.com/jabolina/sensor-mesh/internal/logging"
	"github.com/jabolina/sensor-mesh/internal/membership"
	"github.com/jabolina/sensor-mesh/internal/metrics"
	"github.com/jabolina/sensor-mesh/internal/protocol"
	"github.com/jabolina/sensor-mesh/internal/sensors"
	"github.com/jabolina/sensor-mesh/internal/state"
	"github.com/jabolina/sensor-mesh/internal/transport"
	"github.com/jabolina/sensor-mesh/internal/webapi"
)

var version = "dev"

func main() {
	app := kingpin.New("sensor-mesh", "Gossip-replicated synthetic sensor mesh node.")
	app.Version(version)
	debugDump := app.Flag("debug-dump-interval", "Override DEBUG_DUMP_INTERVAL_MS; 0 disables periodic state dumps.").Default("-1ns").Duration()
	kingpin.MustParse(app.Parse(os.Args[1:]))

	if err := run(*debugDump); err != nil {
		color.New(color.FgRed, color.Bold).Fprintln(os.Stderr, "sensor-mesh: fatal:", err)
		os.Exit(1)
	}
}

func run(debugDumpOverride time.Duration) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	if debugDumpOverride >= 0 {
		cfg.DebugDumpInterval = debugDumpOverride
	}

	log, err := logging.New(cfg.NodeID, cfg.LogLevel, cfg.LogFile)
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}

	printBanner(cfg)

	reg := metrics.NewRegistry(prometheus.DefaultRegisterer)
	table := membership.NewPeerTable(cfg.NodeID)

	client := transport.NewClient(cfg.ClientConfig, log.With(map[string]interface{}{"component": "client"})).WithMetrics(reg)
	dispatcher := protocol.NewDispatcher(log.With(map[string]interface{}{"component": "dispatcher"}))

	send := func(peerID string, msg protocol.Message) error {
		return client.Enqueue(peerID, msg)
	}

	onDiscovered := func(p membership.Peer) {
		registerAndGreet(client, p, cfg.NodeID, cfg.Host, cfg.Port, log)
	}

	membershipHandlers := membership.NewHandlers(table, send, cfg.NodeID, onDiscovered, log.With(map[string]interface{}{"component": "membership"}))
	dispatcher.MustRegister(protocol.JoinRequest, membershipHandlers.HandleJoinRequest)
	dispatcher.MustRegister(protocol.PeerList, membershipHandlers.HandlePeerList)

	// PING/PONG are part of the wire vocabulary but have no behavior
	// yet; registering them keeps an unimplemented kind from falling
	// through to the dispatcher's silent "unknown kind" branch, and
	// surfaces the gap in logs if one ever arrives.
	dispatcher.MustRegister(protocol.Ping, protocol.NotImplementedHandler(protocol.Ping))
	dispatcher.MustRegister(protocol.Pong, protocol.NotImplementedHandler(protocol.Pong))

	engine := state.NewEngine(cfg.NodeID, cfg.DebugDumpInterval, log.With(map[string]interface{}{"component": "engine"})).WithMetrics(reg)
	dispatcher.MustRegister(protocol.SensorUpdate, state.NewSensorUpdateHandler(engine, log))

	server := transport.NewServer(cfg.ServerConfig, dispatcher, log.With(map[string]interface{}{"component": "server"})).WithMetrics(reg)
	if err := server.Start(); err != nil {
		return fmt.Errorf("starting inbound server: %w", err)
	}
	log.Infof("inbound server listening on %s", server.Addr())

	manager := sensors.NewManager(func(r sensors.Reading) {
		engine.Submit(state.SensorEvent{
			SensorID: r.SensorID,
			Value:    r.Value,
			TsMs:     r.TsMs,
			Meta:     state.Meta{Unit: r.Unit, HasUnit: r.HasUnit},
		})
	})
	if err := manager.LoadFromEnv(); err != nil {
		return fmt.Errorf("loading sensors: %w", err)
	}

	publisher := state.NewPublisher(cfg.NodeID, table, client, engine, cfg.PublishInterval, log.With(map[string]interface{}{"component": "publisher"}))

	webapiServer := webapi.NewServer(cfg.WebAPIAddr(), engine.GetStateSnapshot, engine.GetUpdatesSnapshot, log.With(map[string]interface{}{"component": "webapi"}))
	if err := webapiServer.Start(); err != nil {
		return fmt.Errorf("starting webapi server: %w", err)
	}
	log.Infof("webapi server listening on %s", webapiServer.Addr())

	bootstrap(client, table, cfg, log)

	manager.StartAll()
	go engine.Run()

	ctx, cancel := context.WithCancel(context.Background())
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		runPeerGauge(ctx, table, reg)
		return nil
	})
	g.Go(func() error {
		publisher.Run()
		return nil
	})

	waitForShutdownSignal(log)
	cancel()

	manager.StopAll()
	publisher.Stop()
	engine.Stop()
	webapiServer.Stop()
	server.Stop()
	client.Stop()

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("shutdown complete")
	return nil
}

// bootstrap registers an outbound worker and a provisional table entry
// for every configured seed peer under a synthetic node id, then sends
// each an initial JOIN_REQUEST carrying this node's real identity.
// Seeds' real node_ids are learned from their JOIN_REQUEST/PEER_LIST
// replies and added through the normal onDiscovered path alongside the
// synthetic entries, which stay in both the table and the client.
func bootstrap(client *transport.Client, table *membership.PeerTable, cfg config.Config, log logging.Logger) {
	for _, peer := range cfg.BootstrapPeers {
		syntheticID := fmt.Sprintf("bootstrap@%s:%d-%s", peer.Host, peer.Port, uuid.NewString()[:8])

		if err := client.AddPeer(syntheticID, peer.Host, peer.Port); err != nil {
			log.Warnf("failed to register bootstrap peer %s:%d: %v", peer.Host, peer.Port, err)
			continue
		}
		table.AddPeer(membership.NewPeer(syntheticID, peer.Host, peer.Port))

		join := protocol.New(protocol.JoinRequest, cfg.NodeID, protocol.Payload{
			"node_id": cfg.NodeID,
			"host":    cfg.Host,
			"port":    cfg.Port,
		})
		if err := client.Enqueue(syntheticID, join); err != nil {
			log.Warnf("failed to send JOIN_REQUEST to bootstrap peer %s:%d: %v", peer.Host, peer.Port, err)
		}
	}
}

// registerAndGreet idempotently adds a newly-discovered peer to the
// outbound client and sends it our own JOIN_REQUEST, so discovery via
// a PEER_LIST relay (rather than a direct JOIN_REQUEST to us) still
// converges into a bidirectional connection.
func registerAndGreet(client *transport.Client, p membership.Peer, selfNodeID, selfHost string, selfPort int, log logging.Logger) {
	if !client.HasPeer(p.NodeID) {
		if err := client.AddPeer(p.NodeID, p.Host, p.Port); err != nil {
			log.Warnf("failed to register discovered peer %s: %v", p.NodeID, err)
			return
		}
	}

	join := protocol.New(protocol.JoinRequest, selfNodeID, protocol.Payload{
		"node_id": selfNodeID,
		"host":    selfHost,
		"port":    selfPort,
	})
	if err := client.Enqueue(p.NodeID, join); err != nil {
		log.Warnf("failed to send JOIN_REQUEST to discovered peer %s: %v", p.NodeID, err)
	}
}

// runPeerGauge polls the table's size into the peer_table_size gauge
// until ctx is cancelled.
func runPeerGauge(ctx context.Context, table *membership.PeerTable, reg *metrics.Registry) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			reg.PeerTableSize.Set(float64(table.Size()))
		}
	}
}

func waitForShutdownSignal(log logging.Logger) {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	s := <-sig
	log.Infof("received signal %s, shutting down", s)
}

func printBanner(cfg config.Config) {
	banner := color.New(color.FgCyan, color.Bold)
	banner.Printf("sensor-mesh %s\n", version)
	color.New(color.FgWhite).Printf("  node_id=%s listen=%s:%d peers=%d\n", cfg.NodeID, cfg.Host, cfg.Port, len(cfg.BootstrapPeers))
}
