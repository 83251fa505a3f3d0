// Command loralinkd drives a LoStik LoRa modem as the link layer of a small
// mesh node: it owns the serial port, arbitrates the half-duplex channel,
// logs traffic to sqlite, and serves the node's API over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"net/netip"
	"os"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/meshradio/loralink/internal/api"
	"github.com/meshradio/loralink/internal/config"
	"github.com/meshradio/loralink/internal/db"
	"github.com/meshradio/loralink/internal/mesh"
	"github.com/meshradio/loralink/internal/radio"
	"github.com/meshradio/loralink/internal/serial"
	"github.com/meshradio/loralink/internal/version"
)

var (
	configPath = flag.String("config", "", "Path to the YAML config file")
	devMode    = flag.Bool("dev", false, "Run against a simulated radio instead of real hardware")
	listen     = flag.String("listen", "", "Listen address (overrides the config file)")
)

// transmissionsPerSlot is the duty-cycle budget within one tx slot window.
const transmissionsPerSlot = 3

// node ties the radio link to the node's identity and storage. It decodes
// inbound frames and builds the outbound presence announcements.
type node struct {
	link      *radio.Link
	database  *db.DB
	hub       *api.PacketHub
	log       zerolog.Logger
	nodeID    byte
	isGateway bool
	addr      netip.Addr
	frameID   atomic.Uint32
}

// Announce queues a presence broadcast for transmission.
func (n *node) Announce() error {
	msg := &mesh.Broadcast{IsGateway: n.isGateway, Addr: n.addr}
	frame := msg.EncodeFrame(byte(n.frameID.Add(1)), n.nodeID, []byte{n.nodeID})
	raw := frame.Encode()

	n.link.Send(raw)
	n.log.Debug().Uint8("frame_id", frame.ID).Msg("queued presence broadcast")

	if err := n.database.RecordPacket(db.DirectionOutbound, raw, byte(frame.Type), frame.Sender); err != nil {
		return fmt.Errorf("recording outbound packet: %w", err)
	}
	n.hub.Publish(api.Event{
		Direction:   db.DirectionOutbound,
		RawHex:      fmt.Sprintf("%x", raw),
		MessageType: int(frame.Type),
		Sender:      int(frame.Sender),
		Time:        time.Now().UTC(),
	})
	return nil
}

// handleInbound decodes one received frame, logs it, and refreshes the
// neighbor table when it carries a presence broadcast.
func (n *node) handleInbound(raw []byte) {
	frame, err := mesh.DecodeFrame(raw)
	if err != nil {
		n.log.Warn().Err(err).Hex("raw", raw).Msg("discarding malformed frame")
		return
	}

	if err := n.database.RecordPacket(db.DirectionInbound, raw, byte(frame.Type), frame.Sender); err != nil {
		n.log.Error().Err(err).Msg("recording inbound packet")
	}
	n.hub.Publish(api.Event{
		Direction:   db.DirectionInbound,
		RawHex:      fmt.Sprintf("%x", raw),
		MessageType: int(frame.Type),
		Sender:      int(frame.Sender),
		Time:        time.Now().UTC(),
	})

	msg, err := mesh.DecodeMessage(frame)
	if err != nil {
		n.log.Warn().Err(err).Uint8("sender", frame.Sender).Msg("discarding undecodable message")
		return
	}

	switch m := msg.(type) {
	case *mesh.Broadcast:
		addr := ""
		if m.Addr.IsValid() {
			addr = m.Addr.String()
		}
		if err := n.database.UpsertNode(frame.Sender, m.IsGateway, addr); err != nil {
			n.log.Error().Err(err).Msg("updating neighbor table")
			return
		}
		n.log.Info().
			Uint8("sender", frame.Sender).
			Bool("gateway", m.IsGateway).
			Str("addr", addr).
			Msg("heard presence broadcast")
	}
}

// readInitCommands loads radio setup commands from a file, one per line.
func readInitCommands(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading init file: %w", err)
	}
	return strings.Split(strings.ReplaceAll(string(data), "\r\n", "\n"), "\n"), nil
}

func loadConfig() (*config.Config, error) {
	if *configPath == "" {
		cfg := config.Default()
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		return cfg, nil
	}
	return config.Load(*configPath)
}

func main() {
	flag.Parse()

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()

	logger.Info().
		Str("version", version.Version).
		Str("git_sha", version.GitSHA).
		Str("build_time", version.BuildTime).
		Msg("loralinkd starting")

	cfg, err := loadConfig()
	if err != nil {
		logger.Fatal().Err(err).Msg("loading configuration")
	}
	if *listen != "" {
		cfg.API.Listen = *listen
	}

	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		logger.Fatal().Err(err).Str("level", cfg.Log.Level).Msg("parsing log level")
	}
	logger = logger.Level(level)

	var gatewayAddr netip.Addr
	if cfg.Radio.Gateway {
		gatewayAddr, err = netip.ParseAddr(cfg.Radio.GatewayIP)
		if err != nil || !gatewayAddr.Is4() {
			logger.Fatal().Str("ip", cfg.Radio.GatewayIP).Msg("gateway_ip must be a valid IPv4 address")
		}
	}

	var sim *serial.SimPort
	var port serial.SerialPorter
	if *devMode {
		sim = serial.NewSimPort()
		port = sim
		logger.Info().Msg("dev mode: using simulated radio")
	} else {
		port, err = serial.Open(cfg.Radio.Port, cfg.Radio.Options)
		if err != nil {
			logger.Fatal().Err(err).Str("port", cfg.Radio.Port).Msg("opening serial port")
		}
	}

	linePort := serial.NewLinePort(port)
	defer linePort.Close()

	database, err := db.New(cfg.DB.Path)
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfg.DB.Path).Msg("opening database")
	}
	defer database.Close()

	hub := api.NewPacketHub()
	defer hub.Close()

	link := radio.New(linePort, radio.NewTxLimiter(cfg.TxSlot(), transmissionsPerSlot), logger)

	var initCommands []string
	if cfg.Radio.InitFile != "" {
		initCommands, err = readInitCommands(cfg.Radio.InitFile)
		if err != nil {
			logger.Fatal().Err(err).Str("path", cfg.Radio.InitFile).Msg("loading init commands")
		}
	}
	if err := link.Init(initCommands); err != nil {
		logger.Fatal().Err(err).Msg("initializing radio")
	}
	logger.Info().Str("port", cfg.Radio.Port).Uint8("node_id", cfg.Radio.NodeID).Msg("radio initialized")

	n := &node{
		link:      link,
		database:  database,
		hub:       hub,
		log:       logger,
		nodeID:    cfg.Radio.NodeID,
		isGateway: cfg.Radio.Gateway,
		addr:      gatewayAddr,
	}

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// run the arbitration loop that owns the radio
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := link.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("arbitration loop failed")
			stop()
		}
		logger.Info().Msg("arbitration loop terminated")
	}()

	// consume inbound packets from the link
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case raw, ok := <-link.Packets():
				if !ok {
					return
				}
				n.handleInbound(raw)
			case <-ctx.Done():
				logger.Info().Msg("packet consumer terminated")
				return
			}
		}
	}()

	// periodic presence beacon
	if interval := cfg.AnnounceInterval(); interval > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := n.Announce(); err != nil {
				logger.Error().Err(err).Msg("initial announcement failed")
			}
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					if err := n.Announce(); err != nil {
						logger.Error().Err(err).Msg("announcement failed")
					}
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	// dev mode: simulate a peer so the API has traffic to show
	if sim != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			peer := &mesh.Broadcast{IsGateway: true, Addr: netip.AddrFrom4([4]byte{172, 16, 0, 5})}
			var id byte
			ticker := time.NewTicker(10 * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					id++
					frame := peer.EncodeFrame(id, 99, []byte{99})
					if !sim.InjectFrame(frame.Encode()) {
						logger.Debug().Msg("dev peer: receiver not armed, skipping injection")
					}
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		server := &http.Server{
			Addr:    cfg.API.Listen,
			Handler: api.NewServer(hub, database, n, logger).Handler(),
		}

		go func() {
			logger.Info().Str("listen", cfg.API.Listen).Msg("HTTP server listening")
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error().Err(err).Msg("HTTP server failed")
				stop()
			}
		}()

		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("HTTP server shutdown error")
		}
		logger.Info().Msg("HTTP server stopped")
	}()

	wg.Wait()
	logger.Info().Msg("graceful shutdown complete")
}
