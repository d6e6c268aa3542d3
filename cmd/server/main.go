package main

import (
	"flag"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/aeolun/gameserverlist/pkg/server"
)

var (
	// Version is set at build time via ldflags
	Version = "dev"
)

func main() {
	// Configure logger with microsecond precision
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)

	// Command line flags
	configPath := flag.String("config", "~/.gameserverlist/config.toml", "Path to config file")
	port := flag.Int("port", 0, "HTTP port to listen on (overrides config)")
	publicAddr := flag.String("public-address", "", "Address advertised for official servers (overrides config)")
	trusted := flag.String("trusted", "", "Comma-separated list of additional trusted addresses")
	debug := flag.Bool("debug", false, "Enable debug logging")
	version := flag.Bool("version", false, "Show version information")
	flag.Parse()

	// Handle --version flag
	if *version {
		fmt.Printf("Game Server List %s\n", Version)
		os.Exit(0)
	}

	// Load configuration (creates default if not found)
	config, err := server.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Command-line flags override config file
	if *port != 0 {
		config.Server.HTTPPort = *port
	}
	if *publicAddr != "" {
		config.Trust.PublicAddress = *publicAddr
	}
	if *trusted != "" {
		for _, addr := range strings.Split(*trusted, ",") {
			addr = strings.TrimSpace(addr)
			if addr != "" {
				config.Trust.TrustedAddresses = append(config.Trust.TrustedAddresses, addr)
			}
		}
	}

	serverConfig := config.ToServerConfig()

	// Without a configured public address, detect the outbound one so
	// official entries advertise something reachable
	if serverConfig.PublicAddress == "" {
		if addr, err := server.DetectPublicAddr(); err == nil {
			serverConfig.PublicAddress = addr.String()
			log.Printf("Detected public address: %s", addr)
		} else {
			log.Printf("Warning: could not detect public address, official servers keep their connecting address: %v", err)
		}
	}

	// Create and start server
	srv, err := server.NewServer(serverConfig)
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}
	srv.SetMetrics(server.NewMetrics())

	// Enable debug logging if requested
	if *debug {
		srv.EnableDebugLogging()
		log.Printf("Debug logging enabled")
	}

	if err := srv.Start(); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}

	log.Printf("Game server list %s started successfully", Version)
	log.Printf("Port: %d", serverConfig.HTTPPort)
	log.Printf("Endpoints:")
	log.Printf("  - GET /api/list/servers")
	log.Printf("  - GET /api/list/healthcheck")
	log.Printf("  - WS  /api/list/ws")
	log.Printf("  - GET /metrics")
	log.Printf("Idle timeout: %ds (sweep every %ds)", serverConfig.IdleTimeoutSeconds, serverConfig.SweepIntervalSeconds)

	// Start pprof HTTP server for profiling
	go func() {
		log.Println("Starting pprof server on http://localhost:6060")
		if err := http.ListenAndServe("localhost:6060", nil); err != nil {
			log.Printf("pprof server error: %v", err)
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Println("Shutting down server...")
	if err := srv.Stop(); err != nil {
		log.Printf("Error during shutdown: %v", err)
	}
	log.Println("Server stopped")
}
