package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
)

var serverNames = []string{
	"Arena", "Bastion", "Citadel", "Depot", "Enclave", "Foundry",
	"Garrison", "Harbor", "Junction", "Keep", "Lookout", "Outpost",
	"Quarry", "Redoubt", "Spire", "Terminal", "Vault", "Warren",
}

// Stats tracks load test results
type Stats struct {
	registered     atomic.Int64
	updatesSent    atomic.Int64
	updatesFailed  atomic.Int64
	connectErrors  atomic.Int64
	disconnections atomic.Int64
}

// fakeServer registers one synthetic game server and streams player
// count updates until the update budget is spent or the run is stopped.
func fakeServer(id int, wsURL string, updates int, interval time.Duration, stats *Stats, stop <-chan struct{}, wg *sync.WaitGroup) {
	defer wg.Done()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		stats.connectErrors.Add(1)
		log.Printf("server %d: dial failed: %v", id, err)
		return
	}
	defer conn.Close()

	name := fmt.Sprintf("%s #%d", serverNames[id%len(serverNames)], id)
	connect := map[string]interface{}{
		"name": name,
		"port": 20000 + id%40000,
		"tls":  id%2 == 0,
	}
	if err := conn.WriteJSON(connect); err != nil {
		stats.connectErrors.Add(1)
		log.Printf("server %d: register failed: %v", id, err)
		return
	}
	stats.registered.Add(1)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for sent := 0; sent < updates; {
		select {
		case <-stop:
			return
		case <-ticker.C:
			players := rand.Intn(64)
			if err := conn.WriteJSON(map[string]interface{}{"players": players}); err != nil {
				stats.updatesFailed.Add(1)
				stats.disconnections.Add(1)
				log.Printf("server %d: update failed: %v", id, err)
				return
			}
			stats.updatesSent.Add(1)
			sent++
		}
	}
}

// fetchListedCount asks the list endpoint how many servers it sees.
func fetchListedCount(listURL string) (int, error) {
	resp, err := http.Get(listURL)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	var servers []struct {
		Name    string `json:"name"`
		Players uint32 `json:"players"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&servers); err != nil {
		return 0, err
	}
	return len(servers), nil
}

func main() {
	wsURL := flag.String("ws", "ws://localhost:3000/api/list/ws", "WebSocket registration URL")
	listURL := flag.String("list", "http://localhost:3000/api/list/servers", "Server list URL")
	servers := flag.Int("servers", 50, "Number of synthetic game servers")
	updates := flag.Int("updates", 100, "Player updates per server")
	interval := flag.Duration("interval", 100*time.Millisecond, "Delay between updates")
	flag.Parse()

	log.Printf("Starting load test: %d servers, %d updates each, every %v", *servers, *updates, *interval)

	stats := &Stats{}
	stop := make(chan struct{})
	var wg sync.WaitGroup

	start := time.Now()
	for i := 0; i < *servers; i++ {
		wg.Add(1)
		go fakeServer(i, *wsURL, *updates, *interval, stats, stop, &wg)
		// stagger dials a little so the server isn't hit by one burst
		time.Sleep(2 * time.Millisecond)
	}

	// Check listed count once everything had a chance to register
	go func() {
		time.Sleep(2 * time.Second)
		if n, err := fetchListedCount(*listURL); err == nil {
			log.Printf("list endpoint reports %d servers (expected up to %d)", n, *servers)
		} else {
			log.Printf("list endpoint check failed: %v", err)
		}
	}()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-done:
	case <-sigChan:
		log.Println("Interrupted, stopping...")
		close(stop)
		wg.Wait()
	}

	elapsed := time.Since(start)
	log.Printf("Done in %v", elapsed)
	log.Printf("  registered:     %d", stats.registered.Load())
	log.Printf("  updates sent:   %d", stats.updatesSent.Load())
	log.Printf("  updates failed: %d", stats.updatesFailed.Load())
	log.Printf("  connect errors: %d", stats.connectErrors.Load())
	log.Printf("  disconnections: %d", stats.disconnections.Load())
	if sent := stats.updatesSent.Load(); sent > 0 && elapsed > 0 {
		log.Printf("  throughput:     %.0f updates/sec", float64(sent)/elapsed.Seconds())
	}
}
