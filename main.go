// ABOUTME: Entry point for the Syncroom listener
// ABOUTME: Parses CLI flags and starts the listener application
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/syncroom/syncroom/internal/app"
	"github.com/syncroom/syncroom/internal/version"
)

var (
	serverAddr = flag.String("server", "", "Manual server address host:port (skip mDNS)")
	name       = flag.String("name", "", "Listener friendly name (default: hostname-listener)")
	roomID     = flag.String("room", "", "ID of the room to join")
	create     = flag.String("create", "", "Create a room with this name and host it")
	cacheDir   = flag.String("cache-dir", "", "Directory for downloaded tracks (default: temp dir)")
	logFile    = flag.String("log-file", "syncroom.log", "Log file path")
	noTUI      = flag.Bool("no-tui", false, "Disable TUI, use streaming logs instead")
	play       = flag.String("play", "", "Track ID to play once joined (host only)")
	enqueue    = flag.String("enqueue", "", "Comma-separated track IDs to queue once joined (host only)")
)

func main() {
	flag.Parse()

	if (*roomID == "") == (*create == "") {
		fmt.Fprintln(os.Stderr, "exactly one of -room or -create is required")
		flag.Usage()
		os.Exit(2)
	}

	useTUI := !*noTUI

	// Set up logging
	f, err := os.OpenFile(*logFile, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		log.Fatalf("error opening log file: %v", err)
	}
	defer func() { _ = f.Close() }()

	if useTUI {
		// TUI mode: log only to file
		log.SetOutput(f)
	} else {
		log.SetOutput(io.MultiWriter(os.Stdout, f))
	}

	listenerName := *name
	if listenerName == "" {
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "unknown"
		}
		listenerName = fmt.Sprintf("%s-listener", hostname)
	}

	log.Printf("Starting %s %s listener: %s", version.Product, version.Version, listenerName)

	player := app.New(app.Config{
		ServerAddr: *serverAddr,
		Name:       listenerName,
		RoomID:     *roomID,
		RoomName:   *create,
		CacheDir:   *cacheDir,
		UseTUI:     useTUI,
		Enqueue:    splitIDs(*enqueue),
		Play:       *play,
	})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Printf("Shutdown signal received")
		player.Stop()
	}()

	if err := player.Start(); err != nil {
		player.Stop()
		log.Fatalf("Listener error: %v", err)
	}

	player.Stop()
	log.Printf("Listener stopped")
}

// splitIDs parses a comma-separated flag value, dropping empty entries
func splitIDs(list string) []string {
	var ids []string
	for _, id := range strings.Split(list, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}
