// ABOUTME: Entry point for the Syncroom server
// ABOUTME: Parses CLI flags, wires storage and library, and starts the server
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/syncroom/syncroom/internal/library"
	"github.com/syncroom/syncroom/internal/room"
	"github.com/syncroom/syncroom/internal/server"
	"github.com/syncroom/syncroom/internal/store"
	"github.com/syncroom/syncroom/internal/version"
)

var (
	port        = flag.Int("port", server.DefaultPort, "HTTP and WebSocket port")
	name        = flag.String("name", "", "Server friendly name (default: hostname-syncroom)")
	logFile     = flag.String("log-file", "syncroom-server.log", "Log file path")
	debug       = flag.Bool("debug", false, "Enable debug logging")
	noMDNS      = flag.Bool("no-mdns", false, "Disable mDNS advertisement")
	noTUI       = flag.Bool("no-tui", false, "Disable TUI, use streaming logs instead")
	musicDir    = flag.String("library", "", "Directory of MP3 files to serve")
	dbPath      = flag.String("db", "", "SQLite database for rooms (default: in-memory)")
	busyTimeout = flag.Duration("db-busy-timeout", 5*time.Second, "SQLite busy timeout")
)

func main() {
	flag.Parse()

	useTUI := !*noTUI

	// Set up logging
	f, err := os.OpenFile(*logFile, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		log.Fatalf("error opening log file: %v", err)
	}
	defer f.Close()

	if useTUI {
		// TUI owns the terminal
		log.SetOutput(f)
	} else {
		log.SetOutput(io.MultiWriter(os.Stdout, f))
	}

	serverName := *name
	if serverName == "" {
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "unknown"
		}
		serverName = fmt.Sprintf("%s-syncroom", hostname)
	}

	log.Printf("Starting %s %s: %s on port %d", version.Product, version.Version, serverName, *port)
	if *debug {
		log.Printf("Debug logging enabled")
	}
	log.Printf("Logging to: %s", *logFile)

	var rooms store.Store
	if *dbPath != "" {
		db, err := store.OpenSQLite(*dbPath, store.SQLiteOptions{BusyTimeout: *busyTimeout})
		if err != nil {
			log.Fatalf("Failed to open room database: %v", err)
		}
		log.Printf("Rooms stored in %s", *dbPath)
		rooms = db
	} else {
		rooms = store.NewMemory()
	}
	defer rooms.Close()

	var lib *library.Library
	var tracks room.TrackResolver
	if *musicDir != "" {
		lib, err = library.New(*musicDir)
		if err != nil {
			log.Fatalf("Failed to open library: %v", err)
		}
		if err := lib.Scan(); err != nil {
			log.Fatalf("Failed to scan library: %v", err)
		}
		tracks = lib
	} else {
		log.Printf("No library given; rooms can only queue track IDs")
	}

	config := server.Config{
		Port:       *port,
		Name:       serverName,
		EnableMDNS: !*noMDNS,
		Debug:      *debug,
		UseTUI:     useTUI,
	}

	srv := server.New(config, room.New(rooms, clock.New(), tracks), lib)

	// Handle shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Printf("Received %v signal, shutting down gracefully...", sig)
		srv.Stop()
	}()

	if err := srv.Start(); err != nil {
		log.Fatalf("Server error: %v", err)
	}

	log.Printf("Server stopped")
}
