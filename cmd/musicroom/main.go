// Command musicroom runs one endpoint of a synchronized listening room:
// either the room host or a participant, selected interactively from a
// top-level prompt (spec §6).
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/musicroom/musicroom/internal/config"
	"github.com/musicroom/musicroom/internal/help"
	"github.com/musicroom/musicroom/internal/host"
	"github.com/musicroom/musicroom/internal/participant"
	"github.com/musicroom/musicroom/internal/player"
	"github.com/musicroom/musicroom/internal/tracker"
	"github.com/musicroom/musicroom/internal/wire"
)

var (
	cfgPath  = flag.String("config", "musicroom.json", "path to the JSON config file")
	showHelp = flag.Bool("h", false, "Show help")
	version  = flag.Bool("version", false, "Show version")
)

var appVersion = "dev"

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("musicroom v%s\n", appVersion)
		return
	}
	if *showHelp {
		fmt.Println(help.Render(help.TopLevelCommands))
		return
	}

	cfg, created, err := config.Ensure(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if created {
		fmt.Printf("wrote default config to %s\n", *cfgPath)
	}

	command := ""
	if args := flag.Args(); len(args) > 0 {
		command = args[0]
	}

	var runErr error
	switch command {
	case "tracker":
		runErr = runTracker(cfg)
	case "":
		runErr = runREPL(cfg)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q; try 'tracker' or run with no arguments\n", command)
		os.Exit(1)
	}

	if runErr != nil {
		fmt.Fprintf(os.Stderr, "%v\n", runErr)
		os.Exit(1)
	}
}

// runTracker runs the standalone directory-service process (spec §4.7).
func runTracker(cfg config.Config) error {
	if cfg.Tracker.Addr == "" {
		return fmt.Errorf("tracker.addr is not configured")
	}

	store, err := tracker.OpenStore(cfg.Tracker.DBPath)
	if err != nil {
		return fmt.Errorf("open tracker store: %w", err)
	}
	defer store.Close()

	srv, err := tracker.NewServer(cfg, store)
	if err != nil {
		return fmt.Errorf("start tracker: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	fmt.Printf("tracker listening on %s — press Ctrl+C to stop\n", srv.Addr())

	done := make(chan error, 1)
	go func() { done <- srv.Run() }()

	select {
	case <-ctx.Done():
		srv.Shutdown()
		<-done
		return nil
	case err := <-done:
		return err
	}
}

// runREPL is the top-level prompt described in spec §6: `make room`,
// `join room <addr>`, `help`, `faq`, `exit`. It owns the process's one
// signal-driven context and hands it to whichever endpoint it starts.
func runREPL(cfg config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print(cfg.Client.Prompt)
		if !scanner.Scan() {
			return nil
		}
		line := strings.TrimSpace(scanner.Text())

		switch {
		case line == "make room":
			if err := runHost(ctx, cfg); err != nil {
				fmt.Fprintf(os.Stderr, "room failed: %v\n", err)
			}
		case line == "join room" || strings.HasPrefix(line, "join room "):
			addr := strings.TrimSpace(strings.TrimPrefix(line, "join room"))
			if addr == "" {
				fmt.Print("room address (host:port): ")
				if !scanner.Scan() {
					return nil
				}
				addr = strings.TrimSpace(scanner.Text())
			}
			if err := runParticipant(ctx, cfg, addr); err != nil {
				fmt.Fprintf(os.Stderr, "join failed: %v\n", err)
			}
		case strings.HasPrefix(line, "find room "):
			findRoom(cfg, strings.TrimPrefix(line, "find room "))
		case line == "list rooms":
			listRooms(cfg)
		case line == "help":
			fmt.Println(help.Render(help.TopLevelCommands))
		case line == "faq":
			if text, err := help.FAQ(); err == nil {
				fmt.Println(text)
			}
		case line == "exit", line == "quit":
			return nil
		case line == "":
		default:
			fmt.Println("unknown command; try 'help'")
		}

		if ctx.Err() != nil {
			return nil
		}
	}
}

func findRoom(cfg config.Config, name string) {
	if cfg.Tracker.Addr == "" {
		fmt.Println("no tracker configured for this config")
		return
	}
	entry, ok, err := tracker.NewClient(cfg.Tracker.Addr).Find(strings.TrimSpace(name))
	if err != nil {
		fmt.Fprintf(os.Stderr, "find room: %v\n", err)
		return
	}
	if !ok {
		fmt.Println("no such room")
		return
	}
	fmt.Printf("%s  %s:%d\n", entry.Name, entry.IP, entry.Port)
}

func listRooms(cfg config.Config) {
	if cfg.Tracker.Addr == "" {
		fmt.Println("no tracker configured for this config")
		return
	}
	entries, err := tracker.NewClient(cfg.Tracker.Addr).List()
	if err != nil {
		fmt.Fprintf(os.Stderr, "list rooms: %v\n", err)
		return
	}
	if len(entries) == 0 {
		fmt.Println("no rooms registered")
		return
	}
	for _, e := range entries {
		fmt.Printf("%s  %s:%d\n", e.Name, e.IP, e.Port)
	}
}

func runHost(ctx context.Context, cfg config.Config) error {
	p := player.New()

	var registrar host.Registrar
	if cfg.Tracker.Addr != "" {
		registrar = tracker.NewClient(cfg.Tracker.Addr)
	}

	h, err := host.New(cfg, *cfgPath, cfg.Profile.Name, p, registrar)
	if err != nil {
		p.Close()
		return err
	}

	fmt.Printf("room listening on %s — press Ctrl+C to stop\n", h.Addr())

	done := make(chan error, 1)
	go func() { done <- h.Run() }()

	select {
	case <-ctx.Done():
		h.Shutdown()
		<-done
		return nil
	case err := <-done:
		return err
	}
}

func runParticipant(ctx context.Context, cfg config.Config, addr string) error {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}

	p := player.New()

	cl := participant.New(cfg, wire.NewStream(conn), p)

	done := make(chan error, 1)
	go func() { done <- cl.Run(cfg.Profile.Name) }()

	select {
	case <-ctx.Done():
		cl.Shutdown()
		<-done
		return nil
	case err := <-done:
		return err
	}
}
