// Package config loads and persists the JSON configuration shared by the
// room host, participant and tracker binaries.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/musicroom/musicroom/internal/util"
)

// MaxSongsHardLimit is the protocol ceiling: queue positions travel in the
// single-byte opt field of the wire header (spec §3, §4.3).
const MaxSongsHardLimit = 255

// Config is the on-disk shape for all three roles. A given process only
// reads the sections it needs; unused sections stay at their defaults.
type Config struct {
	Room    Room    `json:"room"`
	Client  Client  `json:"client"`
	Tracker Tracker `json:"tracker"`
	Profile Profile `json:"profile"`
}

// Room holds host-side tunables.
type Room struct {
	ListenAddr       string `json:"listen_addr"`
	MaxSongs         int    `json:"max_songs"`
	MaxFileSizeBytes int64  `json:"max_file_size_bytes"`
	TempDir          string `json:"temp_dir"` // empty = os.TempDir()
}

// Client holds participant-side tunables.
type Client struct {
	Prompt string `json:"prompt"`
}

// Tracker holds optional directory-service settings used by both the host
// (to self-register) and the tracker binary itself.
type Tracker struct {
	Addr    string `json:"addr"`     // e.g. "tracker.example.net:55520"; empty disables
	DBPath  string `json:"db_path"`  // sqlite file for the tracker process
	WSAddr  string `json:"ws_addr"`  // websocket feed address for the tracker process
}

// Profile holds the display name the host/participant offers on JOIN.
type Profile struct {
	Name string `json:"name"`
}

func Default() Config {
	return Config{
		Room: Room{
			ListenAddr:       ":5510",
			MaxSongs:         64,
			MaxFileSizeBytes: 50_000_000,
			TempDir:          "",
		},
		Client: Client{
			Prompt: " >> ",
		},
		Tracker: Tracker{
			Addr:   "",
			DBPath: "data/tracker.db",
			WSAddr: ":5511",
		},
		Profile: Profile{
			Name: "listener",
		},
	}
}

func (c *Config) Validate() error {
	if c.Room.MaxSongs <= 0 || c.Room.MaxSongs > MaxSongsHardLimit {
		return fmt.Errorf("room.max_songs must be 1..%d", MaxSongsHardLimit)
	}
	if c.Room.MaxFileSizeBytes <= 0 {
		return errors.New("room.max_file_size_bytes must be > 0")
	}
	if strings.TrimSpace(c.Client.Prompt) == "" {
		return errors.New("client.prompt is required")
	}
	if strings.TrimSpace(c.Profile.Name) == "" {
		return errors.New("profile.name is required")
	}
	return nil
}

func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	// Start from defaults so missing JSON fields remain initialized.
	cfg := Default()
	if err := json.Unmarshal(b, &cfg); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func Save(path string, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	return util.WriteJSONFile(path, cfg)
}

// Ensure loads config if it exists; otherwise creates a default config file.
// Returns (cfg, createdNew, err).
func Ensure(path string) (Config, bool, error) {
	if _, err := os.Stat(path); err == nil {
		cfg, err := Load(path)
		return cfg, false, err
	} else if !os.IsNotExist(err) {
		return Config{}, false, err
	}

	cfg := Default()
	if err := Save(path, cfg); err != nil {
		return Config{}, false, fmt.Errorf("create default config: %w", err)
	}
	return cfg, true, nil
}
