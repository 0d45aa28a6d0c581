package supervisor

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jason-s-yu/arcade/internal/errs"
)

// ManifestFile is the per-game manifest shipped inside every game folder.
const ManifestFile = "config.json"

// DefaultServerEntry is used when a manifest names no server entry.
const DefaultServerEntry = "game_server.py"

// Manifest is the developer-supplied description of a game folder.
type Manifest struct {
	GameName    string `json:"game_name"`
	Version     string `json:"version"`
	Description string `json:"description"`
	GameType    string `json:"game_type"`
	MinPlayers  int    `json:"min_players"`
	MaxPlayers  int    `json:"max_players"`
	ServerEntry string `json:"server_entry"`
	ClientEntry string `json:"client_entry"`
	// ServerCommand, when set, replaces entry resolution entirely:
	// element 0 is the program, the rest its leading arguments.
	ServerCommand []string `json:"server_command,omitempty"`
}

// LoadManifest reads the manifest of the game folder dir.
func LoadManifest(dir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if err != nil {
		return nil, errs.Wrap(errs.KindLaunch, "Game manifest not found", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, errs.Wrap(errs.KindLaunch, "Game manifest is invalid", err)
	}
	return &m, nil
}

// ServerSpec builds the invocation for the manifest's server entry bound to
// port. The payload always receives --host and --port as its last arguments.
func (s *Supervisor) ServerSpec(dir string, m *Manifest, port int) (Spec, error) {
	tail := []string{"--host", s.BindHost, "--port", strconv.Itoa(port)}

	if len(m.ServerCommand) > 0 {
		args := append(append([]string{}, m.ServerCommand[1:]...), tail...)
		return Spec{Executable: m.ServerCommand[0], Args: args, Dir: dir}, nil
	}

	entry := m.ServerEntry
	if entry == "" {
		entry = DefaultServerEntry
	}
	if filepath.IsAbs(entry) || strings.Contains(filepath.ToSlash(filepath.Clean(entry)), "../") {
		return Spec{}, errs.Newf(errs.KindLaunch, "Server entry %q escapes the game folder", entry)
	}
	path := filepath.Join(dir, entry)
	if _, err := os.Stat(path); err != nil {
		return Spec{}, errs.Wrap(errs.KindLaunch, fmt.Sprintf("Server entry %q not found", entry), err)
	}

	if isScript(entry) {
		return Spec{Executable: s.ScriptRuntime, Args: append([]string{path}, tail...), Dir: dir}, nil
	}
	return Spec{Executable: path, Args: tail, Dir: dir}, nil
}

func isScript(entry string) bool {
	switch strings.ToLower(filepath.Ext(entry)) {
	case ".py", ".pyw":
		return true
	}
	return false
}

// LaunchGame resolves the manifest in dir and starts its server on port.
func (s *Supervisor) LaunchGame(dir string, port int) (Handle, error) {
	m, err := LoadManifest(dir)
	if err != nil {
		return nil, err
	}
	spec, err := s.ServerSpec(dir, m, port)
	if err != nil {
		return nil, err
	}
	return s.Launch(spec)
}
