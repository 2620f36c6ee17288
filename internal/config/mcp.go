package config

import (
	"encoding/json"
	"fmt"
	"sort"
)

// MCPManifest is the launch manifest handed to the agent runtime.
type MCPManifest struct {
	// Servers maps a server key to its launch entry.
	Servers map[string]MCPServer `json:"mcpServers"`
}

// MCPServer defines a single stdio MCP server entry.
type MCPServer struct {
	// Command is the executable to launch.
	Command string `json:"command"`
	// Args are the command arguments.
	Args []string `json:"args,omitempty"`
	// Env defines environment variables for the server process.
	Env map[string]string `json:"env,omitempty"`
}

// Names returns the server keys in sorted order.
func (m MCPManifest) Names() []string {
	names := make([]string, 0, len(m.Servers))
	for name := range m.Servers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Marshal renders the manifest as indented JSON. Map keys are sorted by encoding/json.
func (m MCPManifest) Marshal() (string, error) {
	if m.Servers == nil {
		m.Servers = map[string]MCPServer{}
	}
	raw, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal mcp manifest: %w", err)
	}
	return string(raw), nil
}

// ParseMCPManifest decodes a launch manifest.
func ParseMCPManifest(raw string) (MCPManifest, error) {
	var m MCPManifest
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return MCPManifest{}, fmt.Errorf("decode mcp manifest: %w", err)
	}
	return m, nil
}
