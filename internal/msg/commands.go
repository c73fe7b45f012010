package msg

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrUnknownType reports a message with a type tag outside the closed set.
var ErrUnknownType = errors.New("unknown message type")

// CommandType discriminates inbound commands from foreground clients.
type CommandType string

// CommandCacheDoc asks the daemon to fetch and cache one document now,
// outside any queue entry.
const CommandCacheDoc CommandType = "cache-doc"

// Command is one inbound instruction. The set of types is closed; decoding
// rejects anything else instead of guessing.
type Command struct {
	Type   CommandType `json:"type"`
	URL    string      `json:"url,omitempty"`
	Tenant string      `json:"tenant,omitempty"`
}

// DecodeCommand parses a raw command payload and validates its type tag.
func DecodeCommand(data []byte) (Command, error) {
	var cmd Command
	if err := json.Unmarshal(data, &cmd); err != nil {
		return Command{}, fmt.Errorf("decode command: %w", err)
	}
	switch cmd.Type {
	case CommandCacheDoc:
		if cmd.URL == "" {
			return Command{}, errors.New("cache-doc command requires a url")
		}
		return cmd, nil
	default:
		return Command{}, fmt.Errorf("%w: %q", ErrUnknownType, cmd.Type)
	}
}
