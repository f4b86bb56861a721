package internal

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/pubkey/storagebench/lib/document"
)

const commandHeaderSize = 5

// CommandType defines the possible operations for the state machine.
type CommandType uint8

const (
	CommandTInsert CommandType = iota // Insert documents, conflicting ids reject the whole command.
	CommandTWipe                      // Remove all documents.
)

func (ct CommandType) String() string {
	switch ct {
	case CommandTInsert:
		return "Insert"
	case CommandTWipe:
		return "Wipe"
	default:
		return fmt.Sprintf("Unknown(%d)", ct)
	}
}

// Command is a single entry in the raft log
type Command struct {
	Type CommandType
	Docs []document.Document
}

// Serialize encodes the command. Only encoding the documents can fail.
func (c *Command) Serialize() ([]byte, error) {
	var payload []byte
	if len(c.Docs) > 0 {
		var err error
		if payload, err = json.Marshal(c.Docs); err != nil {
			return nil, err
		}
	}

	result := make([]byte, commandHeaderSize+len(payload))
	result[0] = byte(c.Type)
	binary.BigEndian.PutUint32(result[1:5], uint32(len(c.Docs)))
	copy(result[commandHeaderSize:], payload)
	return result, nil
}

// Deserialize extracts all Command fields from a byte array.
func (c *Command) Deserialize(data []byte) error {
	if len(data) < commandHeaderSize {
		return fmt.Errorf("data too short for command")
	}

	c.Type = CommandType(data[0])
	count := binary.BigEndian.Uint32(data[1:5])
	c.Docs = nil

	if count == 0 {
		return nil
	}
	if err := json.Unmarshal(data[commandHeaderSize:], &c.Docs); err != nil {
		return fmt.Errorf("decode documents: %w", err)
	}
	if len(c.Docs) != int(count) {
		return fmt.Errorf("command announces %d documents, found %d", count, len(c.Docs))
	}
	return nil
}
