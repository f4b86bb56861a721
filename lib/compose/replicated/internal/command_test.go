package internal

import (
	"testing"

	"github.com/pubkey/storagebench/lib/document"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSerializeDeserialize(t *testing.T) {
	tests := []struct {
		name    string
		command Command
	}{
		{
			name: "Insert with documents",
			command: Command{
				Type: CommandTInsert,
				Docs: []document.Document{
					{ID: "a", Age: 1, LongText: "x", List: []document.ListItem{{Value: "v"}}},
					{ID: "b", Age: 2, Nes: document.Nested{Ted: 3}},
				},
			},
		},
		{
			name:    "Wipe without documents",
			command: Command{Type: CommandTWipe},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := tt.command.Serialize()
			require.NoError(t, err)

			var got Command
			require.NoError(t, got.Deserialize(data))
			assert.Equal(t, tt.command.Type, got.Type)
			require.Len(t, got.Docs, len(tt.command.Docs))
			for i := range got.Docs {
				assert.True(t, tt.command.Docs[i].Equal(&got.Docs[i]))
			}
		})
	}
}

func TestDeserializeInvalid(t *testing.T) {
	var c Command
	assert.Error(t, c.Deserialize(nil))
	assert.Error(t, c.Deserialize([]byte{0, 0, 0}))

	// announced count does not match the payload
	data, err := (&Command{Type: CommandTInsert, Docs: []document.Document{{ID: "a"}}}).Serialize()
	require.NoError(t, err)
	data[4] = 2
	assert.Error(t, c.Deserialize(data))

	// broken payload
	data[4] = 1
	assert.Error(t, c.Deserialize(data[:len(data)-1]))
}

func TestTypeStrings(t *testing.T) {
	assert.Equal(t, "Insert", CommandTInsert.String())
	assert.Equal(t, "Unknown(9)", CommandType(9).String())
	assert.Equal(t, "Scan", QueryTScan.String())
}
