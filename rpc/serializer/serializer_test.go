package serializer

import (
	"reflect"
	"testing"

	"github.com/pubkey/storagebench/lib/adapter"
	"github.com/pubkey/storagebench/lib/document"
	"github.com/pubkey/storagebench/rpc/common"
)

// testSerializers is a map of serializer name to factory function
var testSerializers = map[string]func() IRPCSerializer{
	"JSON":   NewJSONSerializer,
	"GOB":    NewGOBSerializer,
	"Binary": NewBinarySerializer,
}

// testDocs returns documents with and without list items
func testDocs() []document.Document {
	return []document.Document{
		{
			ID:       "a1b2c3d4e5f6",
			Age:      42,
			LongText: "lorem ipsum zzz dolor",
			Nes:      document.Nested{Ted: 7},
			List:     []document.ListItem{{Value: "x"}, {Value: "y"}, {Value: "z"}},
		},
		{ID: "no-list", Age: 0, LongText: ""},
		{ID: "negative", Age: -3, Nes: document.Nested{Ted: -1}, List: []document.ListItem{{Value: "v"}}},
	}
}

// testMessages creates a set of test messages with different fields filled
func testMessages() []common.Message {
	return []common.Message{
		// Basic message with just a type
		{MsgType: common.MsgTReady},

		// Write request
		{MsgType: common.MsgTWriteDocs, Docs: testDocs()},

		// FindDocs request
		{MsgType: common.MsgTFindDocs, IDs: []string{"a1b2c3d4e5f6", "", "missing"}},

		// Query requests
		{MsgType: common.MsgTQueryRegex, Pattern: "zzz"},
		{MsgType: common.MsgTQueryIndex, MinAge: 50},
		{MsgType: common.MsgTQueryIndex, MinAge: document.NoAgeBound},
		{MsgType: common.MsgTQueryRegexIndex, Pattern: "^lorem", MinAge: 10},

		// Query response
		{MsgType: common.MsgTQueryIndex, Docs: testDocs()[:1]},

		// Error responses
		{MsgType: common.MsgTError, Err: "test error message", Code: uint64(adapter.RetCProtocol)},
		{MsgType: common.MsgTWriteDocs, Err: "duplicate id", Code: uint64(adapter.RetCDuplicateID)},
	}
}

// TestSerializerRoundTrip tests that messages can be serialized and deserialized correctly
func TestSerializerRoundTrip(t *testing.T) {
	messages := testMessages()

	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			serializer := factory()

			for i, msg := range messages {
				// Serialize
				data, err := serializer.Serialize(msg)
				if err != nil {
					t.Errorf("Failed to serialize message %d: %v", i, err)
					continue
				}

				// Deserialize
				var result common.Message
				err = serializer.Deserialize(data, &result)
				if err != nil {
					t.Errorf("Failed to deserialize message %d: %v", i, err)
					continue
				}

				// Compare
				if !reflect.DeepEqual(msg, result) {
					t.Errorf("Message %d doesn't match after round trip:\nOriginal: %+v\nResult: %+v",
						i, msg, result)
				}
			}
		})
	}
}

// TestDeserializeResetsMessage tests that a reused message does not keep old fields
func TestDeserializeResetsMessage(t *testing.T) {
	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			serializer := factory()

			data, err := serializer.Serialize(common.Message{MsgType: common.MsgTClear})
			if err != nil {
				t.Fatalf("Failed to serialize: %v", err)
			}

			result := common.Message{MsgType: common.MsgTFindDocs, IDs: []string{"old"}, Pattern: "old", Err: "old"}
			if err := serializer.Deserialize(data, &result); err != nil {
				t.Fatalf("Failed to deserialize: %v", err)
			}
			if !reflect.DeepEqual(common.Message{MsgType: common.MsgTClear}, result) {
				t.Errorf("Reused message kept fields: %+v", result)
			}
		})
	}
}

// TestMessageTypes tests each message type with each serializer
func TestMessageTypes(t *testing.T) {
	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			serializer := factory()

			for msgType := common.MsgTReady; msgType <= common.MsgTClear; msgType++ {
				msg := common.Message{MsgType: msgType}

				// Serialize
				data, err := serializer.Serialize(msg)
				if err != nil {
					t.Errorf("Failed to serialize message type %s: %v", msgType.String(), err)
					continue
				}

				// Deserialize
				var result common.Message
				err = serializer.Deserialize(data, &result)
				if err != nil {
					t.Errorf("Failed to deserialize message type %s: %v", msgType.String(), err)
					continue
				}

				// Check type
				if result.MsgType != msgType {
					t.Errorf("Message type doesn't match after round trip: Expected %s, got %s",
						msgType.String(), result.MsgType.String())
				}
			}
		})
	}
}

// TestBinarySerializerSpecific tests the compact encoding of the binary serializer
func TestBinarySerializerSpecific(t *testing.T) {
	serializer := NewBinarySerializer()

	t.Run("Empty message is header only", func(t *testing.T) {
		data, err := serializer.Serialize(common.Message{MsgType: common.MsgTInit})
		if err != nil {
			t.Fatalf("Failed to serialize: %v", err)
		}
		if len(data) != 2 {
			t.Errorf("Expected 2 bytes, got %d", len(data))
		}
	})

	t.Run("Empty slices are decoded as nil", func(t *testing.T) {
		msg := common.Message{
			MsgType: common.MsgTWriteDocs,
			Docs:    []document.Document{{ID: "a", List: []document.ListItem{}}},
			IDs:     []string{},
		}
		data, err := serializer.Serialize(msg)
		if err != nil {
			t.Fatalf("Failed to serialize: %v", err)
		}

		var result common.Message
		if err := serializer.Deserialize(data, &result); err != nil {
			t.Fatalf("Failed to deserialize: %v", err)
		}
		if result.IDs != nil {
			t.Errorf("Expected nil ids, got %v", result.IDs)
		}
		if len(result.Docs) != 1 || result.Docs[0].List != nil {
			t.Errorf("Expected one doc without list, got %+v", result.Docs)
		}
	})

	t.Run("Size matches precomputed size", func(t *testing.T) {
		impl := binarySerializerImpl{}
		for i, msg := range testMessages() {
			data, err := impl.Serialize(msg)
			if err != nil {
				t.Fatalf("Failed to serialize message %d: %v", i, err)
			}
			if len(data) != impl.sizeBytes(msg) {
				t.Errorf("Message %d: size %d, precomputed %d", i, len(data), impl.sizeBytes(msg))
			}
		}
	})
}

// TestInvalidBinaryData tests how the binary serializer handles corrupt or invalid data
func TestInvalidBinaryData(t *testing.T) {
	serializer := NewBinarySerializer()

	testCases := []struct {
		name        string
		data        []byte
		expectError bool
	}{
		{
			name:        "Empty data",
			data:        []byte{},
			expectError: true,
		},
		{
			name:        "Too short header",
			data:        []byte{1}, // Only message type, no flags
			expectError: true,
		},
		{
			name:        "Valid header only",
			data:        []byte{1, 0}, // Message type 1, no flags
			expectError: false,
		},
		{
			name:        "Invalid length for id",
			data:        []byte{1, hasIDs, 0, 0, 0, 1, 0, 0, 0, 5, 'a', 'b', 'c'}, // Claims id length 5 but only 3 bytes provided
			expectError: true,
		},
		{
			name:        "Doc count exceeds data",
			data:        []byte{1, hasDocs, 0, 0, 3, 0xe8}, // Claims 1000 docs without any data
			expectError: true,
		},
		{
			name:        "Invalid length for pattern",
			data:        []byte{1, hasPattern, 0, 0, 0, 10}, // Claims pattern length 10 but no bytes provided
			expectError: true,
		},
		{
			name:        "Truncated min age",
			data:        []byte{1, hasMinAge, 0, 0},
			expectError: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var msg common.Message
			err := serializer.Deserialize(tc.data, &msg)

			if tc.expectError && err == nil {
				t.Errorf("Expected error but got none")
			} else if !tc.expectError && err != nil {
				t.Errorf("Did not expect error but got: %v", err)
			}
		})
	}
}

// TestByName tests the serializer lookup used by the commands
func TestByName(t *testing.T) {
	for _, name := range []string{"", "binary", "json", "gob"} {
		if _, err := ByName(name); err != nil {
			t.Errorf("ByName(%q): %v", name, err)
		}
	}
	if _, err := ByName("xml"); err == nil {
		t.Errorf("Expected error for unknown serializer")
	}
}
