package common

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/pubkey/storagebench/lib/adapter"
	"github.com/pubkey/storagebench/lib/document"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestRoundTrip(t *testing.T) {
	docs := []document.Document{{ID: "a", Age: 3}}
	requests := []Request{
		InitRequest{},
		WriteDocsRequest{Docs: docs},
		FindDocsRequest{IDs: []string{"a", "b"}},
		QueryRegexRequest{Pattern: "zz"},
		QueryIndexRequest{MinAge: 50},
		QueryRegexIndexRequest{Pattern: "zz", MinAge: 50},
		ClearRequest{},
	}

	for _, req := range requests {
		msg := req.Message()
		got, err := msg.Request()
		require.NoError(t, err, msg.MsgType.String())
		assert.Equal(t, req, got)
	}
}

func TestNonRequestsAreRejected(t *testing.T) {
	for _, msg := range []*Message{NewReadyMessage(), NewErrorResponse(adapter.RetCProtocol, "x"), {}} {
		_, err := msg.Request()
		assert.Error(t, err, msg.MsgType.String())
	}
}

func TestResponseCarriesCode(t *testing.T) {
	err := adapter.NewError(adapter.RetCDuplicateID, "a", "WriteDocs", errors.New("dup"))
	msg := NewResponse(MsgTWriteDocs, nil, err)
	assert.True(t, msg.Failed())
	assert.Equal(t, uint64(adapter.RetCDuplicateID), msg.Code)
	assert.Equal(t, err.Error(), msg.Err)

	ok := NewResponse(MsgTQueryIndex, []document.Document{{ID: "x"}}, nil)
	assert.False(t, ok.Failed())
	assert.Zero(t, ok.Code)
}

func TestMessageTypeJSON(t *testing.T) {
	for mt := MsgTUnknown; mt <= msgTLast; mt++ {
		b, err := json.Marshal(mt)
		require.NoError(t, err)

		var back MessageType
		require.NoError(t, json.Unmarshal(b, &back))
		assert.Equal(t, mt, back)
	}

	mt := MsgTInit
	require.NoError(t, json.Unmarshal([]byte(`"compactDocs"`), &mt))
	assert.Equal(t, MsgTUnknown, mt)
	assert.Error(t, json.Unmarshal([]byte(`7`), &mt))
}

func TestParseEndpoint(t *testing.T) {
	tests := []struct {
		in      string
		want    Endpoint
		wantErr bool
	}{
		{in: "", want: Endpoint{}},
		{in: "stdio", want: Endpoint{}},
		{in: "unix:/tmp/w.sock", want: Endpoint{Network: "unix", Address: "/tmp/w.sock"}},
		{in: "tcp:localhost:8080", want: Endpoint{Network: "tcp", Address: "localhost:8080"}},
		{in: "udp:localhost:1", wantErr: true},
		{in: "tcp:", wantErr: true},
		{in: "nonsense", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseEndpoint(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	for _, lvl := range []string{"debug", "INFO", "warn", "warning", "error"} {
		_, err := ParseLogLevel(lvl)
		assert.NoError(t, err, lvl)
	}
	_, err := ParseLogLevel("loud")
	assert.Error(t, err)
}

func TestConfigStrings(t *testing.T) {
	w := &WorkerConfig{Backend: "kvmap", Serializer: "binary", LogLevel: "info"}
	assert.Contains(t, w.String(), "kvmap")
	assert.Contains(t, w.String(), "stdio")

	b := &BenchConfig{Backends: []string{"kvmap", "sqlstore-memory"}, Docs: 100}
	assert.Contains(t, b.String(), "sqlstore-memory")
	assert.Contains(t, b.String(), "BACKENDS")
}
