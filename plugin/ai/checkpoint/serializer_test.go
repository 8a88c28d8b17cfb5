package checkpoint

import (
	"testing"

	"github.com/stretchr/testify/require"

	lerrors "github.com/hrygo/loom/internal/errors"
	"github.com/hrygo/loom/plugin/ai/agent/state"
)

func TestStateRoundTrip(t *testing.T) {
	in := &state.ChatState{
		ThreadID: "t1",
		Messages: []state.Message{
			{Role: state.RoleSystem, Content: "be helpful"},
			{Role: state.RoleHuman, Content: "hi"},
			{Role: state.RoleAssistant, Content: "", ToolCalls: []state.ToolCall{
				{ID: "call_1", Name: "calculator", Arguments: `{"first_num":2,"second_num":2,"operator":"+"}`},
			}},
			{Role: state.RoleTool, Content: `{"result":4}`, ToolCallID: "call_1", Name: "calculator"},
		},
		HasDocument: true,
	}

	blob, err := EncodeState(in)
	require.NoError(t, err)

	out, err := DecodeState(blob)
	require.NoError(t, err)
	require.Equal(t, in, out)
}

func TestDecodeRejectsUnknownVersion(t *testing.T) {
	_, err := DecodeState([]byte(`{"v":99,"type":"chat_state","data":{}}`))
	require.Error(t, err)
	require.True(t, lerrors.IsCode(err, lerrors.ErrCodeCorruptCheckpoint))
	require.False(t, lerrors.Retryable(err))
}

func TestDecodeRejectsWrongType(t *testing.T) {
	_, err := DecodeState([]byte(`{"v":1,"type":"something_else","data":{}}`))
	require.Error(t, err)
	require.True(t, lerrors.IsCode(err, lerrors.ErrCodeCorruptCheckpoint))
}

func TestDecodeRejectsGarbage(t *testing.T) {
	for _, blob := range [][]byte{
		[]byte("not json at all"),
		[]byte(`{"v":1,"type":"chat_state","data":"not an object"}`),
		{},
	} {
		_, err := DecodeState(blob)
		require.Error(t, err)
		require.True(t, lerrors.IsCode(err, lerrors.ErrCodeCorruptCheckpoint))
	}
}

func TestMetadataRoundTrip(t *testing.T) {
	in := &Metadata{Source: "turn", Step: 3, CreatedTs: 1700000000}
	blob, err := EncodeMetadata(in)
	require.NoError(t, err)
	out, err := DecodeMetadata(blob)
	require.NoError(t, err)
	require.Equal(t, in, out)
}
