package checkpoint

import (
	"encoding/json"

	lerrors "github.com/hrygo/loom/internal/errors"
	"github.com/hrygo/loom/plugin/ai/agent/state"
)

// Blob format: a versioned, self-describing JSON envelope. Cross-version
// compatibility is a contract, not an accident: decoding rejects unknown
// versions and undecodable payloads as corruption.
const (
	envelopeVersion = 1

	// TypeChatState is the snapshot format discriminator for conversation
	// state payloads.
	TypeChatState = "chat_state"
	// typeMetadata discriminates auxiliary metadata blobs.
	typeMetadata = "checkpoint_meta"
)

type envelope struct {
	V    int             `json:"v"`
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Metadata is the auxiliary record stored next to every checkpoint.
type Metadata struct {
	// Source records what produced the checkpoint, e.g. "turn" or "resume".
	Source string `json:"source"`
	// Step is the per-thread step counter.
	Step int `json:"step"`
	// CreatedTs is the wall-clock write time.
	CreatedTs int64 `json:"created_ts"`
}

func encode(typ string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, lerrors.Wrap(err, lerrors.ErrCodePersistenceFailed, "failed to marshal payload")
	}
	blob, err := json.Marshal(envelope{V: envelopeVersion, Type: typ, Data: raw})
	if err != nil {
		return nil, lerrors.Wrap(err, lerrors.ErrCodePersistenceFailed, "failed to marshal envelope")
	}
	return blob, nil
}

func decode(blob []byte, wantType string, out any) error {
	var env envelope
	if err := json.Unmarshal(blob, &env); err != nil {
		return lerrors.Wrap(err, lerrors.ErrCodeCorruptCheckpoint, "undecodable checkpoint blob")
	}
	if env.V != envelopeVersion {
		return lerrors.Newf(lerrors.ErrCodeCorruptCheckpoint, "unsupported checkpoint version %d", env.V)
	}
	if env.Type != wantType {
		return lerrors.Newf(lerrors.ErrCodeCorruptCheckpoint, "unexpected checkpoint type %q, want %q", env.Type, wantType)
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return lerrors.Wrap(err, lerrors.ErrCodeCorruptCheckpoint, "undecodable checkpoint payload")
	}
	return nil
}

// EncodeState serializes a conversation snapshot.
func EncodeState(st *state.ChatState) ([]byte, error) {
	return encode(TypeChatState, st)
}

// DecodeState deserializes a conversation snapshot. Failures are reported
// as corruption, which callers must treat as non-retryable.
func DecodeState(blob []byte) (*state.ChatState, error) {
	st := &state.ChatState{}
	if err := decode(blob, TypeChatState, st); err != nil {
		return nil, err
	}
	return st, nil
}

// EncodeMetadata serializes checkpoint metadata.
func EncodeMetadata(meta *Metadata) ([]byte, error) {
	return encode(typeMetadata, meta)
}

// DecodeMetadata deserializes checkpoint metadata.
func DecodeMetadata(blob []byte) (*Metadata, error) {
	meta := &Metadata{}
	if err := decode(blob, typeMetadata, meta); err != nil {
		return nil, err
	}
	return meta, nil
}
