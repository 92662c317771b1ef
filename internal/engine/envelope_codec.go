package engine

import (
	"encoding/json"

	"github.com/arslanovdev/quotecache/internal/store"
	"github.com/arslanovdev/quotecache/model"
)

// encodeEnvelope/decodeEnvelope implement spec §9's "explicit wire format"
// requirement for CacheEnvelope: a stable textual encoding (JSON) rather
// than relying on language-level object serialization. Value has no
// omitempty, so a nil Value round-trips as JSON null (decodes back to nil,
// the negative/miss marker) while an empty-but-present []byte{} round-trips
// as "" (decodes back to a non-nil empty slice), keeping Envelope.IsNegative
// accurate either way.
func encodeEnvelope(env *model.Envelope) ([]byte, error) {
	return json.Marshal(env)
}

func decodeEnvelope(wire []byte) (*model.Envelope, error) {
	var env model.Envelope
	if err := json.Unmarshal(wire, &env); err != nil {
		return nil, store.ErrCorrupted
	}
	return &env, nil
}
