package engine

import (
	"encoding/json"

	"github.com/foofork/riptide/engine/models"
)

// jsonCodec is the default ExtractedDoc <-> []byte codec for the cache
// collaborator (spec §8: "decode(encode(doc)) == doc").
type jsonCodec struct{}

func (jsonCodec) Encode(doc models.ExtractedDoc) ([]byte, error) { return json.Marshal(doc) }

func (jsonCodec) Decode(data []byte) (models.ExtractedDoc, error) {
	var doc models.ExtractedDoc
	err := json.Unmarshal(data, &doc)
	return doc, err
}
