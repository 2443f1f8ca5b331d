package machinetalk

import "encoding/json"

// JSONCodec is a trivial Codec that marshals a Container as JSON. It
// exists because the wire format is an external collaborator the core
// never assumes; this is a usable default for callers who have no
// existing binding to a real broker's serialization layer, not a
// production wire format.
type JSONCodec struct{}

func (JSONCodec) Decode(payload []byte, into *Container) error {
	return json.Unmarshal(payload, into)
}

func (JSONCodec) Encode(c *Container) ([]byte, error) {
	return json.Marshal(c)
}
