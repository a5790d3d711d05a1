package realtime

// Codec converts between envelope JSON and what actually travels in a text
// frame. It is the seam for a frame encryption wrapper; none is shipped.
type Codec interface {
	Encode(plain []byte) ([]byte, error)
	Decode(wire []byte) ([]byte, error)
}

// PlainCodec sends envelope JSON as-is.
type PlainCodec struct{}

func (PlainCodec) Encode(plain []byte) ([]byte, error) { return plain, nil }

func (PlainCodec) Decode(wire []byte) ([]byte, error) { return wire, nil }
