package contracts

// Decoder parses a source document into its flattened pixels.
type Decoder interface {
	Decode(data []byte) (DecodedImage, error)
}

// Encoder serializes flattened pixels into a target raster format.
type Encoder interface {
	Encode(img DecodedImage) ([]byte, error)
	// Extension is the output file extension including the dot.
	Extension() string
}

// Converter is a pure transform from source bytes to target bytes.
type Converter interface {
	Convert(input []byte) ([]byte, error)
}
