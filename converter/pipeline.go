package converter

import (
	"fmt"

	"psd2png/contracts"
	"psd2png/psd_decoder"
	"psd2png/raster_writer"
)

// Pipeline turns source document bytes into target raster bytes. It does
// no I/O; reading and writing files is the Batch's job.
type Pipeline struct {
	Decoder contracts.Decoder
	Encoder contracts.Encoder
}

// NewPipeline wires the PSD decoder to the encoder selected by flags.
func NewPipeline(flags contracts.InputFlags) (*Pipeline, error) {
	enc, err := raster_writer.New(flags.Format, flags.PNGCompression, flags.EmbedResolution)
	if err != nil {
		return nil, err
	}
	return &Pipeline{
		Decoder: psd_decoder.NewDecoder(flags.Composite),
		Encoder: enc,
	}, nil
}

// Decode runs the decode step alone.
func (p *Pipeline) Decode(input []byte) (contracts.DecodedImage, error) {
	img, err := p.Decoder.Decode(input)
	if err != nil {
		return contracts.DecodedImage{}, contracts.NewConversionError(contracts.StageDecode, "", err)
	}
	if err := img.Pixels.Validate(); err != nil {
		return contracts.DecodedImage{}, contracts.NewConversionError(contracts.StageDecode, "", err)
	}
	return img, nil
}

// Convert decodes input and encodes the flattened pixels. Errors are
// *contracts.ConversionError at StageDecode or StageEncode.
func (p *Pipeline) Convert(input []byte) ([]byte, error) {
	img, err := p.Decode(input)
	if err != nil {
		return nil, err
	}
	out, err := p.Encoder.Encode(img)
	if err != nil {
		return nil, contracts.NewConversionError(contracts.StageEncode, "", err)
	}
	if len(out) == 0 {
		return nil, contracts.NewConversionError(contracts.StageEncode, "", fmt.Errorf("encoder produced no data"))
	}
	return out, nil
}

// Extension is the output file extension of the configured encoder.
func (p *Pipeline) Extension() string {
	return p.Encoder.Extension()
}
