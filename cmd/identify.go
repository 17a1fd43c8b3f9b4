package main

import (
	"bytes"
	"fmt"
	"image/png"
	"io"
	"os"

	"github.com/spf13/cobra"

	"psd2png/psd_decoder"
	"psd2png/utils"
)

func newIdentifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "identify [file]",
		Short: "Inspect a PSD document or a converted PNG",
		Args:  cobra.ExactArgs(1),
		RunE:  runIdentify,
	}
}

func runIdentify(cmd *cobra.Command, args []string) error {
	path := args[0]
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "File:        %s\n", path)
	fmt.Fprintf(w, "File size:   %d bytes (%.1f MB)\n", len(data), float64(len(data))/(1024*1024))

	if bytes.HasPrefix(data, []byte("\x89PNG")) {
		return identifyPNG(w, path, data)
	}
	return identifyPSD(w, path, data)
}

func identifyPSD(w io.Writer, path string, data []byte) error {
	doc, err := psd_decoder.Parse(data)
	if err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	h := doc.Header

	kind := "PSD"
	if h.IsPSB() {
		kind = "PSB"
	}
	fmt.Fprintf(w, "Format:      %s (version %d)\n", kind, h.Version)
	fmt.Fprintf(w, "Dimensions:  %d x %d\n", h.Width, h.Height)
	fmt.Fprintf(w, "Color mode:  %s\n", h.ColorMode)
	fmt.Fprintf(w, "Depth:       %d bits\n", h.Depth)
	fmt.Fprintf(w, "Channels:    %d\n", h.Channels)
	if dpi := doc.DPI(); dpi > 0 {
		fmt.Fprintf(w, "Resolution:  %.2f dpi\n", dpi)
	} else {
		fmt.Fprintln(w, "Resolution:  none")
	}
	fmt.Fprintf(w, "Merged data: %t\n", doc.HasRealMergedData())

	if err := doc.LayerError(); err != nil {
		fmt.Fprintf(w, "Layers:      unreadable: %v\n", err)
		return nil
	}
	fmt.Fprintf(w, "Layers:      %d\n", len(doc.Layers))
	for i := len(doc.Layers) - 1; i >= 0; i-- {
		l := &doc.Layers[i]
		if l.IsGroupEnd() {
			continue
		}
		visibility := "visible"
		if l.Hidden() {
			visibility = "hidden"
		}
		kind := "layer"
		if l.IsGroupStart() {
			kind = "group"
		}
		fmt.Fprintf(w, "  %-5s %q %v opacity %d %s %s\n", kind, l.Name, l.Rect, l.Opacity, l.BlendMode, visibility)
	}
	return nil
}

func identifyPNG(w io.Writer, path string, data []byte) error {
	cfg, err := png.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	fmt.Fprintln(w, "Format:      PNG")
	fmt.Fprintf(w, "Dimensions:  %d x %d\n", cfg.Width, cfg.Height)

	dpi, ok, err := utils.DPIFromPNG(data)
	switch {
	case err != nil:
		fmt.Fprintf(w, "Resolution:  unreadable: %v\n", err)
	case ok:
		fmt.Fprintf(w, "Resolution:  %.2f dpi\n", dpi)
	default:
		fmt.Fprintln(w, "Resolution:  none")
	}
	return nil
}
