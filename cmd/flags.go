package cmd

import (
	"fmt"
	"strings"

	"github.com/andresmejia3/redactor/internal/chunk"
	"github.com/andresmejia3/redactor/internal/types"
	"github.com/spf13/cobra"
)

// requestFlags holds the redaction settings shared by blur and run.
type requestFlags struct {
	DetectionType string
	Labels        string
	LabelField    string
	Padding       float64
	MinConfidence float64
	Mode          string
	PaddingMode   string
	Format        string
	Quality       int
}

func bindRequestFlags(cmd *cobra.Command, f *requestFlags) {
	cmd.Flags().StringVarP(&f.DetectionType, "type", "t", "", "Detection type to redact (e.g. Face, Text, Weapon)")
	cmd.Flags().StringVarP(&f.Labels, "labels", "l", "", "Comma-separated label values to redact (targeted mode)")
	cmd.Flags().StringVar(&f.LabelField, "label-field", chunk.DefaultLabelField, "Detection field holding the label value")
	cmd.Flags().Float64VarP(&f.Padding, "padding", "p", 1.0, "Padding factor applied to each bounding box (>0)")
	cmd.Flags().Float64VarP(&f.MinConfidence, "min-confidence", "c", 0, "Minimum detection confidence (0-100)")
	cmd.Flags().StringVarP(&f.Mode, "mode", "m", string(types.ModeTargeted), "Selection mode: targeted, all")
	cmd.Flags().StringVar(&f.PaddingMode, "padding-mode", string(types.PaddingCentered), "Padding mode: centered, origin")
	cmd.Flags().StringVar(&f.Format, "format", string(chunk.FormatJPEG), "Redacted frame encoding: jpeg, png")
	cmd.Flags().IntVarP(&f.Quality, "quality", "q", 95, "JPEG quality (1-100)")
	cmd.MarkFlagRequired("type")
}

// request builds and validates the RedactionRequest.
func (f requestFlags) request() (types.RedactionRequest, error) {
	req := types.RedactionRequest{
		DetectionType: f.DetectionType,
		TargetLabels:  splitList(f.Labels),
		LabelField:    f.LabelField,
		Padding:       f.Padding,
		MinConfidence: f.MinConfidence,
		Mode:          types.Mode(f.Mode),
		PaddingMode:   types.PaddingMode(f.PaddingMode),
	}.WithDefaults()
	switch chunk.Format(f.Format) {
	case chunk.FormatJPEG, chunk.FormatPNG:
	default:
		return req, fmt.Errorf("%w: unknown frame format %q", types.ErrInput, f.Format)
	}
	return req, req.Validate()
}

func (f requestFlags) processorOptions() []chunk.Option {
	return []chunk.Option{
		chunk.WithFormat(chunk.Format(f.Format)),
		chunk.WithJPEGQuality(f.Quality),
	}
}

func splitList(s string) []string {
	var out []string
	for _, v := range strings.Split(s, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
