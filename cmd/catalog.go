package cmd

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/andresmejia3/redactor/internal/store"
	"github.com/andresmejia3/redactor/internal/utils"
	"github.com/spf13/cobra"
)

var (
	catalogAsset    string
	catalogWorkflow string
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Show the redacted videos (or a workflow's redacted frames) of an asset",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		if catalogWorkflow != "" {
			return listFrames(cmd)
		}
		return listVideos(cmd)
	},
}

func init() {
	catalogCmd.Flags().StringVarP(&catalogAsset, "asset", "a", "", "Asset ID")
	catalogCmd.Flags().StringVarP(&catalogWorkflow, "workflow", "w", "", "Show the frame catalog of this workflow instead")
	catalogCmd.MarkFlagRequired("asset")
	rootCmd.AddCommand(catalogCmd)
}

func listVideos(cmd *cobra.Command) error {
	cat, version, err := Catalogs.GetVideoCatalog(cmd.Context(), catalogAsset)
	if err != nil {
		utils.ShowError("Failed to read video catalog", err, nil)
		return err
	}
	out := cmd.OutOrStdout()
	if len(cat.RedactedVideoKeys) == 0 {
		fmt.Fprintf(out, "No redacted videos for asset %s.\n", catalogAsset)
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintf(w, "REDACTION TYPE\tKEY\t(version %d)\n", version)
	fmt.Fprintln(w, "--------------\t---\t")
	for _, e := range cat.RedactedVideoKeys {
		fmt.Fprintf(w, "%s\t%s\t\n", e.RedactionType, e.Key)
	}
	return w.Flush()
}

func listFrames(cmd *cobra.Command) error {
	cat, err := Catalogs.GetFrameCatalog(cmd.Context(), catalogAsset, catalogWorkflow)
	if errors.Is(err, store.ErrNotFound) {
		fmt.Fprintf(cmd.OutOrStdout(), "Workflow %s has not been coalesced yet.\n", catalogWorkflow)
		return nil
	}
	if err != nil {
		utils.ShowError("Failed to read frame catalog", err, nil)
		return err
	}

	out := cmd.OutOrStdout()
	m := cat.Metadata
	fmt.Fprintf(out, "%d frames, %dx%d @ %.3f fps (original %dx%d)\n",
		len(cat.RedactedFrameKeys), m.FrameWidth, m.FrameHeight, m.FPS, m.OriginalFrameWidth, m.OriginalFrameHeight)
	for _, k := range cat.RedactedFrameKeys {
		fmt.Fprintln(out, k)
	}
	return nil
}
