package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/andresmejia3/redactor/internal/accumulate"
	"github.com/andresmejia3/redactor/internal/assemble"
	"github.com/andresmejia3/redactor/internal/utils"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var (
	stitchAsset    string
	stitchWorkflow string
	stitchType     string
	stitchVerify   bool
	stitchTempDir  string
)

var stitchCmd = &cobra.Command{
	Use:   "stitch",
	Short: "Reassemble a workflow's redacted frames into a video",
	Long: `Coalesces every chunk reported for the workflow into one frame catalog,
encodes the frames in natural order at the source frame rate and records
the video in the asset's catalog, replacing any earlier video of the same
redaction type.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		key, err := runStitch(cmd.Context(), stitchAsset, stitchWorkflow, stitchType, stitchVerify, stitchTempDir)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), key)
		return nil
	},
}

func init() {
	stitchCmd.Flags().StringVarP(&stitchAsset, "asset", "a", "", "Asset ID")
	stitchCmd.Flags().StringVarP(&stitchWorkflow, "workflow", "w", "", "Workflow execution ID")
	stitchCmd.Flags().StringVarP(&stitchType, "type", "t", "", "Redaction type the frames were blurred for")
	stitchCmd.Flags().BoolVar(&stitchVerify, "verify", false, "Probe the encoded video with ffprobe before uploading")
	stitchCmd.Flags().StringVar(&stitchTempDir, "temp-dir", "", "Directory for the intermediate video file")

	stitchCmd.MarkFlagRequired("asset")
	stitchCmd.MarkFlagRequired("workflow")
	stitchCmd.MarkFlagRequired("type")
	rootCmd.AddCommand(stitchCmd)
}

// runStitch runs coalesce, assemble and catalog update for one workflow.
func runStitch(ctx context.Context, assetID, workflowID, redactionType string, verify bool, tempDir string) (string, error) {
	acc := accumulate.New(Catalogs)

	cat, err := acc.Coalesce(ctx, assetID, workflowID)
	if err != nil {
		utils.ShowError("Failed to coalesce chunk results", err, nil)
		return "", err
	}

	bar := progressbar.NewOptions(len(cat.RedactedFrameKeys),
		progressbar.OptionSetDescription("Stitching"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
	)
	opts := []assemble.Option{
		assemble.WithEncoder(newEncoder),
		assemble.WithTempDir(tempDir),
		assemble.WithProgress(func(done, total int) { bar.Set(done) }),
	}
	if verify {
		opts = append(opts, assemble.WithVerifier(utils.ProbeVideo))
	}

	fmt.Fprintf(os.Stderr, "🎞️  Encoding %d frames at %.3f fps (%dx%d)...\n",
		len(cat.RedactedFrameKeys), cat.Metadata.FPS, cat.Metadata.FrameWidth, cat.Metadata.FrameHeight)
	key, err := assemble.New(Objects, opts...).Assemble(ctx, assetID, redactionType, cat)
	bar.Finish()
	fmt.Fprintln(os.Stderr)
	if err != nil {
		utils.ShowError("Video assembly failed", err, utils.CommandOf(err))
		return "", err
	}

	if _, err := acc.RecordVideo(ctx, assetID, redactionType, key); err != nil {
		utils.ShowError("Failed to record video", err, nil)
		return "", err
	}
	fmt.Fprintf(os.Stderr, "✅ Redacted video stored at %s\n", key)
	return key, nil
}
