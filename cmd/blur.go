package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/andresmejia3/redactor/internal/accumulate"
	"github.com/andresmejia3/redactor/internal/chunk"
	"github.com/andresmejia3/redactor/internal/types"
	"github.com/andresmejia3/redactor/internal/utils"
	"github.com/spf13/cobra"
)

var (
	blurOpts       requestFlags
	blurAsset      string
	blurWorkflow   string
	blurChunkKey   string
	blurDetections string
	blurIndex      int
)

var blurCmd = &cobra.Command{
	Use:   "blur",
	Short: "Redact one chunk of frames and record its result",
	Long: `Reads a chunk document and its detection document from object storage,
blurs the selected detections in every frame and records the chunk's
redacted frame keys for the workflow. Prints the chunk result as JSON.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runBlur(cmd)
	},
}

func init() {
	bindRequestFlags(blurCmd, &blurOpts)
	blurCmd.Flags().StringVarP(&blurAsset, "asset", "a", "", "Asset ID")
	blurCmd.Flags().StringVarP(&blurWorkflow, "workflow", "w", "", "Workflow execution ID")
	blurCmd.Flags().StringVar(&blurChunkKey, "chunk", "", "Object key of the chunk document")
	blurCmd.Flags().StringVar(&blurDetections, "detections", "", "Object key of the detection document")
	blurCmd.Flags().IntVar(&blurIndex, "index", 0, "Chunk index, when the chunk document does not carry one")

	blurCmd.MarkFlagRequired("asset")
	blurCmd.MarkFlagRequired("workflow")
	blurCmd.MarkFlagRequired("chunk")
	rootCmd.AddCommand(blurCmd)
}

func runBlur(cmd *cobra.Command) error {
	ctx := cmd.Context()
	req, err := blurOpts.request()
	if err != nil {
		err = types.NewStageError("blur", blurAsset, types.ErrInput, err)
		utils.ShowError("Invalid redaction request", err, nil)
		return err
	}

	desc, err := chunk.LoadChunk(ctx, Objects, blurChunkKey, blurDetections, blurIndex, req)
	if err != nil {
		err = types.NewStageError("load", blurAsset, types.ErrInput, err)
		utils.ShowError("Failed to load chunk", err, nil)
		return err
	}

	fmt.Fprintf(os.Stderr, "🔍 Blurring %d frames of chunk %d...\n", len(desc.FrameKeys), desc.Index)
	res, err := chunk.NewProcessor(Objects, blurOpts.processorOptions()...).Process(ctx, blurAsset, blurWorkflow, desc, req)
	if err != nil {
		utils.ShowError("Chunk redaction failed", err, nil)
		return err
	}
	if err := accumulate.New(Catalogs).RecordChunk(ctx, blurAsset, blurWorkflow, res); err != nil {
		utils.ShowError("Failed to record chunk", err, nil)
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}
