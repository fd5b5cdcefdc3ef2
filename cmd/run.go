package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/andresmejia3/redactor/internal/accumulate"
	"github.com/andresmejia3/redactor/internal/chunk"
	"github.com/andresmejia3/redactor/internal/types"
	"github.com/andresmejia3/redactor/internal/utils"
	"github.com/andresmejia3/redactor/internal/worker"
	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	runOpts     requestFlags
	runManifest string
	runAsset    string
	runWorkflow string
	runEngines  int
	runVerify   bool
	runTempDir  string
)

// Manifest lists the chunks of one asset, as written by frame extraction.
type Manifest struct {
	AssetID       string   `json:"asset_id"`
	DetectionsKey string   `json:"detections_key"`
	ChunkKeys     []string `json:"chunk_keys"`
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Blur every chunk of an asset in parallel, then stitch the video",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runPipeline(cmd)
	},
}

func init() {
	bindRequestFlags(runCmd, &runOpts)
	runCmd.Flags().StringVarP(&runManifest, "manifest", "i", "", "Path to the chunk manifest (JSON)")
	runCmd.Flags().StringVarP(&runAsset, "asset", "a", "", "Asset ID (default: manifest asset_id, else derived from the manifest file)")
	runCmd.Flags().StringVarP(&runWorkflow, "workflow", "w", "", "Workflow execution ID (default: random UUID)")
	runCmd.Flags().IntVarP(&runEngines, "engines", "e", 4, "Number of chunks processed in parallel")
	runCmd.Flags().BoolVar(&runVerify, "verify", false, "Probe the encoded video with ffprobe before uploading")
	runCmd.Flags().StringVar(&runTempDir, "temp-dir", "", "Directory for the intermediate video file")

	runCmd.MarkFlagRequired("manifest")
	rootCmd.AddCommand(runCmd)
}

func loadManifest(path string) (Manifest, error) {
	var m Manifest
	raw, err := os.ReadFile(path)
	if err != nil {
		return m, err
	}
	if err := json.Unmarshal(raw, &m); err != nil {
		return m, fmt.Errorf("%w: manifest %s: %v", types.ErrInput, path, err)
	}
	if len(m.ChunkKeys) == 0 {
		return m, fmt.Errorf("%w: manifest %s lists no chunks", types.ErrInput, path)
	}
	return m, nil
}

func runPipeline(cmd *cobra.Command) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	req, err := runOpts.request()
	if err != nil {
		utils.ShowError("Invalid redaction request", err, nil)
		return err
	}
	manifest, err := loadManifest(runManifest)
	if err != nil {
		utils.ShowError("Failed to read manifest", err, nil)
		return err
	}

	assetID := firstNonEmpty(runAsset, manifest.AssetID)
	if assetID == "" {
		id, err := utils.GenerateAssetID(runManifest)
		if err != nil {
			return err
		}
		assetID = id[:16]
	}
	workflowID := firstNonEmpty(runWorkflow, uuid.NewString())
	log := logrus.WithFields(logrus.Fields{"asset": assetID, "workflow": workflowID})

	acc := accumulate.New(Catalogs)
	if err := acc.ExpectChunks(ctx, assetID, workflowID, len(manifest.ChunkKeys)); err != nil {
		utils.ShowError("Failed to register workflow", err, nil)
		return err
	}

	processor := chunk.NewProcessor(Objects, runOpts.processorOptions()...)
	bar := progressbar.NewOptions(len(manifest.ChunkKeys),
		progressbar.OptionSetDescription("Redacting"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
	)

	jobs := make([]worker.Job, len(manifest.ChunkKeys))
	for i, key := range manifest.ChunkKeys {
		jobs[i] = func(ctx context.Context) error {
			defer bar.Add(1)
			desc, err := chunk.LoadChunk(ctx, Objects, key, manifest.DetectionsKey, i, req)
			if err != nil {
				return types.NewStageError("load", assetID, types.ErrInput, err)
			}
			res, err := processor.Process(ctx, assetID, workflowID, desc, req)
			if err != nil {
				return err
			}
			return acc.RecordChunk(ctx, assetID, workflowID, res)
		}
	}

	fmt.Fprintf(os.Stderr, "🚀 Redacting %d chunks with %d engines (workflow %s)...\n", len(jobs), runEngines, workflowID)
	errs := worker.NewPool(runEngines, log).Run(ctx, jobs)
	bar.Finish()
	fmt.Fprintln(os.Stderr)
	if err := worker.Join(errs); err != nil {
		utils.ShowError("Some chunks failed; the video was not assembled", err, nil)
		return err
	}

	key, err := runStitch(ctx, assetID, workflowID, req.DetectionType, runVerify, runTempDir)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), key)
	return nil
}
