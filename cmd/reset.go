package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/andresmejia3/redactor/internal/utils"
	"github.com/spf13/cobra"
)

var (
	resetDB    bool
	resetFiles bool
	resetYes   bool
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset system state (catalog store, redacted outputs)",
	Long:  "Clears all data. By default, it resets everything. Use flags to clear specific components.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		// If no flags are set, default to clearing EVERYTHING
		if !resetDB && !resetFiles {
			resetDB = true
			resetFiles = true
		}

		reader := bufio.NewReader(cmd.InOrStdin())
		out := cmd.OutOrStdout()

		if resetDB {
			if resetYes || confirm(reader, out, "⚠️  Are you sure you want to DROP all catalog tables?") {
				fmt.Fprintln(out, "🗑️  Clearing catalog store...")
				if err := Catalogs.Reset(cmd.Context()); err != nil {
					utils.ShowError("Failed to reset catalog store", err, nil)
					return err
				}
			}
		}

		if resetFiles {
			if resetYes || confirm(reader, out, "⚠️  Are you sure you want to delete all redacted frames and videos?") {
				fmt.Fprintln(out, "🗑️  Clearing redacted outputs...")
				removeOutputs(filepath.Join(resolveStorageRoot(), "private", "assets"))
			}
		}

		fmt.Fprintln(out, "✨ System Reset Complete.")
		return nil
	},
}

func init() {
	resetCmd.Flags().BoolVar(&resetDB, "db", false, "Clear the catalog store")
	resetCmd.Flags().BoolVar(&resetFiles, "files", false, "Clear redacted frames and videos")
	resetCmd.Flags().BoolVarP(&resetYes, "yes", "y", false, "Do not ask for confirmation")
	rootCmd.AddCommand(resetCmd)
}

func confirm(r *bufio.Reader, w io.Writer, prompt string) bool {
	fmt.Fprintf(w, "%s [y/N]: ", prompt)
	res, _ := r.ReadString('\n')
	res = strings.TrimSpace(strings.ToLower(res))
	return res == "y" || res == "yes"
}

// removeOutputs deletes every asset's output directory, leaving source frames alone.
func removeOutputs(assetsDir string) {
	outputs, err := filepath.Glob(filepath.Join(assetsDir, "*", "output"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "⚠️  Failed to list outputs: %v\n", err)
		return
	}
	for _, dir := range outputs {
		if err := os.RemoveAll(dir); err != nil {
			fmt.Fprintf(os.Stderr, "⚠️  Failed to remove %s: %v\n", dir, err)
		}
	}
}
