package cli

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func Main() {
	_ = godotenv.Load() // best-effort: load .env if present

	root := newRootCmd()
	root.SetOut(os.Stdout)
	root.SetErr(os.Stderr)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "aishorts",
		Short:         "Build lip-synced short videos and subtitles from a template clip and a voice track",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().String("out", "", "Output directory (default $OUT_DIR or out)")

	// Hidden tuning flag (internal)
	root.PersistentFlags().Duration("timeout", defaultTimeout, "Overall command timeout")
	_ = root.PersistentFlags().MarkHidden("timeout")

	root.AddCommand(
		newMixCmd(),
		newCutCmd(),
		newExtractCmd(),
		newUploadCmd(),
		newLipSyncCmd(),
		newShortsCmd(),
		newSubtitlesCmd(),
		newScriptCmd(),
		newVoiceCmd(),
		newServeCmd(),
	)
	return root
}
