// Command audioscribe extracts text and formatting ranges from Word
// documents, either one file at a time or as an authenticated HTTP service.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hazyhaar/audioscribe/kit"
)

var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "audioscribe",
	Short: "Extract text and formatting from Word documents",
	Long: `audioscribe reads .docx files and produces their plain text plus the
formatting ranges (titles, sections, quotes, emphasis) that drive narration.

Run the service:   audioscribe serve --config audioscribe.yaml
Inspect a file:    audioscribe extract book.docx --pretty`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		cmd.SetContext(kit.WithTransport(cmd.Context(), kit.TransportCLI))
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
