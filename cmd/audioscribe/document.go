package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/hazyhaar/audioscribe/docpipe"
	"github.com/hazyhaar/audioscribe/render"
)

var (
	prettyJSON   bool
	renderFormat string
	verbose      bool
)

var extractCmd = &cobra.Command{
	Use:   "extract [file.docx]",
	Short: "Print the text and formatting ranges of a document as JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  runExtract,
}

var validateCmd = &cobra.Command{
	Use:   "validate [file.docx]",
	Short: "Check that a document can be read",
	Long:  `Prints the pre-flight summary. Exits non-zero when the document is not readable.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runValidate,
}

var estimateCmd = &cobra.Command{
	Use:   "estimate [file.docx]",
	Short: "Estimate formatting density and processing time",
	Args:  cobra.ExactArgs(1),
	RunE:  runEstimate,
}

var renderCmd = &cobra.Command{
	Use:   "render [file.docx]",
	Short: "Render a document as sanitized HTML or Markdown",
	Args:  cobra.ExactArgs(1),
	RunE:  runRender,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log extraction notes to stderr")
	for _, c := range []*cobra.Command{extractCmd, validateCmd, estimateCmd} {
		c.Flags().BoolVar(&prettyJSON, "pretty", false, "indent JSON output")
	}
	renderCmd.Flags().StringVarP(&renderFormat, "format", "f", "html", "output format: html or markdown")

	rootCmd.AddCommand(extractCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(estimateCmd)
	rootCmd.AddCommand(renderCmd)
}

func pipeline(cmd *cobra.Command) *docpipe.Pipeline {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
	return docpipe.New(docpipe.Config{Logger: logger})
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	if prettyJSON {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(v)
}

func runExtract(cmd *cobra.Command, args []string) error {
	res, err := pipeline(cmd).Extract(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), res)
}

func runValidate(cmd *cobra.Command, args []string) error {
	v, err := pipeline(cmd).Validate(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if err := printJSON(cmd.OutOrStdout(), v); err != nil {
		return err
	}
	if !v.Valid {
		return fmt.Errorf("%s is not a readable document", args[0])
	}
	return nil
}

func runEstimate(cmd *cobra.Command, args []string) error {
	e, err := pipeline(cmd).Estimate(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), e)
}

func runRender(cmd *cobra.Command, args []string) error {
	format, err := render.ParseFormat(renderFormat)
	if err != nil {
		return err
	}
	res, err := pipeline(cmd).Extract(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	out, err := render.New().Render(res, format)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), out)
	return err
}
