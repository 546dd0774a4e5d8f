package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/dshills/traceview/internal/recorder"
	"github.com/dshills/traceview/internal/trace"
)

func newTraceCmd(a *app) *cobra.Command {
	var (
		lang    string
		outPath string
	)
	cmd := &cobra.Command{
		Use:   "trace <file>",
		Short: "Trace one program and write its trace",
		Long: `Trace runs one program and writes its trace to standard output, or to the
file named by --output. The language is inferred from the file extension
unless --lang is given. A file name of "-" reads the program from standard
input and requires --lang.

The command succeeds whenever a trace was produced, including traces that
end with an error event; the outcome is summarized on standard error.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			language, err := resolveLanguage(path, lang)
			if err != nil {
				return err
			}
			source, err := readSource(cmd.InOrStdin(), path)
			if err != nil {
				return err
			}

			t, err := a.recorder(cmd.Context()).Trace(cmd.Context(), language, source)
			if err != nil {
				return err
			}
			if err := a.write(cmd.OutOrStdout(), outPath, t); err != nil {
				return err
			}
			summarize(cmd.ErrOrStderr(), path, t)
			return nil
		},
	}
	cmd.Flags().StringVar(&lang, "lang", "", "program language (lua|cpp); inferred from the extension by default")
	cmd.Flags().StringVarP(&outPath, "output", "o", "", "write the trace to this file instead of standard output")
	return cmd
}

// resolveLanguage returns lang if set, or the language of path.
func resolveLanguage(path, lang string) (string, error) {
	if lang != "" {
		return recorder.ParseLanguage(lang)
	}
	if path == "-" {
		return "", fmt.Errorf("--lang is required when reading from standard input")
	}
	return recorder.LanguageOf(path)
}

func readSource(stdin io.Reader, path string) (string, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("reading program: %w", err)
	}
	return string(data), nil
}

// write encodes t to outPath, or to stdout when outPath is empty.
func (a *app) write(stdout io.Writer, outPath string, t trace.Trace) error {
	if outPath == "" {
		return trace.Encode(stdout, t, a.format, a.flags.pretty)
	}
	f, err := os.Create(outPath)
	if err != nil {
		return err
	}
	if err := trace.Encode(f, t, a.format, a.flags.pretty); err != nil {
		_ = f.Close()
		return fmt.Errorf("writing %s: %w", outPath, err)
	}
	return f.Close()
}
