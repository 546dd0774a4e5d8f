package commands

import (
	"fmt"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/traceview/internal/trace"
)

func newBatchCmd(a *app) *cobra.Command {
	var (
		jobs   int
		outDir string
		lang   string
	)
	cmd := &cobra.Command{
		Use:   "batch <file>...",
		Short: "Trace several programs in parallel",
		Long: `Batch traces every file given and writes each trace next to its program
as <name>.trace.json (or .trace.msgpack), or into --out-dir. At most --jobs
programs run at the same time.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if jobs < 1 {
				return fmt.Errorf("--jobs must be at least 1, got %d", jobs)
			}
			langs := make([]string, len(args))
			for i, path := range args {
				if path == "-" {
					return fmt.Errorf("batch cannot read programs from standard input")
				}
				l, err := resolveLanguage(path, lang)
				if err != nil {
					return err
				}
				langs[i] = l
			}

			rec := a.recorder(cmd.Context())
			results := make([]trace.Trace, len(args))
			g, ctx := errgroup.WithContext(cmd.Context())
			g.SetLimit(jobs)
			for i, path := range args {
				g.Go(func() error {
					source, err := readSource(nil, path)
					if err != nil {
						return err
					}
					t, err := rec.Trace(ctx, langs[i], source)
					if err != nil {
						return err
					}
					results[i] = t
					return a.write(nil, outputPath(path, outDir, a.format), t)
				})
			}
			if err := g.Wait(); err != nil {
				return err
			}

			for i, path := range args {
				summarize(cmd.ErrOrStderr(), path, results[i])
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&jobs, "jobs", "j", runtime.NumCPU(), "maximum number of programs traced at once")
	cmd.Flags().StringVar(&outDir, "out-dir", "", "directory for trace files (default: next to each program)")
	cmd.Flags().StringVar(&lang, "lang", "", "language of every file; inferred from extensions by default")
	return cmd
}

// outputPath names the trace file for the program at path.
func outputPath(path, outDir string, format trace.Format) string {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	dir := filepath.Dir(path)
	if outDir != "" {
		dir = outDir
	}
	return filepath.Join(dir, base+extension(format))
}
