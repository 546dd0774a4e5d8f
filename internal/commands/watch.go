package commands

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/dshills/traceview/internal/watch"
)

func newWatchCmd(a *app) *cobra.Command {
	var (
		lang  string
		delay time.Duration
	)
	cmd := &cobra.Command{
		Use:   "watch <file>",
		Short: "Trace a program again every time it is saved",
		Long: `Watch traces the program once, then again after every change to the file,
writing each trace to standard output. It runs until interrupted.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			language, err := resolveLanguage(path, lang)
			if err != nil {
				return err
			}

			w, err := watch.New(watch.WithDelay(delay), watch.WithLogger(a.log.WithName("watch")))
			if err != nil {
				return err
			}
			defer func() { _ = w.Close() }()
			if err := w.Add(path); err != nil {
				return err
			}

			rec := a.recorder(cmd.Context())
			run := func(ctx context.Context, changed string) {
				source, err := readSource(nil, changed)
				if err != nil {
					a.log.Error(err, "cannot read program", "path", changed)
					return
				}
				t, err := rec.Trace(ctx, language, source)
				if err != nil {
					a.log.Error(err, "trace failed", "path", changed)
					return
				}
				if err := a.write(cmd.OutOrStdout(), "", t); err != nil {
					a.log.Error(err, "cannot write trace")
					return
				}
				summarize(cmd.ErrOrStderr(), path, t)
			}

			run(cmd.Context(), path)
			err = w.Run(cmd.Context(), run)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
	cmd.Flags().StringVar(&lang, "lang", "", "program language (lua|cpp); inferred from the extension by default")
	cmd.Flags().DurationVar(&delay, "delay", watch.DefaultDelay, "quiet period before a change is traced")
	return cmd
}
