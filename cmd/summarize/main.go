package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

const (
	exitGroupFailed = 1
	exitFatal       = 2
)

// exitError переносит код завершения из RunE в main.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func fatal(format string, args ...any) error {
	return &exitError{code: exitFatal, err: fmt.Errorf(format, args...)}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	root := newRootCmd()
	err := root.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		var ee *exitError
		if errors.As(err, &ee) {
			os.Exit(ee.code)
		}
		os.Exit(exitFatal)
	}
}

func newRootCmd() *cobra.Command {
	var f flags
	cmd := &cobra.Command{
		Use:   "summarize [files...]",
		Short: "Суммаризует журналы групп и публикует сводки",
		Long: "Без аргументов берёт последний сегмент каждой настроенной группы.\n" +
			"Явно переданные сегменты одной группы суммаризуются вместе, файлы *-summary.txt публикуются повторно.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f.changed = func(name string) bool { return cmd.Flags().Changed(name) }
			return run(cmd.Context(), cmd.OutOrStdout(), f, args)
		},
	}
	cmd.Flags().BoolVar(&f.post, "slack", false, "публиковать сводки в канал уведомлений")
	cmd.Flags().StringVar(&f.channel, "channel", "", "канал для публикации (по умолчанию из окружения)")
	cmd.Flags().StringVar(&f.model, "model", "", "модель суммаризации")
	cmd.Flags().StringVar(&f.logDir, "log-dir", "", "каталог журналов")
	cmd.Flags().StringVar(&f.summaryDir, "summary-dir", "", "каталог сводок")
	cmd.Flags().BoolVar(&f.insecure, "insecure", false, "не проверять TLS-сертификаты внешних API")
	cmd.Flags().StringVar(&f.caBundle, "ca-bundle", "", "PEM-файл с дополнительными корневыми сертификатами")
	cmd.Flags().IntVar(&f.concurrency, "concurrency", 0, "число групп, обрабатываемых одновременно")
	return cmd
}
