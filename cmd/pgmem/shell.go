package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"
	"github.com/spf13/cobra"

	"pgmem/internal/engine"
	"pgmem/internal/pgerr"
	"pgmem/internal/storage/memstore"
)

func newShellCmd(a *app) *cobra.Command {
	var command string
	cmd := &cobra.Command{
		Use:   "shell",
		Short: "Run SQL against a private in-memory database",
		RunE: func(cmd *cobra.Command, args []string) error {
			eng := engine.New(memstore.New(nil),
				engine.WithSetting("server_version", a.cfg.Engine.ServerVersion))
			defer eng.Close()

			out := cmd.OutOrStdout()
			if command != "" {
				if !runQuery(cmd.Context(), eng, out, command) {
					return errors.New("command failed")
				}
				return nil
			}
			return repl(cmd.Context(), eng, out)
		},
	}
	cmd.Flags().StringVarP(&command, "command", "c", "", "run one query string and exit")
	return cmd
}

// runQuery executes query and prints its results; it reports whether every
// statement succeeded.
func runQuery(ctx context.Context, eng *engine.DBEngine, out io.Writer, query string) bool {
	results, err := eng.ExecuteSQL(ctx, query)
	for _, res := range results {
		fmt.Fprintln(out, renderResult(res))
	}
	if err != nil {
		fmt.Fprintln(out, renderError(err))
		return false
	}
	return true
}

// repl reads statements until \q or end of input. A statement runs once a
// line ends with a semicolon.
func repl(ctx context.Context, eng *engine.DBEngine, out io.Writer) error {
	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	histPath := historyPath()
	if f, err := os.Open(histPath); err == nil {
		_, _ = line.ReadHistory(f)
		f.Close()
	}
	defer func() {
		if histPath == "" {
			return
		}
		if f, err := os.Create(histPath); err == nil {
			_, _ = line.WriteHistory(f)
			f.Close()
		}
	}()

	fmt.Fprintln(out, renderBanner())
	var buf strings.Builder
	for {
		prompt := promptFor(eng, buf.Len() > 0)
		input, err := line.Prompt(prompt)
		if errors.Is(err, liner.ErrPromptAborted) {
			buf.Reset()
			continue
		}
		if errors.Is(err, io.EOF) {
			fmt.Fprintln(out)
			return nil
		}
		if err != nil {
			return fmt.Errorf("read input: %w", err)
		}

		trimmed := strings.TrimSpace(input)
		if buf.Len() == 0 && strings.HasPrefix(trimmed, `\`) {
			if quit := metaCommand(out, trimmed); quit {
				return nil
			}
			continue
		}
		if trimmed == "" && buf.Len() == 0 {
			continue
		}

		buf.WriteString(input)
		buf.WriteByte('\n')
		if !strings.HasSuffix(trimmed, ";") {
			continue
		}
		query := buf.String()
		buf.Reset()
		line.AppendHistory(strings.TrimSpace(query))
		runQuery(ctx, eng, out, query)
	}
}

// metaCommand handles backslash commands; it reports whether to quit.
func metaCommand(out io.Writer, cmd string) bool {
	switch cmd {
	case `\q`, `\quit`:
		return true
	case `\?`, `\h`:
		fmt.Fprintln(out, renderHelp())
	default:
		fmt.Fprintln(out, renderError(pgerr.Syntax("invalid command %s, try \\?", cmd)))
	}
	return false
}

// promptFor mirrors psql: "=" when idle, "-" for continuation lines, with
// the transaction state in between.
func promptFor(eng *engine.DBEngine, continued bool) string {
	state := ""
	switch eng.TxStatus() {
	case engine.TxActive:
		state = "*"
	case engine.TxFailed:
		state = "!"
	}
	if continued {
		return "pgmem" + state + "-> "
	}
	return "pgmem" + state + "=> "
}

func historyPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".pgmem_history")
}
