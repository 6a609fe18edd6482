package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/debemdeboas/scratchpad/internal/model"
	"github.com/debemdeboas/scratchpad/internal/scratchpad"
)

var (
	promptStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("63")).Bold(true)
	statusStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("212"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	conflictStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)
)

const editHelp = "Each line is appended to the scratchpad. Commands: :show :save :clear :keep :take. Ctrl+D to finish."

func renderStatus(s scratchpad.Snapshot) string {
	switch {
	case s.ErrorMessage != "":
		return errorStyle.Render("! " + s.ErrorMessage)
	case s.HasConflict:
		return conflictStyle.Render("~ changed elsewhere, :keep to overwrite or :take to discard local edits")
	}

	switch s.State {
	case scratchpad.StateLoading:
		return statusStyle.Render("… loading")
	case scratchpad.StateDirty:
		return statusStyle.Render("● unsaved")
	case scratchpad.StateSaving:
		return statusStyle.Render("↑ saving")
	case scratchpad.StateClean:
		return statusStyle.Render(fmt.Sprintf("✓ saved (version %d)", s.Version))
	default:
		return ""
	}
}

func newEditCmd(a *app) *cobra.Command {
	var noCache bool

	cmd := &cobra.Command{
		Use:   "edit",
		Short: "Append lines to the document, saving as you type",
		Long: `Load the document and append every line read from stdin to it. Changes are saved
after a short pause and once more on exit. Remote changes are applied while there are
no unsaved local edits.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			s, err := a.openSession(ctx)
			if err != nil {
				return err
			}
			defer s.close()

			opts := []scratchpad.Option{
				scratchpad.WithDebounce(a.cfg.Scratchpad.Debounce),
				scratchpad.WithHeadings(a.cfg.Scratchpad.Headings),
				scratchpad.WithLogger(a.logger),
			}
			if !noCache {
				opts = append(opts, scratchpad.WithCache(a.draftCache(), s.cacheKey, a.cfg.Scratchpad.CacheTTL))
			}
			ctrl := scratchpad.New(s.provider, opts...)

			out := cmd.OutOrStdout()
			errOut := cmd.ErrOrStderr()

			var statusMu sync.Mutex
			var lastStatus string
			unsubscribe := ctrl.Subscribe(func(snap scratchpad.Snapshot) {
				statusMu.Lock()
				defer statusMu.Unlock()
				if line := renderStatus(snap); line != "" && line != lastStatus {
					lastStatus = line
					fmt.Fprintln(errOut, line)
				}
			})
			defer unsubscribe()

			text, err := ctrl.Load(ctx)
			if err != nil {
				return err
			}
			if text != "" {
				fmt.Fprintln(out, text)
			}
			fmt.Fprintln(errOut, promptStyle.Render(editHelp))

			followCtx, cancelFollow := context.WithCancel(ctx)
			followDone := make(chan struct{})
			go func() {
				defer close(followDone)
				err := s.follow(followCtx, func(v model.Version) {
					if err := ctrl.OnExternalVersionChanged(followCtx, v); err != nil && !errors.Is(err, scratchpad.ErrClosed) {
						a.logger.Warn().Err(err).Int64("version", int64(v)).Msg("Error applying remote change")
					}
				})
				if err != nil {
					a.logger.Error().Err(err).Msg("Stopped following remote changes")
				}
			}()

			lines := readLines(ctx, a.stdin)
		loop:
			for {
				select {
				case <-ctx.Done():
					break loop
				case line, ok := <-lines:
					if !ok {
						break loop
					}
					if err := handleLine(ctx, ctrl, line, out); err != nil {
						a.logger.Warn().Err(err).Str("line", line).Msg("Command failed")
					}
				}
			}

			cancelFollow()
			<-followDone

			closeCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Client.Timeout)
			defer cancel()
			if err := ctrl.Close(closeCtx); err != nil {
				return fmt.Errorf("error saving on exit: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "do not read or write the local cache")
	return cmd
}

// readLines stops at EOF or when ctx is done.
func readLines(ctx context.Context, r io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()
	return lines
}

func handleLine(ctx context.Context, ctrl *scratchpad.Controller, line string, out io.Writer) error {
	switch strings.TrimSpace(line) {
	case ":show":
		fmt.Fprintln(out, ctrl.Text())
		return nil
	case ":save":
		return ctrl.Flush(ctx, true)
	case ":clear":
		ctrl.OnUserEdit("")
		return nil
	case ":keep":
		return ctrl.ResolveConflict(ctx, scratchpad.KeepLocal)
	case ":take":
		if err := ctrl.ResolveConflict(ctx, scratchpad.TakeRemote); err != nil {
			return err
		}
		fmt.Fprintln(out, ctrl.Text())
		return nil
	}

	draft := ctrl.Text()
	if draft != "" {
		draft += "\n"
	}
	ctrl.OnUserEdit(draft + line)
	return nil
}
