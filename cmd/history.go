package cmd

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"

	"github.com/zjrosen/xh/internal/config"
	"github.com/zjrosen/xh/internal/history"
)

var (
	historyLimit   int
	historyFailed  bool
	historyCommand string
	historyClear   bool
)

// argvColumnWidth bounds the command column in cells.
const argvColumnWidth = 60

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded runs",
	Long: `List runs recorded in the history database, newest first.

Examples:
  xh history
  xh history --failed --limit 5
  xh history --command git
  xh history --clear`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		path := cfg.History.Path
		if path == "" {
			path = config.DefaultHistoryPath()
		}
		db, err := history.NewDB(path)
		if err != nil {
			return err
		}
		defer func() { _ = db.Close() }()

		if historyClear {
			n, err := db.Clear(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d runs\n", n)
			return nil
		}

		runs, err := db.List(cmd.Context(), history.ListOptions{
			Limit:      historyLimit,
			FailedOnly: historyFailed,
			Command:    historyCommand,
		})
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "no runs recorded")
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout(), renderRuns(runs))
		return nil
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "maximum number of runs to show (0 = all)")
	historyCmd.Flags().BoolVar(&historyFailed, "failed", false, "only show runs with a non-zero exit code")
	historyCmd.Flags().StringVar(&historyCommand, "command", "", "only show runs of this program")
	historyCmd.Flags().BoolVar(&historyClear, "clear", false, "delete all recorded runs")
	rootCmd.AddCommand(historyCmd)
}

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle    = lipgloss.NewStyle().Padding(0, 1)
	failedStyle  = cellStyle.Foreground(lipgloss.Color("1"))
	successStyle = cellStyle.Foreground(lipgloss.Color("2"))
)

// colExit is the index of the EXIT column.
const colExit = 5

func renderRuns(runs []history.Run) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("ID", "STARTED", "COMMAND", "MODE", "PID", "EXIT", "DURATION").
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case col == colExit && row >= 0 && row < len(runs):
				if runs[row].Success() {
					return successStyle
				}
				return failedStyle
			default:
				return cellStyle
			}
		})

	for _, r := range runs {
		t.Row(
			shortID(r.ID),
			r.StartedAt.Local().Format("2006-01-02 15:04:05"),
			formatArgv(r.Argv, argvColumnWidth),
			r.Mode,
			strconv.Itoa(r.PID),
			formatExit(r),
			r.Duration.Round(time.Millisecond).String(),
		)
	}
	return t.Render()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// formatArgv joins argv for display, quoting tokens that contain spaces,
// and truncates the result to width cells.
func formatArgv(argv []string, width int) string {
	parts := make([]string, len(argv))
	for i, a := range argv {
		if a == "" || strings.ContainsAny(a, " \t\n'\"") {
			a = strconv.Quote(a)
		}
		parts[i] = a
	}
	return runewidth.Truncate(strings.Join(parts, " "), width, "…")
}

func formatExit(r history.Run) string {
	if r.Status == "killed" {
		return fmt.Sprintf("%d (killed)", r.ExitCode)
	}
	return strconv.Itoa(r.ExitCode)
}
