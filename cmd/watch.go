// File: cmd/watch.go
package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/hpcloud/tail"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/helix-cli/api/schemas"
	"github.com/xkilldash9x/helix-cli/internal/observability"
)

// newWatchCmd creates the 'watch' command, which follows the append-only
// archive log and prints entries as circuits record them.
func newWatchCmd() *cobra.Command {
	var fromStart bool

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follows the archive log and prints new entries live.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := getConfig()
			if err != nil {
				return err
			}
			if cfg.Archive.Backend != "file" {
				return fmt.Errorf("watch requires the file archive backend, got %q", cfg.Archive.Backend)
			}

			tailCfg := tail.Config{
				Follow:    true,
				ReOpen:    true,
				MustExist: false,
				Logger:    tail.DiscardingLogger,
			}
			if !fromStart {
				tailCfg.Location = &tail.SeekInfo{Whence: 2} // io.SeekEnd
			}
			t, err := tail.TailFile(cfg.Archive.Path, tailCfg)
			if err != nil {
				return fmt.Errorf("failed to tail archive log: %w", err)
			}
			defer t.Cleanup()

			out := cmd.OutOrStdout()
			logger := observability.GetLogger()
			for {
				select {
				case <-ctx.Done():
					_ = t.Stop()
					return nil
				case line, ok := <-t.Lines:
					if !ok {
						return nil
					}
					if line.Err != nil {
						logger.Warn("Tail error; continuing.", zap.Error(line.Err))
						continue
					}
					var entry schemas.EvolutionEntry
					if err := json.Unmarshal([]byte(line.Text), &entry); err != nil {
						// Partial line during a concurrent append; skip it.
						continue
					}
					fmt.Fprintln(out, formatEntry(&entry))
				}
			}
		},
	}

	cmd.Flags().BoolVar(&fromStart, "from-start", false, "Replay the whole log before following.")
	return cmd
}
