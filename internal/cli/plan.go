//-------------------------------------------------------------------------
//
// barstore - incremental OHLCV warehouse
//
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/barstore/barstore/internal/catalog"
	"github.com/barstore/barstore/internal/db"
	"github.com/barstore/barstore/internal/planner"
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Show what date ranges still need fetching",
	Long: `Compare the catalog against the configured asset registry and print,
per series, whether a full history fetch, an incremental top-up, or
nothing is needed. The upper bound is always the end of yesterday; the
still-open day is never planned.`,
	RunE: runPlan,
}

func runPlan(cmd *cobra.Command, args []string) error {
	if err := cfg.ValidateDatasets(); err != nil {
		return err
	}

	defaultStart, err := cfg.DefaultStart()
	if err != nil {
		return err
	}
	targets, err := cfg.Targets()
	if err != nil {
		return err
	}

	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg.Connection)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()

	manager := catalog.NewManager(pool)
	if err := manager.EnsureSchema(ctx); err != nil {
		return err
	}

	plans, err := planner.New(manager, defaultStart).PlanUpdates(ctx, targets)
	if err != nil {
		return err
	}

	var pending int
	for _, p := range plans {
		switch p.Kind {
		case planner.None:
			cmd.Printf("%-40s %s\n", p.TableName, p.Kind)
		default:
			pending++
			cmd.Printf("%-40s %-12s %s .. %s (%d days): %s\n",
				p.TableName, p.Kind,
				p.From.Format("2006-01-02"), p.To.Format("2006-01-02"),
				p.GapDays, p.Reason)
		}
	}
	cmd.Printf("\n%d of %d series need fetching\n", pending, len(plans))
	return nil
}
