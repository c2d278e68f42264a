package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/anit-serv/greenroom/internal/config"
	"github.com/anit-serv/greenroom/internal/db"
	"github.com/anit-serv/greenroom/internal/lottery"
	"github.com/anit-serv/greenroom/internal/notify"
)

func newLotteryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lottery",
		Short: "Run a lottery pass by hand",
		Long: `Runs one lottery pass outside the serve daemon's schedule. Both
passes are idempotent; re-running one is always safe.`,
	}

	cmd.AddCommand(newLotteryRankCmd())
	cmd.AddCommand(newLotteryConfirmCmd())
	return cmd
}

func newLotteryRankCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "rank",
		Short: "Draw a random order for every slot with pending bookings",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, gormDB, err := openFromConfig(configPath)
			if err != nil {
				return err
			}
			now := time.Now()
			res, err := lottery.Rank(gormDB, now)
			if err != nil {
				return err
			}
			notify.New(cfg.Notify.SlackWebhookURL).RankCompleted(cmd.Context(), res, now)
			fmt.Fprintf(cmd.OutOrStdout(), "Ranked %d bookings across %d slots\n", res.Bookings, res.Slots)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "greenroom.yaml", "path to Greenroom config file")
	return cmd
}

func newLotteryConfirmCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "confirm",
		Short: "Confirm the last draw against the live bookings",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, gormDB, err := openFromConfig(configPath)
			if err != nil {
				return err
			}
			now := time.Now()
			res, err := lottery.Confirm(gormDB, now)
			if err != nil {
				return err
			}
			notify.New(cfg.Notify.SlackWebhookURL).ConfirmCompleted(cmd.Context(), res, now)
			fmt.Fprintf(cmd.OutOrStdout(), "Confirmed %d, skipped %d\n", res.Confirmed, res.Skipped)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "greenroom.yaml", "path to Greenroom config file")
	return cmd
}

func openFromConfig(configPath string) (*config.Config, *gorm.DB, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	gormDB, err := db.Connect(cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	return cfg, gormDB, nil
}
