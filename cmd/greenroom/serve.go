package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/anit-serv/greenroom/internal/availability"
	"github.com/anit-serv/greenroom/internal/chat"
	"github.com/anit-serv/greenroom/internal/chat/discord"
	"github.com/anit-serv/greenroom/internal/config"
	"github.com/anit-serv/greenroom/internal/db"
	"github.com/anit-serv/greenroom/internal/lottery"
	"github.com/anit-serv/greenroom/internal/notify"
	"github.com/anit-serv/greenroom/internal/store"
	"github.com/anit-serv/greenroom/internal/wizard"
)

// cronParser uses standard 5-field cron expressions (minute, hour, dom, month, dow).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

func newServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the booking wizard daemon",
		Long: `Connects the wizard to the configured chat transport and serves until
interrupted. With lottery.enabled, the rank and confirmation passes run
on their cron schedules inside this process.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "greenroom.yaml", "path to Greenroom config file")
	return cmd
}

func runServe(cmd *cobra.Command, configPath string) error {
	out := cmd.OutOrStdout()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	gormDB, err := db.Connect(cfg.Database)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Connected to %s at %s:%d\n", cfg.Database.Name, cfg.Database.Host, cfg.Database.Port)

	cache := availability.NewConfigCache(gormDB, time.Duration(cfg.Booking.ConfigTTLMinutes)*time.Minute)
	policy, err := availability.NewPolicy(cache, cfg.Booking.CutoffHour,
		cfg.Booking.BlackoutStartHour, cfg.Booking.BlackoutEndHour)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Lottery.Enabled {
		notifier := notify.New(cfg.Notify.SlackWebhookURL)
		go runCronLoop(ctx, cfg.Lottery.RankCron, "rank", func(now time.Time) error {
			res, err := lottery.Rank(gormDB, now)
			if err != nil {
				notifier.PassFailed(ctx, "rank", err)
				return err
			}
			notifier.RankCompleted(ctx, res, now)
			return nil
		})
		go runCronLoop(ctx, cfg.Lottery.ConfirmCron, "confirm", func(now time.Time) error {
			res, err := lottery.Confirm(gormDB, now)
			if err != nil {
				notifier.PassFailed(ctx, "confirm", err)
				return err
			}
			notifier.ConfirmCompleted(ctx, res, now)
			return nil
		})
		fmt.Fprintf(out, "Lottery scheduled: rank %q, confirm %q\n", cfg.Lottery.RankCron, cfg.Lottery.ConfirmCron)
	}

	switch cfg.Chat.Platform {
	case "webhook":
		return serveWebhook(ctx, cfg, gormDB, policy, out)
	case "discord":
		return serveDiscord(ctx, cfg, gormDB, policy, out)
	default:
		return fmt.Errorf("chat platform %q is not supported", cfg.Chat.Platform)
	}
}

func serveWebhook(ctx context.Context, cfg *config.Config, gormDB *gorm.DB,
	policy *availability.Policy, out io.Writer) error {
	if cfg.Chat.ReplyURL == "" {
		return fmt.Errorf("chat.reply_url is required for the webhook platform")
	}
	replier, err := chat.NewWebhookReplier(cfg.Chat.ReplyURL, cfg.Chat.Token)
	if err != nil {
		return err
	}
	wiz, err := wizard.New(wizard.Opts{
		Bookings: store.NewBookings(gormDB),
		Sessions: store.NewSessions(gormDB),
		Policy:   policy,
		Replier:  replier,
		Out:      out,
	})
	if err != nil {
		return err
	}
	return chat.StartServer(ctx, chat.ServerOpts{
		Handler: wiz,
		Port:    cfg.Server.Port,
		Path:    cfg.Server.WebhookPath,
		Out:     out,
	})
}

func serveDiscord(ctx context.Context, cfg *config.Config, gormDB *gorm.DB,
	policy *availability.Policy, out io.Writer) error {
	adapter, err := discord.New(discord.AdapterOpts{
		BotToken:  cfg.Chat.Discord.BotToken,
		ChannelID: cfg.Chat.Discord.ChannelID,
	})
	if err != nil {
		return err
	}
	wiz, err := wizard.New(wizard.Opts{
		Bookings: store.NewBookings(gormDB),
		Sessions: store.NewSessions(gormDB),
		Policy:   policy,
		Replier:  adapter,
		Out:      out,
	})
	if err != nil {
		return err
	}
	if err := adapter.Start(ctx, wiz); err != nil {
		return err
	}
	fmt.Fprintf(out, "Discord gateway connected\n")
	<-ctx.Done()
	return adapter.Close()
}

// runCronLoop fires fn on the cron schedule until ctx is cancelled. A
// failed run is logged and the loop keeps going.
func runCronLoop(ctx context.Context, expr, name string, fn func(now time.Time) error) {
	sched, err := cronParser.Parse(expr)
	if err != nil {
		log.Printf("serve: bad cron expression %q for %s pass: %v", expr, name, err)
		return
	}
	for {
		next := sched.Next(time.Now())
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Until(next)):
		}
		now := time.Now()
		log.Printf("serve: running lottery %s pass", name)
		if err := fn(now); err != nil {
			log.Printf("serve: lottery %s pass: %v", name, err)
		}
	}
}
