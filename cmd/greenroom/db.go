package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/anit-serv/greenroom/internal/availability"
	"github.com/anit-serv/greenroom/internal/config"
	"github.com/anit-serv/greenroom/internal/db"
)

func newDBCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Database management commands",
	}

	cmd.AddCommand(newDBInitCmd())
	return cmd
}

func newDBInitCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize the Greenroom database",
		Long:  "Creates the database, migrates all tables, and seeds the default availability configuration.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDBInit(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "greenroom.yaml", "path to Greenroom config file")
	return cmd
}

func runDBInit(cmd *cobra.Command, configPath string) error {
	out := cmd.OutOrStdout()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	fmt.Fprintf(out, "Loaded config from %s\n", configPath)

	adminDB, err := db.ConnectAdmin(cfg.Database)
	if err != nil {
		return fmt.Errorf("connect to MySQL at %s:%d: %w", cfg.Database.Host, cfg.Database.Port, err)
	}
	fmt.Fprintf(out, "Connected to MySQL at %s:%d\n", cfg.Database.Host, cfg.Database.Port)

	if err := db.CreateDatabase(adminDB, cfg.Database.Name); err != nil {
		return err
	}
	fmt.Fprintf(out, "Database %s ready\n", cfg.Database.Name)

	gormDB, err := db.Connect(cfg.Database)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", cfg.Database.Name, err)
	}

	if err := db.AutoMigrate(gormDB); err != nil {
		return err
	}
	fmt.Fprintf(out, "Migrated %d tables\n", len(db.AllModels()))

	// First read through the cache seeds the default weekdays and slots.
	cache := availability.NewConfigCache(gormDB, 0)
	settings, err := cache.Get(time.Now())
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Availability config ready: %d weekdays, %d time slots\n",
		len(settings.Weekdays), len(settings.TimeSlots))

	fmt.Fprintln(out, "\nGreenroom database initialized successfully.")
	return nil
}
