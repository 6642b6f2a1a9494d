/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jjudge-oj/accounts/internal/db"
	"github.com/jjudge-oj/accounts/internal/mq"
	"github.com/jjudge-oj/accounts/internal/services"
	"github.com/jjudge-oj/accounts/internal/storage"
	"github.com/jjudge-oj/accounts/internal/store"
	"github.com/jjudge-oj/accounts/types"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
)

var attemptsCmd = &cobra.Command{
	Use:   "attempts",
	Short: "Work with the login attempt audit trail",
}

var (
	exportSince    time.Duration
	exportSchedule string
)

var attemptsExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export login attempts to object storage as JSON Lines",
	Long: `Exports login attempts recorded in the last --since window to the
configured object storage backend. With --schedule the export runs on a cron
schedule until interrupted, each run picking up where the previous one ended.

	accounts attempts export --since 24h
	accounts attempts export --schedule "@hourly"
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := loadConfig()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		objects, err := storage.NewFromConfig(ctx, cfg, log)
		if err != nil {
			return err
		}
		if objects == nil {
			return errors.New("STORAGE_BACKEND must be set to export login attempts")
		}

		dbConn, err := db.Open(ctx, cfg)
		if err != nil {
			return err
		}
		defer dbConn.Close()

		exporter := services.NewAttemptExporter(
			store.NewLoginAttemptRepository(dbConn),
			objects,
			cfg.Storage.AuditPrefix,
			log,
		)
		since := types.AttemptCursor{CreatedAt: time.Now().Add(-exportSince)}

		if exportSchedule == "" {
			_, err := exporter.Export(ctx, since)
			return err
		}

		var (
			mu     sync.Mutex
			cursor = since
		)
		runner := cron.New()
		_, err = runner.AddFunc(exportSchedule, func() {
			mu.Lock()
			defer mu.Unlock()
			result, err := exporter.Export(ctx, cursor)
			if err != nil {
				log.Error().Err(err).Msg("scheduled export failed")
				return
			}
			cursor = result.Cursor
		})
		if err != nil {
			return err
		}

		log.Info().Str("schedule", exportSchedule).Msg("export scheduler started")
		runner.Start()
		<-ctx.Done()
		<-runner.Stop().Done()
		return nil
	},
}

var attemptsWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Log login attempt events from the message queue",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := loadConfig()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		queue, err := mq.NewFromConfig(ctx, cfg, log)
		if err != nil {
			return err
		}
		if queue == nil {
			return errors.New("MQ_BACKEND must be set to watch login attempts")
		}
		defer queue.Close()

		err = queue.Subscribe(ctx, cfg.MQ.LoginAttemptsChannel, func(_ context.Context, msg mq.Message) error {
			var attempt types.LoginAttempt
			if err := json.Unmarshal(msg.Data, &attempt); err != nil {
				// Malformed events are dropped rather than redelivered forever.
				log.Warn().Err(err).Str("message_id", msg.ID).Msg("undecodable login attempt event")
				return nil
			}
			event := log.Info()
			if !attempt.Success {
				event = log.Warn()
			}
			event.
				Str("attempt_id", attempt.ID).
				Str("email", attempt.Email).
				Bool("success", attempt.Success).
				Time("at", attempt.CreatedAt).
				Msg("login attempt")
			return nil
		})
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(attemptsCmd)
	attemptsCmd.AddCommand(attemptsExportCmd, attemptsWatchCmd)

	attemptsExportCmd.Flags().DurationVar(&exportSince, "since", 24*time.Hour, "export attempts recorded within this window")
	attemptsExportCmd.Flags().StringVar(&exportSchedule, "schedule", "", `cron spec such as "@hourly" or "0 * * * *"`)
}
