package main

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"governance-api/config"
	"governance-api/storage"
)

func initStorageCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init-storage",
		Short: "Create the tasks table and the audit queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			timeout, _ := cmd.Flags().GetDuration("timeout")
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.StorageConnectionString == "" {
				return fmt.Errorf("missing STORAGE_CONNECTION_STRING")
			}

			log.WithFields(log.Fields{
				"table": cfg.TasksTable,
				"queue": cfg.AuditQueue,
			}).Info("storage init starting")
			s, err := storage.New(cfg.StorageConnectionString, cfg.TasksTable, cfg.AuditQueue)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			if err := s.EnsureResources(ctx); err != nil {
				return fmt.Errorf("ensure resources: %w", err)
			}
			log.Info("storage init complete")
			return nil
		},
	}
	cmd.Flags().Duration("timeout", 30*time.Second, "Time allowed for provisioning")
	return cmd
}
