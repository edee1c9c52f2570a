package main

import (
	"fmt"

	"github.com/danielpatrickdp/continuity-arbiter/internal/session"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// #region reconcile

func newReconcileCmd(root *rootOptions) *cobra.Command {
	var dbPath, sessionID string
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Migrate a session's identity state to the current schema version",
		Long: `reconcile clears a schema mismatch: it migrates the active state to the
current schema version, re-fingerprints the anchors and commits the result as
a new version. Physics updates stay frozen until this runs.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := root.load()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck
			store, err := root.openStore(dbPath, logger)
			if err != nil {
				return err
			}
			defer store.Close()

			svc := session.NewService(store, cfg.SessionConfig(), logger)
			changed, err := svc.Reconcile(cmd.Context(), sessionID)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if !changed {
				fmt.Fprintf(out, "session %s already at the current schema\n", sessionID)
				return nil
			}
			loaded, err := svc.GetState(cmd.Context(), sessionID)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "session %s reconciled: version %s schema %d\n",
				sessionID, shortID(loaded.VersionID), loaded.State.SchemaVersion)
			return nil
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite database path (defaults to store.path)")
	cmd.Flags().StringVar(&sessionID, "session", "", "session to reconcile")
	cmd.MarkFlagRequired("session") //nolint:errcheck
	return cmd
}

// #endregion reconcile

// #region rollback

func newRollbackCmd(root *rootOptions) *cobra.Command {
	var dbPath, sessionID, versionID string
	cmd := &cobra.Command{
		Use:   "rollback",
		Short: "Point a session back at one of its earlier versions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, logger, err := root.load()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck
			store, err := root.openStore(dbPath, logger)
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.Rollback(cmd.Context(), sessionID, versionID); err != nil {
				return err
			}
			logger.Debug("rollback applied", zap.String("session_id", sessionID), zap.String("version_id", versionID))
			fmt.Fprintf(cmd.OutOrStdout(), "session %s now at version %s\n", sessionID, shortID(versionID))
			return nil
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite database path (defaults to store.path)")
	cmd.Flags().StringVar(&sessionID, "session", "", "session to roll back")
	cmd.Flags().StringVar(&versionID, "version", "", "full version id to make active")
	cmd.MarkFlagRequired("session") //nolint:errcheck
	cmd.MarkFlagRequired("version") //nolint:errcheck
	return cmd
}

// #endregion rollback
