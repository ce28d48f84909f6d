package main

import (
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func newStageCmd() *cobra.Command {
	var (
		tenantFlag string
		createdBy  string
	)

	cmd := &cobra.Command{
		Use:   "stage",
		Short: "Stage pending canonical deltas for one tenant, or all tenants",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			rt, err := newRuntime(ctx)
			if err != nil {
				return err
			}
			defer rt.Close()
			ctx = rt.scoped(ctx)

			if tenantFlag == "" {
				batches, err := rt.staging.StageAll(ctx, createdBy)
				if err != nil {
					return err
				}
				for _, b := range batches {
					rt.logger.Infof("staged batch %s for tenant %s", b.ID, b.TenantID)
				}
				return nil
			}

			tenantID, err := uuid.Parse(tenantFlag)
			if err != nil {
				return errors.Wrap(err, "invalid --tenant")
			}
			b, err := rt.staging.Stage(ctx, tenantID, createdBy)
			if err != nil {
				return err
			}
			rt.logger.Infof("staged batch %s for tenant %s", b.ID, b.TenantID)
			return nil
		},
	}

	cmd.Flags().StringVar(&tenantFlag, "tenant", "", "tenant id (defaults to all active tenants)")
	cmd.Flags().StringVar(&createdBy, "created-by", "scheduler", "audit identity recorded on the batch")
	return cmd
}

func newApplyCmd() *cobra.Command {
	var (
		tenantFlag string
		batchFlag  string
	)

	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Apply an approved batch to a tenant's production mirror",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()

			tenantID, batchID, err := parseTenantBatch(tenantFlag, batchFlag)
			if err != nil {
				return err
			}

			result, err := rt.applier.Apply(rt.scoped(cmd.Context()), tenantID, batchID)
			if err != nil {
				return err
			}
			rt.logger.Infof("batch %s applied: %d applied, %d failed", result.BatchID, result.AppliedCount, result.FailedCount)
			return nil
		},
	}

	cmd.Flags().StringVar(&tenantFlag, "tenant", "", "tenant id (required)")
	cmd.Flags().StringVar(&batchFlag, "batch", "", "batch id (required)")
	_ = cmd.MarkFlagRequired("tenant")
	_ = cmd.MarkFlagRequired("batch")
	return cmd
}

func newRollbackCmd() *cobra.Command {
	var (
		tenantFlag string
		batchFlag  string
	)

	cmd := &cobra.Command{
		Use:   "rollback",
		Short: "Restore a tenant mirror from the backups of an applied batch",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()

			tenantID, batchID, err := parseTenantBatch(tenantFlag, batchFlag)
			if err != nil {
				return err
			}

			result, err := rt.rollbacks.Rollback(rt.scoped(cmd.Context()), tenantID, batchID)
			if err != nil {
				return err
			}
			rt.logger.Infof("batch %s rolled back: %d units restored", result.BatchID, result.RestoredRows)
			return nil
		},
	}

	cmd.Flags().StringVar(&tenantFlag, "tenant", "", "tenant id (required)")
	cmd.Flags().StringVar(&batchFlag, "batch", "", "batch id (required)")
	_ = cmd.MarkFlagRequired("tenant")
	_ = cmd.MarkFlagRequired("batch")
	return cmd
}

func parseTenantBatch(tenantFlag, batchFlag string) (uuid.UUID, uuid.UUID, error) {
	tenantID, err := uuid.Parse(tenantFlag)
	if err != nil {
		return uuid.Nil, uuid.Nil, errors.Wrap(err, "invalid --tenant")
	}
	batchID, err := uuid.Parse(batchFlag)
	if err != nil {
		return uuid.Nil, uuid.Nil, errors.Wrap(err, "invalid --batch")
	}
	return tenantID, batchID, nil
}
