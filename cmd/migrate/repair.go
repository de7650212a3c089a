package main

import (
	"github.com/spf13/cobra"
	billingapp "github.com/vetclinic/backend/internal/application/billing"
	"github.com/vetclinic/backend/internal/infrastructure/logger"
	"github.com/vetclinic/backend/internal/infrastructure/persistence"
	"go.uber.org/zap"
)

func repairCommands(a *app) []*cobra.Command {
	normalize := &cobra.Command{
		Use:   "normalize-refs",
		Short: "Rewrite legacy invoice item references to the canonical column",
		Long:  "Rewrite legacy invoice item references to the canonical column. Works on postgres and sqlite.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withMaintenance(func(svc *billingapp.MaintenanceService) error {
				res, err := svc.NormalizeAllReferences(cmd.Context())
				if err != nil {
					return err
				}
				a.log.Info("Invoice item references normalized",
					zap.Int64("normalized", res.Normalized),
					zap.Int64("remaining", res.Remaining),
				)
				return nil
			})
		},
	}

	backfill := &cobra.Command{
		Use:   "backfill-numbers",
		Short: "Assign numbers to invoices stored without one",
		Long:  "Assign numbers to invoices stored without one. Works on postgres and sqlite.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withMaintenance(func(svc *billingapp.MaintenanceService) error {
				res, err := svc.BackfillNumbers(cmd.Context())
				if err != nil {
					return err
				}
				for _, as := range res.Assigned {
					a.log.Info("Invoice number assigned",
						zap.String("invoice_id", as.InvoiceID.String()),
						zap.String("invoice_number", as.InvoiceNumber),
					)
				}
				a.log.Info("Backfill finished", zap.Int("assigned", len(res.Assigned)), zap.Int("failed", res.Failed))
				return nil
			})
		},
	}

	return []*cobra.Command{normalize, backfill}
}

// withMaintenance builds a maintenance service over the configured database
func (a *app) withMaintenance(fn func(svc *billingapp.MaintenanceService) error) error {
	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}
	db, err := persistence.Open(&cfg.Database,
		logger.NewGormLogger(a.log, logger.GormLevel(cfg.Database.LogLevel), 0))
	if err != nil {
		return err
	}
	defer db.Close()

	svc := billingapp.NewMaintenanceService(
		persistence.NewGormInvoiceRepository(db.DB),
		persistence.NewGormInvoiceItemRepository(db.DB),
		persistence.NewGormCatalogLookup(db.DB),
		persistence.NewGormInvoiceSequence(db.DB),
		billingapp.DefaultSettings(),
	)
	svc.SetLogger(a.log)
	return fn(svc)
}
