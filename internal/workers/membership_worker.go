package workers

import (
	"fmt"

	"github.com/robfig/cron/v3"
	"gorm.io/gorm"

	"nimbus_backend/internal/logger"
	"nimbus_backend/internal/services"
)

// MembershipWorker periodically flips active memberships whose end date has
// passed to expired. Status queries do not depend on it because expiry is
// also evaluated lazily on read; the sweep keeps the stored rows honest for
// reporting.
type MembershipWorker struct {
	cron              *cron.Cron
	db                *gorm.DB
	membershipService services.MembershipService
	schedule          string
}

func NewMembershipWorker(db *gorm.DB, membershipService services.MembershipService, schedule string) *MembershipWorker {
	return &MembershipWorker{
		cron:              cron.New(),
		db:                db,
		membershipService: membershipService,
		schedule:          schedule,
	}
}

func (w *MembershipWorker) Start() error {
	if _, err := w.cron.AddFunc(w.schedule, w.sweep); err != nil {
		return fmt.Errorf("invalid expiry sweep schedule %q: %w", w.schedule, err)
	}
	w.cron.Start()
	logger.Info("membership expiry worker started", "schedule", w.schedule)
	return nil
}

func (w *MembershipWorker) Stop() {
	ctx := w.cron.Stop()
	<-ctx.Done()
	logger.Info("membership expiry worker stopped")
}

func (w *MembershipWorker) sweep() {
	count, err := w.membershipService.ProcessExpired(w.db)
	if err != nil {
		logger.Error("membership expiry sweep failed", "error", err)
		return
	}
	if count > 0 {
		logger.Info("membership expiry sweep finished", "expired", count)
	}
}
