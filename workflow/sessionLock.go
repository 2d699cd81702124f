package workflow

import (
	"fmt"

	"gorm.io/gorm"
)

func propertyPeriodLockName(propertyId int, periodId string) string {
	return fmt.Sprintf("recon:%d:%s", propertyId, periodId)
}

// AcquirePropertyPeriodLock serializes reconciliation runs for a property/period
// across instances using MySQL advisory locks.
// NOTE: GET_LOCK is connection-scoped, so acquire and release must run on one
// pinned connection (gorm Connection or a transaction), never on the pool.
func AcquirePropertyPeriodLock(tx *gorm.DB, propertyId int, periodId string) error {
	lockName := propertyPeriodLockName(propertyId, periodId)
	var ok int
	if err := tx.Raw("SELECT GET_LOCK(?, 30)", lockName).Scan(&ok).Error; err != nil {
		return err
	}
	if ok != 1 {
		return fmt.Errorf("could not acquire reconciliation lock for property_id=%d period_id=%s", propertyId, periodId)
	}
	return nil
}

func ReleasePropertyPeriodLock(tx *gorm.DB, propertyId int, periodId string) {
	lockName := propertyPeriodLockName(propertyId, periodId)
	var _ok int
	_ = tx.Raw("SELECT RELEASE_LOCK(?)", lockName).Scan(&_ok).Error
}
