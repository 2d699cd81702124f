package utils

import (
	"context"

	"github.com/proplens/recon_backend/config"
)

// ResourceCountWhere counts rows of model T for a property scope with an
// arbitrary condition.
func ResourceCountWhere[T any](ctx context.Context, cond string, values ...interface{}) (int64, error) {
	db := config.GetDB()
	var m T
	var count int64
	err := db.WithContext(ctx).Model(&m).Where(cond, values...).Count(&count).Error
	return count, err
}

// ValidateResourceId checks that a row of model T with the given id exists.
// Returns ErrorRecordNotFound when it does not.
func ValidateResourceId[T any](ctx context.Context, id interface{}) error {
	count, err := ResourceCountWhere[T](ctx, "id = ?", id)
	if err != nil {
		return err
	}
	if count <= 0 {
		return ErrorRecordNotFound
	}
	return nil
}
