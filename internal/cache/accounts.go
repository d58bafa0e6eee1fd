package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"gorm.io/gorm"

	"github.com/hugh/asset-shipper/internal/database/models"
)

// AccountDirectory looks up account names in the database.
type AccountDirectory struct {
	db *gorm.DB
}

// NewAccountDirectory creates a directory over the cloud_accounts table
func NewAccountDirectory(db *gorm.DB) *AccountDirectory {
	return &AccountDirectory{db: db}
}

// LookupAccountName returns "" when the account is unknown or inactive.
func (d *AccountDirectory) LookupAccountName(ctx context.Context, tenantID, source, accountID string) (string, error) {
	var account models.CloudAccount
	err := d.db.WithContext(ctx).
		Where("tenant_id = ? AND data_source = ? AND account_id = ? AND is_active = ?", tenantID, source, accountID, true).
		First(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("looking up account %s: %w", accountID, err)
	}
	return account.AccountName, nil
}

// Directory is the source of truth behind the account cache.
type Directory interface {
	LookupAccountName(ctx context.Context, tenantID, source, accountID string) (string, error)
}

// AccountResolver caches account id to name lookups. Unknown accounts are
// cached as "" so they are not looked up again until the entry expires.
type AccountResolver struct {
	store  Store
	dir    Directory
	logger *slog.Logger
}

// NewAccountResolver creates a caching resolver
func NewAccountResolver(store Store, dir Directory, logger *slog.Logger) *AccountResolver {
	return &AccountResolver{store: store, dir: dir, logger: logger}
}

// AccountName implements assets.AccountResolver
func (r *AccountResolver) AccountName(ctx context.Context, tenantID, source, accountID string) (string, error) {
	key := "account:" + tenantID + ":" + source + ":" + accountID

	name, ok, err := r.store.Get(ctx, key)
	if err != nil {
		r.logger.Warn("account cache read failed", "key", key, "error", err)
	} else if ok {
		return name, nil
	}

	name, err = r.dir.LookupAccountName(ctx, tenantID, source, accountID)
	if err != nil {
		return "", err
	}

	if err := r.store.Set(ctx, key, name); err != nil {
		r.logger.Warn("account cache write failed", "key", key, "error", err)
	}
	return name, nil
}
