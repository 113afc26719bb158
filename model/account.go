package model

import (
	"github.com/Laisky/errors/v2"
	"github.com/Laisky/zap"
	"gorm.io/gorm"

	"claude-relay/common/helper"
	"claude-relay/common/logger"
)

const (
	AccountStatusEnabled  = 1 // don't use 0, 0 is the default value!
	AccountStatusDisabled = 2
)

// Provider identifiers stored on accounts. These select which adaptor serves
// requests routed through the account.
const (
	ProviderBedrock   = "bedrock"
	ProviderKiro      = "kiro"
	ProviderOrchids   = "orchids"
	ProviderAnthropic = "anthropic"
)

// Account is one pooled backend credential. Key holds the provider-specific
// credential material as JSON (SigV4 key pair, OAuth token set, or a plain
// API key) so the schema stays uniform across providers.
type Account struct {
	Id       int    `json:"id"`
	Provider string `json:"provider" gorm:"type:varchar(32);index"`
	Name     string `json:"name" gorm:"index"`
	Key      string `json:"key" gorm:"type:text"`
	BaseURL  string `json:"base_url" gorm:"column:base_url;default:''"`
	Region   string `json:"region" gorm:"type:varchar(32);default:''"`
	Status   int    `json:"status" gorm:"default:1"`
	Weight   int    `json:"weight" gorm:"default:1"`

	RequestCount int64 `json:"request_count" gorm:"bigint;default:0"`
	SuccessCount int64 `json:"success_count" gorm:"bigint;default:0"`
	FailureCount int64 `json:"failure_count" gorm:"bigint;default:0"`
	LastUsedTime int64 `json:"last_used_time" gorm:"bigint;default:0"`

	ErrorCount int    `json:"error_count" gorm:"default:0"`
	LastError  string `json:"last_error" gorm:"type:text"`

	CreatedAt int64 `json:"created_at" gorm:"bigint;autoCreateTime:milli"`
	UpdatedAt int64 `json:"updated_at" gorm:"bigint;autoUpdateTime:milli"`
}

// CounterDelta is one batched counter update for an account.
type CounterDelta struct {
	Requests  int64
	Successes int64
	Failures  int64
}

// ListEnabledAccounts returns the enabled accounts for a provider, or all
// providers when provider is empty.
func ListEnabledAccounts(provider string) ([]*Account, error) {
	var accounts []*Account
	tx := DB.Where("status = ?", AccountStatusEnabled)
	if provider != "" {
		tx = tx.Where("provider = ?", provider)
	}
	if err := tx.Order("id").Find(&accounts).Error; err != nil {
		return nil, errors.Wrap(err, "list enabled accounts")
	}
	return accounts, nil
}

// ListAccounts returns every account regardless of status, for the admin surface.
func ListAccounts() ([]*Account, error) {
	var accounts []*Account
	if err := DB.Order("id").Find(&accounts).Error; err != nil {
		return nil, errors.Wrap(err, "list accounts")
	}
	return accounts, nil
}

// GetAccountById fetches one account.
func GetAccountById(id int) (*Account, error) {
	var account Account
	if err := DB.First(&account, "id = ?", id).Error; err != nil {
		return nil, errors.Wrapf(err, "get account %d", id)
	}
	return &account, nil
}

// Insert persists a new account.
func (a *Account) Insert() error {
	return errors.Wrap(DB.Create(a).Error, "insert account")
}

// Update persists mutable account fields.
func (a *Account) Update() error {
	err := DB.Model(a).Select("name", "key", "base_url", "region", "status", "weight").Updates(a).Error
	return errors.Wrap(err, "update account")
}

// Delete removes the account. Pool caches pick this up on their next refresh.
func (a *Account) Delete() error {
	return errors.Wrap(DB.Delete(a).Error, "delete account")
}

// UpdateAccountKey persists refreshed credential material for an account.
func UpdateAccountKey(id int, key string) error {
	err := DB.Model(&Account{}).Where("id = ?", id).Update("key", key).Error
	return errors.Wrapf(err, "update account %d key", id)
}

// UpdateStatus flips the enabled flag without touching other fields.
func UpdateAccountStatus(id int, status int) error {
	err := DB.Model(&Account{}).Where("id = ?", id).Update("status", status).Error
	return errors.Wrapf(err, "update account %d status", id)
}

// IncrementAccountCounters applies one batched delta. Expression updates keep
// the increments atomic under concurrent flushers.
func IncrementAccountCounters(id int, delta CounterDelta) error {
	updates := map[string]any{
		"last_used_time": helper.GetTimestamp(),
	}
	if delta.Requests != 0 {
		updates["request_count"] = gorm.Expr("request_count + ?", delta.Requests)
	}
	if delta.Successes != 0 {
		updates["success_count"] = gorm.Expr("success_count + ?", delta.Successes)
	}
	if delta.Failures != 0 {
		updates["failure_count"] = gorm.Expr("failure_count + ?", delta.Failures)
	}
	err := DB.Model(&Account{}).Where("id = ?", id).Updates(updates).Error
	return errors.Wrapf(err, "increment counters for account %d", id)
}

// RecordAccountError stores the latest upstream error and bumps the error count.
func RecordAccountError(id int, message string) error {
	if len(message) > 1024 {
		message = message[:1024]
	}
	err := DB.Model(&Account{}).Where("id = ?", id).Updates(map[string]any{
		"error_count": gorm.Expr("error_count + ?", 1),
		"last_error":  message,
	}).Error
	if err != nil {
		logger.Logger.Warn("record account error", zap.Int("account", id), zap.Error(err))
	}
	return errors.Wrapf(err, "record error for account %d", id)
}

// ResetAccountErrorCount clears the rolling error state after a success.
func ResetAccountErrorCount(id int) error {
	err := DB.Model(&Account{}).Where("id = ?", id).Updates(map[string]any{
		"error_count": 0,
		"last_error":  "",
	}).Error
	return errors.Wrapf(err, "reset error count for account %d", id)
}
