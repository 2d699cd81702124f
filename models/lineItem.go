package models

import (
	"context"
	"strings"
	"time"

	"github.com/proplens/recon_backend/config"
	"github.com/proplens/recon_backend/utils"
	"github.com/shopspring/decimal"
)

// LineItem is written by the upstream extraction pipeline and is read-only
// here. At most one value exists per (property, period, document type,
// account code); re-extraction replaces rows in place.
type LineItem struct {
	ID           int             `gorm:"primary_key" json:"id"`
	PropertyId   int             `gorm:"uniqueIndex:uq_line_item;not null" json:"property_id"`
	PeriodId     string          `gorm:"uniqueIndex:uq_line_item;size:7;not null" json:"period_id"`
	DocumentType DocumentType    `gorm:"uniqueIndex:uq_line_item;size:32;not null" json:"document_type"`
	AccountCode  string          `gorm:"uniqueIndex:uq_line_item;size:64;not null" json:"account_code"`
	AccountName  string          `gorm:"size:255;not null" json:"account_name"`
	Value        decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"value"`
	Section      string          `gorm:"size:64" json:"section"`
	CreatedAt    time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// GetLineItems returns line items for one property/period, optionally
// restricted to a set of document types.
func GetLineItems(ctx context.Context, propertyId int, periodId string, documentTypes []DocumentType) ([]LineItem, error) {
	db := config.GetDB()
	q := db.WithContext(ctx).
		Where("property_id = ? AND period_id = ?", propertyId, periodId)
	if len(documentTypes) > 0 {
		q = q.Where("document_type IN ?", documentTypes)
	}
	var items []LineItem
	if err := q.Order("document_type, account_code").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// GroupLineItemsByDocumentType buckets items per document type preserving
// the query order.
func GroupLineItemsByDocumentType(items []LineItem) map[DocumentType][]LineItem {
	grouped := make(map[DocumentType][]LineItem)
	for _, item := range items {
		grouped[item.DocumentType] = append(grouped[item.DocumentType], item)
	}
	return grouped
}

// HasLineItems reports whether any line items exist for the property/period
// and document type.
func HasLineItems(ctx context.Context, propertyId int, periodId string, documentType DocumentType) (bool, error) {
	count, err := utils.ResourceCountWhere[LineItem](ctx,
		"property_id = ? AND period_id = ? AND document_type = ?", propertyId, periodId, documentType)
	return count > 0, err
}

// NormalizeAccountKey folds case and whitespace so "Net  Operating Income"
// and "net operating income" compare equal at the exact match stage.
func NormalizeAccountKey(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(strings.TrimSpace(s))), " ")
}

// lineItemValue finds an item by account code within one document bucket.
func lineItemValue(items []LineItem, accountCode string) (decimal.Decimal, bool) {
	for _, item := range items {
		if item.AccountCode == accountCode {
			return item.Value, true
		}
	}
	return decimal.Zero, false
}

// sumBySection totals all items in a named section of one document bucket.
func sumBySection(items []LineItem, section string) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		if strings.EqualFold(item.Section, section) {
			total = total.Add(item.Value)
		}
	}
	return total
}
