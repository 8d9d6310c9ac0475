package systems

import "github.com/cmgoffena13/file-loader/internal/domain"

// Inventory covers the nightly warehouse snapshot feed.
var Inventory = domain.Source{
	Name:        "inventory",
	FilePattern: "inventory_*.json",
	Type:        domain.SourceTypeJSON,
	TableName:   "inventory_levels",
	Grain:       []string{"warehouse_code", "product_sku"},
	Fields: []domain.FieldDefinition{
		{Name: "warehouse_code", Type: domain.FieldTypeString, Required: true, MaxLength: 20},
		{Name: "product_sku", Type: domain.FieldTypeString, Required: true, MaxLength: 100},
		{Name: "quantity_on_hand", Type: domain.FieldTypeInteger, Required: true, Min: floatPtr(0)},
		{Name: "reorder_point", Type: domain.FieldTypeInteger, Required: false},
		{Name: "snapshot_at", Type: domain.FieldTypeDateTime, Required: true},
	},
	AuditQuery: `
		SELECT
		CASE WHEN SUM(CASE WHEN quantity_on_hand >= 0 THEN 1 ELSE 0 END) = COUNT(*) THEN 1 ELSE 0 END AS quantity_non_negative
		FROM {table}
	`,
}

func floatPtr(v float64) *float64 { return &v }
