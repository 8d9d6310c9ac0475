package systems

import "github.com/cmgoffena13/file-loader/internal/domain"

// Sales covers the transaction extracts dropped by the sales platform.
var Sales = domain.Source{
	Name:        "sales",
	FilePattern: "sales_*.csv",
	Type:        domain.SourceTypeCSV,
	TableName:   "transactions",
	Grain:       []string{"transaction_id"},
	Fields: []domain.FieldDefinition{
		{Name: "transaction_id", Type: domain.FieldTypeString, Required: true, MaxLength: 100},
		{Name: "customer_id", Type: domain.FieldTypeString, Required: true, MaxLength: 100},
		{Name: "product_sku", Type: domain.FieldTypeString, Required: true, MaxLength: 100},
		{Name: "quantity", Type: domain.FieldTypeInteger, Required: true},
		{Name: "unit_price", Type: domain.FieldTypeFloat, Required: true},
		{Name: "total_amount", Type: domain.FieldTypeFloat, Required: true},
		{Name: "sale_date", Type: domain.FieldTypeDate, Required: true},
		{Name: "sales_rep", Type: domain.FieldTypeString, Required: true, MaxLength: 100},
	},
	AuditQuery: `
		SELECT
		CASE WHEN SUM(CASE WHEN total_amount > 0 THEN 1 ELSE 0 END) = COUNT(*) THEN 1 ELSE 0 END AS total_amount_positive,
		CASE WHEN SUM(CASE WHEN unit_price > 0 THEN 1 ELSE 0 END) = COUNT(*) THEN 1 ELSE 0 END AS unit_price_positive
		FROM {table}
	`,
	Delimiter: ',',
	Encoding:  "utf-8",
}
