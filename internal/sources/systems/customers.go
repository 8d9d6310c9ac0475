package systems

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/cmgoffena13/file-loader/internal/domain"
)

var (
	phoneCleanPattern = regexp.MustCompile(`[^\d+]`)
	emailPattern      = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
)

func cleanPhone(v string) string {
	cleaned := phoneCleanPattern.ReplaceAllString(strings.TrimSpace(v), "")
	if cleaned == "" {
		return v
	}
	return cleaned
}

func cleanEmail(v string) string {
	return strings.ToLower(strings.TrimSpace(v))
}

func checkEmail(v any) error {
	s, ok := v.(string)
	if !ok || !emailPattern.MatchString(s) {
		return fmt.Errorf("value is not a valid email address")
	}
	return nil
}

// Customers covers the CRM customer exports.
var Customers = domain.Source{
	Name:        "customers",
	FilePattern: "customers-*.csv",
	Type:        domain.SourceTypeCSV,
	TableName:   "customers",
	Grain:       []string{"customer_id"},
	Fields: []domain.FieldDefinition{
		{Name: "customer_id", Alias: "Customer Id", Type: domain.FieldTypeString, Required: true, MaxLength: 50},
		{Name: "first_name", Alias: "First Name", Type: domain.FieldTypeString, Required: true, MaxLength: 100},
		{Name: "last_name", Alias: "Last Name", Type: domain.FieldTypeString, Required: true, MaxLength: 100},
		{Name: "company_name", Alias: "Company", Type: domain.FieldTypeString, Required: true, MaxLength: 100},
		{Name: "city", Type: domain.FieldTypeString, Required: true, MaxLength: 100},
		{Name: "country", Type: domain.FieldTypeString, Required: true, MaxLength: 100},
		{Name: "phone_one", Alias: "Phone 1", Type: domain.FieldTypeString, Required: true, MaxLength: 25, Clean: cleanPhone},
		{Name: "phone_two", Alias: "Phone 2", Type: domain.FieldTypeString, Required: true, MaxLength: 25, Clean: cleanPhone},
		{Name: "email", Type: domain.FieldTypeString, Required: true, MaxLength: 100, Clean: cleanEmail, Check: checkEmail},
		{Name: "subscription_date", Alias: "Subscription Date", Type: domain.FieldTypeDate, Required: true},
		{Name: "website", Type: domain.FieldTypeString, Required: true, MaxLength: 100},
	},
	Delimiter: ',',
	Encoding:  "utf-8",
}
