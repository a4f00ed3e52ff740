package tenant

import "gorm.io/gorm"

// Scope restricts a query to one organization. Applied on every tenant
// owned table; reference data and usage rows never cross tenants.
func Scope(organizationID string) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("organization_id = ?", organizationID)
	}
}
