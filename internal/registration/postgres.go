package registration

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// OpenDatabase connects to the registration database and migrates the
// patients table.
func OpenDatabase(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	if err := db.AutoMigrate(&Patient{}); err != nil {
		return nil, fmt.Errorf("failed to migrate patients table: %w", err)
	}
	return db, nil
}
