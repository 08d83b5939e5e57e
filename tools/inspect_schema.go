// Command inspect_schema prints the tables and indexes GORM creates for the eagleview models.
package main

import (
	"fmt"
	"os"

	"github.com/glebarez/sqlite"
	"github.com/localnerve/eagleview/internal/database"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func main() {
	log, _ := zap.NewDevelopment()
	defer log.Sync()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		log.Fatal("failed to open database", zap.Error(err))
	}

	if err := database.AutoMigrate(db); err != nil {
		log.Fatal("failed to migrate", zap.Error(err))
	}

	var entries []struct {
		Type string
		Name string
		SQL  string
	}
	if err := db.Raw("SELECT type, name, sql FROM sqlite_master WHERE sql IS NOT NULL ORDER BY tbl_name, type DESC").Scan(&entries).Error; err != nil {
		log.Fatal("failed to read schema", zap.Error(err))
	}

	for _, e := range entries {
		fmt.Fprintf(os.Stdout, "\n=== %s: %s ===\n%s\n", e.Type, e.Name, e.SQL)
	}
}
