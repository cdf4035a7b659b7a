package repo

import (
	"log"
	"os"

	"pokertable-service/internal/config"
	"pokertable-service/internal/model"
	"pokertable-service/pkg/logger"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var DB *gorm.DB

func InitDB() {
	dsn := config.GlobalConfig.Database.DSN
	var err error
	DB, err = gorm.Open(postgres.Open(dsn), &gorm.Config{
		// duplicate-key violations surface as gorm.ErrDuplicatedKey, which
		// the seat and registration paths turn into conflicts
		TranslateError: true,
	})
	if err != nil {
		logger.Log.Fatal("Failed to connect to database",
			zap.Error(err),
		)
	}

	if os.Getenv("SKIP_MIGRATE") == "1" {
		return
	}
	if err := DB.AutoMigrate(model.All()...); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}
}
