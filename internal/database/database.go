package database

import (
	"fmt"
	"log"
	"time"

	"taskflow/backend/internal/config"
	"taskflow/backend/internal/models"

	"github.com/gofrs/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Connect opens the configured database (sqlite by default, postgres in
// production), applies connection pool settings and runs migrations.
func Connect(cfg *config.Config) (*gorm.DB, error) {
	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	}
	if !cfg.IsProduction() {
		gormConfig.Logger = logger.Default.LogMode(logger.Warn)
	}

	var db *gorm.DB
	var err error
	switch cfg.Database.Driver {
	case "postgres":
		db, err = gorm.Open(postgres.Open(cfg.GetDatabaseDSN()), gormConfig)
	case "sqlite":
		db, err = gorm.Open(sqlite.Open(cfg.Database.SQLitePath), gormConfig)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Database.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access connection pool: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.Database.ConnMaxIdleTime)

	if err := Migrate(db); err != nil {
		return nil, err
	}

	return db, nil
}

func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&models.User{}, &models.Task{}); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}

// Seed provisions the demo accounts and sample tasks on an empty database.
// It is a no-op when any user already exists.
func Seed(db *gorm.DB, bcryptCost int) error {
	var count int64
	if err := db.Model(&models.User{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	admin := models.User{
		ID:       uuid.Must(uuid.NewV4()),
		Username: "admin",
		Email:    "admin@taskflow.local",
		Role:     models.RoleAdmin,
		IsActive: true,
	}
	if err := admin.SetPassword("admin123", bcryptCost); err != nil {
		return err
	}

	members := []models.User{
		{Username: "john_doe", Email: "john@taskflow.local"},
		{Username: "jane_smith", Email: "jane@taskflow.local"},
		{Username: "mike_wilson", Email: "mike@taskflow.local"},
	}
	for i := range members {
		members[i].ID = uuid.Must(uuid.NewV4())
		members[i].Role = models.RoleMember
		members[i].IsActive = true
		if err := members[i].SetPassword("user123", bcryptCost); err != nil {
			return err
		}
	}

	return db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&admin).Error; err != nil {
			return err
		}
		if err := tx.Create(&members).Error; err != nil {
			return err
		}

		due := time.Now().Add(48 * time.Hour)
		tasks := []models.Task{
			{
				ID:               uuid.Must(uuid.NewV4()),
				Title:            "Set up development environment",
				Description:      "Configure tooling for new contributors",
				Priority:         models.PriorityHigh,
				Status:           models.StatusPending,
				AssigneeID:       &members[0].ID,
				CreatedBy:        admin.ID,
				PerformanceDelta: 5,
				DueDate:          &due,
			},
			{
				ID:               uuid.Must(uuid.NewV4()),
				Title:            "Design database schema",
				Description:      "Model users and tasks for the tracker",
				Priority:         models.PriorityMedium,
				Status:           models.StatusInProgress,
				AssigneeID:       &members[1].ID,
				CreatedBy:        admin.ID,
				PerformanceDelta: 8,
			},
			{
				ID:               uuid.Must(uuid.NewV4()),
				Title:            "Wire up authentication",
				Description:      "JWT login with role claims",
				Priority:         models.PriorityUrgent,
				Status:           models.StatusPending,
				AssigneeID:       &members[2].ID,
				CreatedBy:        admin.ID,
				PerformanceDelta: 10,
			},
		}
		if err := tx.Create(&tasks).Error; err != nil {
			return err
		}

		for i := range members {
			if err := tx.Model(&models.User{}).
				Where("id = ?", members[i].ID).
				UpdateColumn("tasks_assigned", 1).Error; err != nil {
				return err
			}
		}

		log.Println("database seeded with demo accounts (admin/admin123)")
		return nil
	})
}
