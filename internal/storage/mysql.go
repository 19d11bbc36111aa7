package storage

import (
	"fmt"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"StoryLoom/server/internal/config"
	"StoryLoom/server/internal/models"
)

// MySQLStore persists finished sessions for history queries. The live
// session document never lives here; archival is a post-finish side
// effect.
type MySQLStore struct {
	db *gorm.DB
}

func NewMySQLStore(cfg config.MySQLConfig) (*MySQLStore, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		cfg.Username,
		cfg.Password,
		cfg.Host,
		cfg.Port,
		cfg.Database,
	)

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := db.AutoMigrate(&models.SessionArchive{}, &models.ArchivedLogEntry{}); err != nil {
		return nil, err
	}

	return &MySQLStore{db: db}, nil
}

func (s *MySQLStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// ArchiveSession writes the archive row and all log entries in one
// database transaction. Re-archiving the same session id is a no-op so
// a retried background task cannot duplicate rows.
func (s *MySQLStore) ArchiveSession(archive *models.SessionArchive, entries []models.ArchivedLogEntry) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.SessionArchive{}).Where("id = ?", archive.ID).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return nil
		}
		if err := tx.Create(archive).Error; err != nil {
			return err
		}
		if len(entries) == 0 {
			return nil
		}
		return tx.CreateInBatches(entries, 100).Error
	})
}

// RecentArchives returns the most recently finished sessions.
func (s *MySQLStore) RecentArchives(limit int) ([]models.SessionArchive, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var archives []models.SessionArchive
	err := s.db.Order("finished_at DESC").Limit(limit).Find(&archives).Error
	return archives, err
}
