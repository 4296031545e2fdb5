package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/johnwmail/pasties/models"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Supported SQL engines
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
)

// SQLOptions configures a SQLStore
type SQLOptions struct {
	Driver          string
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	Debug           bool
}

// SQLStore implements PasteStore on any engine gorm has a dialector for
type SQLStore struct {
	db     *gorm.DB
	sqlDB  *sql.DB
	driver string
	logger *zap.Logger
}

// Dialector picks the gorm dialector for a driver name
func Dialector(driver, dsn string) (gorm.Dialector, error) {
	switch driver {
	case DriverSQLite:
		return sqlite.Open(dsn), nil
	case DriverPostgres:
		return postgres.Open(dsn), nil
	case DriverMySQL:
		return mysql.Open(dsn), nil
	default:
		return nil, fmt.Errorf("unsupported sql driver: %s (supported: sqlite, postgres, mysql)", driver)
	}
}

// NewSQLStore opens the database, tunes the pool and migrates the schema
func NewSQLStore(opts SQLOptions, logger *zap.Logger) (*SQLStore, error) {
	dialector, err := Dialector(opts.Driver, opts.DSN)
	if err != nil {
		return nil, err
	}

	logMode := gormlogger.Silent
	if opts.Debug {
		logMode = gormlogger.Info
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(logMode),
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", opts.Driver, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql.DB: %w", err)
	}
	if opts.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(opts.MaxIdleConns)
	}
	if opts.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}

	return NewSQLStoreFromDB(db, opts.Driver, logger)
}

// NewSQLStoreFromDB wraps an already opened gorm handle
func NewSQLStoreFromDB(db *gorm.DB, driver string, logger *zap.Logger) (*SQLStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql.DB: %w", err)
	}

	if err := db.AutoMigrate(&models.Paste{}); err != nil {
		return nil, fmt.Errorf("migrate pastes: %w", err)
	}

	logger.Info("sql storage ready", zap.String("driver", driver))
	return &SQLStore{db: db, sqlDB: sqlDB, driver: driver, logger: logger}, nil
}

func translateSQLError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrAlreadyExists
	default:
		return err
	}
}

// Create inserts a paste
func (s *SQLStore) Create(ctx context.Context, paste *models.Paste) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	if err := s.db.WithContext(ctx).Create(paste).Error; err != nil {
		return translateSQLError(err)
	}
	return nil
}

// GetByURL retrieves a paste by its URL
func (s *SQLStore) GetByURL(ctx context.Context, url string) (*models.Paste, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var paste models.Paste
	if err := s.db.WithContext(ctx).Where("url = ?", url).First(&paste).Error; err != nil {
		return nil, translateSQLError(err)
	}
	return &paste, nil
}

// Exists reports whether url is taken
func (s *SQLStore) Exists(ctx context.Context, url string) (bool, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Paste{}).Where("url = ?", url).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// Update replaces every mutable column of the paste stored under oldURL
func (s *SQLStore) Update(ctx context.Context, oldURL string, paste *models.Paste) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	res := s.db.WithContext(ctx).
		Model(&models.Paste{}).
		Where("url = ?", oldURL).
		Select("*").
		Omit("id", "date_published").
		Updates(paste)
	if res.Error != nil {
		return translateSQLError(res.Error)
	}

	if res.RowsAffected == 0 {
		// MySQL reports zero rows when nothing changed, so confirm the source
		// row is really missing. A rename always changes the row.
		if oldURL != paste.URL {
			return ErrNotFound
		}
		exists, err := s.Exists(ctx, oldURL)
		if err != nil {
			return err
		}
		if !exists {
			return ErrNotFound
		}
	}
	return nil
}

// Delete removes a paste
func (s *SQLStore) Delete(ctx context.Context, url string) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	res := s.db.WithContext(ctx).Where("url = ?", url).Delete(&models.Paste{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// IncrementViews bumps the view counter in a single statement
func (s *SQLStore) IncrementViews(ctx context.Context, url string) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	res := s.db.WithContext(ctx).
		Model(&models.Paste{}).
		Where("url = ?", url).
		UpdateColumn("views", gorm.Expr("views + ?", 1))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns pastes newest first
func (s *SQLStore) List(ctx context.Context, opts models.ListOptions) ([]*models.Paste, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	q := s.db.WithContext(ctx).Model(&models.Paste{})
	if opts.Owner != "" {
		q = q.Where("metadata_owner = ?", opts.Owner)
	}
	if !opts.IncludeProtected {
		q = q.Where("metadata_view_password = ?", "")
	}
	if opts.ActiveAt > 0 {
		q = q.Where("expires_at = 0 OR expires_at > ?", opts.ActiveAt)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}

	pastes := []*models.Paste{}
	if err := q.Order("date_published DESC").Order("url ASC").Find(&pastes).Error; err != nil {
		return nil, err
	}
	return pastes, nil
}

// DeleteExpired removes pastes whose expiry has passed
func (s *SQLStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	res := s.db.WithContext(ctx).
		Where("expires_at > 0 AND expires_at <= ?", now.Unix()).
		Delete(&models.Paste{})
	return res.RowsAffected, res.Error
}

// Ping checks the connection
func (s *SQLStore) Ping(ctx context.Context) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	return s.sqlDB.PingContext(ctx)
}

// Close closes the connection pool
func (s *SQLStore) Close() error {
	return s.sqlDB.Close()
}
