package main

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// ContactRepository persists contact submissions.
type ContactRepository interface {
	// Create stores sub and fills in its ID and CreatedAt.
	Create(ctx context.Context, sub *ContactSubmission) error
	// List returns one page, newest first, and the total matching the filter.
	List(ctx context.Context, filter ContactFilter) (*ContactPage, error)
	// UpdateStatus returns ErrContactNotFound for unknown ids.
	UpdateStatus(ctx context.Context, id uint64, status ContactStatus) error
	Close() error
}

// OpenContactRepository opens the repository selected by cfg. It returns a nil
// repository when persistence is switched off.
func OpenContactRepository(cfg DatabaseConfig) (ContactRepository, error) {
	switch cfg.Driver {
	case DriverPostgres:
		return NewGormContactRepository(postgres.Open(cfg.PostgresDSN()))
	case DriverSQLite:
		if cfg.Path == "" {
			return nil, errors.New("sqlite driver needs DB_PATH")
		}
		return NewGormContactRepository(sqlite.Open(cfg.Path))
	case DriverBadger:
		if cfg.Path == "" {
			return nil, errors.New("badger driver needs DB_PATH")
		}
		return NewBadgerContactRepository(cfg.Path)
	case DriverNone, "":
		return nil, nil
	}
	return nil, errors.Errorf("unknown database driver %q", cfg.Driver)
}

// contactRecord is the contact_requests row.
type contactRecord struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement"`
	Name      string    `gorm:"size:100;not null"`
	Email     string    `gorm:"size:255;not null"`
	Message   string    `gorm:"type:text;not null"`
	IPAddress string    `gorm:"column:ip_address;size:64"`
	UserAgent string    `gorm:"type:text"`
	Status    string    `gorm:"size:20;not null;default:unread;index"`
	CreatedAt time.Time `gorm:"index"`
}

func (contactRecord) TableName() string {
	return "contact_requests"
}

func (r contactRecord) submission() ContactSubmission {
	return ContactSubmission{
		ID:        r.ID,
		Name:      r.Name,
		Email:     r.Email,
		Message:   r.Message,
		IP:        r.IPAddress,
		UserAgent: r.UserAgent,
		Status:    ContactStatus(r.Status),
		CreatedAt: r.CreatedAt,
	}
}

var _ ContactRepository = &GormContactRepository{}

// GormContactRepository stores contact requests in a SQL database through gorm.
type GormContactRepository struct {
	db *gorm.DB
}

// NewGormContactRepository connects with dialector and migrates the schema.
func NewGormContactRepository(dialector gorm.Dialector) (*GormContactRepository, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.New(gormLogWriter{}, gormlogger.Config{
			SlowThreshold:             500 * time.Millisecond,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
	})
	if err != nil {
		return nil, errors.Wrap(err, "open database")
	}

	if err := db.AutoMigrate(&contactRecord{}); err != nil {
		return nil, errors.Wrap(err, "migrate contact_requests")
	}

	log.Info().Str("dialect", dialector.Name()).Msg("contact repository ready")
	return &GormContactRepository{db: db}, nil
}

func (r *GormContactRepository) Create(ctx context.Context, sub *ContactSubmission) error {
	status := sub.Status
	if status == "" {
		status = ContactStatusUnread
	}
	rec := contactRecord{
		Name:      sub.Name,
		Email:     sub.Email,
		Message:   sub.Message,
		IPAddress: sub.IP,
		UserAgent: sub.UserAgent,
		Status:    string(status),
	}
	if err := r.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return errors.Wrap(err, "insert contact request")
	}

	sub.ID = rec.ID
	sub.Status = status
	sub.CreatedAt = rec.CreatedAt
	return nil
}

func (r *GormContactRepository) List(ctx context.Context, filter ContactFilter) (*ContactPage, error) {
	matching := func(db *gorm.DB) *gorm.DB {
		if filter.Status != "" {
			return db.Where("status = ?", string(filter.Status))
		}
		return db
	}

	var total int64
	if err := r.db.WithContext(ctx).Model(&contactRecord{}).Scopes(matching).Count(&total).Error; err != nil {
		return nil, errors.Wrap(err, "count contact requests")
	}

	var rows []contactRecord
	err := r.db.WithContext(ctx).
		Scopes(matching).
		Order("created_at DESC").
		Order("id DESC").
		Limit(filter.Limit).
		Offset(filter.Offset).
		Find(&rows).Error
	if err != nil {
		return nil, errors.Wrap(err, "list contact requests")
	}

	page := &ContactPage{Items: make([]ContactSubmission, 0, len(rows)), Total: total}
	for _, row := range rows {
		page.Items = append(page.Items, row.submission())
	}
	return page, nil
}

func (r *GormContactRepository) UpdateStatus(ctx context.Context, id uint64, status ContactStatus) error {
	res := r.db.WithContext(ctx).Model(&contactRecord{}).Where("id = ?", id).Update("status", string(status))
	if res.Error != nil {
		return errors.Wrapf(res.Error, "update contact request %d", id)
	}
	if res.RowsAffected == 0 {
		return ErrContactNotFound
	}
	return nil
}

func (r *GormContactRepository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// gormLogWriter forwards gorm's log lines to zerolog.
type gormLogWriter struct{}

func (gormLogWriter) Printf(format string, args ...interface{}) {
	log.Warn().Str("component", "gorm").Msgf(format, args...)
}
