package repository

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/finsys-id/finance-api/repository/models"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// PostgreSQL error codes as constants
const (
	// Class 23 — Integrity Constraint Violation
	PgErrForeignKeyViolation = "23503" // foreign_key_violation
	PgErrUniqueViolation     = "23505" // unique_violation
	PgErrCheckViolation      = "23514" // check_violation
	PgErrNotNullViolation    = "23502" // not_null_violation

	// Class 40 — Transaction Rollback
	PgErrTransactionRollback = "40000" // transaction_rollback
	PgErrSerializationFail   = "40001" // serialization_failure

	// Class 08 — Connection Exception
	PgErrConnectionException = "08000" // connection_exception
	PgErrConnectionFailure   = "08006" // connection_failure
)

// Domain error codes surfaced to handlers. Each names the rule that rejected
// the operation, never the mechanism.
const (
	ErrNotTransactionCreator     = "NOT_TRANSACTION_CREATOR"
	ErrNotLatestReceiver         = "NOT_LATEST_RECEIVER"
	ErrNotForwardSender          = "NOT_FORWARD_SENDER"
	ErrNotForwardReceiver        = "NOT_FORWARD_RECEIVER"
	ErrForwardNotResponded       = "FORWARD_NOT_RESPONDED"
	ErrForwardAlreadyResponded   = "FORWARD_ALREADY_RESPONDED"
	ErrForwardAlreadySeen        = "FORWARD_ALREADY_SEEN"
	ErrNotTransactionParticipant = "NOT_TRANSACTION_PARTICIPANT"
	ErrNotDocumentAttacher       = "NOT_DOCUMENT_ATTACHER"
	ErrTransactionNotFound       = "TRANSACTION_NOT_FOUND"
	ErrForwardNotFound           = "FORWARD_NOT_FOUND"
	ErrEntityNotFound            = "ENTITY_NOT_FOUND"
	ErrMissingRole               = "MISSING_ROLE"
	ErrInvalidStatus             = "INVALID_STATUS"
	ErrDatabase                  = "DATABASE_ERROR"
)

// RepositoryError represents an error in the repository layer (db or rule)
type RepositoryError struct {
	Code    string
	Message string
	Detail  string
}

func (e *RepositoryError) Error() string {
	return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Detail)
}

// dbError maps a gorm/pg error to a RepositoryError, surfacing the Postgres
// code verbatim when available.
func dbError(err error) *RepositoryError {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return &RepositoryError{
			Code:    pgErr.Code,
			Message: pgErr.Message,
			Detail:  pgErr.Detail,
		}
	}
	return &RepositoryError{
		Code:    ErrDatabase,
		Message: "Database error occurred",
		Detail:  err.Error(),
	}
}

// ruleError builds a permission/state-conflict error with enough context for
// the caller to render a precise message.
func ruleError(code, message, detail string) *RepositoryError {
	return &RepositoryError{Code: code, Message: message, Detail: detail}
}

// Repository wraps the database and serializes per-transaction mutations
type Repository struct {
	db      *gorm.DB
	logger  *zap.SugaredLogger
	txLocks sync.Map // transaction ID -> *sync.Mutex
}

func NewRepository(logger *zap.SugaredLogger) *Repository {
	return &Repository{logger: logger}
}

// NewRepositoryWithDB builds a repository around an already-open connection.
// Used by tests running against in-memory sqlite.
func NewRepositoryWithDB(db *gorm.DB, logger *zap.SugaredLogger) *Repository {
	return &Repository{db: db, logger: logger}
}

// ConnectDB opens the Postgres connection, retrying while the database
// container comes up.
func (r *Repository) ConnectDB(dsn string) error {
	var lastErr error
	for i := 0; i < 10; i++ {
		r.logger.Infof("Connection attempt %d...", i+1)
		db, err := gorm.Open(postgres.Open(dsn))
		if err == nil {
			r.db = db
			r.logger.Info("Connected to Postgres")
			return nil
		}
		lastErr = err
		r.logger.Warnf("Connection attempt %d failed: %v", i+1, err)
		time.Sleep(2 * time.Second)
	}
	return fmt.Errorf("connecting to database: %w", lastErr)
}

// Migrate creates or updates the schema for all models
func (r *Repository) Migrate() error {
	err := r.db.AutoMigrate(
		&models.Department{},
		&models.User{},
		&models.TransactionType{},
		&models.Transaction{},
		&models.TransactionForward{},
		&models.Document{},
		&models.TransactionDocument{},
	)
	if err != nil {
		return fmt.Errorf("migrating schema: %w", err)
	}
	r.logger.Info("Database migration completed successfully")
	return nil
}

// Seed inserts initial departments and users when the database is empty
func (r *Repository) Seed() error {
	var userCount int64
	r.db.Model(&models.User{}).Count(&userCount)
	if userCount > 0 {
		r.logger.Info("Seed data already exists, skipping...")
		return nil
	}

	r.logger.Info("Seeding database with initial data...")

	departments := []models.Department{
		{Name: "Finance"},
		{Name: "Procurement"},
		{Name: "Operations"},
	}
	for _, dept := range departments {
		if err := r.db.Create(&dept).Error; err != nil {
			return fmt.Errorf("seeding department %s: %w", dept.Name, err)
		}
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte("admin"), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hashing seed password: %w", err)
	}
	admin := models.User{
		Name:           "admin",
		HashedPassword: string(hashed),
		Role:           models.RoleAdmin,
		Active:         true,
	}
	if err := r.db.Create(&admin).Error; err != nil {
		return fmt.Errorf("seeding admin user: %w", err)
	}

	r.logger.Info("Database seeding completed successfully")
	return nil
}

// lockTransaction acquires the per-transaction mutex so that a read-validate-
// write on one forward chain cannot interleave with another. Operations on
// different transactions proceed in parallel.
func (r *Repository) lockTransaction(transactionID uint) func() {
	v, _ := r.txLocks.LoadOrStore(transactionID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}
