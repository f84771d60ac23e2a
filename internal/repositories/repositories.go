package repositories

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"biblioteca/internal/models"
)

// ErrNotFound is returned by every repository when the requested record does
// not exist, regardless of the backing store.
var ErrNotFound = errors.New("record not found")

// ErrDuplicate is returned by Create when a unique business key (reader
// email, loan request key) is already taken, regardless of the backing store.
var ErrDuplicate = errors.New("duplicate record")

type ReaderRepository interface {
	Create(db *gorm.DB, reader *models.Reader) error
	GetByID(db *gorm.DB, id uuid.UUID) (*models.Reader, error)
	GetByEmail(db *gorm.DB, email string) (*models.Reader, error)
	UpdateStatus(db *gorm.DB, id uuid.UUID, status models.ReaderStatus) error
}

type MaterialRepository interface {
	Create(db *gorm.DB, material *models.Material) error
	GetByID(db *gorm.DB, id uuid.UUID) (*models.Material, error)
	List(db *gorm.DB) ([]models.Material, error)
}

type LoanRepository interface {
	Create(db *gorm.DB, loan *models.Loan) error
	GetByID(db *gorm.DB, id uuid.UUID) (*models.Loan, error)
	GetByIDForUpdate(db *gorm.DB, id uuid.UUID) (*models.Loan, error)
	GetByRequestKey(db *gorm.DB, key string) (*models.Loan, error)
	ListOutstanding(db *gorm.DB) ([]models.Loan, error)
	ListOutstandingByReader(db *gorm.DB, readerID uuid.UUID) ([]models.Loan, error)
	ListActiveDueBefore(db *gorm.DB, reference time.Time) ([]models.Loan, error)
	ListByReader(db *gorm.DB, readerID uuid.UUID) ([]models.Loan, error)
	MarkReturned(db *gorm.DB, id uuid.UUID, returnedAt time.Time) error
	MarkOverdue(db *gorm.DB, ids []uuid.UUID) error
}

// GORM-backed implementations

func translate(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// isUniqueViolation checks whether a PostgreSQL unique-constraint error
// occurred. PostgreSQL error code 23505 = unique_violation.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "23505")
}

type readerRepository struct {
	db *gorm.DB
}

func NewReaderRepository(db *gorm.DB) ReaderRepository {
	return &readerRepository{db: db}
}

func (r *readerRepository) Create(db *gorm.DB, reader *models.Reader) error {
	if db == nil {
		db = r.db
	}
	if err := db.Create(reader).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

func (r *readerRepository) GetByID(db *gorm.DB, id uuid.UUID) (*models.Reader, error) {
	if db == nil {
		db = r.db
	}
	var reader models.Reader
	if err := db.First(&reader, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &reader, nil
}

func (r *readerRepository) GetByEmail(db *gorm.DB, email string) (*models.Reader, error) {
	if db == nil {
		db = r.db
	}
	var reader models.Reader
	if err := db.First(&reader, "lower(email) = lower(?)", email).Error; err != nil {
		return nil, translate(err)
	}
	return &reader, nil
}

func (r *readerRepository) UpdateStatus(db *gorm.DB, id uuid.UUID, status models.ReaderStatus) error {
	if db == nil {
		db = r.db
	}
	result := db.Model(&models.Reader{}).
		Where("id = ?", id).
		Update("status", status)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

type materialRepository struct {
	db *gorm.DB
}

func NewMaterialRepository(db *gorm.DB) MaterialRepository {
	return &materialRepository{db: db}
}

func (r *materialRepository) Create(db *gorm.DB, material *models.Material) error {
	if db == nil {
		db = r.db
	}
	return db.Create(material).Error
}

func (r *materialRepository) GetByID(db *gorm.DB, id uuid.UUID) (*models.Material, error) {
	if db == nil {
		db = r.db
	}
	var material models.Material
	if err := db.First(&material, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &material, nil
}

func (r *materialRepository) List(db *gorm.DB) ([]models.Material, error) {
	if db == nil {
		db = r.db
	}
	var materials []models.Material
	if err := db.Order("acquired_at").Find(&materials).Error; err != nil {
		return nil, err
	}
	return materials, nil
}

type loanRepository struct {
	db *gorm.DB
}

func NewLoanRepository(db *gorm.DB) LoanRepository {
	return &loanRepository{db: db}
}

func (r *loanRepository) Create(db *gorm.DB, loan *models.Loan) error {
	if db == nil {
		db = r.db
	}
	if err := db.Create(loan).Error; err != nil {
		// The partial unique index on request_key is the backstop for racing
		// duplicate submissions: two inserts cannot both commit the same key.
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

func (r *loanRepository) GetByID(db *gorm.DB, id uuid.UUID) (*models.Loan, error) {
	if db == nil {
		db = r.db
	}
	var loan models.Loan
	err := db.Preload("Items", func(db *gorm.DB) *gorm.DB {
		return db.Order("position")
	}).First(&loan, "id = ?", id).Error
	if err != nil {
		return nil, translate(err)
	}
	return &loan, nil
}

func (r *loanRepository) GetByIDForUpdate(db *gorm.DB, id uuid.UUID) (*models.Loan, error) {
	if db == nil {
		db = r.db
	}
	var loan models.Loan
	err := db.
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&loan, "id = ?", id).Error
	if err != nil {
		return nil, translate(err)
	}
	if err := db.Order("position").Find(&loan.Items, "loan_id = ?", id).Error; err != nil {
		return nil, err
	}
	return &loan, nil
}

func (r *loanRepository) GetByRequestKey(db *gorm.DB, key string) (*models.Loan, error) {
	if db == nil {
		db = r.db
	}
	var loan models.Loan
	err := db.Preload("Items", func(db *gorm.DB) *gorm.DB {
		return db.Order("position")
	}).First(&loan, "request_key = ?", key).Error
	if err != nil {
		return nil, translate(err)
	}
	return &loan, nil
}

func (r *loanRepository) ListOutstanding(db *gorm.DB) ([]models.Loan, error) {
	if db == nil {
		db = r.db
	}
	var loans []models.Loan
	err := db.Preload("Items", func(db *gorm.DB) *gorm.DB {
		return db.Order("position")
	}).
		Where("status IN ?", []models.LoanStatus{models.LoanStatusActive, models.LoanStatusOverdue}).
		Find(&loans).Error
	if err != nil {
		return nil, err
	}
	return loans, nil
}

func (r *loanRepository) ListOutstandingByReader(db *gorm.DB, readerID uuid.UUID) ([]models.Loan, error) {
	if db == nil {
		db = r.db
	}
	var loans []models.Loan
	err := db.Preload("Items", func(db *gorm.DB) *gorm.DB {
		return db.Order("position")
	}).
		Where("reader_id = ? AND status IN ?", readerID, []models.LoanStatus{models.LoanStatusActive, models.LoanStatusOverdue}).
		Find(&loans).Error
	if err != nil {
		return nil, err
	}
	return loans, nil
}

func (r *loanRepository) ListActiveDueBefore(db *gorm.DB, reference time.Time) ([]models.Loan, error) {
	if db == nil {
		db = r.db
	}
	var loans []models.Loan
	err := db.Preload("Items", func(db *gorm.DB) *gorm.DB {
		return db.Order("position")
	}).
		Where("status = ? AND due_at < ?", models.LoanStatusActive, reference).
		Order("due_at").
		Find(&loans).Error
	if err != nil {
		return nil, err
	}
	return loans, nil
}

func (r *loanRepository) ListByReader(db *gorm.DB, readerID uuid.UUID) ([]models.Loan, error) {
	if db == nil {
		db = r.db
	}
	var loans []models.Loan
	err := db.Preload("Items", func(db *gorm.DB) *gorm.DB {
		return db.Order("position")
	}).
		Where("reader_id = ?", readerID).
		Order("loaned_at").
		Find(&loans).Error
	if err != nil {
		return nil, err
	}
	return loans, nil
}

func (r *loanRepository) MarkReturned(db *gorm.DB, id uuid.UUID, returnedAt time.Time) error {
	if db == nil {
		db = r.db
	}
	result := db.Model(&models.Loan{}).
		Where("id = ? AND returned_at IS NULL", id).
		Updates(map[string]interface{}{
			"returned_at": returnedAt,
			"status":      models.LoanStatusReturned,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *loanRepository) MarkOverdue(db *gorm.DB, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	if db == nil {
		db = r.db
	}
	return db.Model(&models.Loan{}).
		Where("id IN ? AND status = ?", ids, models.LoanStatusActive).
		Update("status", models.LoanStatusOverdue).
		Error
}
