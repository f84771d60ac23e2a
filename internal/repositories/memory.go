package repositories

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"biblioteca/internal/models"
)

// In-memory implementations of the repository ports. They back the test suite
// and the server when no DATABASE_URL is configured. The db parameter of each
// method is ignored; callers pass nil.

type MemoryReaderRepository struct {
	mu      sync.Mutex
	readers map[uuid.UUID]models.Reader
}

func NewMemoryReaderRepository() *MemoryReaderRepository {
	return &MemoryReaderRepository{readers: make(map[uuid.UUID]models.Reader)}
}

func (r *MemoryReaderRepository) Create(_ *gorm.DB, reader *models.Reader) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.readers {
		if strings.EqualFold(existing.Email, reader.Email) {
			return ErrDuplicate
		}
	}
	r.readers[reader.ID] = *reader
	return nil
}

func (r *MemoryReaderRepository) GetByID(_ *gorm.DB, id uuid.UUID) (*models.Reader, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	reader, ok := r.readers[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &reader, nil
}

func (r *MemoryReaderRepository) GetByEmail(_ *gorm.DB, email string) (*models.Reader, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, reader := range r.readers {
		if strings.EqualFold(reader.Email, email) {
			reader := reader
			return &reader, nil
		}
	}
	return nil, ErrNotFound
}

func (r *MemoryReaderRepository) UpdateStatus(_ *gorm.DB, id uuid.UUID, status models.ReaderStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	reader, ok := r.readers[id]
	if !ok {
		return ErrNotFound
	}
	reader.Status = status
	r.readers[id] = reader
	return nil
}

type MemoryMaterialRepository struct {
	mu        sync.Mutex
	materials map[uuid.UUID]models.Material
}

func NewMemoryMaterialRepository() *MemoryMaterialRepository {
	return &MemoryMaterialRepository{materials: make(map[uuid.UUID]models.Material)}
}

func (r *MemoryMaterialRepository) Create(_ *gorm.DB, material *models.Material) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.materials[material.ID] = *material
	return nil
}

func (r *MemoryMaterialRepository) GetByID(_ *gorm.DB, id uuid.UUID) (*models.Material, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	material, ok := r.materials[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &material, nil
}

func (r *MemoryMaterialRepository) List(_ *gorm.DB) ([]models.Material, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	materials := make([]models.Material, 0, len(r.materials))
	for _, m := range r.materials {
		materials = append(materials, m)
	}
	sort.Slice(materials, func(i, j int) bool {
		return materials[i].AcquiredAt.Before(materials[j].AcquiredAt)
	})
	return materials, nil
}

type MemoryLoanRepository struct {
	mu    sync.Mutex
	loans map[uuid.UUID]models.Loan
}

func NewMemoryLoanRepository() *MemoryLoanRepository {
	return &MemoryLoanRepository{loans: make(map[uuid.UUID]models.Loan)}
}

func copyLoan(loan models.Loan) models.Loan {
	items := make([]models.LoanItem, len(loan.Items))
	copy(items, loan.Items)
	loan.Items = items
	return loan
}

func (r *MemoryLoanRepository) Create(_ *gorm.DB, loan *models.Loan) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	// Same backstop as the partial unique index on request_key: the check and
	// the insert happen under one lock, so racing duplicates cannot both land.
	if loan.RequestKey != "" {
		for _, existing := range r.loans {
			if existing.RequestKey == loan.RequestKey {
				return ErrDuplicate
			}
		}
	}
	r.loans[loan.ID] = copyLoan(*loan)
	return nil
}

func (r *MemoryLoanRepository) GetByID(_ *gorm.DB, id uuid.UUID) (*models.Loan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	loan, ok := r.loans[id]
	if !ok {
		return nil, ErrNotFound
	}
	loan = copyLoan(loan)
	return &loan, nil
}

func (r *MemoryLoanRepository) GetByIDForUpdate(db *gorm.DB, id uuid.UUID) (*models.Loan, error) {
	return r.GetByID(db, id)
}

func (r *MemoryLoanRepository) GetByRequestKey(_ *gorm.DB, key string) (*models.Loan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, loan := range r.loans {
		if loan.RequestKey == key {
			loan = copyLoan(loan)
			return &loan, nil
		}
	}
	return nil, ErrNotFound
}

func (r *MemoryLoanRepository) list(match func(models.Loan) bool, less func(a, b models.Loan) bool) []models.Loan {
	r.mu.Lock()
	defer r.mu.Unlock()
	var loans []models.Loan
	for _, loan := range r.loans {
		if match(loan) {
			loans = append(loans, copyLoan(loan))
		}
	}
	if less != nil {
		sort.Slice(loans, func(i, j int) bool { return less(loans[i], loans[j]) })
	}
	return loans
}

func (r *MemoryLoanRepository) ListOutstanding(_ *gorm.DB) ([]models.Loan, error) {
	return r.list(func(l models.Loan) bool { return l.Outstanding() }, nil), nil
}

func (r *MemoryLoanRepository) ListOutstandingByReader(_ *gorm.DB, readerID uuid.UUID) ([]models.Loan, error) {
	return r.list(func(l models.Loan) bool {
		return l.ReaderID == readerID && l.Outstanding()
	}, nil), nil
}

func (r *MemoryLoanRepository) ListActiveDueBefore(_ *gorm.DB, reference time.Time) ([]models.Loan, error) {
	return r.list(func(l models.Loan) bool {
		return l.Status == models.LoanStatusActive && l.DueAt.Before(reference)
	}, func(a, b models.Loan) bool { return a.DueAt.Before(b.DueAt) }), nil
}

func (r *MemoryLoanRepository) ListByReader(_ *gorm.DB, readerID uuid.UUID) ([]models.Loan, error) {
	return r.list(func(l models.Loan) bool {
		return l.ReaderID == readerID
	}, func(a, b models.Loan) bool { return a.LoanedAt.Before(b.LoanedAt) }), nil
}

func (r *MemoryLoanRepository) MarkReturned(_ *gorm.DB, id uuid.UUID, returnedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	loan, ok := r.loans[id]
	if !ok || loan.ReturnedAt != nil {
		return ErrNotFound
	}
	at := returnedAt
	loan.ReturnedAt = &at
	loan.Status = models.LoanStatusReturned
	r.loans[id] = loan
	return nil
}

func (r *MemoryLoanRepository) MarkOverdue(_ *gorm.DB, ids []uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range ids {
		loan, ok := r.loans[id]
		if !ok || loan.Status != models.LoanStatusActive {
			continue
		}
		loan.Status = models.LoanStatusOverdue
		r.loans[id] = loan
	}
	return nil
}
