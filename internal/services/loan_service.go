package services

import (
	"errors"
	"log"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"biblioteca/internal/models"
	"biblioteca/internal/repositories"
)

// ─── Loan Term Constants ──────────────────────────────────────────────────────

const (
	// DefaultLoanDays is the loan period applied when a request does not ask
	// for a specific number of days.
	DefaultLoanDays = 15

	// MaxLoanDays caps the loan period. Requests asking for more days are
	// silently capped, not rejected.
	MaxLoanDays = 30

	// MaxMaterialsPerLoan bounds both a single request and the reader's total
	// outstanding borrowed items across all active and overdue loans.
	MaxMaterialsPerLoan = 5
)

// ─── Service Interface ────────────────────────────────────────────────────────

// LoanService defines the application-level operations of the loan system.
type LoanService interface {
	RegisterReader(name, email, address string, zone models.Zone) (*models.Reader, error)
	SetReaderStatus(readerID uuid.UUID, status models.ReaderStatus) (*models.Reader, error)

	AddMaterial(materialType models.MaterialType, title, author, custodian string, acquiredAt time.Time) (*models.Material, error)
	ListMaterials() ([]models.Material, error)

	CreateLoan(readerID uuid.UUID, materialIDs []uuid.UUID, requestedDays int, requestKey string) (*models.Loan, error)
	ReturnLoan(loanID uuid.UUID, returnedAt time.Time) (*models.Loan, error)
	SweepOverdue(reference time.Time) ([]models.Loan, error)
	MaterialAvailable(materialID uuid.UUID) (bool, error)
	ListReaderLoans(readerID uuid.UUID) ([]models.Loan, error)
}

// ─── Implementation ───────────────────────────────────────────────────────────

type loanService struct {
	db           *gorm.DB // nil when running on in-memory repositories
	readerRepo   repositories.ReaderRepository
	materialRepo repositories.MaterialRepository
	loanRepo     repositories.LoanRepository
	holds        *holdIndex
}

// NewLoanService wires up all dependencies and seeds the material hold index
// from the outstanding loans, so availability survives restarts.
func NewLoanService(
	db *gorm.DB,
	readerRepo repositories.ReaderRepository,
	materialRepo repositories.MaterialRepository,
	loanRepo repositories.LoanRepository,
) (LoanService, error) {
	outstanding, err := loanRepo.ListOutstanding(nil)
	if err != nil {
		return nil, repositoryUnavailable(err)
	}
	holds := newHoldIndex()
	holds.rebuild(outstanding)

	return &loanService{
		db:           db,
		readerRepo:   readerRepo,
		materialRepo: materialRepo,
		loanRepo:     loanRepo,
		holds:        holds,
	}, nil
}

// inTransaction runs fn inside a database transaction, or directly when the
// service is backed by in-memory repositories.
func (s *loanService) inTransaction(fn func(tx *gorm.DB) error) error {
	if s.db == nil {
		return fn(nil)
	}
	return s.db.Transaction(fn)
}

// asDomain makes sure every error leaving the service is a DomainError.
// Commit failures surface from gorm.DB.Transaction itself, outside the
// closure, and would otherwise reach the caller raw.
func asDomain(err error) error {
	if err == nil || KindOf(err) != "" {
		return err
	}
	return repositoryUnavailable(err)
}

// ─── Reader Management ────────────────────────────────────────────────────────

// RegisterReader creates an active reader. The email is the business key:
// registering an email that is already on file fails, whatever the other
// fields say.
func (s *loanService) RegisterReader(name, email, address string, zone models.Zone) (*models.Reader, error) {
	if name == "" || email == "" {
		return nil, invalidRequest("El nombre y el email son obligatorios")
	}
	if !models.ValidZones[zone] {
		return nil, invalidRequest("Zona desconocida")
	}

	reader := &models.Reader{
		ID:           uuid.New(),
		Name:         name,
		Email:        email,
		Address:      address,
		Zone:         zone,
		Status:       models.ReaderStatusActive,
		RegisteredAt: time.Now().UTC(),
	}

	err := s.inTransaction(func(tx *gorm.DB) error {
		existing, err := s.readerRepo.GetByEmail(tx, email)
		if err != nil && !errors.Is(err, repositories.ErrNotFound) {
			return repositoryUnavailable(err)
		}
		if existing != nil {
			log.Printf("[WARN] RegisterReader: email %s already registered as reader %s", email, existing.ID)
			return ErrDuplicateReader
		}
		if err := s.readerRepo.Create(tx, reader); err != nil {
			// A racing registration can slip past the read above and land on
			// the unique email index instead.
			if errors.Is(err, repositories.ErrDuplicate) {
				log.Printf("[WARN] RegisterReader: email %s registered concurrently", email)
				return ErrDuplicateReader
			}
			log.Printf("[ERROR] RegisterReader: failed to create reader: %v", err)
			return repositoryUnavailable(err)
		}
		return nil
	})
	if err != nil {
		return nil, asDomain(err)
	}
	log.Printf("[INFO] RegisterReader: registered reader %q (id=%s, zone=%s)", reader.Name, reader.ID, reader.Zone)
	return reader, nil
}

// SetReaderStatus suspends or reactivates a reader. A suspended reader cannot
// take new loans but can still return materials already held.
func (s *loanService) SetReaderStatus(readerID uuid.UUID, status models.ReaderStatus) (*models.Reader, error) {
	if !models.ValidReaderStatuses[status] {
		return nil, invalidRequest("Estado de lector desconocido")
	}

	var updated *models.Reader
	err := s.inTransaction(func(tx *gorm.DB) error {
		if err := s.readerRepo.UpdateStatus(tx, readerID, status); err != nil {
			if errors.Is(err, repositories.ErrNotFound) {
				return ErrReaderNotFound
			}
			return repositoryUnavailable(err)
		}
		reader, err := s.readerRepo.GetByID(tx, readerID)
		if err != nil {
			return repositoryUnavailable(err)
		}
		updated = reader
		return nil
	})
	if err != nil {
		return nil, asDomain(err)
	}
	log.Printf("[INFO] SetReaderStatus: reader %s is now %s", readerID, status)
	return updated, nil
}

// ─── Material Management ──────────────────────────────────────────────────────

// AddMaterial registers a lendable item. New materials are available
// immediately: availability is derived from loans, never stored.
func (s *loanService) AddMaterial(materialType models.MaterialType, title, author, custodian string, acquiredAt time.Time) (*models.Material, error) {
	if !models.ValidMaterialTypes[materialType] {
		return nil, invalidRequest("Tipo de material desconocido")
	}
	if title == "" {
		return nil, invalidRequest("El título es obligatorio")
	}
	if acquiredAt.IsZero() {
		acquiredAt = time.Now().UTC()
	}

	material := &models.Material{
		ID:         uuid.New(),
		Type:       materialType,
		Title:      title,
		Author:     author,
		Custodian:  custodian,
		AcquiredAt: acquiredAt,
	}
	if err := s.materialRepo.Create(nil, material); err != nil {
		log.Printf("[ERROR] AddMaterial: failed to create material: %v", err)
		return nil, repositoryUnavailable(err)
	}
	log.Printf("[INFO] AddMaterial: added %s", material.FullDescription())
	return material, nil
}

// ListMaterials returns the whole catalogue ordered by acquisition date.
func (s *loanService) ListMaterials() ([]models.Material, error) {
	materials, err := s.materialRepo.List(nil)
	if err != nil {
		return nil, repositoryUnavailable(err)
	}
	return materials, nil
}

// ─── Loan Creation ────────────────────────────────────────────────────────────

// CreateLoan implements the loan creation flow.
//
// Steps:
//  1. Validate the request shape (1..MaxMaterialsPerLoan distinct materials).
//  2. Reject a resubmitted request key (duplicate loan).
//  3. Resolve reader and materials, check eligibility (suspension, availability,
//     per-reader outstanding-items limit).
//  4. Claim every material atomically — all or nothing. Two requests racing on
//     a shared material: exactly one wins, the other fails unavailable.
//  5. Persist the loan as ACTIVE with the computed due date.
//
// Claims are rolled back if persistence fails, so a failed create reserves
// nothing.
func (s *loanService) CreateLoan(readerID uuid.UUID, materialIDs []uuid.UUID, requestedDays int, requestKey string) (*models.Loan, error) {
	if len(materialIDs) == 0 {
		return nil, invalidRequest("El préstamo debe incluir al menos un material")
	}
	if len(materialIDs) > MaxMaterialsPerLoan {
		return nil, ErrLoanLimitExceeded
	}
	if requestedDays < 0 {
		return nil, invalidRequest("La duración del préstamo no puede ser negativa")
	}
	seen := make(map[uuid.UUID]bool, len(materialIDs))
	for _, id := range materialIDs {
		if seen[id] {
			return nil, invalidRequest("El préstamo repite un material")
		}
		seen[id] = true
	}

	var loan *models.Loan
	var claimedBy uuid.UUID
	err := s.inTransaction(func(tx *gorm.DB) error {
		// Duplicate request detection (soft idempotency): same key, same
		// request — fail rather than silently succeed. The unique index on
		// request_key is the backstop for requests racing past this read.
		if requestKey != "" {
			existing, err := s.loanRepo.GetByRequestKey(tx, requestKey)
			if err != nil && !errors.Is(err, repositories.ErrNotFound) {
				return repositoryUnavailable(err)
			}
			if existing != nil {
				log.Printf("[WARN] CreateLoan: request key %q already used by loan %s", requestKey, existing.ID)
				return ErrDuplicateLoanRequest
			}
		}

		reader, err := s.readerRepo.GetByID(tx, readerID)
		if err != nil {
			if errors.Is(err, repositories.ErrNotFound) {
				return ErrReaderNotFound
			}
			return repositoryUnavailable(err)
		}

		materials := make([]models.Material, 0, len(materialIDs))
		for _, id := range materialIDs {
			material, err := s.materialRepo.GetByID(tx, id)
			if err != nil {
				if errors.Is(err, repositories.ErrNotFound) {
					return ErrMaterialNotFound
				}
				return repositoryUnavailable(err)
			}
			materials = append(materials, *material)
		}

		if err := s.checkEligibility(tx, reader, materials); err != nil {
			return err
		}

		loanID := uuid.New()

		// Atomic claim: the authoritative availability check. The eligibility
		// read above can race with another create; this cannot.
		if conflict, ok := s.holds.claimAll(loanID, materialIDs); !ok {
			log.Printf("[INFO] CreateLoan: material %s claimed by a concurrent loan, rejecting request for reader %s", conflict, readerID)
			return ErrMaterialUnavailable
		}
		claimedBy = loanID

		loanedAt := time.Now().UTC()
		newLoan := &models.Loan{
			ID:         loanID,
			ReaderID:   readerID,
			RequestKey: requestKey,
			LoanedAt:   loanedAt,
			DueAt:      dueDate(loanedAt, requestedDays),
			Status:     models.LoanStatusActive,
		}
		for i, id := range materialIDs {
			newLoan.Items = append(newLoan.Items, models.LoanItem{
				ID:         uuid.New(),
				LoanID:     loanID,
				MaterialID: id,
				Position:   i,
			})
		}

		if err := s.loanRepo.Create(tx, newLoan); err != nil {
			if errors.Is(err, repositories.ErrDuplicate) {
				log.Printf("[WARN] CreateLoan: request key %q landed concurrently, rejecting duplicate for reader %s", requestKey, readerID)
				return ErrDuplicateLoanRequest
			}
			log.Printf("[ERROR] CreateLoan: failed to persist loan for reader %s: %v", readerID, err)
			return repositoryUnavailable(err)
		}
		loan = newLoan
		return nil
	})
	if err != nil {
		// A failed create reserves nothing: drop the claim whether the
		// closure failed or the commit itself did.
		if claimedBy != uuid.Nil {
			s.holds.releaseAll(claimedBy, materialIDs)
		}
		return nil, asDomain(err)
	}
	log.Printf("[INFO] CreateLoan: loan %s created for reader %s with %d material(s), due %s",
		loan.ID, readerID, len(loan.Items), loan.DueAt.Format("2006-01-02"))
	return loan, nil
}

// checkEligibility is the pure read-and-decide step: no side effects, no
// claims. The order of checks mirrors the user-facing rules — suspension
// first, then availability, then the outstanding-items limit.
func (s *loanService) checkEligibility(tx *gorm.DB, reader *models.Reader, materials []models.Material) error {
	if reader.Status == models.ReaderStatusSuspended {
		return ErrReaderSuspended
	}

	for _, material := range materials {
		if holder, held := s.holds.holder(material.ID); held {
			log.Printf("[INFO] checkEligibility: material %s held by loan %s", material.ID, holder)
			return ErrMaterialUnavailable
		}
	}

	// The limit is per reader's outstanding materials, not per request:
	// count items across every active and overdue loan the reader holds.
	outstanding, err := s.loanRepo.ListOutstandingByReader(tx, reader.ID)
	if err != nil {
		return repositoryUnavailable(err)
	}
	held := 0
	for _, loan := range outstanding {
		held += len(loan.Items)
	}
	if held+len(materials) > MaxMaterialsPerLoan {
		return ErrLoanLimitExceeded
	}
	return nil
}

// dueDate computes loanedAt + min(requestedDays or DefaultLoanDays,
// MaxLoanDays). Over-long requests are capped, not rejected.
func dueDate(loanedAt time.Time, requestedDays int) time.Time {
	days := requestedDays
	if days == 0 {
		days = DefaultLoanDays
	}
	if days > MaxLoanDays {
		days = MaxLoanDays
	}
	return loanedAt.AddDate(0, 0, days)
}

// ─── Return ───────────────────────────────────────────────────────────────────

// ReturnLoan implements the return flow.
//
// Steps (all in one transaction):
//  1. Lock the loan row and guard against double return.
//  2. Record the return date and transition to RETURNED — from ACTIVE or from
//     OVERDUE: late returns are allowed and recorded.
//  3. Release every held material after the transaction commits.
//
// A suspended reader can still return: only loan creation checks suspension.
func (s *loanService) ReturnLoan(loanID uuid.UUID, returnedAt time.Time) (*models.Loan, error) {
	if returnedAt.IsZero() {
		returnedAt = time.Now().UTC()
	}

	var returned *models.Loan
	err := s.inTransaction(func(tx *gorm.DB) error {
		loan, err := s.loanRepo.GetByIDForUpdate(tx, loanID)
		if err != nil {
			if errors.Is(err, repositories.ErrNotFound) {
				return ErrLoanNotFound
			}
			return repositoryUnavailable(err)
		}

		if loan.Status == models.LoanStatusReturned {
			log.Printf("[WARN] ReturnLoan: loan %s already returned at %s", loanID, loan.ReturnedAt)
			return ErrLoanAlreadyReturned
		}
		if returnedAt.Before(loan.LoanedAt) {
			return invalidRequest("La fecha de devolución es anterior a la fecha del préstamo")
		}

		if err := s.loanRepo.MarkReturned(tx, loan.ID, returnedAt); err != nil {
			// The loan was just read, so not-found here means its return date
			// is already set: a concurrent return got there first.
			if errors.Is(err, repositories.ErrNotFound) {
				log.Printf("[WARN] ReturnLoan: loan %s returned concurrently", loanID)
				return ErrLoanAlreadyReturned
			}
			log.Printf("[ERROR] ReturnLoan: failed to mark loan %s returned: %v", loanID, err)
			return repositoryUnavailable(err)
		}

		loan.ReturnedAt = &returnedAt
		loan.Status = models.LoanStatusReturned
		returned = loan
		return nil
	})
	if err != nil {
		return nil, asDomain(err)
	}

	// Release only after the commit: a material never looks available while a
	// failed return could still roll back.
	s.holds.releaseAll(returned.ID, returned.MaterialIDs())
	log.Printf("[INFO] ReturnLoan: loan %s returned, %d material(s) released", returned.ID, len(returned.Items))
	return returned, nil
}

// ─── Overdue Sweep ────────────────────────────────────────────────────────────

// SweepOverdue transitions every ACTIVE loan due before the reference date to
// OVERDUE and returns the transitioned loans. Idempotent: a second sweep with
// the same or a later reference finds no ACTIVE loan to transition again, and
// a sweep never un-expires a loan. Overdue loans keep holding their materials
// until returned.
func (s *loanService) SweepOverdue(reference time.Time) ([]models.Loan, error) {
	var swept []models.Loan
	err := s.inTransaction(func(tx *gorm.DB) error {
		due, err := s.loanRepo.ListActiveDueBefore(tx, reference)
		if err != nil {
			return repositoryUnavailable(err)
		}
		if len(due) == 0 {
			return nil
		}

		ids := make([]uuid.UUID, len(due))
		for i, loan := range due {
			ids[i] = loan.ID
		}
		if err := s.loanRepo.MarkOverdue(tx, ids); err != nil {
			log.Printf("[ERROR] SweepOverdue: failed to mark %d loan(s) overdue: %v", len(ids), err)
			return repositoryUnavailable(err)
		}

		for i := range due {
			due[i].Status = models.LoanStatusOverdue
		}
		swept = due
		return nil
	})
	if err != nil {
		return nil, asDomain(err)
	}
	if len(swept) > 0 {
		log.Printf("[INFO] SweepOverdue: %d loan(s) transitioned to OVERDUE (reference %s)", len(swept), reference.Format("2006-01-02"))
	}
	return swept, nil
}

// ─── Queries ──────────────────────────────────────────────────────────────────

// MaterialAvailable reports whether the material can be lent right now: true
// iff no active or overdue loan holds it.
func (s *loanService) MaterialAvailable(materialID uuid.UUID) (bool, error) {
	if _, err := s.materialRepo.GetByID(nil, materialID); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return false, ErrMaterialNotFound
		}
		return false, repositoryUnavailable(err)
	}
	_, held := s.holds.holder(materialID)
	return !held, nil
}

// ListReaderLoans returns the reader's full loan history, oldest first.
func (s *loanService) ListReaderLoans(readerID uuid.UUID) ([]models.Loan, error) {
	if _, err := s.readerRepo.GetByID(nil, readerID); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, ErrReaderNotFound
		}
		return nil, repositoryUnavailable(err)
	}
	loans, err := s.loanRepo.ListByReader(nil, readerID)
	if err != nil {
		return nil, repositoryUnavailable(err)
	}
	return loans, nil
}
