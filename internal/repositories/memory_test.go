package repositories

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"biblioteca/internal/models"
)

func newLoan(readerID uuid.UUID, status models.LoanStatus, dueAt time.Time) models.Loan {
	loanID := uuid.New()
	return models.Loan{
		ID:       loanID,
		ReaderID: readerID,
		Items: []models.LoanItem{
			{ID: uuid.New(), LoanID: loanID, MaterialID: uuid.New(), Position: 0},
		},
		LoanedAt: dueAt.AddDate(0, 0, -15),
		DueAt:    dueAt,
		Status:   status,
	}
}

func TestMemoryLoanRepositoryOutstandingFilters(t *testing.T) {
	repo := NewMemoryLoanRepository()
	readerID := uuid.New()
	now := time.Now().UTC()

	active := newLoan(readerID, models.LoanStatusActive, now.AddDate(0, 0, 5))
	overdue := newLoan(readerID, models.LoanStatusOverdue, now.AddDate(0, 0, -5))
	returned := newLoan(readerID, models.LoanStatusReturned, now)
	other := newLoan(uuid.New(), models.LoanStatusActive, now)

	for _, loan := range []models.Loan{active, overdue, returned, other} {
		loan := loan
		require.NoError(t, repo.Create(nil, &loan))
	}

	outstanding, err := repo.ListOutstandingByReader(nil, readerID)
	require.NoError(t, err)
	assert.Len(t, outstanding, 2, "active and overdue count, returned does not")

	all, err := repo.ListOutstanding(nil)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestMemoryLoanRepositoryDueBeforeAndOverdue(t *testing.T) {
	repo := NewMemoryLoanRepository()
	readerID := uuid.New()
	now := time.Now().UTC()

	due := newLoan(readerID, models.LoanStatusActive, now.AddDate(0, 0, -1))
	current := newLoan(readerID, models.LoanStatusActive, now.AddDate(0, 0, 10))
	for _, loan := range []models.Loan{due, current} {
		loan := loan
		require.NoError(t, repo.Create(nil, &loan))
	}

	expired, err := repo.ListActiveDueBefore(nil, now)
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, due.ID, expired[0].ID)

	require.NoError(t, repo.MarkOverdue(nil, []uuid.UUID{due.ID, current.ID, uuid.New()}))

	reloaded, err := repo.GetByID(nil, due.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LoanStatusOverdue, reloaded.Status)

	// MarkOverdue marks any listed ACTIVE loan; selecting which loans are due
	// is the caller's job.
	reloaded, err = repo.GetByID(nil, current.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LoanStatusOverdue, reloaded.Status)
}

func TestMemoryLoanRepositoryMarkReturned(t *testing.T) {
	repo := NewMemoryLoanRepository()
	loan := newLoan(uuid.New(), models.LoanStatusActive, time.Now().UTC())
	require.NoError(t, repo.Create(nil, &loan))

	returnedAt := time.Now().UTC()
	require.NoError(t, repo.MarkReturned(nil, loan.ID, returnedAt))

	reloaded, err := repo.GetByID(nil, loan.ID)
	require.NoError(t, err)
	require.NotNil(t, reloaded.ReturnedAt)
	assert.Equal(t, models.LoanStatusReturned, reloaded.Status)

	// Second mark fails: the return date is immutable once set.
	assert.ErrorIs(t, repo.MarkReturned(nil, loan.ID, returnedAt.Add(time.Hour)), ErrNotFound)
}

func TestMemoryLoanRepositoryRequestKey(t *testing.T) {
	repo := NewMemoryLoanRepository()
	loan := newLoan(uuid.New(), models.LoanStatusActive, time.Now().UTC())
	loan.RequestKey = "req-42"
	require.NoError(t, repo.Create(nil, &loan))

	found, err := repo.GetByRequestKey(nil, "req-42")
	require.NoError(t, err)
	assert.Equal(t, loan.ID, found.ID)

	_, err = repo.GetByRequestKey(nil, "req-missing")
	assert.ErrorIs(t, err, ErrNotFound)

	// The request key is unique: a second insert with the same key is
	// rejected atomically, empty keys never collide.
	duplicate := newLoan(uuid.New(), models.LoanStatusActive, time.Now().UTC())
	duplicate.RequestKey = "req-42"
	assert.ErrorIs(t, repo.Create(nil, &duplicate), ErrDuplicate)

	unkeyed := newLoan(uuid.New(), models.LoanStatusActive, time.Now().UTC())
	require.NoError(t, repo.Create(nil, &unkeyed))
	another := newLoan(uuid.New(), models.LoanStatusActive, time.Now().UTC())
	require.NoError(t, repo.Create(nil, &another))
}

func TestMemoryReaderRepositoryEmailLookupIsCaseInsensitive(t *testing.T) {
	repo := NewMemoryReaderRepository()
	reader := &models.Reader{
		ID:     uuid.New(),
		Name:   "Ana Pérez",
		Email:  "ana@example.com",
		Zone:   models.ZoneCentro,
		Status: models.ReaderStatusActive,
	}
	require.NoError(t, repo.Create(nil, reader))

	found, err := repo.GetByEmail(nil, "ANA@EXAMPLE.COM")
	require.NoError(t, err)
	assert.Equal(t, reader.ID, found.ID)

	// The email is unique, matching the database index on readers.email.
	duplicate := &models.Reader{
		ID:     uuid.New(),
		Name:   "Otra Persona",
		Email:  "Ana@Example.com",
		Zone:   models.ZoneSur,
		Status: models.ReaderStatusActive,
	}
	assert.ErrorIs(t, repo.Create(nil, duplicate), ErrDuplicate)
}

func TestMemoryRepositoriesReturnCopies(t *testing.T) {
	repo := NewMemoryLoanRepository()
	loan := newLoan(uuid.New(), models.LoanStatusActive, time.Now().UTC())
	require.NoError(t, repo.Create(nil, &loan))

	first, err := repo.GetByID(nil, loan.ID)
	require.NoError(t, err)
	first.Status = models.LoanStatusReturned
	first.Items[0].Position = 99

	second, err := repo.GetByID(nil, loan.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LoanStatusActive, second.Status, "mutating a result must not leak into the store")
	assert.Equal(t, 0, second.Items[0].Position)
}
