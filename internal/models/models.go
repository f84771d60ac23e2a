package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type MaterialType string

const (
	MaterialTypeBook           MaterialType = "BOOK"
	MaterialTypeSpecialArticle MaterialType = "SPECIAL_ARTICLE"
)

var ValidMaterialTypes = map[MaterialType]bool{
	MaterialTypeBook:           true,
	MaterialTypeSpecialArticle: true,
}

type ReaderStatus string

const (
	ReaderStatusActive    ReaderStatus = "ACTIVE"
	ReaderStatusSuspended ReaderStatus = "SUSPENDED"
)

var ValidReaderStatuses = map[ReaderStatus]bool{
	ReaderStatusActive:    true,
	ReaderStatusSuspended: true,
}

// Zone is the reader's regional grouping. Informational only: it never
// restricts access by itself.
type Zone string

const (
	ZoneNorte  Zone = "NORTE"
	ZoneSur    Zone = "SUR"
	ZoneEste   Zone = "ESTE"
	ZoneOeste  Zone = "OESTE"
	ZoneCentro Zone = "CENTRO"
)

var ValidZones = map[Zone]bool{
	ZoneNorte:  true,
	ZoneSur:    true,
	ZoneEste:   true,
	ZoneOeste:  true,
	ZoneCentro: true,
}

type LoanStatus string

const (
	LoanStatusActive   LoanStatus = "ACTIVE"
	LoanStatusReturned LoanStatus = "RETURNED"
	LoanStatusOverdue  LoanStatus = "OVERDUE"
)

// Material is any lendable item. The Type discriminator selects the concrete
// variant; there is no stored availability column — whether a material is
// available is derived from the outstanding loans that reference it.
type Material struct {
	ID         uuid.UUID    `gorm:"type:uuid;primaryKey" json:"id"`
	Type       MaterialType `gorm:"type:material_type;not null;index" json:"type"`
	Title      string       `gorm:"size:255;not null" json:"title"`
	Author     string       `gorm:"size:255" json:"author,omitempty"`
	Custodian  string       `gorm:"size:255" json:"custodian,omitempty"`
	AcquiredAt time.Time    `gorm:"not null" json:"acquired_at"`
}

// FullDescription renders the variant-specific description of the material.
func (m Material) FullDescription() string {
	switch m.Type {
	case MaterialTypeBook:
		if m.Author != "" {
			return fmt.Sprintf("Libro: %s, de %s", m.Title, m.Author)
		}
		return fmt.Sprintf("Libro: %s", m.Title)
	case MaterialTypeSpecialArticle:
		if m.Custodian != "" {
			return fmt.Sprintf("Artículo especial: %s (custodio: %s)", m.Title, m.Custodian)
		}
		return fmt.Sprintf("Artículo especial: %s", m.Title)
	default:
		return m.Title
	}
}

// SameMaterialAs reports identity equality: two materials are the same item
// iff they share an ID, regardless of any other field.
func (m Material) SameMaterialAs(other Material) bool {
	return m.ID == other.ID
}

// Reader is a library member. The email is the business key: two readers with
// the same email are the same person even if every other field differs.
type Reader struct {
	ID           uuid.UUID    `gorm:"type:uuid;primaryKey" json:"id"`
	Name         string       `gorm:"size:255;not null" json:"name"`
	Email        string       `gorm:"size:255;not null;uniqueIndex" json:"email"`
	Address      string       `gorm:"size:255" json:"address,omitempty"`
	Zone         Zone         `gorm:"type:reader_zone;not null" json:"zone"`
	Status       ReaderStatus `gorm:"type:reader_status;not null;index" json:"status"`
	RegisteredAt time.Time    `gorm:"not null" json:"registered_at"`
}

// SamePersonAs compares readers by email, case-insensitively.
func (r Reader) SamePersonAs(other Reader) bool {
	return strings.EqualFold(r.Email, other.Email)
}

// Loan ties a reader to between one and five materials for a bounded period.
// Loans are never deleted; returned and overdue loans are kept for history.
type Loan struct {
	ID         uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	ReaderID   uuid.UUID  `gorm:"type:uuid;not null;index" json:"reader_id"`
	Reader     Reader     `gorm:"constraint:OnUpdate:CASCADE,OnDelete:RESTRICT;" json:"-"`
	Items      []LoanItem `gorm:"constraint:OnDelete:CASCADE;" json:"items"`
	RequestKey string     `gorm:"size:64;uniqueIndex:uniq_loan_request_key,where:request_key <> ''" json:"request_key,omitempty"`
	LoanedAt   time.Time  `gorm:"not null" json:"loaned_at"`
	DueAt      time.Time  `gorm:"not null;index" json:"due_at"`
	ReturnedAt *time.Time `json:"returned_at"`
	Status     LoanStatus `gorm:"type:loan_status;not null;index" json:"status"`
}

// LoanItem is one material held by a loan. Position preserves the order the
// materials were requested in.
type LoanItem struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	LoanID     uuid.UUID `gorm:"type:uuid;not null;index" json:"loan_id"`
	MaterialID uuid.UUID `gorm:"type:uuid;not null;index" json:"material_id"`
	Material   Material  `gorm:"constraint:OnUpdate:CASCADE,OnDelete:RESTRICT;" json:"-"`
	Position   int       `gorm:"not null" json:"position"`
}

// Outstanding reports whether the loan still holds its materials.
func (l Loan) Outstanding() bool {
	return l.Status == LoanStatusActive || l.Status == LoanStatusOverdue
}

// MaterialIDs returns the loan's material IDs in request order.
func (l Loan) MaterialIDs() []uuid.UUID {
	ids := make([]uuid.UUID, len(l.Items))
	for i, item := range l.Items {
		ids[i] = item.MaterialID
	}
	return ids
}

// SameLoanAs reports identity equality by loan ID.
func (l Loan) SameLoanAs(other Loan) bool {
	return l.ID == other.ID
}
