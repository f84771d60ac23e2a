package services

import (
	"bytes"
	"sort"
	"sync"

	"github.com/google/uuid"

	"biblioteca/internal/models"
)

// holdIndex tracks which loan currently holds each material. It is the
// in-process authority for availability: a material is lendable iff its slot
// is free. Locking is per material, so claims on disjoint material sets never
// block each other.
type holdIndex struct {
	mu    sync.RWMutex // guards the slots map, not the slots themselves
	slots map[uuid.UUID]*holdSlot
}

type holdSlot struct {
	mu     sync.Mutex
	holder uuid.UUID // loan ID, uuid.Nil when free
}

func newHoldIndex() *holdIndex {
	return &holdIndex{slots: make(map[uuid.UUID]*holdSlot)}
}

func (ix *holdIndex) slot(materialID uuid.UUID) *holdSlot {
	ix.mu.RLock()
	s, ok := ix.slots[materialID]
	ix.mu.RUnlock()
	if ok {
		return s
	}
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if s, ok = ix.slots[materialID]; ok {
		return s
	}
	s = &holdSlot{}
	ix.slots[materialID] = s
	return s
}

// sortedUnique returns the IDs in ascending byte order with duplicates
// dropped. Locking slots in a global order keeps multi-material claims
// deadlock-free.
func sortedUnique(ids []uuid.UUID) []uuid.UUID {
	sorted := make([]uuid.UUID, len(ids))
	copy(sorted, ids)
	sort.Slice(sorted, func(i, j int) bool {
		return bytes.Compare(sorted[i][:], sorted[j][:]) < 0
	})
	unique := sorted[:0]
	for i, id := range sorted {
		if i == 0 || id != sorted[i-1] {
			unique = append(unique, id)
		}
	}
	return unique
}

// claimAll atomically marks every material as held by loanID. All-or-nothing:
// if any material is already held, nothing is claimed and the conflicting
// material ID is returned. Exactly one of two racing claims for a shared
// material can succeed.
func (ix *holdIndex) claimAll(loanID uuid.UUID, materialIDs []uuid.UUID) (uuid.UUID, bool) {
	ordered := sortedUnique(materialIDs)
	slots := make([]*holdSlot, len(ordered))
	for i, id := range ordered {
		slots[i] = ix.slot(id)
		slots[i].mu.Lock()
	}
	defer func() {
		for i := len(slots) - 1; i >= 0; i-- {
			slots[i].mu.Unlock()
		}
	}()

	for i, s := range slots {
		if s.holder != uuid.Nil {
			return ordered[i], false
		}
	}
	for _, s := range slots {
		s.holder = loanID
	}
	return uuid.Nil, true
}

// releaseAll frees every material held by loanID. Materials held by another
// loan are left untouched, so a release can never undo a competitor's claim.
func (ix *holdIndex) releaseAll(loanID uuid.UUID, materialIDs []uuid.UUID) {
	for _, id := range sortedUnique(materialIDs) {
		s := ix.slot(id)
		s.mu.Lock()
		if s.holder == loanID {
			s.holder = uuid.Nil
		}
		s.mu.Unlock()
	}
}

// holder returns the loan currently holding the material, if any.
func (ix *holdIndex) holder(materialID uuid.UUID) (uuid.UUID, bool) {
	s := ix.slot(materialID)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.holder == uuid.Nil {
		return uuid.Nil, false
	}
	return s.holder, true
}

// rebuild seeds the index from the outstanding loans, replacing any prior
// state. Called once at startup before the service accepts requests.
func (ix *holdIndex) rebuild(loans []models.Loan) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.slots = make(map[uuid.UUID]*holdSlot)
	for _, loan := range loans {
		if !loan.Outstanding() {
			continue
		}
		for _, item := range loan.Items {
			ix.slots[item.MaterialID] = &holdSlot{holder: loan.ID}
		}
	}
}
