package repository

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/helpdesk-engine/internal/domain"
	apperrors "github.com/spec-kit/helpdesk-engine/pkg/util"
)

var errTicketNotLocked = errors.New("ticket not locked by this transaction")

// MemoryStore is an in-process Store used for tests and local runs.
type MemoryStore struct {
	mu          sync.RWMutex
	tickets     map[string]*domain.Ticket
	numbers     map[string]string
	technicians map[string]*domain.Technician
	history     map[string][]domain.HistoryEntry

	ticketLocks *keyedLocks
	techLocks   *keyedLocks
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tickets:     make(map[string]*domain.Ticket),
		numbers:     make(map[string]string),
		technicians: make(map[string]*domain.Technician),
		history:     make(map[string][]domain.HistoryEntry),
		ticketLocks: newKeyedLocks(),
		techLocks:   newKeyedLocks(),
	}
}

func (s *MemoryStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	tx := &memoryTx{
		store:   s,
		tickets: make(map[string]*domain.Ticket),
		locked:  make(map[string]bool),
		techs:   make(map[string]bool),
		deleted: make(map[string]bool),
	}
	defer tx.release()

	if err := fn(ctx, tx); err != nil {
		return err
	}
	return tx.commit()
}

func (s *MemoryStore) FindTicket(_ context.Context, id string) (*domain.Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ticket, ok := s.tickets[id]
	if !ok {
		return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": id})
	}
	return ticket.Clone(), nil
}

func (s *MemoryStore) FindTicketByNumber(ctx context.Context, number string) (*domain.Ticket, error) {
	s.mu.RLock()
	id, ok := s.numbers[number]
	s.mu.RUnlock()
	if !ok {
		return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_number": number})
	}
	return s.FindTicket(ctx, id)
}

func (s *MemoryStore) ListEscalationCandidates(_ context.Context, cutoffs map[domain.TicketPriority]time.Time, limit int) ([]domain.Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []domain.Ticket
	for _, ticket := range s.tickets {
		if ticket.Escalated || ticket.Assigned() {
			continue
		}
		cutoff, ok := cutoffs[ticket.Priority]
		if !ok || !ticket.CreatedAt.Before(cutoff) {
			continue
		}
		switch ticket.Status {
		case domain.TicketStatusOpen, domain.TicketStatusAssigned, domain.TicketStatusInProgress:
			result = append(result, *ticket.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *MemoryStore) ListHistory(_ context.Context, ticketID string) ([]domain.HistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := s.history[ticketID]
	out := make([]domain.HistoryEntry, len(entries))
	copy(out, entries)
	return out, nil
}

func (s *MemoryStore) CreateTechnician(_ context.Context, technician *domain.Technician) error {
	if technician.ID == "" {
		technician.ID = uuid.NewString()
	}
	if technician.CreatedAt.IsZero() {
		technician.CreatedAt = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.technicians[technician.ID]; exists {
		return apperrors.NewConflict("technician already exists", map[string]any{"technician_id": technician.ID})
	}
	copied := *technician
	s.technicians[technician.ID] = &copied
	return nil
}

// Seed stores a ticket as-is, bypassing the lifecycle. Used for fixtures and imports.
func (s *MemoryStore) Seed(ticket *domain.Ticket) {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := ticket.Clone()
	if copied.ID == "" {
		copied.ID = uuid.NewString()
		ticket.ID = copied.ID
	}
	if copied.Version == 0 {
		copied.Version = 1
		ticket.Version = 1
	}
	s.tickets[copied.ID] = copied
	s.numbers[copied.TicketNumber] = copied.ID
}

// SetTechnicianStatus flips a technician's availability.
func (s *MemoryStore) SetTechnicianStatus(id string, status domain.TechnicianStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tech, ok := s.technicians[id]
	if !ok {
		return apperrors.NewNotFound("technician", map[string]any{"technician_id": id})
	}
	tech.Status = status
	return nil
}

func (s *MemoryStore) FindTechnician(_ context.Context, id string) (*domain.Technician, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tech, ok := s.technicians[id]
	if !ok {
		return nil, apperrors.NewNotFound("technician", map[string]any{"technician_id": id})
	}
	copied := *tech
	return &copied, nil
}

func (s *MemoryStore) CurrentWorkload(_ context.Context, technicianID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.workloadLocked(technicianID, ""), nil
}

func (s *MemoryStore) workloadLocked(technicianID, excludeTicketID string) int {
	count := 0
	for id, ticket := range s.tickets {
		if id == excludeTicketID {
			continue
		}
		if ticket.Assigned() && *ticket.AssignedTechnicianID == technicianID && ticket.Status.CountsTowardWorkload() {
			count++
		}
	}
	return count
}

type memoryTx struct {
	store   *MemoryStore
	tickets map[string]*domain.Ticket // staged inserts and updates
	inserts []string
	locked  map[string]bool
	techs   map[string]bool
	deleted map[string]bool
	history []domain.HistoryEntry
}

func (tx *memoryTx) LockTicket(ctx context.Context, id string) (*domain.Ticket, error) {
	id = strings.Clone(id)
	if staged, ok := tx.tickets[id]; ok && !tx.deleted[id] {
		return staged.Clone(), nil
	}
	if !tx.locked[id] {
		if err := tx.store.ticketLocks.lock(ctx, id); err != nil {
			return nil, apperrors.MapError(err)
		}
		tx.locked[id] = true
	}
	ticket, err := tx.store.FindTicket(ctx, id)
	if err != nil {
		return nil, err
	}
	tx.tickets[id] = ticket.Clone()
	return ticket, nil
}

func (tx *memoryTx) InsertTicket(_ context.Context, ticket *domain.Ticket) error {
	if ticket.ID == "" {
		ticket.ID = uuid.NewString()
	}
	tx.store.mu.RLock()
	_, numberTaken := tx.store.numbers[ticket.TicketNumber]
	_, idTaken := tx.store.tickets[ticket.ID]
	tx.store.mu.RUnlock()
	if numberTaken {
		return apperrors.NewConflict("ticket_number already exists", map[string]any{"ticket_number": ticket.TicketNumber})
	}
	if idTaken {
		return apperrors.NewConflict("ticket already exists", map[string]any{"ticket_id": ticket.ID})
	}
	if ticket.Version == 0 {
		ticket.Version = 1
	}
	tx.tickets[ticket.ID] = ticket.Clone()
	tx.inserts = append(tx.inserts, ticket.ID)
	return nil
}

func (tx *memoryTx) UpdateTicket(_ context.Context, ticket *domain.Ticket, expectedVersion int64) error {
	staged, ok := tx.tickets[ticket.ID]
	if !ok || tx.deleted[ticket.ID] {
		return apperrors.NewInternalError(errTicketNotLocked)
	}
	if staged.Version != expectedVersion {
		return apperrors.NewConcurrencyConflict("ticket", map[string]any{
			"ticket_id":        ticket.ID,
			"expected_version": expectedVersion,
			"actual_version":   staged.Version,
		})
	}
	ticket.Version = expectedVersion + 1
	tx.tickets[ticket.ID] = ticket.Clone()
	return nil
}

func (tx *memoryTx) DeleteTicket(_ context.Context, id string, expectedVersion int64) error {
	staged, ok := tx.tickets[id]
	if !ok || tx.deleted[id] {
		return apperrors.NewInternalError(errTicketNotLocked)
	}
	if staged.Version != expectedVersion {
		return apperrors.NewConcurrencyConflict("ticket", map[string]any{"ticket_id": id})
	}
	tx.deleted[staged.ID] = true
	return nil
}

func (tx *memoryTx) LockTechnician(ctx context.Context, id string) (*domain.Technician, error) {
	id = strings.Clone(id)
	if !tx.techs[id] {
		if err := tx.store.techLocks.lock(ctx, id); err != nil {
			return nil, apperrors.MapError(err)
		}
		tx.techs[id] = true
	}
	return tx.store.FindTechnician(ctx, id)
}

func (tx *memoryTx) CurrentWorkload(_ context.Context, technicianID, excludeTicketID string) (int, error) {
	tx.store.mu.RLock()
	defer tx.store.mu.RUnlock()
	// Other tickets staged by this transaction are counted by their staged state.
	count := 0
	for id, ticket := range tx.store.tickets {
		if id == excludeTicketID {
			continue
		}
		if staged, ok := tx.tickets[id]; ok {
			ticket = staged
		}
		if tx.deleted[id] {
			continue
		}
		if ticket.Assigned() && *ticket.AssignedTechnicianID == technicianID && ticket.Status.CountsTowardWorkload() {
			count++
		}
	}
	return count, nil
}

func (tx *memoryTx) AppendHistory(_ context.Context, entry *domain.HistoryEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	copied := *entry
	copied.OldValue = copyMap(entry.OldValue)
	copied.NewValue = copyMap(entry.NewValue)
	tx.history = append(tx.history, copied)
	return nil
}

func (tx *memoryTx) commit() error {
	s := tx.store
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range tx.inserts {
		number := tx.tickets[id].TicketNumber
		if _, taken := s.numbers[number]; taken {
			return apperrors.NewConflict("ticket_number already exists", map[string]any{"ticket_number": number})
		}
	}
	for id, ticket := range tx.tickets {
		if tx.deleted[id] {
			delete(s.numbers, ticket.TicketNumber)
			delete(s.tickets, id)
			continue
		}
		s.tickets[id] = ticket.Clone()
		s.numbers[ticket.TicketNumber] = id
	}
	for _, entry := range tx.history {
		s.history[entry.TicketID] = append(s.history[entry.TicketID], entry)
	}
	return nil
}

func (tx *memoryTx) release() {
	for id := range tx.locked {
		tx.store.ticketLocks.unlock(id)
	}
	for id := range tx.techs {
		tx.store.techLocks.unlock(id)
	}
}

func copyMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// keyedLocks hands out one exclusive, context-aware lock per key.
type keyedLocks struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	ch   chan struct{}
	refs int
}

func newKeyedLocks() *keyedLocks {
	return &keyedLocks{locks: make(map[string]*keyedLock)}
}

// lock stores its own copy of key; callers may pass strings backed by
// reused request buffers.
func (k *keyedLocks) lock(ctx context.Context, key string) error {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyedLock{ch: make(chan struct{}, 1)}
		k.locks[strings.Clone(key)] = l
	}
	l.refs++
	k.mu.Unlock()

	select {
	case l.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		k.drop(key, l)
		return ctx.Err()
	}
}

func (k *keyedLocks) unlock(key string) {
	k.mu.Lock()
	l, ok := k.locks[key]
	k.mu.Unlock()
	if !ok {
		return
	}
	<-l.ch
	k.drop(key, l)
}

func (k *keyedLocks) drop(key string, l *keyedLock) {
	k.mu.Lock()
	defer k.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(k.locks, key)
	}
}
