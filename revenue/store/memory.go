// Package store provides in-process revenue.TxStore implementations.
package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/warp/revenue-engine/revenue"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu    sync.RWMutex
	state memoryState
}

// memoryState holds every table. Slices keep insertion order; the engine
// relies on it for tier tie-breaks and fee ordering.
type memoryState struct {
	tiers        []revenue.Tier
	products     []revenue.Product
	clients      []revenue.Client
	associations []revenue.ClientProductAssociation
	events       []revenue.RevenueEvent
	invoices     []revenue.PeriodInvoice
	sequences    map[revenue.Line]int64
}

func NewMemory() *Memory {
	return &Memory{state: memoryState{sequences: make(map[revenue.Line]int64)}}
}

func (m *Memory) InsertTier(_ context.Context, t revenue.Tier) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.insertTier(t)
}

func (m *Memory) ListTiers(_ context.Context, activeOnly bool) ([]revenue.Tier, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.listTiers(activeOnly), nil
}

func (m *Memory) InsertProduct(_ context.Context, p revenue.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.insertProduct(p)
}

func (m *Memory) ListProducts(_ context.Context, line revenue.Line, activeOnly bool) ([]revenue.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.listProducts(line, activeOnly), nil
}

func (m *Memory) InsertClient(_ context.Context, c revenue.Client) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.insertClient(c)
}

func (m *Memory) GetClient(_ context.Context, id revenue.ClientID) (*revenue.Client, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.getClient(id), nil
}

func (m *Memory) ListClients(_ context.Context, line revenue.Line) ([]revenue.Client, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.listClients(line), nil
}

func (m *Memory) UpdateClientStatus(_ context.Context, id revenue.ClientID, status revenue.ClientStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.updateClientStatus(id, status)
}

func (m *Memory) InsertAssociation(_ context.Context, a revenue.ClientProductAssociation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.insertAssociation(a)
}

func (m *Memory) CloseAssociations(_ context.Context, clientID revenue.ClientID, productID revenue.ProductID, end time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.closeAssociations(clientID, productID, end), nil
}

func (m *Memory) AppendEvent(_ context.Context, e revenue.RevenueEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.appendEvent(e)
}

func (m *Memory) ListEvents(_ context.Context, q revenue.EventQuery) ([]revenue.RevenueEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.listEvents(q), nil
}

func (m *Memory) GetInvoice(_ context.Context, key revenue.InvoiceKey) (*revenue.PeriodInvoice, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.getInvoice(func(inv revenue.PeriodInvoice) bool { return inv.Key() == key }), nil
}

func (m *Memory) GetInvoiceByID(_ context.Context, id revenue.InvoiceID) (*revenue.PeriodInvoice, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.getInvoice(func(inv revenue.PeriodInvoice) bool { return inv.ID == id }), nil
}

func (m *Memory) SaveInvoice(_ context.Context, inv revenue.PeriodInvoice) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.saveInvoice(inv)
	return nil
}

func (m *Memory) ListInvoices(_ context.Context, q revenue.InvoiceQuery) ([]revenue.PeriodInvoice, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.listInvoices(q), nil
}

func (m *Memory) NextInvoiceSequence(_ context.Context, line revenue.Line) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.nextSequence(line), nil
}

// =============================================================================
// STATE OPERATIONS - Callers hold the lock
// =============================================================================

func (s *memoryState) insertTier(t revenue.Tier) error {
	for _, existing := range s.tiers {
		if existing.ID == t.ID {
			return duplicate("tiers", string(t.ID))
		}
	}
	s.tiers = append(s.tiers, t)
	return nil
}

func (s *memoryState) listTiers(activeOnly bool) []revenue.Tier {
	result := make([]revenue.Tier, 0, len(s.tiers))
	for _, t := range s.tiers {
		if activeOnly && !t.IsActive {
			continue
		}
		result = append(result, t)
	}
	return result
}

func (s *memoryState) insertProduct(p revenue.Product) error {
	for _, existing := range s.products {
		if existing.ID == p.ID {
			return duplicate("products", string(p.ID))
		}
	}
	s.products = append(s.products, p)
	return nil
}

func (s *memoryState) listProducts(line revenue.Line, activeOnly bool) []revenue.Product {
	result := make([]revenue.Product, 0)
	for _, p := range s.products {
		if line != "" && p.Line != line {
			continue
		}
		if activeOnly && !p.IsActive {
			continue
		}
		result = append(result, p)
	}
	return result
}

func (s *memoryState) insertClient(c revenue.Client) error {
	if s.getClient(c.ID) != nil {
		return duplicate("clients", string(c.ID))
	}
	c.Associations = nil
	s.clients = append(s.clients, c)
	return nil
}

func (s *memoryState) getClient(id revenue.ClientID) *revenue.Client {
	for _, c := range s.clients {
		if c.ID == id {
			c.Associations = s.associationsOf(id)
			return &c
		}
	}
	return nil
}

func (s *memoryState) listClients(line revenue.Line) []revenue.Client {
	result := make([]revenue.Client, 0)
	for _, c := range s.clients {
		if line != "" && c.Line != line {
			continue
		}
		c.Associations = s.associationsOf(c.ID)
		result = append(result, c)
	}
	return result
}

func (s *memoryState) updateClientStatus(id revenue.ClientID, status revenue.ClientStatus) error {
	for i := range s.clients {
		if s.clients[i].ID == id {
			s.clients[i].Status = status
			return nil
		}
	}
	return revenue.ErrClientNotFound
}

func (s *memoryState) associationsOf(id revenue.ClientID) []revenue.ClientProductAssociation {
	result := make([]revenue.ClientProductAssociation, 0)
	for _, a := range s.associations {
		if a.ClientID == id {
			result = append(result, a)
		}
	}
	return result
}

func (s *memoryState) insertAssociation(a revenue.ClientProductAssociation) error {
	for _, existing := range s.associations {
		if existing.ID == a.ID {
			return duplicate("client_products", string(a.ID))
		}
	}
	s.associations = append(s.associations, a)
	return nil
}

func (s *memoryState) closeAssociations(clientID revenue.ClientID, productID revenue.ProductID, end time.Time) int {
	closed := 0
	for i := range s.associations {
		a := &s.associations[i]
		if a.ClientID != clientID || a.ProductID != productID || a.EndDate != nil {
			continue
		}
		e := end
		a.EndDate = &e
		closed++
	}
	return closed
}

func (s *memoryState) appendEvent(e revenue.RevenueEvent) error {
	for _, existing := range s.events {
		if existing.ID == e.ID {
			return duplicate("revenue_events", string(e.ID))
		}
	}
	e.Fees = append([]revenue.ProductFee{}, e.Fees...)
	s.events = append(s.events, e)
	return nil
}

func (s *memoryState) listEvents(q revenue.EventQuery) []revenue.RevenueEvent {
	result := make([]revenue.RevenueEvent, 0)
	for _, e := range s.events {
		if q.Match(e) {
			e.Fees = append([]revenue.ProductFee{}, e.Fees...)
			result = append(result, e)
		}
	}
	return result
}

func (s *memoryState) getInvoice(match func(revenue.PeriodInvoice) bool) *revenue.PeriodInvoice {
	for _, inv := range s.invoices {
		if match(inv) {
			return &inv
		}
	}
	return nil
}

func (s *memoryState) saveInvoice(inv revenue.PeriodInvoice) {
	for i := range s.invoices {
		if s.invoices[i].Key() == inv.Key() {
			inv.ID = s.invoices[i].ID
			s.invoices[i] = inv
			return
		}
	}
	s.invoices = append(s.invoices, inv)
}

func (s *memoryState) listInvoices(q revenue.InvoiceQuery) []revenue.PeriodInvoice {
	result := make([]revenue.PeriodInvoice, 0)
	for _, inv := range s.invoices {
		if q.Match(inv) {
			result = append(result, inv)
		}
	}
	return result
}

func (s *memoryState) nextSequence(line revenue.Line) int64 {
	s.sequences[line]++
	return s.sequences[line]
}

func (s *memoryState) clone() memoryState {
	c := memoryState{
		tiers:        append([]revenue.Tier{}, s.tiers...),
		products:     append([]revenue.Product{}, s.products...),
		clients:      append([]revenue.Client{}, s.clients...),
		associations: append([]revenue.ClientProductAssociation{}, s.associations...),
		events:       append([]revenue.RevenueEvent{}, s.events...),
		invoices:     append([]revenue.PeriodInvoice{}, s.invoices...),
		sequences:    make(map[revenue.Line]int64, len(s.sequences)),
	}
	for k, v := range s.sequences {
		c.sequences[k] = v
	}
	return c
}

func duplicate(table, id string) error {
	return fmt.Errorf("%w: %s %s", revenue.ErrDuplicate, table, id)
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// TxMemory wraps Memory with transaction support.
type TxMemory struct {
	*Memory
}

func NewTxMemory() *TxMemory {
	return &TxMemory{Memory: NewMemory()}
}

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
func (tm *TxMemory) WithTx(_ context.Context, fn func(revenue.Store) error) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	snapshot := tm.state.clone()
	if err := fn(&txMemoryView{state: &tm.state}); err != nil {
		tm.state = snapshot
		return err
	}
	return nil
}

// txMemoryView is the Store handed to WithTx callbacks. The outer lock is
// already held, so it works on the state directly.
type txMemoryView struct {
	state *memoryState
}

func (tv *txMemoryView) InsertTier(_ context.Context, t revenue.Tier) error {
	return tv.state.insertTier(t)
}

func (tv *txMemoryView) ListTiers(_ context.Context, activeOnly bool) ([]revenue.Tier, error) {
	return tv.state.listTiers(activeOnly), nil
}

func (tv *txMemoryView) InsertProduct(_ context.Context, p revenue.Product) error {
	return tv.state.insertProduct(p)
}

func (tv *txMemoryView) ListProducts(_ context.Context, line revenue.Line, activeOnly bool) ([]revenue.Product, error) {
	return tv.state.listProducts(line, activeOnly), nil
}

func (tv *txMemoryView) InsertClient(_ context.Context, c revenue.Client) error {
	return tv.state.insertClient(c)
}

func (tv *txMemoryView) GetClient(_ context.Context, id revenue.ClientID) (*revenue.Client, error) {
	return tv.state.getClient(id), nil
}

func (tv *txMemoryView) ListClients(_ context.Context, line revenue.Line) ([]revenue.Client, error) {
	return tv.state.listClients(line), nil
}

func (tv *txMemoryView) UpdateClientStatus(_ context.Context, id revenue.ClientID, status revenue.ClientStatus) error {
	return tv.state.updateClientStatus(id, status)
}

func (tv *txMemoryView) InsertAssociation(_ context.Context, a revenue.ClientProductAssociation) error {
	return tv.state.insertAssociation(a)
}

func (tv *txMemoryView) CloseAssociations(_ context.Context, clientID revenue.ClientID, productID revenue.ProductID, end time.Time) (int, error) {
	return tv.state.closeAssociations(clientID, productID, end), nil
}

func (tv *txMemoryView) AppendEvent(_ context.Context, e revenue.RevenueEvent) error {
	return tv.state.appendEvent(e)
}

func (tv *txMemoryView) ListEvents(_ context.Context, q revenue.EventQuery) ([]revenue.RevenueEvent, error) {
	return tv.state.listEvents(q), nil
}

func (tv *txMemoryView) GetInvoice(_ context.Context, key revenue.InvoiceKey) (*revenue.PeriodInvoice, error) {
	return tv.state.getInvoice(func(inv revenue.PeriodInvoice) bool { return inv.Key() == key }), nil
}

func (tv *txMemoryView) GetInvoiceByID(_ context.Context, id revenue.InvoiceID) (*revenue.PeriodInvoice, error) {
	return tv.state.getInvoice(func(inv revenue.PeriodInvoice) bool { return inv.ID == id }), nil
}

func (tv *txMemoryView) SaveInvoice(_ context.Context, inv revenue.PeriodInvoice) error {
	tv.state.saveInvoice(inv)
	return nil
}

func (tv *txMemoryView) ListInvoices(_ context.Context, q revenue.InvoiceQuery) ([]revenue.PeriodInvoice, error) {
	return tv.state.listInvoices(q), nil
}

func (tv *txMemoryView) NextInvoiceSequence(_ context.Context, line revenue.Line) (int64, error) {
	return tv.state.nextSequence(line), nil
}
