/*
store.go - Ledger store contract consumed by the engine

PURPOSE:
  Defines the interface between the revenue engine and persistence. The
  engine never assumes a storage format; it reads and writes typed records.

KEY INTERFACES:
  Store:   Create/read/update primitives over tiers, products, clients,
           associations, revenue events and invoices
  TxStore: Store plus an atomic transaction boundary

APPEND-ONLY RECORDS:
  Revenue events have no update or delete path. Associations are closed,
  never edited. Invoices are upserted by key.

MISSING RECORDS:
  Get* methods return (nil, nil) when the record does not exist.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: SQLite
  - revenue/store/memory.go: In-memory for testing

SEE ALSO:
  - engine.go: Uses Store inside WithTx for every multi-statement write
*/
package revenue

import (
	"context"
	"time"
)

// EventQuery selects revenue events. Zero fields match everything.
// From is inclusive, Until exclusive.
type EventQuery struct {
	Line     Line
	ClientID ClientID
	From     *time.Time
	Until    *time.Time
}

// Match reports whether e satisfies the query.
func (q EventQuery) Match(e RevenueEvent) bool {
	if q.Line != "" && e.Line != q.Line {
		return false
	}
	if q.ClientID != NoClient && e.ClientID != q.ClientID {
		return false
	}
	if q.From != nil && e.Date.Before(*q.From) {
		return false
	}
	if q.Until != nil && !e.Date.Before(*q.Until) {
		return false
	}
	return true
}

// InvoiceQuery selects invoices. Zero fields match everything.
type InvoiceQuery struct {
	Line     Line
	ClientID ClientID
	Status   InvoiceStatus
}

// Match reports whether inv satisfies the query.
func (q InvoiceQuery) Match(inv PeriodInvoice) bool {
	if q.Line != "" && inv.Line != q.Line {
		return false
	}
	if q.ClientID != NoClient && inv.ClientID != q.ClientID {
		return false
	}
	return q.Status == "" || inv.Status == q.Status
}

// Store handles persistence of engine records.
type Store interface {
	InsertTier(ctx context.Context, t Tier) error
	ListTiers(ctx context.Context, activeOnly bool) ([]Tier, error)

	InsertProduct(ctx context.Context, p Product) error
	ListProducts(ctx context.Context, line Line, activeOnly bool) ([]Product, error)

	InsertClient(ctx context.Context, c Client) error
	// GetClient returns the client with all of its associations.
	GetClient(ctx context.Context, id ClientID) (*Client, error)
	ListClients(ctx context.Context, line Line) ([]Client, error)
	UpdateClientStatus(ctx context.Context, id ClientID, status ClientStatus) error

	InsertAssociation(ctx context.Context, a ClientProductAssociation) error
	// CloseAssociations sets end on every open association of client and
	// product and returns how many were closed.
	CloseAssociations(ctx context.Context, clientID ClientID, productID ProductID, end time.Time) (int, error)

	// AppendEvent persists an event and its fee breakdown.
	AppendEvent(ctx context.Context, e RevenueEvent) error
	ListEvents(ctx context.Context, q EventQuery) ([]RevenueEvent, error)

	GetInvoice(ctx context.Context, key InvoiceKey) (*PeriodInvoice, error)
	GetInvoiceByID(ctx context.Context, id InvoiceID) (*PeriodInvoice, error)
	// SaveInvoice inserts or replaces the invoice stored under inv.Key().
	SaveInvoice(ctx context.Context, inv PeriodInvoice) error
	ListInvoices(ctx context.Context, q InvoiceQuery) ([]PeriodInvoice, error)

	// NextInvoiceSequence increments and returns the sequence for line.
	NextInvoiceSequence(ctx context.Context, line Line) (int64, error)
}

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, every write made through the Store passed to fn
	// is rolled back. If fn returns nil, the writes are committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}
