/*
Package sqlite provides a SQLite-backed implementation of revenue.TxStore.

PURPOSE:
  Persists tiers, products, clients, associations, revenue events and
  invoices. In production, the same patterns apply to PostgreSQL - only
  minor SQL dialect differences.

APPEND-ONLY ENFORCEMENT:
  - No UPDATE or DELETE statements on revenue_events or revenue_event_fees
  - Associations are closed by setting end_date, never deleted
  - Invoices are upserted on (line, client_id, month, year)

KEY TABLES:
  tiers:              Prosper commission brackets
  products:           Grow and Digitize catalog
  clients:            Per-client configuration for Connect, Grow, Digitize
  client_products:    Client-to-product associations with optional custom fee
  revenue_events:     Immutable computed obligations
  revenue_event_fees: Per-product fee breakdown of an event
  invoices:           Period totals, one row per invoice key
  invoice_sequences:  Invoice number counters per line

JOINED READS:
  Clients and events are read with a LEFT JOIN on their children. The flat
  rows are folded back with revenue.GroupClientRows and
  revenue.GroupEventRows.

MONEY AND DATES:
  Amounts are TEXT holding decimal strings. Calendar dates are TEXT
  "2006-01-02"; timestamps are RFC3339. Both compare correctly as strings.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. The pool is pinned to one
  connection so ":memory:" databases stay a single database.

USAGE:
  store, err := sqlite.New("./data/revenue.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  engine := revenue.NewEngine(store)

SEE ALSO:
  - revenue/store.go: Interface definitions
  - revenue/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/revenue-engine/revenue"
)

const dateLayout = "2006-01-02"

// Store implements revenue.TxStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// New creates a new SQLite store with the given database path and applies
// the schema. Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := NewWithDB(db)
	if err := store.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// NewWithDB wraps an already opened database. The schema is not applied.
func NewWithDB(db *sql.DB) *Store {
	return &Store{db: db}
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Migrate creates the database schema.
func (s *Store) Migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS tiers (
		id TEXT PRIMARY KEY,
		min_amount TEXT NOT NULL,
		commission_rate TEXT NOT NULL,
		license_fee TEXT NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS products (
		id TEXT PRIMARY KEY,
		line TEXT NOT NULL,
		name TEXT NOT NULL,
		standard_fee TEXT NOT NULL,
		description TEXT,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_products_line
		ON products(line, is_active);

	CREATE TABLE IF NOT EXISTS clients (
		id TEXT PRIMARY KEY,
		line TEXT NOT NULL,
		name TEXT NOT NULL,
		start_date TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'ACTIVE',
		commission_rate TEXT NOT NULL DEFAULT '0',
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_clients_line
		ON clients(line);

	CREATE TABLE IF NOT EXISTS client_products (
		id TEXT PRIMARY KEY,
		client_id TEXT NOT NULL REFERENCES clients(id),
		product_id TEXT NOT NULL REFERENCES products(id),
		custom_fee TEXT,
		start_date TEXT NOT NULL,
		end_date TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_client_products_client
		ON client_products(client_id, product_id);

	-- Revenue events (append-only). client_id is '' for line-level events.
	CREATE TABLE IF NOT EXISTS revenue_events (
		id TEXT PRIMARY KEY,
		line TEXT NOT NULL,
		client_id TEXT NOT NULL DEFAULT '',
		date TEXT NOT NULL,
		gross_amount TEXT NOT NULL,
		commission TEXT NOT NULL,
		license_fee TEXT NOT NULL,
		tier_id TEXT,
		achieved BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TEXT NOT NULL
	);

	-- Hot path: invoice generation and period stats
	CREATE INDEX IF NOT EXISTS idx_revenue_events_line_client_date
		ON revenue_events(line, client_id, date);

	CREATE TABLE IF NOT EXISTS revenue_event_fees (
		event_id TEXT NOT NULL REFERENCES revenue_events(id),
		position INTEGER NOT NULL,
		product_id TEXT NOT NULL,
		amount TEXT NOT NULL,
		PRIMARY KEY (event_id, position)
	);

	CREATE TABLE IF NOT EXISTS invoices (
		id TEXT PRIMARY KEY,
		number TEXT NOT NULL UNIQUE,
		line TEXT NOT NULL,
		client_id TEXT NOT NULL DEFAULT '',
		month TEXT NOT NULL,
		year TEXT NOT NULL,
		total_gross TEXT NOT NULL,
		total_commission TEXT NOT NULL,
		total_license_fee TEXT NOT NULL,
		event_count INTEGER NOT NULL DEFAULT 0,
		achieved_count INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'DRAFT',
		generated_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		paid_at TEXT
	);

	-- CRITICAL: one invoice per (line, client, month, year)
	CREATE UNIQUE INDEX IF NOT EXISTS idx_invoices_key
		ON invoices(line, client_id, month, year);

	CREATE TABLE IF NOT EXISTS invoice_sequences (
		line TEXT PRIMARY KEY,
		last_value INTEGER NOT NULL
	);
	`

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// =============================================================================
// LOCKED ENTRY POINTS (revenue.Store interface)
// =============================================================================

func (s *Store) InsertTier(ctx context.Context, t revenue.Tier) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return insertTier(ctx, s.db, t)
}

func (s *Store) ListTiers(ctx context.Context, activeOnly bool) ([]revenue.Tier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listTiers(ctx, s.db, activeOnly)
}

func (s *Store) InsertProduct(ctx context.Context, p revenue.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return insertProduct(ctx, s.db, p)
}

func (s *Store) ListProducts(ctx context.Context, line revenue.Line, activeOnly bool) ([]revenue.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listProducts(ctx, s.db, line, activeOnly)
}

func (s *Store) InsertClient(ctx context.Context, c revenue.Client) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return insertClient(ctx, s.db, c)
}

func (s *Store) GetClient(ctx context.Context, id revenue.ClientID) (*revenue.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getClient(ctx, s.db, id)
}

func (s *Store) ListClients(ctx context.Context, line revenue.Line) ([]revenue.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listClients(ctx, s.db, line)
}

func (s *Store) UpdateClientStatus(ctx context.Context, id revenue.ClientID, status revenue.ClientStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return updateClientStatus(ctx, s.db, id, status)
}

func (s *Store) InsertAssociation(ctx context.Context, a revenue.ClientProductAssociation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return insertAssociation(ctx, s.db, a)
}

func (s *Store) CloseAssociations(ctx context.Context, clientID revenue.ClientID, productID revenue.ProductID, end time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return closeAssociations(ctx, s.db, clientID, productID, end)
}

// AppendEvent writes the event and its fee rows in one transaction.
func (s *Store) AppendEvent(ctx context.Context, e revenue.RevenueEvent) error {
	return s.WithTx(ctx, func(tx revenue.Store) error {
		return tx.AppendEvent(ctx, e)
	})
}

func (s *Store) ListEvents(ctx context.Context, q revenue.EventQuery) ([]revenue.RevenueEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listEvents(ctx, s.db, q)
}

func (s *Store) GetInvoice(ctx context.Context, key revenue.InvoiceKey) (*revenue.PeriodInvoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getInvoiceByKey(ctx, s.db, key)
}

func (s *Store) GetInvoiceByID(ctx context.Context, id revenue.InvoiceID) (*revenue.PeriodInvoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getInvoiceByID(ctx, s.db, id)
}

func (s *Store) SaveInvoice(ctx context.Context, inv revenue.PeriodInvoice) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveInvoice(ctx, s.db, inv)
}

func (s *Store) ListInvoices(ctx context.Context, q revenue.InvoiceQuery) ([]revenue.PeriodInvoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listInvoices(ctx, s.db, q)
}

func (s *Store) NextInvoiceSequence(ctx context.Context, line revenue.Line) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return nextInvoiceSequence(ctx, s.db, line)
}

// =============================================================================
// TRANSACTIONAL STORE (revenue.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
// Every read and write made through the Store passed to fn uses the
// transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store revenue.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

type txStore struct {
	tx *sql.Tx
}

func (ts *txStore) InsertTier(ctx context.Context, t revenue.Tier) error {
	return insertTier(ctx, ts.tx, t)
}

func (ts *txStore) ListTiers(ctx context.Context, activeOnly bool) ([]revenue.Tier, error) {
	return listTiers(ctx, ts.tx, activeOnly)
}

func (ts *txStore) InsertProduct(ctx context.Context, p revenue.Product) error {
	return insertProduct(ctx, ts.tx, p)
}

func (ts *txStore) ListProducts(ctx context.Context, line revenue.Line, activeOnly bool) ([]revenue.Product, error) {
	return listProducts(ctx, ts.tx, line, activeOnly)
}

func (ts *txStore) InsertClient(ctx context.Context, c revenue.Client) error {
	return insertClient(ctx, ts.tx, c)
}

func (ts *txStore) GetClient(ctx context.Context, id revenue.ClientID) (*revenue.Client, error) {
	return getClient(ctx, ts.tx, id)
}

func (ts *txStore) ListClients(ctx context.Context, line revenue.Line) ([]revenue.Client, error) {
	return listClients(ctx, ts.tx, line)
}

func (ts *txStore) UpdateClientStatus(ctx context.Context, id revenue.ClientID, status revenue.ClientStatus) error {
	return updateClientStatus(ctx, ts.tx, id, status)
}

func (ts *txStore) InsertAssociation(ctx context.Context, a revenue.ClientProductAssociation) error {
	return insertAssociation(ctx, ts.tx, a)
}

func (ts *txStore) CloseAssociations(ctx context.Context, clientID revenue.ClientID, productID revenue.ProductID, end time.Time) (int, error) {
	return closeAssociations(ctx, ts.tx, clientID, productID, end)
}

func (ts *txStore) AppendEvent(ctx context.Context, e revenue.RevenueEvent) error {
	return appendEvent(ctx, ts.tx, e)
}

func (ts *txStore) ListEvents(ctx context.Context, q revenue.EventQuery) ([]revenue.RevenueEvent, error) {
	return listEvents(ctx, ts.tx, q)
}

func (ts *txStore) GetInvoice(ctx context.Context, key revenue.InvoiceKey) (*revenue.PeriodInvoice, error) {
	return getInvoiceByKey(ctx, ts.tx, key)
}

func (ts *txStore) GetInvoiceByID(ctx context.Context, id revenue.InvoiceID) (*revenue.PeriodInvoice, error) {
	return getInvoiceByID(ctx, ts.tx, id)
}

func (ts *txStore) SaveInvoice(ctx context.Context, inv revenue.PeriodInvoice) error {
	return saveInvoice(ctx, ts.tx, inv)
}

func (ts *txStore) ListInvoices(ctx context.Context, q revenue.InvoiceQuery) ([]revenue.PeriodInvoice, error) {
	return listInvoices(ctx, ts.tx, q)
}

func (ts *txStore) NextInvoiceSequence(ctx context.Context, line revenue.Line) (int64, error) {
	return nextInvoiceSequence(ctx, ts.tx, line)
}

// =============================================================================
// TIERS AND PRODUCTS
// =============================================================================

func insertTier(ctx context.Context, q querier, t revenue.Tier) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO tiers (id, min_amount, commission_rate, license_fee, is_active, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, t.ID, t.MinAmount.String(), t.CommissionRate.String(), t.LicenseFee.String(), t.IsActive, formatTime(t.CreatedAt))
	return wrapWriteError("tier", string(t.ID), err)
}

// listTiers returns tiers in insertion order.
func listTiers(ctx context.Context, q querier, activeOnly bool) ([]revenue.Tier, error) {
	query := `SELECT id, min_amount, commission_rate, license_fee, is_active, created_at FROM tiers`
	if activeOnly {
		query += ` WHERE is_active = TRUE`
	}
	query += ` ORDER BY rowid`

	rows, err := q.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query tiers: %w", err)
	}
	defer rows.Close()

	tiers := make([]revenue.Tier, 0)
	for rows.Next() {
		var (
			t         revenue.Tier
			createdAt string
		)
		if err := rows.Scan(&t.ID, &t.MinAmount, &t.CommissionRate, &t.LicenseFee, &t.IsActive, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan tier: %w", err)
		}
		t.CreatedAt = parseTime(createdAt)
		tiers = append(tiers, t)
	}
	return tiers, rows.Err()
}

func insertProduct(ctx context.Context, q querier, p revenue.Product) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO products (id, line, name, standard_fee, description, is_active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, p.ID, p.Line, p.Name, p.StandardFee.String(), nullString(p.Description), p.IsActive, formatTime(p.CreatedAt))
	return wrapWriteError("product", string(p.ID), err)
}

func listProducts(ctx context.Context, q querier, line revenue.Line, activeOnly bool) ([]revenue.Product, error) {
	var (
		where []string
		args  []any
	)
	if line != "" {
		where = append(where, "line = ?")
		args = append(args, line)
	}
	if activeOnly {
		where = append(where, "is_active = TRUE")
	}
	query := `SELECT id, line, name, standard_fee, description, is_active, created_at FROM products`
	query += whereClause(where) + ` ORDER BY rowid`

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	products := make([]revenue.Product, 0)
	for rows.Next() {
		var (
			p           revenue.Product
			description sql.NullString
			createdAt   string
		)
		if err := rows.Scan(&p.ID, &p.Line, &p.Name, &p.StandardFee, &description, &p.IsActive, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		p.Description = description.String
		p.CreatedAt = parseTime(createdAt)
		products = append(products, p)
	}
	return products, rows.Err()
}

// =============================================================================
// CLIENTS AND ASSOCIATIONS
// =============================================================================

func insertClient(ctx context.Context, q querier, c revenue.Client) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO clients (id, line, name, start_date, status, commission_rate, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, c.ID, c.Line, c.Name, formatDate(c.StartDate), c.Status, c.CommissionRate.String(), formatTime(c.CreatedAt))
	return wrapWriteError("client", string(c.ID), err)
}

const clientJoinQuery = `
	SELECT c.id, c.line, c.name, c.start_date, c.status, c.commission_rate, c.created_at,
	       a.id, a.product_id, a.custom_fee, a.start_date, a.end_date
	FROM clients c
	LEFT JOIN client_products a ON a.client_id = c.id`

func getClient(ctx context.Context, q querier, id revenue.ClientID) (*revenue.Client, error) {
	clients, err := queryClients(ctx, q, clientJoinQuery+` WHERE c.id = ? ORDER BY c.rowid, a.rowid`, id)
	if err != nil {
		return nil, err
	}
	if len(clients) == 0 {
		return nil, nil
	}
	return &clients[0], nil
}

func listClients(ctx context.Context, q querier, line revenue.Line) ([]revenue.Client, error) {
	if line == "" {
		return queryClients(ctx, q, clientJoinQuery+` ORDER BY c.rowid, a.rowid`)
	}
	return queryClients(ctx, q, clientJoinQuery+` WHERE c.line = ? ORDER BY c.rowid, a.rowid`, line)
}

func queryClients(ctx context.Context, q querier, query string, args ...any) ([]revenue.Client, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query clients: %w", err)
	}
	defer rows.Close()

	var flat []revenue.ClientRow
	for rows.Next() {
		var (
			c          revenue.Client
			startDate  string
			createdAt  string
			assocID    sql.NullString
			productID  sql.NullString
			customFee  decimal.NullDecimal
			assocStart sql.NullString
			assocEnd   sql.NullString
		)
		err := rows.Scan(
			&c.ID, &c.Line, &c.Name, &startDate, &c.Status, &c.CommissionRate, &createdAt,
			&assocID, &productID, &customFee, &assocStart, &assocEnd,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan client: %w", err)
		}
		c.StartDate = parseDate(startDate)
		c.CreatedAt = parseTime(createdAt)

		row := revenue.ClientRow{Client: c}
		if assocID.Valid {
			row.Association = &revenue.ClientProductAssociation{
				ID:        revenue.AssociationID(assocID.String),
				ClientID:  c.ID,
				ProductID: revenue.ProductID(productID.String),
				CustomFee: customFee,
				StartDate: parseDate(assocStart.String),
				EndDate:   parseNullDate(assocEnd),
			}
		}
		flat = append(flat, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return revenue.GroupClientRows(flat), nil
}

func updateClientStatus(ctx context.Context, q querier, id revenue.ClientID, status revenue.ClientStatus) error {
	result, err := q.ExecContext(ctx, `UPDATE clients SET status = ? WHERE id = ?`, status, id)
	if err != nil {
		return fmt.Errorf("failed to update client status: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update client status: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", revenue.ErrClientNotFound, id)
	}
	return nil
}

func insertAssociation(ctx context.Context, q querier, a revenue.ClientProductAssociation) error {
	var end sql.NullString
	if a.EndDate != nil {
		end = sql.NullString{String: formatDate(*a.EndDate), Valid: true}
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO client_products (id, client_id, product_id, custom_fee, start_date, end_date)
		VALUES (?, ?, ?, ?, ?, ?)
	`, a.ID, a.ClientID, a.ProductID, nullDecimal(a.CustomFee), formatDate(a.StartDate), end)
	return wrapWriteError("association", string(a.ID), err)
}

func closeAssociations(ctx context.Context, q querier, clientID revenue.ClientID, productID revenue.ProductID, end time.Time) (int, error) {
	result, err := q.ExecContext(ctx, `
		UPDATE client_products SET end_date = ?
		WHERE client_id = ? AND product_id = ? AND end_date IS NULL
	`, formatDate(end), clientID, productID)
	if err != nil {
		return 0, fmt.Errorf("failed to close associations: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to close associations: %w", err)
	}
	return int(n), nil
}

// =============================================================================
// REVENUE EVENTS
// =============================================================================

func appendEvent(ctx context.Context, q querier, e revenue.RevenueEvent) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO revenue_events
		(id, line, client_id, date, gross_amount, commission, license_fee, tier_id, achieved, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		e.ID,
		e.Line,
		e.ClientID,
		formatDate(e.Date),
		e.GrossAmount.String(),
		e.Commission.String(),
		e.LicenseFee.String(),
		nullString(string(e.TierID)),
		e.Achieved,
		formatTime(e.CreatedAt),
	)
	if err != nil {
		return wrapWriteError("revenue event", string(e.ID), err)
	}

	for i, fee := range e.Fees {
		_, err := q.ExecContext(ctx, `
			INSERT INTO revenue_event_fees (event_id, position, product_id, amount)
			VALUES (?, ?, ?, ?)
		`, e.ID, i, fee.ProductID, fee.Amount.String())
		if err != nil {
			return fmt.Errorf("failed to insert fee for event %s: %w", e.ID, err)
		}
	}
	return nil
}

func listEvents(ctx context.Context, q querier, eq revenue.EventQuery) ([]revenue.RevenueEvent, error) {
	var (
		where []string
		args  []any
	)
	if eq.Line != "" {
		where = append(where, "e.line = ?")
		args = append(args, eq.Line)
	}
	if eq.ClientID != revenue.NoClient {
		where = append(where, "e.client_id = ?")
		args = append(args, eq.ClientID)
	}
	if eq.From != nil {
		where = append(where, "e.date >= ?")
		args = append(args, formatDate(*eq.From))
	}
	if eq.Until != nil {
		where = append(where, "e.date < ?")
		args = append(args, formatDate(*eq.Until))
	}

	query := `
		SELECT e.id, e.line, e.client_id, e.date, e.gross_amount, e.commission, e.license_fee,
		       e.tier_id, e.achieved, e.created_at, f.product_id, f.amount
		FROM revenue_events e
		LEFT JOIN revenue_event_fees f ON f.event_id = e.id` +
		whereClause(where) + `
		ORDER BY e.date, e.rowid, f.position`

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query revenue events: %w", err)
	}
	defer rows.Close()

	var flat []revenue.EventRow
	for rows.Next() {
		var (
			e         revenue.RevenueEvent
			date      string
			tierID    sql.NullString
			createdAt string
			productID sql.NullString
			amount    decimal.NullDecimal
		)
		err := rows.Scan(
			&e.ID, &e.Line, &e.ClientID, &date, &e.GrossAmount, &e.Commission, &e.LicenseFee,
			&tierID, &e.Achieved, &createdAt, &productID, &amount,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan revenue event: %w", err)
		}
		e.Date = parseDate(date)
		e.TierID = revenue.TierID(tierID.String)
		e.CreatedAt = parseTime(createdAt)

		row := revenue.EventRow{Event: e}
		if productID.Valid {
			row.Fee = &revenue.ProductFee{ProductID: revenue.ProductID(productID.String), Amount: amount.Decimal}
		}
		flat = append(flat, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return revenue.GroupEventRows(flat), nil
}

// =============================================================================
// INVOICES
// =============================================================================

const invoiceColumns = `
	id, number, line, client_id, month, year, total_gross, total_commission, total_license_fee,
	event_count, achieved_count, status, generated_at, updated_at, paid_at`

func getInvoiceByKey(ctx context.Context, q querier, key revenue.InvoiceKey) (*revenue.PeriodInvoice, error) {
	return queryInvoice(ctx, q,
		`SELECT `+invoiceColumns+` FROM invoices WHERE line = ? AND client_id = ? AND month = ? AND year = ?`,
		key.Line, key.ClientID, key.Period.Month, key.Period.Year)
}

func getInvoiceByID(ctx context.Context, q querier, id revenue.InvoiceID) (*revenue.PeriodInvoice, error) {
	return queryInvoice(ctx, q, `SELECT `+invoiceColumns+` FROM invoices WHERE id = ?`, id)
}

func queryInvoice(ctx context.Context, q querier, query string, args ...any) (*revenue.PeriodInvoice, error) {
	invoices, err := queryInvoices(ctx, q, query, args...)
	if err != nil {
		return nil, err
	}
	if len(invoices) == 0 {
		return nil, nil
	}
	return &invoices[0], nil
}

// saveInvoice upserts on the invoice key. The stored id, number and
// generated_at are kept on conflict.
func saveInvoice(ctx context.Context, q querier, inv revenue.PeriodInvoice) error {
	var paidAt sql.NullString
	if inv.PaidAt != nil {
		paidAt = sql.NullString{String: formatTime(*inv.PaidAt), Valid: true}
	}

	_, err := q.ExecContext(ctx, `
		INSERT INTO invoices (`+invoiceColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(line, client_id, month, year) DO UPDATE SET
			total_gross = excluded.total_gross,
			total_commission = excluded.total_commission,
			total_license_fee = excluded.total_license_fee,
			event_count = excluded.event_count,
			achieved_count = excluded.achieved_count,
			status = excluded.status,
			updated_at = excluded.updated_at,
			paid_at = excluded.paid_at
	`,
		inv.ID,
		inv.Number,
		inv.Line,
		inv.ClientID,
		inv.Period.Month,
		inv.Period.Year,
		inv.TotalGross.String(),
		inv.TotalCommission.String(),
		inv.TotalLicenseFee.String(),
		inv.EventCount,
		inv.AchievedCount,
		inv.Status,
		formatTime(inv.GeneratedAt),
		formatTime(inv.UpdatedAt),
		paidAt,
	)
	return wrapWriteError("invoice", inv.Number, err)
}

func listInvoices(ctx context.Context, q querier, iq revenue.InvoiceQuery) ([]revenue.PeriodInvoice, error) {
	var (
		where []string
		args  []any
	)
	if iq.Line != "" {
		where = append(where, "line = ?")
		args = append(args, iq.Line)
	}
	if iq.ClientID != revenue.NoClient {
		where = append(where, "client_id = ?")
		args = append(args, iq.ClientID)
	}
	if iq.Status != "" {
		where = append(where, "status = ?")
		args = append(args, iq.Status)
	}
	query := `SELECT ` + invoiceColumns + ` FROM invoices` + whereClause(where) + ` ORDER BY year DESC, month DESC, number`
	return queryInvoices(ctx, q, query, args...)
}

func queryInvoices(ctx context.Context, q querier, query string, args ...any) ([]revenue.PeriodInvoice, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query invoices: %w", err)
	}
	defer rows.Close()

	invoices := make([]revenue.PeriodInvoice, 0)
	for rows.Next() {
		var (
			inv         revenue.PeriodInvoice
			generatedAt string
			updatedAt   string
			paidAt      sql.NullString
		)
		err := rows.Scan(
			&inv.ID, &inv.Number, &inv.Line, &inv.ClientID, &inv.Period.Month, &inv.Period.Year,
			&inv.TotalGross, &inv.TotalCommission, &inv.TotalLicenseFee,
			&inv.EventCount, &inv.AchievedCount, &inv.Status,
			&generatedAt, &updatedAt, &paidAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invoice: %w", err)
		}
		inv.GeneratedAt = parseTime(generatedAt)
		inv.UpdatedAt = parseTime(updatedAt)
		if paidAt.Valid {
			t := parseTime(paidAt.String)
			inv.PaidAt = &t
		}
		invoices = append(invoices, inv)
	}
	return invoices, rows.Err()
}

func nextInvoiceSequence(ctx context.Context, q querier, line revenue.Line) (int64, error) {
	_, err := q.ExecContext(ctx, `
		INSERT INTO invoice_sequences (line, last_value) VALUES (?, 1)
		ON CONFLICT(line) DO UPDATE SET last_value = last_value + 1
	`, line)
	if err != nil {
		return 0, fmt.Errorf("failed to advance invoice sequence: %w", err)
	}

	var seq int64
	if err := q.QueryRowContext(ctx, `SELECT last_value FROM invoice_sequences WHERE line = ?`, line).Scan(&seq); err != nil {
		return 0, fmt.Errorf("failed to read invoice sequence: %w", err)
	}
	return seq, nil
}

// Helper functions

func whereClause(conditions []string) string {
	if len(conditions) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(conditions, " AND ")
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullDecimal(d decimal.NullDecimal) sql.NullString {
	if !d.Valid {
		return sql.NullString{}
	}
	return sql.NullString{String: d.Decimal.String(), Valid: true}
}

func formatTime(t time.Time) string { return t.UTC().Format(time.RFC3339) }

func formatDate(t time.Time) string { return t.UTC().Format(dateLayout) }

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339, s)
	return t
}

func parseDate(s string) time.Time {
	t, _ := time.Parse(dateLayout, s)
	return t
}

func parseNullDate(s sql.NullString) *time.Time {
	if !s.Valid {
		return nil
	}
	t := parseDate(s.String)
	return &t
}

func wrapWriteError(what, id string, err error) error {
	if err == nil {
		return nil
	}
	if isUniqueConstraintError(err) {
		return fmt.Errorf("%w: %s %s", revenue.ErrDuplicate, what, id)
	}
	return fmt.Errorf("failed to save %s %s: %w", what, id, err)
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "duplicate key"))
}
