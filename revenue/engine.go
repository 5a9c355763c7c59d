/*
engine.go - Orchestration of calculators over a ledger store

PURPOSE:
  The Engine is the entry point for every revenue operation. It holds an
  explicit store handle (no process-wide database), runs the pure
  calculators, and scopes multi-statement writes inside TxStore.WithTx.

PROPAGATION POLICY:
  Write path (AddTier, AddProduct, AddClient, UpdateProductFee, Record,
  GenerateInvoice, SetInvoiceStatus): strict. Any error aborts the
  operation and is returned. Failures inside a transaction roll back every
  write and come back as *TransactionError.

  Read path (Tiers, Products, Clients, Events, Invoices, MonthlyStats,
  History): graceful. A load failure is logged and an empty result is
  returned so listings can render an empty state.

CONCURRENCY:
  One logical writer. The engine holds no locks of its own.

SEE ALSO:
  - store.go: Store and TxStore contracts
  - recording.go: Recording variants dispatched by Record
*/
package revenue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Observer receives engine outcomes, typically for metrics.
type Observer interface {
	EventRecorded(line Line)
	InvoiceGenerated(line Line, created bool)
	OperationFailed(op string)
}

type nopObserver struct{}

func (nopObserver) EventRecorded(Line)          {}
func (nopObserver) InvoiceGenerated(Line, bool) {}
func (nopObserver) OperationFailed(string)      {}

// Engine runs revenue operations against a TxStore.
type Engine struct {
	store    TxStore
	log      *zap.Logger
	observer Observer
	now      func() time.Time
	newID    func() string
	prefixes map[Line]string
}

// Option configures an Engine.
type Option func(*Engine)

func WithLogger(l *zap.Logger) Option { return func(e *Engine) { e.log = l } }

func WithObserver(o Observer) Option { return func(e *Engine) { e.observer = o } }

func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

func WithIDGenerator(gen func() string) Option { return func(e *Engine) { e.newID = gen } }

// WithPrefixes overrides invoice number prefixes for the given lines.
func WithPrefixes(prefixes map[Line]string) Option {
	return func(e *Engine) {
		for line, p := range prefixes {
			e.prefixes[line] = p
		}
	}
}

// NewEngine creates an engine over store.
func NewEngine(store TxStore, opts ...Option) *Engine {
	e := &Engine{
		store:    store,
		log:      zap.NewNop(),
		observer: nopObserver{},
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.NewString,
		prefixes: make(map[Line]string, len(DefaultPrefixes)),
	}
	for line, p := range DefaultPrefixes {
		e.prefixes[line] = p
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// inTx runs fn in a transaction. Domain errors raised by fn before any
// write are returned as-is; anything else is reported as a TransactionError.
func (e *Engine) inTx(ctx context.Context, op string, fn func(Store) error) error {
	err := e.store.WithTx(ctx, fn)
	if err == nil {
		return nil
	}
	e.observer.OperationFailed(op)
	var txErr *TransactionError
	if IsNotFound(err) || IsClientError(err) || IsConflict(err) || errors.As(err, &txErr) {
		return err
	}
	e.log.Error("transaction rolled back", zap.String("op", op), zap.Error(err))
	return &TransactionError{Op: op, Err: err}
}

func (e *Engine) fail(op string, err error) error {
	e.observer.OperationFailed(op)
	return fmt.Errorf("%s: %w", op, err)
}

// =============================================================================
// CONFIGURATION (write path)
// =============================================================================

// AddTier validates and stores a new active tier.
func (e *Engine) AddTier(ctx context.Context, t Tier) (Tier, error) {
	if err := ValidateTier(t); err != nil {
		return Tier{}, err
	}
	if t.ID == "" {
		t.ID = TierID(e.newID())
	}
	t.IsActive = true
	t.CreatedAt = e.now()

	if err := e.store.InsertTier(ctx, t); err != nil {
		return Tier{}, e.fail("add tier", err)
	}
	e.log.Info("tier added",
		zap.String("tier_id", string(t.ID)),
		zap.String("min_amount", t.MinAmount.String()),
		zap.String("commission_rate", t.CommissionRate.String()))
	return t, nil
}

// AddProduct validates and stores a new active product of a product-based line.
func (e *Engine) AddProduct(ctx context.Context, p Product) (Product, error) {
	if !p.Line.ProductBased() {
		return Product{}, fmt.Errorf("%w: %q has no products", ErrInvalidLine, p.Line)
	}
	if strings.TrimSpace(p.Name) == "" {
		return Product{}, fmt.Errorf("%w: product name required", ErrInvalidInput)
	}
	if p.StandardFee.IsNegative() {
		return Product{}, &AmountError{Field: "standard_fee", Value: p.StandardFee.String()}
	}
	if p.ID == "" {
		p.ID = ProductID(e.newID())
	}
	p.IsActive = true
	p.CreatedAt = e.now()

	if err := e.store.InsertProduct(ctx, p); err != nil {
		return Product{}, e.fail("add product", err)
	}
	e.log.Info("product added", zap.String("product_id", string(p.ID)), zap.String("line", string(p.Line)))
	return p, nil
}

// AddClient stores a client and one association per product in a single
// transaction. Products must exist, be active and belong to the client's line.
func (e *Engine) AddClient(ctx context.Context, c Client, productIDs []ProductID) (Client, error) {
	if !c.Line.Valid() {
		return Client{}, fmt.Errorf("%w: %q", ErrInvalidLine, c.Line)
	}
	if strings.TrimSpace(c.Name) == "" {
		return Client{}, fmt.Errorf("%w: client name required", ErrInvalidInput)
	}
	if len(productIDs) > 0 && !c.Line.ProductBased() {
		return Client{}, fmt.Errorf("%w: %s clients have no products", ErrLineMismatch, c.Line)
	}
	if c.Line == LineConnect {
		if c.CommissionRate.IsNegative() || c.CommissionRate.GreaterThan(hundred) {
			return Client{}, &AmountError{Field: "commission_rate", Value: c.CommissionRate.String()}
		}
	}
	if c.ID == "" {
		c.ID = ClientID(e.newID())
	}
	if c.Status == "" {
		c.Status = ClientActive
	}
	if c.StartDate.IsZero() {
		c.StartDate = truncateDay(e.now())
	}
	c.StartDate = truncateDay(c.StartDate)
	c.CreatedAt = e.now()
	c.Associations = []ClientProductAssociation{}

	err := e.inTx(ctx, "add client", func(s Store) error {
		if len(productIDs) > 0 {
			products, err := s.ListProducts(ctx, c.Line, true)
			if err != nil {
				return err
			}
			known := make(map[ProductID]bool, len(products))
			for _, p := range products {
				known[p.ID] = true
			}
			for _, id := range productIDs {
				if !known[id] {
					return fmt.Errorf("%w: %s", ErrProductNotFound, id)
				}
			}
		}

		if err := s.InsertClient(ctx, c); err != nil {
			return err
		}
		for _, id := range productIDs {
			a := ClientProductAssociation{
				ID:        AssociationID(e.newID()),
				ClientID:  c.ID,
				ProductID: id,
				StartDate: c.StartDate,
			}
			if err := s.InsertAssociation(ctx, a); err != nil {
				return err
			}
			c.Associations = append(c.Associations, a)
		}
		return nil
	})
	if err != nil {
		return Client{}, err
	}

	e.log.Info("client added",
		zap.String("client_id", string(c.ID)),
		zap.String("line", string(c.Line)),
		zap.Int("associations", len(c.Associations)))
	return c, nil
}

// UpdateProductFee closes the client's open association with product and
// opens a new one carrying fee as its custom fee, effective from effective.
func (e *Engine) UpdateProductFee(ctx context.Context, clientID ClientID, productID ProductID, fee decimal.Decimal, effective time.Time) (ClientProductAssociation, error) {
	if fee.IsNegative() {
		return ClientProductAssociation{}, &AmountError{Field: "custom_fee", Value: fee.String()}
	}
	if effective.IsZero() {
		effective = e.now()
	}
	effective = truncateDay(effective)

	var opened ClientProductAssociation
	err := e.inTx(ctx, "update product fee", func(s Store) error {
		client, err := requireClient(ctx, s, clientID, "")
		if err != nil {
			return err
		}
		if _, ok := findActive(*client, productID); !ok {
			return fmt.Errorf("%w: client %s product %s", ErrAssociationNotFound, clientID, productID)
		}
		if _, err := s.CloseAssociations(ctx, clientID, productID, effective); err != nil {
			return err
		}
		opened = ClientProductAssociation{
			ID:        AssociationID(e.newID()),
			ClientID:  clientID,
			ProductID: productID,
			CustomFee: decimal.NewNullDecimal(fee),
			StartDate: effective,
		}
		return s.InsertAssociation(ctx, opened)
	})
	if err != nil {
		return ClientProductAssociation{}, err
	}
	return opened, nil
}

// CloseAssociation ends the client's open association with product.
func (e *Engine) CloseAssociation(ctx context.Context, clientID ClientID, productID ProductID, end time.Time) error {
	if end.IsZero() {
		end = e.now()
	}
	return e.inTx(ctx, "close association", func(s Store) error {
		if _, err := requireClient(ctx, s, clientID, ""); err != nil {
			return err
		}
		n, err := s.CloseAssociations(ctx, clientID, productID, truncateDay(end))
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("%w: client %s product %s", ErrAssociationNotFound, clientID, productID)
		}
		return nil
	})
}

// SetClientStatus marks a client ACTIVE or INACTIVE.
func (e *Engine) SetClientStatus(ctx context.Context, clientID ClientID, status ClientStatus) error {
	if !status.Valid() {
		return fmt.Errorf("%w: client status %q", ErrInvalidInput, status)
	}
	return e.inTx(ctx, "set client status", func(s Store) error {
		if _, err := requireClient(ctx, s, clientID, ""); err != nil {
			return err
		}
		return s.UpdateClientStatus(ctx, clientID, status)
	})
}

// =============================================================================
// RECORDING (write path)
// =============================================================================

// Record computes and persists a revenue event for rec. The variant decides
// the pricing: tiers for prosper, the client rate for connect, product fees
// for grow and digitize.
func (e *Engine) Record(ctx context.Context, rec Recording) (RevenueEvent, error) {
	var (
		event RevenueEvent
		err   error
	)
	switch r := rec.(type) {
	case ProsperRecording:
		event, err = e.recordProsper(ctx, r)
	case ConnectRecording:
		event, err = e.recordConnect(ctx, r)
	case GrowRecording:
		event, err = e.recordGrow(ctx, r)
	case DigitizeRecording:
		event, err = e.recordDigitize(ctx, r)
	default:
		return RevenueEvent{}, fmt.Errorf("%w: %T", ErrInvalidLine, rec)
	}
	if err != nil {
		return RevenueEvent{}, err
	}

	e.observer.EventRecorded(event.Line)
	e.log.Info("revenue recorded",
		zap.String("event_id", string(event.ID)),
		zap.String("line", string(event.Line)),
		zap.String("client_id", string(event.ClientID)),
		zap.String("gross", event.GrossAmount.String()),
		zap.String("commission", event.Commission.String()),
		zap.String("license_fee", event.LicenseFee.String()))
	return event, nil
}

// newEvent starts an event dated date, or today when date is zero.
func (e *Engine) newEvent(line Line, clientID ClientID, date time.Time) RevenueEvent {
	if date.IsZero() {
		date = e.now()
	}
	return RevenueEvent{
		ID:          EventID(e.newID()),
		Line:        line,
		ClientID:    clientID,
		Date:        truncateDay(date),
		GrossAmount: decimal.Zero,
		Commission:  decimal.Zero,
		LicenseFee:  decimal.Zero,
		Fees:        []ProductFee{},
		CreatedAt:   e.now(),
	}
}

func (e *Engine) recordProsper(ctx context.Context, r ProsperRecording) (RevenueEvent, error) {
	if r.GrossAmount.IsNegative() {
		return RevenueEvent{}, &AmountError{Field: "gross_amount", Value: r.GrossAmount.String()}
	}
	event := e.newEvent(LineProsper, NoClient, r.Date)

	err := e.inTx(ctx, "record prosper revenue", func(s Store) error {
		tiers, err := s.ListTiers(ctx, true)
		if err != nil {
			return err
		}
		calc, err := NewCalculator(tiers)
		if err != nil {
			return err
		}
		result, err := calc.Calculate(r.GrossAmount)
		if err != nil {
			return err
		}
		event.GrossAmount = r.GrossAmount
		event.Commission = result.Commission
		event.LicenseFee = result.LicenseFee
		event.TierID = result.Tier.ID
		event.Achieved = result.Achieved
		return s.AppendEvent(ctx, event)
	})
	return event, err
}

func (e *Engine) recordConnect(ctx context.Context, r ConnectRecording) (RevenueEvent, error) {
	if r.GrossBookings.IsNegative() {
		return RevenueEvent{}, &AmountError{Field: "gross_bookings", Value: r.GrossBookings.String()}
	}
	event := e.newEvent(LineConnect, r.ClientID, r.Date)

	err := e.inTx(ctx, "record connect revenue", func(s Store) error {
		client, err := requireClient(ctx, s, r.ClientID, LineConnect)
		if err != nil {
			return err
		}
		event.GrossAmount = r.GrossBookings
		event.Commission = PercentOf(r.GrossBookings, client.CommissionRate)
		return s.AppendEvent(ctx, event)
	})
	return event, err
}

func (e *Engine) recordGrow(ctx context.Context, r GrowRecording) (RevenueEvent, error) {
	if r.GrossBookings.IsNegative() {
		return RevenueEvent{}, &AmountError{Field: "gross_bookings", Value: r.GrossBookings.String()}
	}
	event := e.newEvent(LineGrow, r.ClientID, r.Date)

	err := e.inTx(ctx, "record grow revenue", func(s Store) error {
		schedule, err := clientFees(ctx, s, r.ClientID, LineGrow)
		if err != nil {
			return err
		}
		event.GrossAmount = r.GrossBookings
		event.LicenseFee = schedule.Total
		event.Fees = schedule.Fees
		return s.AppendEvent(ctx, event)
	})
	return event, err
}

func (e *Engine) recordDigitize(ctx context.Context, r DigitizeRecording) (RevenueEvent, error) {
	if err := r.Period.Validate(); err != nil {
		return RevenueEvent{}, err
	}
	event := e.newEvent(LineDigitize, r.ClientID, r.Period.Start())

	err := e.inTx(ctx, "record digitize revenue", func(s Store) error {
		schedule, err := clientFees(ctx, s, r.ClientID, LineDigitize)
		if err != nil {
			return err
		}
		event.GrossAmount = schedule.Total
		event.LicenseFee = schedule.Total
		event.Fees = schedule.Fees
		return s.AppendEvent(ctx, event)
	})
	return event, err
}

// Quote previews a prosper calculation without writing anything.
func (e *Engine) Quote(ctx context.Context, grossAmount decimal.Decimal) (Commission, error) {
	tiers, err := e.store.ListTiers(ctx, true)
	if err != nil {
		return Commission{}, e.fail("quote", err)
	}
	calc, err := NewCalculator(tiers)
	if err != nil {
		return Commission{}, err
	}
	return calc.Calculate(grossAmount)
}

func requireClient(ctx context.Context, s Store, id ClientID, line Line) (*Client, error) {
	if id == NoClient {
		return nil, fmt.Errorf("%w: client id required", ErrClientNotFound)
	}
	client, err := s.GetClient(ctx, id)
	if err != nil {
		return nil, err
	}
	if client == nil {
		return nil, fmt.Errorf("%w: %s", ErrClientNotFound, id)
	}
	if line != "" && client.Line != line {
		return nil, fmt.Errorf("%w: client %s is %s, not %s", ErrLineMismatch, id, client.Line, line)
	}
	return client, nil
}

func clientFees(ctx context.Context, s Store, id ClientID, line Line) (FeeSchedule, error) {
	client, err := requireClient(ctx, s, id, line)
	if err != nil {
		return FeeSchedule{}, err
	}
	products, err := s.ListProducts(ctx, line, true)
	if err != nil {
		return FeeSchedule{}, err
	}
	return ResolveFees(client.Associations, products), nil
}

func findActive(c Client, productID ProductID) (ClientProductAssociation, bool) {
	for _, a := range c.Associations {
		if a.IsActive() && a.ProductID == productID {
			return a, true
		}
	}
	return ClientProductAssociation{}, false
}

// =============================================================================
// INVOICES (write path)
// =============================================================================

// InvoiceRequest identifies the invoice to generate. ClientID is required
// for per-client lines and must be empty for prosper.
type InvoiceRequest struct {
	Line     Line
	ClientID ClientID
	Period   Period
}

// GenerateInvoice aggregates the period's events and upserts the invoice.
// Reads, aggregation and the write happen in one transaction.
func (e *Engine) GenerateInvoice(ctx context.Context, req InvoiceRequest) (PeriodInvoice, error) {
	if !req.Line.Valid() {
		return PeriodInvoice{}, fmt.Errorf("%w: %q", ErrInvalidLine, req.Line)
	}
	if err := req.Period.Validate(); err != nil {
		return PeriodInvoice{}, err
	}
	if !req.Line.PerClient() && req.ClientID != NoClient {
		return PeriodInvoice{}, fmt.Errorf("%w: %s invoices are not per client", ErrLineMismatch, req.Line)
	}

	key := InvoiceKey{Line: req.Line, ClientID: req.ClientID, Period: req.Period}
	from := req.Period.Start()
	until := from.AddDate(0, 1, 0)

	var (
		invoice PeriodInvoice
		created bool
	)
	err := e.inTx(ctx, "generate invoice", func(s Store) error {
		if req.Line.PerClient() {
			if _, err := requireClient(ctx, s, req.ClientID, req.Line); err != nil {
				return err
			}
		}

		events, err := s.ListEvents(ctx, EventQuery{Line: req.Line, ClientID: req.ClientID, From: &from, Until: &until})
		if err != nil {
			return err
		}
		totals := Aggregate(events, Filter{
			Line:        req.Line,
			ClientID:    req.ClientID,
			ExactClient: true,
			Window:      req.Period,
		})

		existing, err := s.GetInvoice(ctx, key)
		if err != nil {
			return err
		}
		invoice = MergeInvoice(existing, key, totals, e.now())
		if existing == nil {
			created = true
			invoice.ID = InvoiceID(e.newID())
			seq, err := s.NextInvoiceSequence(ctx, req.Line)
			if err != nil {
				return err
			}
			invoice.Number = FormatInvoiceNumber(e.prefixes[req.Line], seq)
		}
		return s.SaveInvoice(ctx, invoice)
	})
	if err != nil {
		return PeriodInvoice{}, err
	}

	e.observer.InvoiceGenerated(req.Line, created)
	e.log.Info("invoice generated",
		zap.String("invoice", invoice.Number),
		zap.String("key", key.String()),
		zap.Bool("created", created),
		zap.String("status", string(invoice.Status)),
		zap.String("amount_due", invoice.AmountDue().String()))
	return invoice, nil
}

// SetInvoiceStatus moves an invoice along the allowed status transitions.
func (e *Engine) SetInvoiceStatus(ctx context.Context, id InvoiceID, status InvoiceStatus) (PeriodInvoice, error) {
	if !status.Valid() {
		return PeriodInvoice{}, fmt.Errorf("%w: unknown status %q", ErrInvalidStatusTransition, status)
	}

	var updated PeriodInvoice
	err := e.inTx(ctx, "set invoice status", func(s Store) error {
		inv, err := s.GetInvoiceByID(ctx, id)
		if err != nil {
			return err
		}
		if inv == nil {
			return fmt.Errorf("%w: %s", ErrInvoiceNotFound, id)
		}
		updated, err = Transition(*inv, status, e.now())
		if err != nil {
			return err
		}
		return s.SaveInvoice(ctx, updated)
	})
	if err != nil {
		return PeriodInvoice{}, err
	}
	e.log.Info("invoice status changed", zap.String("invoice", updated.Number), zap.String("status", string(status)))
	return updated, nil
}

// =============================================================================
// READS (graceful)
// =============================================================================

func (e *Engine) loadFailed(op string, err error) {
	e.observer.OperationFailed(op)
	e.log.Warn("load failed, returning empty result", zap.String("op", op), zap.Error(err))
}

// Tiers returns the active tiers in stored order.
func (e *Engine) Tiers(ctx context.Context) []Tier {
	tiers, err := e.store.ListTiers(ctx, true)
	if err != nil {
		e.loadFailed("list tiers", err)
		return []Tier{}
	}
	return tiers
}

// Products returns the active products of line.
func (e *Engine) Products(ctx context.Context, line Line) []Product {
	products, err := e.store.ListProducts(ctx, line, true)
	if err != nil {
		e.loadFailed("list products", err)
		return []Product{}
	}
	return products
}

// Clients returns the clients of line (all lines when empty) with their
// associations.
func (e *Engine) Clients(ctx context.Context, line Line) []Client {
	clients, err := e.store.ListClients(ctx, line)
	if err != nil {
		e.loadFailed("list clients", err)
		return []Client{}
	}
	return clients
}

// Events returns the revenue events matching q.
func (e *Engine) Events(ctx context.Context, q EventQuery) []RevenueEvent {
	events, err := e.store.ListEvents(ctx, q)
	if err != nil {
		e.loadFailed("list events", err)
		return []RevenueEvent{}
	}
	return events
}

// Invoices returns the invoices matching q.
func (e *Engine) Invoices(ctx context.Context, q InvoiceQuery) []PeriodInvoice {
	invoices, err := e.store.ListInvoices(ctx, q)
	if err != nil {
		e.loadFailed("list invoices", err)
		return []PeriodInvoice{}
	}
	return invoices
}

// Client returns one client. Unlike the listings, a missing client is an error.
func (e *Engine) Client(ctx context.Context, id ClientID) (Client, error) {
	c, err := requireClient(ctx, e.store, id, "")
	if err != nil {
		return Client{}, err
	}
	return *c, nil
}

// Invoice returns one invoice or ErrInvoiceNotFound.
func (e *Engine) Invoice(ctx context.Context, id InvoiceID) (PeriodInvoice, error) {
	inv, err := e.store.GetInvoiceByID(ctx, id)
	if err != nil {
		return PeriodInvoice{}, err
	}
	if inv == nil {
		return PeriodInvoice{}, fmt.Errorf("%w: %s", ErrInvoiceNotFound, id)
	}
	return *inv, nil
}

// MonthlyStats sums a line's events for one period. Connect, grow and
// digitize totals cover every client.
func (e *Engine) MonthlyStats(ctx context.Context, line Line, period Period) Totals {
	from := period.Start()
	until := from.AddDate(0, 1, 0)
	events := e.Events(ctx, EventQuery{Line: line, From: &from, Until: &until})
	return Aggregate(events, Filter{Line: line, Window: period})
}

// RangeStats sums a line's events dated within r, both days included. A
// non-empty clientID limits the sum to that client.
func (e *Engine) RangeStats(ctx context.Context, line Line, clientID ClientID, r DateRange) (Totals, error) {
	if err := r.Validate(); err != nil {
		return Totals{}, err
	}
	from := truncateDay(r.From)
	until := truncateDay(r.To).AddDate(0, 0, 1)
	events := e.Events(ctx, EventQuery{Line: line, ClientID: clientID, From: &from, Until: &until})
	return Aggregate(events, Filter{Line: line, ClientID: clientID, Window: r}), nil
}

// History returns per-period totals for a line, newest first.
func (e *Engine) History(ctx context.Context, line Line) []MonthlyStat {
	return GroupByPeriod(e.Events(ctx, EventQuery{Line: line}), Filter{Line: line})
}

// ClientStats summarises one client's revenue.
func (e *Engine) ClientStats(ctx context.Context, id ClientID) (ClientStats, error) {
	client, err := e.Client(ctx, id)
	if err != nil {
		return ClientStats{}, err
	}
	return SummarizeClient(client, e.Events(ctx, EventQuery{ClientID: id})), nil
}
