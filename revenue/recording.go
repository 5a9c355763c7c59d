package revenue

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// RECORDINGS - One variant per revenue line
// =============================================================================

// Recording is a request to record revenue. Each line has its own variant
// carrying only the fields that line needs; Line() is the discriminant.
//
//	ProsperRecording  -> tier resolution + commission calculator
//	ConnectRecording  -> client commission rate
//	GrowRecording     -> gross bookings + product license fees
//	DigitizeRecording -> monthly subscription fees
type Recording interface {
	Line() Line
	recording()
}

// ProsperRecording books a gross amount against the tier table.
type ProsperRecording struct {
	GrossAmount decimal.Decimal
	Date        time.Time
}

// ConnectRecording books gross bookings at the client's commission rate.
type ConnectRecording struct {
	ClientID      ClientID
	GrossBookings decimal.Decimal
	Date          time.Time
}

// GrowRecording books gross bookings plus the client's product license fees.
type GrowRecording struct {
	ClientID      ClientID
	GrossBookings decimal.Decimal
	Date          time.Time
}

// DigitizeRecording bills a client's subscriptions for one month.
type DigitizeRecording struct {
	ClientID ClientID
	Period   Period
}

func (ProsperRecording) Line() Line  { return LineProsper }
func (ConnectRecording) Line() Line  { return LineConnect }
func (GrowRecording) Line() Line     { return LineGrow }
func (DigitizeRecording) Line() Line { return LineDigitize }

func (ProsperRecording) recording()  {}
func (ConnectRecording) recording()  {}
func (GrowRecording) recording()     {}
func (DigitizeRecording) recording() {}
