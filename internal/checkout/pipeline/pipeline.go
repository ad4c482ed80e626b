// Package pipeline executes the ordered side-effect pipeline behind a
// checkout: charge the card, persist the order, sync to the POS, print the
// kitchen ticket.
//
// Stages run strictly sequentially. A fatal stage failure (charge, persist)
// aborts the run; a soft failure (POS sync, print) is logged and the run
// continues, because the customer has already been charged. There is no
// compensation: later stages encode a sale that must correspond to a
// captured payment, so they never run before charge and persist succeed.
package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/jcmexdev/kiosk-checkout/internal/checkout/oplog"
)

// Sale is the payload handed to the POS gateway.
type Sale struct {
	LineItems   []LineItem
	TotalAmount float64
	TableLabel  string
	OrderType   string
	TipAmount   float64
}

// LineItem is one sale line. POSItemID links to the external catalog for
// inventory-linked recording; when absent the gateway falls back to the
// free-text name and price.
type LineItem struct {
	POSItemID string
	Name      string
	Price     float64
	Quantity  int
}

// Ticket is the payload handed to the print gateway.
type Ticket struct {
	OrderID     string     `json:"orderId"`
	TableLabel  string     `json:"tableNumber"`
	OrderType   string     `json:"orderType"`
	LineItems   []LineItem `json:"items"`
	Subtotal    float64    `json:"subtotal"`
	Tax         float64    `json:"tax"`
	CardFee     float64    `json:"cardFee"`
	TipAmount   float64    `json:"tipAmount"`
	TotalAmount float64    `json:"totalAmount"`
	Timestamp   time.Time  `json:"timestamp"`
}

// PaymentGateway charges the final total. The amount is a display-unit
// value; minor-unit conversion is the adapter's responsibility.
type PaymentGateway interface {
	Charge(ctx context.Context, amount float64) (chargeID string, err error)
}

// POSGateway records the sale and triggers the kitchen ticket on the POS
// side.
type POSGateway interface {
	RecordSale(ctx context.Context, sale Sale) (orderID string, err error)
}

// PrintGateway forwards a structured ticket to the local receipt printer
// bridge. Fire-and-forget from the pipeline's perspective.
type PrintGateway interface {
	PrintTicket(ctx context.Context, ticket Ticket) error
}

// Stage is a single unit of work in the pipeline. Fatal stages abort the
// run on failure; non-fatal stages only contribute a warning.
type Stage interface {
	Name() string
	Execute(ctx context.Context) error
	Fatal() bool
}

// Result reports the outcome of a completed run. SoftErrors holds the
// non-fatal stage failures, nil when everything succeeded.
type Result struct {
	CheckoutID string
	SoftErrors *multierror.Error
}

// Orchestrator manages the execution of a collection of Stages and records
// every transition to the operation log.
type Orchestrator struct {
	checkoutID string
	stages     []Stage
	logRepo    oplog.Repository // nil-safe: logging skipped if nil
	payload    string
}

// NewOrchestrator builds a run over the given stages. payload is the
// JSON-serialised checkout input stored on the STARTED log row; logRepo may
// be nil.
func NewOrchestrator(checkoutID string, stages []Stage, logRepo oplog.Repository, payload string) *Orchestrator {
	return &Orchestrator{
		checkoutID: checkoutID,
		stages:     stages,
		logRepo:    logRepo,
		payload:    payload,
	}
}

// Start runs the stages sequentially. It returns an error only for fatal
// stage failures; soft failures are aggregated into the Result.
func (o *Orchestrator) Start(ctx context.Context) (*Result, error) {
	o.log(ctx, oplog.StatusStarted, "", o.payload, nil)

	var soft *multierror.Error
	var softMsgs []string

	for _, stage := range o.stages {
		slog.InfoContext(ctx, "executing stage", "checkout_id", o.checkoutID, "stage", stage.Name())

		err := stage.Execute(ctx)
		if err == nil {
			o.log(ctx, oplog.StatusStageDone, stage.Name(), "", nil)
			continue
		}

		if stage.Fatal() {
			slog.ErrorContext(ctx, "stage failed, aborting checkout",
				"checkout_id", o.checkoutID, "stage", stage.Name(), "error", err)
			o.log(ctx, oplog.StatusFailed, stage.Name(), "", append(softMsgs, err.Error()))
			return nil, err
		}

		// The customer has already been charged; a failure here is a
		// back-office problem, not the operator's.
		slog.WarnContext(ctx, "non-fatal stage failed, continuing",
			"checkout_id", o.checkoutID, "stage", stage.Name(), "error", err)
		soft = multierror.Append(soft, err)
		softMsgs = append(softMsgs, stage.Name()+": "+err.Error())
	}

	if soft != nil {
		o.log(ctx, oplog.StatusSoftFailures, "", "", softMsgs)
	} else {
		o.log(ctx, oplog.StatusCompleted, "", "", nil)
	}

	return &Result{CheckoutID: o.checkoutID, SoftErrors: soft}, nil
}

func (o *Orchestrator) log(ctx context.Context, status oplog.Status, stage, payload string, errs []string) {
	if o.logRepo == nil {
		return
	}
	entry := oplog.NewEntry(ctx, o.checkoutID, status, stage, payload, errs)
	if err := o.logRepo.Save(ctx, entry); err != nil {
		slog.ErrorContext(ctx, "failed to save checkout log", "checkout_id", o.checkoutID, "error", err)
	}
}
