package deliverylog

import (
	"context"
	"errors"

	"github.com/relayhq/eventrelay/id"
)

// ErrIllegalTransition is returned when finishing a delivery log that is not
// currently pending.
var ErrIllegalTransition = errors.New("deliverylog: illegal transition")

// Store defines the persistence contract for delivery logs.
type Store interface {
	// CreateDeliveryLog inserts a new row in StatusPending. AttemptCount
	// must already be assigned by the caller (it is the queue-provided,
	// 1-based attempt number).
	CreateDeliveryLog(ctx context.Context, log *DeliveryLog) error

	// FinishDeliveryLog transitions a row from StatusPending to a terminal
	// status. Returns ErrIllegalTransition if the row is not currently
	// pending.
	FinishDeliveryLog(ctx context.Context, logID id.ID, status Status, responseCode *int, responseBody *string, errMsg *string) error

	// GetDeliveryLog returns a delivery log by ID.
	GetDeliveryLog(ctx context.Context, logID id.ID) (*DeliveryLog, error)

	// ListDeliveryLogs returns delivery logs matching the given filters,
	// most recently attempted first.
	ListDeliveryLogs(ctx context.Context, opts ListOpts) ([]*DeliveryLog, error)

	// ListDeliveryLogsByEvent returns every delivery log for an event,
	// descending by AttemptedAt.
	ListDeliveryLogsByEvent(ctx context.Context, evtID id.ID) ([]*DeliveryLog, error)

	// CountDeliveryLogs returns total/success/failed/pending counts for
	// admin stats.
	CountDeliveryLogs(ctx context.Context) (total, success, failed, pending int64, err error)
}
