package domain

import "time"

const (
	RoleUser      = "USER"
	RoleDeveloper = "DEVELOPER"
	RoleAdmin     = "ADMIN"
)

// Session lifecycle.
const (
	SessionPending         = "pending"
	SessionApproved        = "approved"
	SessionRejected        = "rejected"
	SessionAwaitingPayment = "awaiting_payment"
	SessionScheduled       = "scheduled"
	SessionActive          = "active"
	SessionCompleted       = "completed"
	SessionCancelled       = "cancelled"
)

const (
	SessionPaymentPending   = "pending"
	SessionPaymentCompleted = "completed"
)

const (
	TransferPending     = "pending"
	TransferTransferred = "transferred"
)

// Payment attempt status.
const (
	PaymentPending    = "pending"
	PaymentProcessing = "processing"
	PaymentCompleted  = "completed"
	PaymentFailed     = "failed"
	PaymentRefunded   = "refunded"
)

const (
	TxCredit = "credit"
	TxDebit  = "debit"

	TxStatusCompleted = "completed"
)

const (
	GatewayEventReceived  = "received"
	GatewayEventProcessed = "processed"
	GatewayEventFailed    = "failed"
)

const (
	NotifySessionRequested = "SESSION_REQUESTED"
	NotifySessionApproved  = "SESSION_APPROVED"
	NotifySessionRejected  = "SESSION_REJECTED"
	NotifySessionCancelled = "SESSION_CANCELLED"
	NotifySessionScheduled = "SESSION_SCHEDULED"
	NotifySessionStarted   = "SESSION_STARTED"
	NotifySessionCompleted = "SESSION_COMPLETED"
	NotifyPaymentReceived  = "PAYMENT_RECEIVED"
	NotifyPayoutReceived   = "PAYOUT_RECEIVED"
)

const (
	DateLayout = "2006-01-02"
	SlotLayout = "15:04"

	DefaultSlotGranularity = 30 * time.Minute
)

// SlotHoldingStatuses are the session states that occupy a developer's time
// for the availability check.
var SlotHoldingStatuses = []string{SessionPending, SessionApproved, SessionAwaitingPayment}

// CancellableStatuses are the states from which Cancel may move a session.
var CancellableStatuses = []string{SessionPending, SessionApproved, SessionAwaitingPayment, SessionScheduled}

// Actor is the already-authenticated principal performing an operation.
type Actor struct {
	UserID uint
	Role   string
}

func (a Actor) IsAdmin() bool { return a.Role == RoleAdmin }

// Contains reports whether status is one of set.
func Contains(set []string, status string) bool {
	for _, s := range set {
		if s == status {
			return true
		}
	}
	return false
}
