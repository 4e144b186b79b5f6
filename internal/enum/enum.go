package enum

// ── State machines (CHECK constrained in DB) ──

const (
	OrderStatusNew        = "NEW"
	OrderStatusInProgress = "IN_PROGRESS"
	OrderStatusReady      = "READY"
	OrderStatusCompleted  = "COMPLETED"
	OrderStatusCancelled  = "CANCELLED"
)

const (
	PaymentStatusUnpaid   = "UNPAID"
	PaymentStatusPaid     = "PAID"
	PaymentStatusRefunded = "REFUNDED"
)

const (
	OutboxStatusPending   = "PENDING"
	OutboxStatusProcessed = "PROCESSED"
	OutboxStatusFailed    = "FAILED"
)

// Client-side queue states. Not stored in Postgres.
const (
	QueueStatusPending   = "PENDING"
	QueueStatusSyncing   = "SYNCING"
	QueueStatusSynced    = "SYNCED"
	QueueStatusConflict  = "CONFLICT"
	QueueStatusDismissed = "DISMISSED"
)

// ── Borderline (CHECK constrained in DB) ──

const (
	UserRoleOwner   = "OWNER"
	UserRoleManager = "MANAGER"
	UserRoleCashier = "CASHIER"
	UserRoleKitchen = "KITCHEN"
)

const (
	PaymentMethodCash     = "CASH"
	PaymentMethodQRIS     = "QRIS"
	PaymentMethodTransfer = "TRANSFER"
	PaymentMethodCard     = "CARD"
)

const (
	OrderSourcePOS         = "POS"
	OrderSourceSelfOrder   = "SELF_ORDER"
	OrderSourceOfflineSync = "OFFLINE_SYNC"
)

// ── Wire labels (no DB constraint) ──

// Error kinds returned in the "error_kind" field of error responses.
const (
	ErrorKindProductNotFound   = "PRODUCT_NOT_FOUND"
	ErrorKindInsufficientStock = "INSUFFICIENT_STOCK"
	ErrorKindInvalidTransition = "INVALID_TRANSITION"
	ErrorKindOrderNotFound     = "ORDER_NOT_FOUND"
	ErrorKindInvalidSignature  = "INVALID_SIGNATURE"
	ErrorKindSyncConflict      = "SYNC_CONFLICT"
	ErrorKindValidation        = "VALIDATION"
	ErrorKindAmountMismatch    = "AMOUNT_MISMATCH"
	ErrorKindUnauthorized      = "UNAUTHORIZED"
	ErrorKindInternal          = "INTERNAL"
)

const (
	EventOrderCreated        = "order.created"
	EventOrderStatusChanged  = "order.status_changed"
	EventOrderPaymentUpdated = "order.payment_updated"
)

func IsPaymentMethod(s string) bool {
	switch s {
	case PaymentMethodCash, PaymentMethodQRIS, PaymentMethodTransfer, PaymentMethodCard:
		return true
	}
	return false
}

func IsOrderStatus(s string) bool {
	switch s {
	case OrderStatusNew, OrderStatusInProgress, OrderStatusReady, OrderStatusCompleted, OrderStatusCancelled:
		return true
	}
	return false
}
