// Package payment speaks the Midtrans wire protocol: notification
// signatures, transaction status mapping and Snap token creation.
package payment

import (
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"

	"github.com/kiwari-pos/ordercore/internal/enum"
)

// Notification is the subset of a Midtrans HTTP notification we act on.
// OrderID is the provider-side reference, not our order id.
type Notification struct {
	OrderID           string `json:"order_id"`
	StatusCode        string `json:"status_code"`
	GrossAmount       string `json:"gross_amount"`
	TransactionStatus string `json:"transaction_status"`
	FraudStatus       string `json:"fraud_status"`
	SignatureKey      string `json:"signature_key"`
	TransactionID     string `json:"transaction_id,omitempty"`
	PaymentType       string `json:"payment_type,omitempty"`
}

// Signature computes hex(sha512(order_id + status_code + gross_amount + server_key)).
func Signature(orderID, statusCode, grossAmount, serverKey string) string {
	sum := sha512.Sum512([]byte(orderID + statusCode + grossAmount + serverKey))
	return hex.EncodeToString(sum[:])
}

// VerifySignature checks the notification's signature in constant time.
func VerifySignature(n Notification, serverKey string) bool {
	if serverKey == "" || n.SignatureKey == "" {
		return false
	}
	want := Signature(n.OrderID, n.StatusCode, n.GrossAmount, serverKey)
	return subtle.ConstantTimeCompare([]byte(want), []byte(n.SignatureKey)) == 1
}

// MapTransactionStatus converts a provider status into our payment status.
// Unknown codes fall back to UNPAID.
func MapTransactionStatus(transactionStatus, fraudStatus string) string {
	switch transactionStatus {
	case "capture":
		if fraudStatus == "accept" {
			return enum.PaymentStatusPaid
		}
		return enum.PaymentStatusUnpaid
	case "settlement":
		return enum.PaymentStatusPaid
	case "cancel", "deny", "expire", "pending":
		return enum.PaymentStatusUnpaid
	case "refund", "partial_refund":
		return enum.PaymentStatusRefunded
	}
	return enum.PaymentStatusUnpaid
}
