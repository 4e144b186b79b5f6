package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/kiwari-pos/ordercore/internal/enum"
	"github.com/kiwari-pos/ordercore/internal/outbox"
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const divider = "━━━━━━━━━━━━━━━━━━"

var (
	idr = message.NewPrinter(language.Indonesian)
	wib = time.FixedZone("WIB", 7*60*60)
)

// Rupiah formats an amount string as "Rp 36.000". Unparseable input is
// returned unchanged.
func Rupiah(amount string) string {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return amount
	}
	return idr.Sprintf("Rp %d", d.Round(0).IntPart())
}

var paymentLabels = map[string]string{
	enum.PaymentMethodCash:     "Tunai",
	enum.PaymentMethodQRIS:     "QRIS",
	enum.PaymentMethodTransfer: "Transfer",
	enum.PaymentMethodCard:     "Kartu",
}

var sourceLabels = map[string]string{
	enum.OrderSourcePOS:         "Kasir",
	enum.OrderSourceSelfOrder:   "Self-order",
	enum.OrderSourceOfflineSync: "Kasir (offline)",
}

// FormatSale renders the sales notification for a new order.
func FormatSale(storeName string, o outbox.OrderCreated) string {
	var b strings.Builder
	b.WriteString("🛒 *NOTIFIKASI PENJUALAN*\n")
	fmt.Fprintf(&b, "🏪 %s\n", storeName)
	b.WriteString(divider + "\n")
	fmt.Fprintf(&b, "📋 No: %s\n", o.OrderNumber)
	fmt.Fprintf(&b, "📅 %s\n", o.CreatedAt.In(wib).Format("02/01/2006 15:04"))
	if o.TableNumber != "" {
		fmt.Fprintf(&b, "🪑 Meja: %s\n", o.TableNumber)
	}
	if o.CustomerName != "" {
		fmt.Fprintf(&b, "👤 Pelanggan: %s\n", o.CustomerName)
	}
	fmt.Fprintf(&b, "📍 Sumber: %s\n", label(sourceLabels, o.Source))
	b.WriteString(divider + "\n")
	b.WriteString("*Item Pembelian:*\n")
	for _, it := range o.Items {
		fmt.Fprintf(&b, "  • %s x%d = %s\n", it.ProductName, it.Quantity, Rupiah(it.Subtotal))
	}
	b.WriteString(divider + "\n")
	fmt.Fprintf(&b, "💰 Total: *%s*\n", Rupiah(o.TotalAmount))
	fmt.Fprintf(&b, "💳 Metode: %s\n", label(paymentLabels, o.PaymentMethod))
	b.WriteString(divider + "\n")
	b.WriteString("✅ Transaksi berhasil!")
	return b.String()
}

// FormatPayment renders a payment status change.
func FormatPayment(storeName string, p outbox.PaymentUpdated) string {
	var headline string
	switch p.To {
	case enum.PaymentStatusPaid:
		headline = "✅ *PEMBAYARAN DITERIMA*"
	case enum.PaymentStatusRefunded:
		headline = "↩️ *PEMBAYARAN DIKEMBALIKAN*"
	default:
		headline = "ℹ️ *STATUS PEMBAYARAN*"
	}
	return fmt.Sprintf("%s\n🏪 %s\n%s\n📋 No: %s\n💳 %s → %s\n📅 %s",
		headline, storeName, divider, p.OrderNumber, p.From, p.To, p.UpdatedAt.In(wib).Format("02/01/2006 15:04"))
}

// FormatReady renders the pickup call for an order that became READY.
func FormatReady(storeName string, s outbox.StatusChanged) string {
	msg := fmt.Sprintf("🔔 *PESANAN SIAP*\n🏪 %s\n%s\n📋 No: %s", storeName, divider, s.OrderNumber)
	if s.TableNumber != "" {
		msg += fmt.Sprintf("\n🪑 Meja: %s", s.TableNumber)
	}
	return msg
}

func label(labels map[string]string, v string) string {
	if l, ok := labels[v]; ok {
		return l
	}
	return v
}
