package templates

import (
	"fmt"
	"slices"

	"github.com/a-h/templ"
)

// Template names accepted by email jobs.
const (
	BillingConfirmation = "billing_confirmation"
	PaymentReceived     = "payment_received"
	OrderExpired        = "order_expired"
	PackageActivated    = "package_activated"
	QuotaReset          = "quota_reset"
)

// Data is the free-form template input carried by email jobs.
type Data map[string]any

func (d Data) str(key string) string {
	v, ok := d[key]
	if !ok || v == nil {
		return ""
	}
	return fmt.Sprint(v)
}

type builder func(Data) templ.Component

var registry = map[string]builder{
	BillingConfirmation: billingConfirmation,
	PaymentReceived:     paymentReceived,
	OrderExpired:        orderExpired,
	PackageActivated:    packageActivated,
	QuotaReset:          quotaReset,
}

// Names returns the known template names, sorted.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Lookup returns the component for a template name filled with data.
func Lookup(name string, data Data) (templ.Component, bool) {
	b, ok := registry[name]
	if !ok {
		return nil, false
	}
	return b(data), true
}

func greeting(d Data) string {
	if name := d.str("customer_name"); name != "" {
		return "Hi " + name + ","
	}
	return "Hi,"
}

func billingConfirmation(d Data) templ.Component {
	return layout("Order received", paragraphs(
		greeting(d),
		fmt.Sprintf("We received your order %s for the %s package.", d.str("order_id"), d.str("package_name")),
		fmt.Sprintf("Amount due: %s %s. Please complete the payment within 24 hours.", d.str("amount"), d.str("currency")),
	))
}

func paymentReceived(d Data) templ.Component {
	return layout("Payment received", paragraphs(
		greeting(d),
		fmt.Sprintf("Your payment of %s %s for order %s was received.", d.str("amount"), d.str("currency"), d.str("order_id")),
		"Thank you for choosing IndexNow Studio.",
	))
}

func orderExpired(d Data) templ.Component {
	return layout("Order expired", paragraphs(
		greeting(d),
		fmt.Sprintf("Your order %s was cancelled because no payment arrived within 24 hours.", d.str("order_id")),
		"You can place a new order from your billing page at any time.",
	))
}

func packageActivated(d Data) templ.Component {
	return layout("Package activated", paragraphs(
		greeting(d),
		fmt.Sprintf("Your %s package is now active.", d.str("package_name")),
		expiry(d),
	))
}

func expiry(d Data) string {
	if v := d.str("expires_at"); v != "" {
		return "It renews on " + v + "."
	}
	return ""
}

func quotaReset(d Data) templ.Component {
	return layout("Daily quota reset", paragraphs(
		greeting(d),
		fmt.Sprintf("Your daily rank check quota was reset. You can run %s checks today.", d.str("quota_limit")),
	))
}
