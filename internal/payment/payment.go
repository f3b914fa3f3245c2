package payment

import "github.com/fjod/go_checkout/internal/money"

type Method string

const (
	MethodCard           Method = "CARD"
	MethodCashOnDelivery Method = "CASH_ON_DELIVERY"
)

func (m Method) Known() bool {
	return m == MethodCard || m == MethodCashOnDelivery
}

// RequiresCapture reports whether the method needs an upfront processor
// charge. Cash on delivery is settled later and never touches the processor.
func (m Method) RequiresCapture() bool {
	return m == MethodCard
}

// CardDetails is collected client-side and handed only to the processor
// SDK. It must never be serialized into a marketplace backend request.
type CardDetails struct {
	Number     string
	ExpMonth   int
	ExpYear    int
	CVC        string
	HolderName string
}

type BillingDetails struct {
	Name  string
	Email string
}

type OutcomeStatus int

const (
	OutcomeSucceeded OutcomeStatus = iota
	OutcomeRequiresAction
	OutcomeFailed
)

func (s OutcomeStatus) String() string {
	switch s {
	case OutcomeSucceeded:
		return "SUCCEEDED"
	case OutcomeRequiresAction:
		return "REQUIRES_ACTION"
	default:
		return "FAILED"
	}
}

// Outcome is the tri-state result of a payment attempt. Reference is the
// processor-issued id on success and empty for no-capture methods.
//
// MayHaveSucceeded is set when the confirmation died in transit: the charge
// may still have landed remotely, so callers must re-query rather than
// retry a fresh payment.
type Outcome struct {
	Status           OutcomeStatus
	Reference        string
	Reason           string
	Transient        bool
	MayHaveSucceeded bool
}

// Intent is the processor-side record of an authorized-but-unsettled
// amount, issued by the marketplace backend before client confirmation.
type Intent struct {
	ID           string      `json:"id"`
	ClientSecret string      `json:"client_secret"`
	Amount       money.Money `json:"amount"`
}
