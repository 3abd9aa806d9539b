package checkout

type Kind string

const (
	KindIdle                 Kind = "IDLE"
	KindLoadingConfig        Kind = "LOADING_CONFIG"
	KindCreatingIntent       Kind = "CREATING_INTENT"
	KindAwaitingConfirmation Kind = "AWAITING_CONFIRMATION"
	KindConfirmingPayment    Kind = "CONFIRMING_PAYMENT"
	KindCreatingOrder        Kind = "CREATING_ORDER"
	KindSucceeded            Kind = "SUCCEEDED"
	KindFailed               Kind = "FAILED"
	KindEmptyCart            Kind = "EMPTY_CART"
)

func (k Kind) IsTerminal() bool {
	return k == KindSucceeded || k == KindFailed || k == KindEmptyCart
}

// InFlight reports whether money may be moving: the provider call or the
// order submission has started and must not be abandoned.
func (k Kind) InFlight() bool {
	return k == KindConfirmingPayment || k == KindCreatingOrder
}

func (k Kind) String() string {
	return string(k)
}

type Reason string

const (
	ReasonNone                            Reason = ""
	ReasonConfigUnavailable               Reason = "CONFIG_UNAVAILABLE"
	ReasonIntentCreationFailed            Reason = "INTENT_CREATION_FAILED"
	ReasonPaymentDeclined                 Reason = "PAYMENT_DECLINED"
	ReasonOrderCreationFailedAfterPayment Reason = "ORDER_CREATION_FAILED_AFTER_PAYMENT"
)

const (
	MessagePreparing          = "Preparing checkout…"
	MessageProcessing         = "Processing…"
	MessageEmptyCart          = "Your cart is empty. Add items before checking out."
	MessageConfigUnavailable  = "Could not load payment configuration"
	MessageIntentFailed       = "Failed to create payment intent"
	MessagePaymentFailed      = "Payment failed"
	MessageCreatingOrder      = "Payment successful! Creating order..."
	MessageRedirecting        = "Order created! Redirecting..."
	MessageOrderFailedSupport = "Payment succeeded but order creation failed. Please contact support."
)

// State is the tagged variant the orchestrator is in. Reason is only set for
// KindFailed.
type State struct {
	Kind    Kind   `json:"state"`
	Reason  Reason `json:"reason,omitempty"`
	Message string `json:"message,omitempty"`
}

func Idle() State {
	return State{Kind: KindIdle}
}

func EmptyCart() State {
	return State{Kind: KindEmptyCart, Message: MessageEmptyCart}
}

func Failed(reason Reason, message string) State {
	return State{Kind: KindFailed, Reason: reason, Message: message}
}

func (s State) Is(kind Kind) bool {
	return s.Kind == kind
}

var transitions = map[Kind][]Kind{
	KindIdle:                 {KindEmptyCart, KindLoadingConfig},
	KindLoadingConfig:        {KindCreatingIntent, KindFailed, KindEmptyCart},
	KindCreatingIntent:       {KindAwaitingConfirmation, KindCreatingIntent, KindFailed, KindEmptyCart},
	KindAwaitingConfirmation: {KindConfirmingPayment, KindCreatingIntent, KindEmptyCart},
	KindConfirmingPayment:    {KindConfirmingPayment, KindCreatingOrder, KindFailed},
	KindCreatingOrder:        {KindSucceeded, KindFailed},
}

// CanTransition reports whether moving from one kind to another is allowed.
// Terminal kinds have no outgoing edges.
func CanTransition(from, to Kind) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
