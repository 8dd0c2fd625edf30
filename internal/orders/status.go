package orders

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

var validNext = map[Status]map[Status]bool{
	StatusPending:    {StatusProcessing: true, StatusCancelled: true},
	StatusProcessing: {StatusShipped: true, StatusCancelled: true},
	StatusShipped:    {StatusDelivered: true},
	StatusDelivered:  {StatusCompleted: true},
	StatusCompleted:  {},
	StatusCancelled:  {},
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

func (s Status) Valid() bool {
	_, ok := validNext[s]
	return ok
}

// Returnable reports whether a return may be opened against the order.
func (s Status) Returnable() bool {
	return s == StatusDelivered || s == StatusCompleted
}

type PaymentStatus string

const (
	PaymentProcessing PaymentStatus = "processing"
	PaymentCompleted  PaymentStatus = "completed"
	PaymentFailed     PaymentStatus = "failed"
	PaymentRefunded   PaymentStatus = "refunded"
)

// completed -> completed is re-verification: it only records the gateway
// transaction id.
var validPaymentNext = map[PaymentStatus]map[PaymentStatus]bool{
	PaymentProcessing: {PaymentCompleted: true, PaymentFailed: true},
	PaymentCompleted:  {PaymentCompleted: true, PaymentRefunded: true},
	PaymentFailed:     {},
	PaymentRefunded:   {},
}

func CanTransitionPayment(from, to PaymentStatus) bool {
	return validPaymentNext[from][to]
}

type ReturnStatus string

const (
	ReturnRequested ReturnStatus = "requested"
	ReturnApproved  ReturnStatus = "approved"
	ReturnRejected  ReturnStatus = "rejected"
	ReturnSettled   ReturnStatus = "settled"
)

var validReturnNext = map[ReturnStatus]map[ReturnStatus]bool{
	ReturnRequested: {ReturnApproved: true, ReturnRejected: true},
	ReturnApproved:  {ReturnSettled: true},
	ReturnRejected:  {},
	ReturnSettled:   {},
}

func CanTransitionReturn(from, to ReturnStatus) bool {
	return validReturnNext[from][to]
}

func (s ReturnStatus) Valid() bool {
	_, ok := validReturnNext[s]
	return ok
}

type PaymentMethod string

const (
	MethodCreditCard    PaymentMethod = "cc"
	MethodDebitCard     PaymentMethod = "dc"
	MethodCashOnDeliver PaymentMethod = "cod"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case MethodCreditCard, MethodDebitCard, MethodCashOnDeliver:
		return true
	}
	return false
}

// SettlesAtCheckout is true for card rails, which are paid in the checkout
// transaction.
func (m PaymentMethod) SettlesAtCheckout() bool {
	return m == MethodCreditCard || m == MethodDebitCard
}
