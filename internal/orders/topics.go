package orders

const (
	TopicOrderCreated       = "order.created"
	TopicOrderCancelled     = "order.cancelled"
	TopicOrderStatusChanged = "order.status_changed"
	TopicPaymentCompleted   = "order.payment.completed"
	TopicPaymentFailed      = "order.payment.failed"
	TopicReturnRequested    = "order.return.requested"
	TopicReturnProcessed    = "order.return.processed"
)

// Partition key = order_id, so every event of one order keeps its order.
func PartitionKey(orderID string) []byte { return []byte(orderID) }
