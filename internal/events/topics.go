package events

// Topic constants for domain events emitted by the register.
const (
	TopicDrawerOpened      = "drawer.opened"
	TopicDrawerClosed      = "drawer.closed"
	TopicDrawerDiscrepancy = "drawer.discrepancy"
	TopicExpenseRecorded   = "expense.recorded"
	TopicSaleCompleted     = "sale.completed"
)

// DefaultTopics returns the canonical list of topics handled by the worker.
func DefaultTopics() []string {
	return []string{
		TopicDrawerOpened,
		TopicDrawerClosed,
		TopicDrawerDiscrepancy,
		TopicExpenseRecorded,
		TopicSaleCompleted,
	}
}
