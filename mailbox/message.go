package mailbox

// Status tracks delivery progress of a message. Status only advances
// forward (sent -> delivered -> read) and never reverts.
type Status string

const (
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered"
	StatusRead      Status = "read"
)

// Message is one entry in the append-only log. Field names mirror the wire
// contract; "from" is always the authenticated sender.
type Message struct {
	MessageID string `json:"message_id"`
	From      string `json:"from"`
	To        string `json:"to"`
	Subject   string `json:"subject"`
	Body      string `json:"body"`
	Timestamp string `json:"timestamp"`
	Status    Status `json:"status"`
}

// BatchEntry is one outgoing message in a batch send.
type BatchEntry struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// BatchResult reports the outcome for a single batch entry. Batch entries
// are stored independently; one failure never blocks the others.
type BatchResult struct {
	To        string `json:"to"`
	MessageID string `json:"message_id"`
	Status    string `json:"status"`
}
