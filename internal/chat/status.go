package chat

// Status tracks a message along its delivery lifecycle.
type Status string

const (
	StatusSending   Status = "sending"
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered"
	StatusRead      Status = "read"
	StatusFailed    Status = "failed"
)

// rank orders statuses along sending < sent < delivered < read.
// Failed is terminal and not part of the ladder.
var rank = map[Status]int{
	StatusSending:   0,
	StatusSent:      1,
	StatusDelivered: 2,
	StatusRead:      3,
}

// Advance returns the status a record should carry after observing next.
// The ladder only moves forward; failed is reachable from sending or sent
// and nothing supersedes it.
func Advance(cur, next Status) Status {
	if cur == StatusFailed {
		return cur
	}
	if next == StatusFailed {
		if cur == StatusSending || cur == StatusSent {
			return StatusFailed
		}
		return cur
	}
	if rank[next] > rank[cur] {
		return next
	}
	return cur
}
