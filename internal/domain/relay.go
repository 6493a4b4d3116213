package domain

// RelayRecord is the audit entry written for one relayed request. It carries
// outcome metadata only; message and reply text are never stored.
type RelayRecord struct {
	PK            string
	SK            string
	CorrelationID string
	Outcome       string
	Reason        string
	InputModified bool
	InputChars    int
	ReplyChars    int
	UsedFallback  bool
	LatencyMillis int64
	CreatedAt     string
	TTL           int64
}
