package session

// Session is the durable record behind one session handle. The refresh
// secret itself is never stored; only its SHA-256 hash is, and rotation
// swaps that hash atomically.
type Session struct {
	Handle          string
	IdentityID      string
	Payload         map[string]string
	RefreshHash     [32]byte
	CreatedAt       int64
	LastRefreshedAt int64
	ExpiresAt       int64
}
