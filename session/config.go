package session

import (
	"crypto/tls"
	"time"

	"github.com/momentics/wsclient/heartbeat"
)

// Config is the full configuration surface of §6: every field has the
// documented default applied by DefaultConfig, and every field can be
// set directly before calling New, mirroring the teacher's plain-struct ClientConfig
// (client/client.go) rather than a builder type.
type Config struct {
	URL string

	ConnectTimeout       time.Duration
	MaxMessageSize       int64
	AutoReconnect        bool
	MaxReconnectAttempts int

	Ping heartbeat.Config

	// TLSConfig, when set, is cloned and used for wss:// connections
	// instead of a zero-value tls.Config. The transport package always
	// sets ServerName to the URL host and raises MinVersion to at least
	// TLS 1.2, whatever this value holds.
	TLSConfig *tls.Config

	// SkipAcceptValidation disables Sec-WebSocket-Accept verification
	// during the handshake (see this module's resolved Open Question).
	SkipAcceptValidation bool

	// PreferredCPU, when >= 0, is applied by the I/O loop to itself on
	// its first iteration via the affinity package.
	PreferredCPU int
}

// DefaultConfig returns the configuration defaults specified in §6.
func DefaultConfig(url string) Config {
	return Config{
		URL:                  url,
		ConnectTimeout:       10 * time.Second,
		MaxMessageSize:       16 << 20, // 16 MiB
		AutoReconnect:        true,
		MaxReconnectAttempts: 5,
		Ping:                 heartbeat.DefaultConfig(),
		PreferredCPU:         -1,
	}
}

// Callbacks is the full set of user-supplied event hooks from §6. Any
// field left nil is simply never invoked; callbacks must not block the
// I/O loop for long, since they execute on it synchronously.
type Callbacks struct {
	OnConnect    func()
	OnDisconnect func(code CloseCode)
	OnError      func(code ErrorCode, message string)
	OnRawMessage func(data []byte)
	OnMessage    func(text string)
	OnPing       func(payload []byte)
	OnPong       func(payload []byte)
}
