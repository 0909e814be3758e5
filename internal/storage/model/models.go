package model

import "time"

// SessionStatus is the persisted belief about an outlet's WhatsApp
// connection. It can drift from the in-memory truth; the session manager
// reconciles the two.
type SessionStatus string

const (
	SessionStatusConnecting   SessionStatus = "connecting"
	SessionStatusConnected    SessionStatus = "connected"
	SessionStatusDisconnected SessionStatus = "disconnected"
	SessionStatusError        SessionStatus = "error"
)

// Outlet is one tenant: a store location with its own WhatsApp identity and
// customer list.
type Outlet struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	RegisteredNumber string    `json:"registeredNumber"`
	IsActive         bool      `json:"isActive"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// OutletSession is the one-row-per-outlet session record. QRCode is present
// only while status is connecting and no prior pairing completed for the
// handshake. DeviceInfo is a free-form JSON blob; on a phone number mismatch
// it carries {"error": "Phone number mismatch", "registered": ..., "connected": ...}.
type OutletSession struct {
	OutletID      string        `json:"outletId"`
	Status        SessionStatus `json:"status"`
	QRCode        *string       `json:"qrCode,omitempty"`
	ConnectedAt   *time.Time    `json:"connectedAt,omitempty"`
	LastSeen      *time.Time    `json:"lastSeen,omitempty"`
	SessionName   string        `json:"sessionName,omitempty"`
	DeviceInfo    string        `json:"deviceInfo,omitempty"`
	AutoReconnect bool          `json:"autoReconnect"`
	RetryCount    int           `json:"retryCount"`
	PhoneNumber   string        `json:"phoneNumber,omitempty"`
	JID           string        `json:"jid,omitempty"`
	UpdatedAt     time.Time     `json:"updatedAt"`
}

type Customer struct {
	ID          string    `json:"id"`
	OutletID    string    `json:"outletId"`
	Name        string    `json:"name"`
	PhoneNumber string    `json:"phoneNumber"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type BlastStatus string

const (
	BlastStatusQueued     BlastStatus = "queued"
	BlastStatusProcessing BlastStatus = "processing"
	BlastStatusCompleted  BlastStatus = "completed"
	BlastStatusFailed     BlastStatus = "failed"
)

// SendMode controls how a message and its attachments are combined.
// "caption" puts the message on the first image; "separate" sends the text
// first and every attachment after it.
type SendMode string

const (
	SendModeCaption  SendMode = "caption"
	SendModeSeparate SendMode = "separate"
)

// Blast is one broadcast request. Attachments holds a JSON-encoded
// []BlastAttachment pointing at staged media files; Targets a JSON-encoded
// []string of customer ids.
type Blast struct {
	ID          string      `json:"id"`
	OutletID    string      `json:"outletId"`
	Message     string      `json:"message"`
	SendMode    SendMode    `json:"sendMode"`
	Status      BlastStatus `json:"status"`
	Attachments string      `json:"-"`
	Targets     string      `json:"-"`
	TargetCount int         `json:"targetCount"`
	SentCount   int         `json:"sentCount"`
	FailedCount int         `json:"failedCount"`
	CreatedAt   time.Time   `json:"createdAt"`
	StartedAt   *time.Time  `json:"startedAt,omitempty"`
	CompletedAt *time.Time  `json:"completedAt,omitempty"`
}

// BlastAttachment references a staged media file by id.
type BlastAttachment struct {
	MediaID  string `json:"mediaId"`
	Kind     string `json:"kind"` // "image" or "document"
	MimeType string `json:"mimeType"`
	FileName string `json:"fileName,omitempty"`
}

// BlastReport is the delivery outcome for one customer of one blast.
type BlastReport struct {
	ID           string    `json:"id"`
	BlastID      string    `json:"blastId"`
	CustomerID   string    `json:"customerId"`
	CustomerName string    `json:"customerName"`
	PhoneNumber  string    `json:"phoneNumber"`
	Success      bool      `json:"success"`
	Message      string    `json:"message"`
	Timestamp    time.Time `json:"timestamp"`
}

type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	CreatedAt    time.Time `json:"createdAt"`
}
