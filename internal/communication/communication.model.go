package communication

import "time"

type Direction string

const (
	Inbound  Direction = "inbound"
	Outbound Direction = "outbound"
)

type MessageStatus string

const (
	StatusQueued    MessageStatus = "queued"
	StatusSent      MessageStatus = "sent"
	StatusFailed    MessageStatus = "failed"
	StatusDelivered MessageStatus = "delivered"
	StatusRead      MessageStatus = "read"
	StatusReceived  MessageStatus = "received"
)

// UnknownClient is stored on inbound messages whose sender matched no client.
const UnknownClient = "unknown"

type Message struct {
	ID         string        `json:"id" firestore:"-"`
	ClientID   string        `json:"clientId" firestore:"clientId"`
	Template   string        `json:"template,omitempty" firestore:"template,omitempty"`
	Body       string        `json:"body" firestore:"body"`
	To         string        `json:"to" firestore:"to"`
	From       string        `json:"from,omitempty" firestore:"from,omitempty"`
	Direction  Direction     `json:"direction" firestore:"direction"`
	Status     MessageStatus `json:"status" firestore:"status"`
	ExternalID string        `json:"externalId,omitempty" firestore:"externalId,omitempty"`
	Error      string        `json:"error,omitempty" firestore:"error,omitempty"`
	CreatedAt  time.Time     `json:"createdAt" firestore:"createdAt,serverTimestamp"`
	UpdatedAt  time.Time     `json:"updatedAt" firestore:"updatedAt,serverTimestamp"`
}

// Conversation is keyed by the counterpart's phone number.
type Conversation struct {
	Phone           string    `json:"phone" firestore:"phone"`
	ClientID        string    `json:"clientId,omitempty" firestore:"clientId,omitempty"`
	Name            string    `json:"name,omitempty" firestore:"name,omitempty"`
	LastMessageAt   time.Time `json:"lastMessageAt" firestore:"lastMessageAt"`
	LastMessageBody string    `json:"lastMessageBody" firestore:"lastMessageBody"`
	LastMessageDir  Direction `json:"lastMessageDir" firestore:"lastMessageDir"`
	UnreadCount     int       `json:"unreadCount" firestore:"unreadCount"`
	Prospect        bool      `json:"prospect" firestore:"prospect"`
}

// ConversationUpdate is the metadata written after every message. Unread is
// added to the stored counter.
type ConversationUpdate struct {
	Phone     string
	ClientID  string
	Name      string
	Body      string
	Direction Direction
	Unread    int
	Prospect  bool
}

type InboundPayload struct {
	From        string `json:"From"`
	To          string `json:"To"`
	Body        string `json:"Body"`
	MessageSid  string `json:"MessageSid"`
	ProfileName string `json:"ProfileName"`
}

type SendTemplateRequest struct {
	ClientID     string            `json:"clientId"`
	TemplateName string            `json:"templateName"`
	TemplateData map[string]string `json:"templateData,omitempty"`
}

type SendTextRequest struct {
	ClientID string `json:"clientId"`
	Body     string `json:"body"`
}

type MessagePage struct {
	Messages   []*Message `json:"messages"`
	NextCursor string     `json:"nextCursor,omitempty"`
}
