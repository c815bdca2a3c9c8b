package domain

// ReasonCode 是校验失败时返回给调用方的机器可读原因。
type ReasonCode string

const (
	ReasonMailboxNotFound    ReasonCode = "MAILBOX_NOT_FOUND"
	ReasonInvalidToken       ReasonCode = "INVALID_TOKEN"
	ReasonMailboxExpired     ReasonCode = "MAILBOX_EXPIRED"
	ReasonMailboxInactive    ReasonCode = "MAILBOX_INACTIVE"
	ReasonNoUsableMailbox    ReasonCode = "NO_VALID_MAILBOX"
	ReasonInvalidRequest     ReasonCode = "INVALID_REQUEST"
	ReasonServiceUnavailable ReasonCode = "SERVICE_UNAVAILABLE"
)
