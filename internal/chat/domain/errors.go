package domain

import "errors"

// 授權錯誤: 拒絕單一操作, 連線保留
var (
	ErrNotJoined        = errors.New("join required before other operations")
	ErrNotPermitted     = errors.New("not permitted to chat with this user")
	ErrIdentityMismatch = errors.New("join identity does not match authenticated user")
)

// 驗證錯誤
var (
	ErrEmptyContent     = errors.New("content is required")
	ErrMissingReceiver  = errors.New("receiverId is required")
	ErrMissingSender    = errors.New("senderId is required")
	ErrSelfConversation = errors.New("cannot chat with yourself")
	ErrUserNotFound     = errors.New("user not found or inactive")
	ErrMalformedRequest = errors.New("malformed request")
	ErrUnknownEvent     = errors.New("unknown event type")
)

// IsAuthorization AuthorizationFailure 類別
func IsAuthorization(err error) bool {
	return errors.Is(err, ErrNotJoined) || errors.Is(err, ErrNotPermitted) || errors.Is(err, ErrIdentityMismatch)
}

// IsValidation 參數錯誤類別
func IsValidation(err error) bool {
	return errors.Is(err, ErrEmptyContent) || errors.Is(err, ErrMissingReceiver) ||
		errors.Is(err, ErrMissingSender) || errors.Is(err, ErrSelfConversation)
}
