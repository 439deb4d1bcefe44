package service

import "errors"

// 服務層錯誤定義，handler 用 errors.Is 對應到 HTTP 狀態碼
var (
	ErrTopicNotFound   = errors.New("topic not found")
	ErrTopicExists     = errors.New("topic already exists")
	ErrUserNotFound    = errors.New("user not found")
	ErrRoomNotFound    = errors.New("room not found")
	ErrPremiumRequired = errors.New("forbidden: premium topic requires a premium account")
	ErrRoomConflict    = errors.New("room selection conflict: retries exhausted")
	ErrRoomCorrupted   = errors.New("internal: room record is missing required fields")
)
