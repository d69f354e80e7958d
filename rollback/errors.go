package rollback

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedInput 输入或数据包长度/格式不符，消息被丢弃（非致命）
	ErrMalformedInput = errors.New("rollback: malformed input")
	// ErrHistoryWindowExceeded 回滚目标早于保留窗口，修正被丢弃（非致命）
	ErrHistoryWindowExceeded = errors.New("rollback: history window exceeded")
	// ErrAlreadyStarted 会话已进入 Running，重复 Finalize
	ErrAlreadyStarted = errors.New("rollback: session already started")
	// ErrChannelTaken 通信通道已被取走（只能取一次）
	ErrChannelTaken = errors.New("rollback: channel already taken")
	// ErrSessionClosed 会话已关闭
	ErrSessionClosed = errors.New("rollback: session closed")
)

// SessionBuildError 会话构建失败（非法或重复的玩家句柄等），状态保持 WaitingForPlayers
type SessionBuildError struct {
	Err error
}

func (e *SessionBuildError) Error() string {
	return fmt.Sprintf("rollback: build session: %v", e.Err)
}

func (e *SessionBuildError) Unwrap() error { return e.Err }
