package alert

import "errors"

// 生命周期操作的类型化错误，调用方用 errors.Is 判别
var (
	// ErrAlertNotFound 报警ID不存在
	ErrAlertNotFound = errors.New("alert not found")

	// ErrInvalidTransition 当前状态不允许该操作（例如对已关闭的报警记录动作）
	ErrInvalidTransition = errors.New("invalid alert transition")
)
