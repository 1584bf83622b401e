package download

import (
	"errors"
	"fmt"
)

var (
	// ErrNetwork 标记上游传输失败，调用方可据此决定是否重试。
	ErrNetwork = errors.New("network error")
	// ErrUnexpectedStatus 表示上游返回了 200/301/302 之外的状态码。
	ErrUnexpectedStatus = errors.New("unexpected status")
	// ErrCorruptEntry 表示 metadata 存在但内容不可用（缺少尾部或正文）。
	ErrCorruptEntry = errors.New("corrupt cache entry")
	// ErrInvariantViolation 表示下载成功后复查仍然未命中，说明写入路径或存储有缺陷。
	ErrInvariantViolation = errors.New("cache invariant violation")
	// ErrRedirectLoop 表示重定向链出现环或超过跳数上限。
	ErrRedirectLoop = errors.New("redirect loop")
)

// NetworkError 包装 Fetcher 返回的传输错误。
type NetworkError struct {
	URL string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// Is 让 errors.Is(err, ErrNetwork) 成立。
func (e *NetworkError) Is(target error) bool {
	return target == ErrNetwork
}

// StatusError 描述上游返回的非预期状态码。
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned status code %d", e.URL, e.Code)
}

func (e *StatusError) Is(target error) bool {
	return target == ErrUnexpectedStatus
}

// CorruptEntryError 说明哪个条目损坏以及原因。
type CorruptEntryError struct {
	Key    string
	Reason string
	Err    error
}

func (e *CorruptEntryError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Key, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Key, e.Reason)
}

func (e *CorruptEntryError) Unwrap() error {
	return e.Err
}

func (e *CorruptEntryError) Is(target error) bool {
	return target == ErrCorruptEntry
}

// errorKind 把错误归类为指标标签。
func errorKind(err error) string {
	switch {
	case errors.Is(err, ErrNetwork):
		return "network"
	case errors.Is(err, ErrUnexpectedStatus):
		return "status"
	case errors.Is(err, ErrCorruptEntry):
		return "corrupt"
	case errors.Is(err, ErrInvariantViolation):
		return "invariant"
	case errors.Is(err, ErrRedirectLoop):
		return "redirect_loop"
	default:
		return "storage"
	}
}
