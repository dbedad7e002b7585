package models

import (
	"errors"
	"fmt"
)

// 错误类型定义
var (
	ErrStartFailure     = errors.New("排序控件在重试次数内未能点击")
	ErrLoadTimeout      = errors.New("加载更多控件等待超时")
	ErrLoadFailure      = errors.New("加载更多操作失败")
	ErrResumeMisaligned = errors.New("续抓位置与页面渲染数量不一致")
	ErrSessionClosed    = errors.New("浏览器会话已关闭")
	ErrControllerState  = errors.New("页面控制器状态无效")
)

// ErrorKind 错误分类, 供跳过策略判断
type ErrorKind string

const (
	KindStartFailure       ErrorKind = "start_failure"       // 来源级致命
	KindLoadTimeout        ErrorKind = "load_timeout"        // 非致命, 接受部分批次
	KindLoadFailure        ErrorKind = "load_failure"        // 点击或滚动失败, 接受部分批次
	KindParseDefault       ErrorKind = "parse_default"       // 字段缺失, 本地默认值
	KindRecordProcessing   ErrorKind = "record_processing"   // 单条记录失败, 跳过该索引
	KindResumeMisalignment ErrorKind = "resume_misalignment" // 续抓索引错位
)

// StartFailure 页面启动失败
type StartFailure struct {
	URL      string
	Attempts int
	Cause    error
}

// Error 实现error接口
func (e *StartFailure) Error() string {
	return fmt.Sprintf("启动失败 [%s] (尝试%d次): %v", e.URL, e.Attempts, e.Cause)
}

// Unwrap 支持errors.Unwrap
func (e *StartFailure) Unwrap() error {
	return e.Cause
}

// Is 使 errors.Is(err, ErrStartFailure) 成立
func (e *StartFailure) Is(target error) bool {
	return target == ErrStartFailure
}

// RecordError 单条记录处理错误
type RecordError struct {
	Index int
	Kind  ErrorKind
	Cause error
}

// Error 实现error接口
func (e *RecordError) Error() string {
	return fmt.Sprintf("记录处理失败 [索引 %d, %s]: %v", e.Index, e.Kind, e.Cause)
}

// Unwrap 支持errors.Unwrap
func (e *RecordError) Unwrap() error {
	return e.Cause
}

// KindOf 返回错误的分类, 未知错误返回空字符串
func KindOf(err error) ErrorKind {
	var recErr *RecordError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &recErr):
		return recErr.Kind
	case errors.Is(err, ErrStartFailure):
		return KindStartFailure
	case errors.Is(err, ErrLoadTimeout):
		return KindLoadTimeout
	case errors.Is(err, ErrLoadFailure):
		return KindLoadFailure
	case errors.Is(err, ErrResumeMisaligned):
		return KindResumeMisalignment
	}
	return ""
}

// ConfigError 配置文件错误
type ConfigError struct {
	FilePath string
	Cause    error
}

// Error 实现error接口
func (e *ConfigError) Error() string {
	return fmt.Sprintf("配置文件错误 [%s]: %v", e.FilePath, e.Cause)
}

// Unwrap 支持errors.Unwrap
func (e *ConfigError) Unwrap() error {
	return e.Cause
}

// ValidationError 头部验证错误
type ValidationError struct {
	Field      string // "name" 或 "value"
	HeaderName string
	Reason     string
	Suggestion string
}

// Error 实现error接口
func (e *ValidationError) Error() string {
	msg := fmt.Sprintf("头部验证失败 [%s]: %s", e.HeaderName, e.Reason)
	if e.Suggestion != "" {
		msg += fmt.Sprintf(" (建议: %s)", e.Suggestion)
	}
	return msg
}
