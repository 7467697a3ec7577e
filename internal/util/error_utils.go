package util

import (
	"strings"
	"sync"
)

// ErrorStats 错误统计
type ErrorStats struct {
	errors map[string]int
	mu     sync.RWMutex
}

// NewErrorStats 创建错误统计
func NewErrorStats() *ErrorStats {
	return &ErrorStats{
		errors: make(map[string]int),
	}
}

// ClassifyError 简化错误信息，提取关键部分
func ClassifyError(err error) string {
	errStr := err.Error()
	switch {
	case strings.Contains(errStr, "context deadline exceeded"),
		strings.Contains(errStr, "Client.Timeout exceeded"):
		return "timeout"
	case strings.Contains(errStr, "connection refused"):
		return "connection refused"
	case strings.Contains(errStr, "no such host"):
		return "DNS lookup failed"
	case strings.Contains(errStr, "i/o timeout"):
		return "I/O timeout"
	case strings.Contains(errStr, "proxyconnect"):
		return "proxy connection failed"
	case strings.Contains(errStr, "tls handshake"):
		return "TLS handshake failed"
	case strings.Contains(errStr, "HTTP 401"):
		return "HTTP 401 unauthorized (check api key)"
	case strings.Contains(errStr, "HTTP 403"):
		return "HTTP 403 forbidden"
	case strings.Contains(errStr, "HTTP 404"):
		return "HTTP 404 not found"
	case strings.Contains(errStr, "HTTP 429"):
		return "HTTP 429 too many requests"
	case strings.Contains(errStr, "HTTP 5"):
		return "HTTP 5xx server error"
	default:
		// 只取错误信息的前50个字符
		if len(errStr) > 50 {
			return errStr[:50] + "..."
		}
		return errStr
	}
}

// RecordError 记录错误
func (es *ErrorStats) RecordError(err error) {
	if err == nil {
		return
	}

	key := ClassifyError(err)

	es.mu.Lock()
	defer es.mu.Unlock()
	es.errors[key]++
}

// GetErrorStats 获取错误统计
func (es *ErrorStats) GetErrorStats() map[string]int {
	es.mu.RLock()
	defer es.mu.RUnlock()

	// 返回副本
	stats := make(map[string]int, len(es.errors))
	for err, count := range es.errors {
		stats[err] = count
	}

	return stats
}

// HasErrors 检查是否有错误
func (es *ErrorStats) HasErrors() bool {
	es.mu.RLock()
	defer es.mu.RUnlock()

	return len(es.errors) > 0
}
