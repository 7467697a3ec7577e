// Package calculator 提供瓦片坐标计算功能
package calculator

import "errors"

var (
	// ErrInvalidZoomRange 无效的缩放级别范围
	ErrInvalidZoomRange = errors.New("invalid zoom range (0 <= min-zoom <= max-zoom <= 30)")
	// ErrInvalidMargin 无效的区域扩展量
	ErrInvalidMargin = errors.New("invalid margin (lat and lon margins must be >= 0)")
)
