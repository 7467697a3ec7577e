// Package model 定义数据模型
package model

import (
	"sort"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
)

// NoZoom 表示尚未收录任何缩放级别
const NoZoom = -1

// GeoPoint 经纬度坐标（度）
type GeoPoint struct {
	Lon float64
	Lat float64
}

// Margin 区域扩展的纬度/经度半宽
type Margin struct {
	Lat float64
	Lon float64
}

// BoundingBox 经纬度矩形
type BoundingBox struct {
	MinLat float64
	MinLon float64
	MaxLat float64
	MaxLon float64
}

// Bound 转换为 orb.Bound
func (b BoundingBox) Bound() orb.Bound {
	return orb.Bound{
		Min: orb.Point{b.MinLon, b.MinLat},
		Max: orb.Point{b.MaxLon, b.MaxLat},
	}
}

// Placemark 输入几何中的一个命名要素
type Placemark struct {
	Name   string
	Points []GeoPoint
	Paths  [][]GeoPoint
}

// Region 命名区域
type Region struct {
	Name string
	Box  BoundingBox
}

// TileSet 瓦片集合
type TileSet map[maptile.Tile]struct{}

// NewTileSet 创建瓦片集合
func NewTileSet() TileSet {
	return make(TileSet)
}

// Add 添加瓦片
func (s TileSet) Add(t maptile.Tile) {
	s[t] = struct{}{}
}

// Has 是否包含瓦片
func (s TileSet) Has(t maptile.Tile) bool {
	_, ok := s[t]
	return ok
}

// Remove 移除瓦片
func (s TileSet) Remove(t maptile.Tile) {
	delete(s, t)
}

// Len 瓦片数量
func (s TileSet) Len() int {
	return len(s)
}

// Slice 按 z/x/y 排序返回
func (s TileSet) Slice() []maptile.Tile {
	tiles := make([]maptile.Tile, 0, len(s))
	for t := range s {
		tiles = append(tiles, t)
	}
	sort.Slice(tiles, func(i, j int) bool {
		if tiles[i].Z != tiles[j].Z {
			return tiles[i].Z < tiles[j].Z
		}
		if tiles[i].X != tiles[j].X {
			return tiles[i].X < tiles[j].X
		}
		return tiles[i].Y < tiles[j].Y
	})
	return tiles
}

// TilePlan 下载计划
type TilePlan struct {
	ToFetch     TileSet
	Skipped     TileSet
	HighestZoom int
}

// NewTilePlan 创建空计划
func NewTilePlan() *TilePlan {
	return &TilePlan{
		ToFetch:     NewTileSet(),
		Skipped:     NewTileSet(),
		HighestZoom: NoZoom,
	}
}

// HasHighestZoom 是否至少收录了一个缩放级别
func (p *TilePlan) HasHighestZoom() bool {
	return p.HighestZoom != NoZoom
}

// Requested 请求的瓦片总数
func (p *TilePlan) Requested() int {
	return p.ToFetch.Len() + p.Skipped.Len()
}

// DownloadTask 下载任务
type DownloadTask struct {
	Tile     maptile.Tile
	URL      string
	SavePath string
}

// DownloadStats 下载统计
type DownloadStats struct {
	Total         int64
	Fetched       int64
	Cached        int64
	Failed        int64
	BytesTotal    int64
	ActiveWorkers int32
	StartTime     time.Time
}

// RunReport 运行报告
type RunReport struct {
	Version     string            `json:"version"`
	Style       string            `json:"style"`
	OutputDir   string            `json:"output_dir"`
	Regions     int               `json:"regions"`
	MinZoom     int               `json:"min_zoom"`
	MaxZoom     int               `json:"max_zoom"`
	MaxTiles    int               `json:"max_tiles"`
	Requested   int               `json:"requested"`
	Planned     int               `json:"planned"`
	HighestZoom *int              `json:"highest_zoom"`
	Fetched     int64             `json:"fetched"`
	Cached      int64             `json:"cached"`
	Failed      map[string]string `json:"failed"`
	BytesTotal  int64             `json:"bytes_total"`
	StartTime   time.Time         `json:"start_time"`
	Duration    string            `json:"duration"`
}

// Config 下载器配置
type Config struct {
	APIKey     string
	Style      string
	Host       string
	MaxTiles   int
	MinZoom    int
	MaxZoom    int
	LatMargin  float64
	LonMargin  float64
	OutputDir  string
	Threads    int
	Timeout    int
	RateLimit  int
	UserAgent  string
	UseHTTP2   bool
	ProxyURL   string
	ReportFile string
	DryRun     bool
}

// Margin 返回配置的区域扩展量
func (c *Config) Margin() Margin {
	return Margin{Lat: c.LatMargin, Lon: c.LonMargin}
}
