// Package report 记录一次运行的结果并写出 JSON 报告
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/paulmach/orb/maptile"

	"github.com/geoyee/regiontiles/internal/model"
	"github.com/geoyee/regiontiles/internal/util"
)

// Version 报告格式版本
const Version = "1.0"

// ReportManager 运行报告管理器
type ReportManager struct {
	report     *model.RunReport
	reportFile string
	saveDir    string
	mu         sync.Mutex
}

// NewReportManager 创建报告管理器，reportFile 为空时不写文件
func NewReportManager(saveDir, reportFile string) *ReportManager {
	return &ReportManager{
		reportFile: reportFile,
		saveDir:    saveDir,
		report: &model.RunReport{
			Version:   Version,
			OutputDir: saveDir,
			Failed:    make(map[string]string),
			StartTime: time.Now(),
		},
	}
}

// Enabled 是否需要写出报告
func (rm *ReportManager) Enabled() bool {
	return rm.reportFile != ""
}

// Path 报告文件路径，相对路径基于输出目录
func (rm *ReportManager) Path() string {
	if filepath.IsAbs(rm.reportFile) {
		return rm.reportFile
	}
	return filepath.Join(rm.saveDir, rm.reportFile)
}

// RecordPlan 记录计划信息
func (rm *ReportManager) RecordPlan(cfg *model.Config, regions int, plan *model.TilePlan) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	rm.report.Style = cfg.Style
	rm.report.Regions = regions
	rm.report.MinZoom = cfg.MinZoom
	rm.report.MaxZoom = cfg.MaxZoom
	rm.report.MaxTiles = cfg.MaxTiles
	rm.report.Requested = plan.Requested()
	rm.report.Planned = plan.ToFetch.Len()
	rm.report.HighestZoom = nil
	if plan.HasHighestZoom() {
		z := plan.HighestZoom
		rm.report.HighestZoom = &z
	}
}

// MarkTileFailed 记录失败瓦片及原因
func (rm *ReportManager) MarkTileFailed(tile maptile.Tile, reason string) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	rm.report.Failed[util.TileKey(tile)] = reason
}

// Finalize 填入统计数据
func (rm *ReportManager) Finalize(stats model.DownloadStats) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	rm.report.Fetched = stats.Fetched
	rm.report.Cached = stats.Cached
	rm.report.BytesTotal = stats.BytesTotal
	if !stats.StartTime.IsZero() {
		rm.report.StartTime = stats.StartTime
	}
	rm.report.Duration = time.Since(rm.report.StartTime).Round(time.Millisecond).String()
}

// Report 返回报告副本
func (rm *ReportManager) Report() model.RunReport {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	r := *rm.report
	r.Failed = make(map[string]string, len(rm.report.Failed))
	for k, v := range rm.report.Failed {
		r.Failed[k] = v
	}
	return r
}

// Save 写出报告
func (rm *ReportManager) Save() error {
	if !rm.Enabled() {
		return nil
	}

	rm.mu.Lock()
	data, err := json.MarshalIndent(rm.report, "", "  ")
	rm.mu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}

	path := rm.Path()
	if err := util.EnsureDirExists(filepath.Dir(path)); err != nil {
		return fmt.Errorf("failed to create report directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

// Load 读取已写出的报告
func Load(path string) (*model.RunReport, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read report: %w", err)
	}

	var r model.RunReport
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to parse report: %w", err)
	}
	return &r, nil
}
