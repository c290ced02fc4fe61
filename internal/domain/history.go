package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// HistoryVersion 是 journal 文件的 schema 版本；读取时不一致直接失败。
const HistoryVersion = "1.0"

// OperationType 区分 journal 记录的是一次 rename 还是一次 revert。
type OperationType string

const (
	OperationRename OperationType = "rename"
	OperationRevert OperationType = "revert"
)

func (o *OperationType) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	switch OperationType(s) {
	case OperationRename, OperationRevert:
		*o = OperationType(s)
		return nil
	default:
		return fmt.Errorf("未知 operation：%q", s)
	}
}

// HistoryEntry 是 journal 中的一条变更（只记目录名，路径由 target_directory 还原）。
type HistoryEntry struct {
	Source      string `json:"source"`
	Destination string `json:"destination"`
	ID          int    `json:"id"`
	Truncated   bool   `json:"truncated"`
}

// HistoryFile 是一次事务的完整 journal（一事务一文件，写入后不可变）。
type HistoryFile struct {
	Version         string         `json:"version"`
	ExecutedAt      time.Time      `json:"executed_at"`
	Operation       OperationType  `json:"operation"`
	Direction       Direction      `json:"direction"`
	TargetDirectory string         `json:"target_directory"`
	ToolVersion     string         `json:"tool_version"`
	Changes         []HistoryEntry `json:"changes"`
}

// Finalize 统一时间为 UTC（JSON 中输出 RFC3339 且后缀 Z），并保证 changes 非 nil。
func (h *HistoryFile) Finalize() {
	h.ExecutedAt = h.ExecutedAt.UTC()
	if h.Changes == nil {
		h.Changes = []HistoryEntry{}
	}
}

// RevertResult 是一次 revert 的输出。
type RevertResult struct {
	Operations    []RenameOperation `json:"operations"`
	DryRun        bool              `json:"dry_run"`
	OriginJournal string            `json:"origin_journal"`
	NewJournal    string            `json:"new_journal,omitempty"`
}
