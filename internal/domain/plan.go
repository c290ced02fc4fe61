package domain

import (
	"encoding/json"
	"fmt"
)

// Direction 是一次批量重命名的方向。
type Direction string

const (
	DirectionCatalogToReadable Direction = "catalog_to_readable"
	DirectionReadableToCatalog Direction = "readable_to_catalog"
)

// DirectionFor 返回从 f 出发的重命名方向。
func DirectionFor(f Format) Direction {
	if f == FormatReadable {
		return DirectionReadableToCatalog
	}
	return DirectionCatalogToReadable
}

// Reverse 返回相反方向（revert 写 journal 时使用）。
func (d Direction) Reverse() Direction {
	if d == DirectionCatalogToReadable {
		return DirectionReadableToCatalog
	}
	return DirectionCatalogToReadable
}

// Describe 返回面向用户的方向描述。
func (d Direction) Describe() string {
	switch d {
	case DirectionCatalogToReadable:
		return "catalog → readable"
	case DirectionReadableToCatalog:
		return "readable → catalog"
	default:
		return string(d)
	}
}

func (d *Direction) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	switch Direction(s) {
	case DirectionCatalogToReadable, DirectionReadableToCatalog:
		*d = Direction(s)
		return nil
	default:
		return fmt.Errorf("未知 direction：%q", s)
	}
}

// RenameOperation 是事务的最小执行单元：PREPARE 阶段构造，EXECUTE 阶段消费。
type RenameOperation struct {
	SourcePath      string `json:"source_path"`
	SourceName      string `json:"source_name"`
	DestinationPath string `json:"destination_path"`
	DestinationName string `json:"destination_name"`
	ID              int    `json:"id"`
	Truncated       bool   `json:"truncated"`
}

// NoOp 表示源名与目标名一致，执行阶段跳过。
// PREPARE 产生的操作总是跨形态，不会是 no-op；只有手工编辑过、source 与 destination 相同的 journal 在 revert 时会命中。
func (op RenameOperation) NoOp() bool {
	return op.SourceName == op.DestinationName
}

// RenameResult 是一次事务的输出，也是 journal 的输入。
type RenameResult struct {
	Direction  Direction         `json:"direction"`
	Operations []RenameOperation `json:"operations"`
	DryRun     bool              `json:"dry_run"`
}

// TruncatedCount 统计被截断的目标名数量。
func (r RenameResult) TruncatedCount() int {
	n := 0
	for _, op := range r.Operations {
		if op.Truncated {
			n++
		}
	}
	return n
}

// Applied 返回真正需要执行（或已执行）的操作，跳过 no-op。
func (r RenameResult) Applied() []RenameOperation {
	out := make([]RenameOperation, 0, len(r.Operations))
	for _, op := range r.Operations {
		if !op.NoOp() {
			out = append(out, op)
		}
	}
	return out
}
