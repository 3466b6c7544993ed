package timeline

import (
	"fmt"
	"strings"

	"github.com/z-wentao/slidecast/pkg/models"
)

type IssueKind string

const (
	IssueInverted   IssueKind = "inverted"     // end < start
	IssueOutOfRange IssueKind = "out_of_range" // 超出 [0, total]
	IssueOutOfOrder IssueKind = "out_of_order" // start 比前一条小
	IssueOverlap    IssueKind = "overlap"      // 与前一条时间重叠
	IssueEmptyText  IssueKind = "empty_text"
)

// CaptionIssue 一条字幕的问题
type CaptionIssue struct {
	Index  int       `json:"index"`
	Kind   IssueKind `json:"kind"`
	Detail string    `json:"detail"`
}

func (i CaptionIssue) String() string {
	return fmt.Sprintf("字幕 #%d %s: %s", i.Index, i.Kind, i.Detail)
}

// CheckCaptions 检查字幕时间码
//
// strict 模式下任何问题都返回 ErrInvalidCaptions。
// 宽松模式下丢弃倒置和空白字幕，把时间截到 [0, total]，重叠和乱序的字幕保留原样，
// 所有问题都记录在返回的 issues 中。零时长字幕不算问题，直接不出图层。
func CheckCaptions(captions []models.Caption, total float64, strict bool) ([]models.Caption, []CaptionIssue, error) {
	var issues []CaptionIssue
	kept := make([]models.Caption, 0, len(captions))

	prevStart, prevEnd := -1.0, -1.0
	for _, c := range captions {
		text := strings.TrimSpace(c.Text)
		if text == "" {
			issues = append(issues, CaptionIssue{Index: c.Index, Kind: IssueEmptyText, Detail: "文本为空"})
			continue
		}
		if c.End < c.Start {
			issues = append(issues, CaptionIssue{
				Index:  c.Index,
				Kind:   IssueInverted,
				Detail: fmt.Sprintf("start=%.3f end=%.3f", c.Start, c.End),
			})
			continue
		}
		if c.Start < prevStart {
			issues = append(issues, CaptionIssue{
				Index:  c.Index,
				Kind:   IssueOutOfOrder,
				Detail: fmt.Sprintf("start=%.3f 早于前一条 %.3f", c.Start, prevStart),
			})
		} else if c.Start < prevEnd {
			issues = append(issues, CaptionIssue{
				Index:  c.Index,
				Kind:   IssueOverlap,
				Detail: fmt.Sprintf("start=%.3f 早于前一条结束 %.3f", c.Start, prevEnd),
			})
		}
		prevStart, prevEnd = c.Start, max(prevEnd, c.End)

		if c.Start < 0 || c.End > total {
			issues = append(issues, CaptionIssue{
				Index:  c.Index,
				Kind:   IssueOutOfRange,
				Detail: fmt.Sprintf("[%.3f, %.3f) 超出 [0, %.3f]", c.Start, c.End, total),
			})
			c.Start = max(c.Start, 0)
			c.End = min(c.End, total)
		}
		// start == end 是合法记录，但没有可显示的时长
		if c.End <= c.Start {
			continue
		}
		c.Text = text
		kept = append(kept, c)
	}

	if strict && len(issues) > 0 {
		return nil, issues, fmt.Errorf("%d 条字幕有问题，首个: %s: %w", len(issues), issues[0], models.ErrInvalidCaptions)
	}
	return kept, issues, nil
}
