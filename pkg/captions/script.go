package captions

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/z-wentao/slidecast/pkg/models"
)

// ScriptSource 不调用外部服务，直接用文稿生成字幕
// 每段文稿按句切分，在该段语音时长内按字数比例分配时间
type ScriptSource struct{}

func NewScriptSource() *ScriptSource { return &ScriptSource{} }

func (ScriptSource) Captions(_ context.Context, req Request) ([]models.Caption, error) {
	n := req.Narration
	if len(req.Transcripts) != n.Count() {
		return nil, fmt.Errorf("文稿 %d 段，语音 %d 段: %w", len(req.Transcripts), n.Count(), models.ErrInputMismatch)
	}

	var out []models.Caption
	cursor := 0
	for i, script := range req.Transcripts {
		segFrames := n.SegmentFrames[i]
		sentences := SplitSentences(script)

		weights := 0
		for _, s := range sentences {
			weights += utf8.RuneCountInString(s)
		}
		used := 0
		for k, s := range sentences {
			share := segFrames * utf8.RuneCountInString(s) / max(weights, 1)
			if k == len(sentences)-1 {
				share = segFrames - used
			}
			if share > 0 {
				out = append(out, models.Caption{
					Index: len(out) + 1,
					Start: n.Seconds(cursor + used),
					End:   n.Seconds(cursor + used + share),
					Text:  s,
				})
			}
			used += share
		}
		cursor += segFrames + n.GapFrames
	}
	return out, nil
}

// SplitSentences 按中英文句末标点切句，标点保留在句尾
func SplitSentences(text string) []string {
	var out []string
	var cur strings.Builder
	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			out = append(out, s)
		}
		cur.Reset()
	}
	for _, r := range strings.TrimSpace(text) {
		cur.WriteRune(r)
		switch r {
		case '。', '！', '？', '!', '?', '.', '；', ';', '\n':
			flush()
		}
	}
	flush()
	return out
}
