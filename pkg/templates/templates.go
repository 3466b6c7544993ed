package templates

import (
	"fmt"
	"html/template"
	"io"
	"strings"
	"time"

	"github.com/z-wentao/slidecast/pkg/models"
)

// FormatTime 相对时间，超过一天显示日期
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	diff := time.Since(t)
	switch {
	case diff < time.Minute:
		return "刚刚"
	case diff < time.Hour:
		return fmt.Sprintf("%d 分钟前", int(diff.Minutes()))
	case diff < 24*time.Hour:
		return fmt.Sprintf("%d 小时前", int(diff.Hours()))
	}
	return t.Format("2006-01-02 15:04")
}

var statusText = map[models.JobStatus]string{
	models.StatusPending:    "等待处理",
	models.StatusProcessing: "处理中",
	models.StatusCompleted:  "已完成",
	models.StatusFailed:     "失败",
}

func StatusText(s models.JobStatus) string {
	if t, ok := statusText[s]; ok {
		return t
	}
	return "未知"
}

// FormatDuration 秒 → m:ss
func FormatDuration(seconds float64) string {
	if seconds <= 0 {
		return "-"
	}
	total := int(seconds + 0.5)
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}

var funcs = template.FuncMap{
	"since":    FormatTime,
	"status":   StatusText,
	"duration": FormatDuration,
	"short": func(id string) string {
		if len(id) > 8 {
			return id[:8]
		}
		return id
	},
}

// 处理中的卡片每 3 秒刷新一次
const cardTemplate = `{{define "card"}}
<div class="job-card" id="job-{{.JobID}}" data-status="{{.Status}}"
{{- if or (eq .Status "pending") (eq .Status "processing")}} hx-get="/jobs/{{.JobID}}/card" hx-trigger="every 3s" hx-swap="outerHTML"{{end}}>
<hr>
<p><strong>{{.VideoID}}</strong> <code>{{short .JobID}}</code></p>
<p>状态: <strong>{{status .Status}}</strong>{{if .Stage}} | 阶段: {{.Stage}}{{end}} | 进度: {{.Progress}}% | 创建: {{since .CreatedAt}}</p>
{{- if eq .Status "processing"}}
<progress value="{{.Progress}}" max="100"></progress>
{{- end}}
{{- if eq .Status "completed"}}
<p>时长 {{duration .Duration}} | {{.LayerCount}} 个图层 | {{.CaptionCount}} 条字幕</p>
<p><a href="{{.URL}}" target="_blank">下载视频</a></p>
{{- end}}
{{- if .Error}}
<p><strong>错误:</strong> {{.Error}}</p>
{{- end}}
</div>
{{end}}`

const pageTemplate = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Slidecast 任务</title>
<script src="https://unpkg.com/htmx.org@1.9.12"></script>
</head>
<body>
<h2>渲染任务 ({{len .}})</h2>
{{range .}}{{template "card" .}}{{else}}<p>暂无任务</p>{{end}}
</body>
</html>`

var (
	cardTmpl = template.Must(template.New("card").Funcs(funcs).Parse(cardTemplate))
	pageTmpl = template.Must(template.Must(cardTmpl.Clone()).New("page").Parse(pageTemplate))
)

// RenderJobCard 单个任务卡片（htmx 轮询用）
func RenderJobCard(job *models.RenderJob) (template.HTML, error) {
	var b strings.Builder
	if err := cardTmpl.ExecuteTemplate(&b, "card", job); err != nil {
		return "", err
	}
	return template.HTML(b.String()), nil
}

// RenderJobList 任务列表页面
func RenderJobList(w io.Writer, jobs []*models.RenderJob) error {
	return pageTmpl.ExecuteTemplate(w, "page", jobs)
}
