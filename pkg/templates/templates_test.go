package templates

import (
	"strings"
	"testing"
	"time"

	"github.com/z-wentao/slidecast/pkg/models"
)

func TestFormatTime(t *testing.T) {
	if got := FormatTime(time.Now()); got != "刚刚" {
		t.Fatalf("now: %q", got)
	}
	if got := FormatTime(time.Now().Add(-5*time.Minute - time.Second)); got != "5 分钟前" {
		t.Fatalf("5m: %q", got)
	}
	old := time.Date(2024, 3, 1, 9, 30, 0, 0, time.Local)
	if got := FormatTime(old); got != "2024-03-01 09:30" {
		t.Fatalf("old: %q", got)
	}
	if FormatTime(time.Time{}) != "-" {
		t.Fatalf("zero time")
	}
}

func TestFormatDuration(t *testing.T) {
	cases := map[float64]string{0: "-", 2.5: "0:03", 65: "1:05", 600.2: "10:00"}
	for in, want := range cases {
		if got := FormatDuration(in); got != want {
			t.Fatalf("FormatDuration(%v): want=%q got=%q", in, want, got)
		}
	}
}

func TestRenderJobCard(t *testing.T) {
	card, err := RenderJobCard(&models.RenderJob{
		JobID:   "0123456789",
		VideoID: "<lesson>",
		Status:  models.StatusFailed,
		Stage:   "render",
		Error:   "ffmpeg <exit 1>",
	})
	if err != nil {
		t.Fatalf("RenderJobCard: %v", err)
	}
	s := string(card)
	if !strings.Contains(s, "&lt;lesson&gt;") || strings.Contains(s, "<lesson>") {
		t.Fatalf("video id should be escaped: %s", s)
	}
	if !strings.Contains(s, "失败") || !strings.Contains(s, "ffmpeg &lt;exit 1&gt;") {
		t.Fatalf("status/error missing: %s", s)
	}
	if strings.Contains(s, "hx-trigger") {
		t.Fatalf("finished job should not poll")
	}

	card, _ = RenderJobCard(&models.RenderJob{JobID: "j", Status: models.StatusProcessing, Progress: 40})
	if !strings.Contains(string(card), `hx-trigger="every 3s"`) || !strings.Contains(string(card), `value="40"`) {
		t.Fatalf("processing card: %s", card)
	}
}

func TestRenderJobList(t *testing.T) {
	var b strings.Builder
	jobs := []*models.RenderJob{
		{JobID: "a", VideoID: "one", Status: models.StatusCompleted, URL: "https://cdn/one.mp4", Duration: 65},
		{JobID: "b", VideoID: "two", Status: models.StatusPending},
	}
	if err := RenderJobList(&b, jobs); err != nil {
		t.Fatalf("RenderJobList: %v", err)
	}
	s := b.String()
	if !strings.Contains(s, "渲染任务 (2)") || !strings.Contains(s, `href="https://cdn/one.mp4"`) || !strings.Contains(s, "1:05") {
		t.Fatalf("page: %s", s)
	}

	b.Reset()
	RenderJobList(&b, nil)
	if !strings.Contains(b.String(), "暂无任务") {
		t.Fatalf("empty page: %s", b.String())
	}
}
