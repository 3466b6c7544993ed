package captions

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/sashabaranov/go-openai"

	"github.com/z-wentao/slidecast/pkg/audio"
	"github.com/z-wentao/slidecast/pkg/logger"
	"github.com/z-wentao/slidecast/pkg/models"
)

type fakeTranscriber struct {
	mu       sync.Mutex
	requests []openai.AudioRequest
	fail     int // 前 fail 次调用返回错误
}

func (f *fakeTranscriber) CreateTranscription(_ context.Context, req openai.AudioRequest) (openai.AudioResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.fail > 0 {
		f.fail--
		return openai.AudioResponse{}, errors.New("boom")
	}
	var resp openai.AudioResponse
	body := `{"text":"hello world",
		"segments":[{"id":0,"start":0.5,"end":1.5,"text":" hello world "}],
		"words":[{"word":"hello","start":0.5,"end":0.9},{"word":" ","start":0.9,"end":1.0},{"word":"world","start":1.0,"end":1.5}]}`
	if err := json.Unmarshal([]byte(body), &resp); err != nil {
		return resp, err
	}
	return resp, nil
}

func writeSilence(t *testing.T, seconds int) string {
	t.Helper()
	f := audio.DefaultFormat
	path := filepath.Join(t.TempDir(), "output.wav")
	if err := audio.EncodeWAVFile(audio.NewSilence(f, seconds*f.SampleRate), path); err != nil {
		t.Fatalf("EncodeWAVFile: %v", err)
	}
	return path
}

func TestWhisperSourceSingleChunk(t *testing.T) {
	fake := &fakeTranscriber{}
	ws := newWhisperSource(fake, WhisperOptions{ChunkSeconds: 60}, logger.Nop())

	caps, err := ws.Captions(context.Background(), Request{
		AudioPath:   writeSilence(t, 2),
		Transcripts: []string{"Hi", "Bye"},
	})
	if err != nil {
		t.Fatalf("Captions: %v", err)
	}
	// 默认一词一条，空白词被丢弃
	if len(caps) != 2 || caps[0].Text != "hello" || caps[1].Text != "world" || caps[1].Index != 2 {
		t.Fatalf("captions: %+v", caps)
	}
	if caps[1].Start != 1.0 || caps[1].End != 1.5 {
		t.Fatalf("word timing: %+v", caps[1])
	}
	req := fake.requests[0]
	if req.Prompt != "Hi Bye" {
		t.Fatalf("prompt: want=%q got=%q", "Hi Bye", req.Prompt)
	}
	if req.Format != openai.AudioResponseFormatVerboseJSON || req.Model != openai.Whisper1 {
		t.Fatalf("request: %+v", req)
	}
	if len(req.TimestampGranularities) == 0 || req.TimestampGranularities[0] != openai.TranscriptionTimestampGranularityWord {
		t.Fatalf("granularities: %v", req.TimestampGranularities)
	}
}

func TestWhisperSourceSegmentGranularity(t *testing.T) {
	fake := &fakeTranscriber{}
	ws := newWhisperSource(fake, WhisperOptions{Granularity: GranularitySegment}, logger.Nop())

	caps, err := ws.Captions(context.Background(), Request{AudioPath: writeSilence(t, 2)})
	if err != nil {
		t.Fatalf("Captions: %v", err)
	}
	if len(caps) != 1 || caps[0].Text != "hello world" || caps[0].Index != 1 {
		t.Fatalf("captions: %+v", caps)
	}
	if len(fake.requests[0].TimestampGranularities) != 0 {
		t.Fatalf("segment mode should not ask for words: %v", fake.requests[0].TimestampGranularities)
	}
}

func TestWhisperSourceChunksAndOffsets(t *testing.T) {
	for _, tc := range []struct {
		granularity string
		starts      []float64
		ends        []float64
	}{
		{GranularityWord, []float64{0.5, 1.0, 2.5, 3.0, 4.5, 5.0}, []float64{0.9, 1.5, 2.9, 3.5, 4.9, 5.5}},
		{GranularitySegment, []float64{0.5, 2.5, 4.5}, []float64{1.5, 3.5, 5.5}},
	} {
		t.Run(tc.granularity, func(t *testing.T) {
			fake := &fakeTranscriber{}
			ws := newWhisperSource(fake, WhisperOptions{Granularity: tc.granularity, ChunkSeconds: 2, Concurrency: 2}, logger.Nop())

			path := writeSilence(t, 5)
			caps, err := ws.Captions(context.Background(), Request{AudioPath: path})
			if err != nil {
				t.Fatalf("Captions: %v", err)
			}
			if len(caps) != len(tc.starts) {
				t.Fatalf("captions: want=%d got=%d", len(tc.starts), len(caps))
			}
			for i := range tc.starts {
				if math.Abs(caps[i].Start-tc.starts[i]) > 1e-9 || math.Abs(caps[i].End-tc.ends[i]) > 1e-9 || caps[i].Index != i+1 {
					t.Fatalf("caption %d: %+v", i, caps[i])
				}
			}
			if _, err := os.Stat(filepath.Join(filepath.Dir(path), "chunks", "output_000.wav")); !os.IsNotExist(err) {
				t.Fatalf("chunk files should be cleaned up")
			}
			if _, err := os.Stat(path); err != nil {
				t.Fatalf("source mix should be kept: %v", err)
			}
		})
	}
}

func TestWhisperSourceRetries(t *testing.T) {
	fake := &fakeTranscriber{fail: 1}
	ws := newWhisperSource(fake, WhisperOptions{MaxRetries: 2}, logger.Nop())
	caps, err := ws.Captions(context.Background(), Request{AudioPath: writeSilence(t, 1)})
	if err != nil {
		t.Fatalf("Captions: %v", err)
	}
	if len(caps) != 2 || len(fake.requests) != 2 {
		t.Fatalf("caps=%d requests=%d", len(caps), len(fake.requests))
	}
}

func TestScriptSourceTimesSentences(t *testing.T) {
	n := audio.Narration{SampleRate: 24000, SegmentFrames: []int{24000, 48000}, GapFrames: 12000}
	caps, err := NewScriptSource().Captions(context.Background(), Request{
		Transcripts: []string{"Hi", "One. Two!"},
		Narration:   n,
	})
	if err != nil {
		t.Fatalf("Captions: %v", err)
	}
	if len(caps) != 3 {
		t.Fatalf("captions: want=3 got=%+v", caps)
	}
	if caps[0].Start != 0 || caps[0].End != 1.0 {
		t.Fatalf("first: %+v", caps[0])
	}
	if caps[1].Start != 1.5 || caps[1].Text != "One." {
		t.Fatalf("second: %+v", caps[1])
	}
	if caps[2].End != 3.5 {
		t.Fatalf("last should end with the segment: %+v", caps[2])
	}
	if caps[1].End != caps[2].Start {
		t.Fatalf("sentences should be contiguous: %v != %v", caps[1].End, caps[2].Start)
	}
}

func TestScriptSourceMismatch(t *testing.T) {
	n := audio.Narration{SampleRate: 24000, SegmentFrames: []int{24000}}
	_, err := NewScriptSource().Captions(context.Background(), Request{Transcripts: []string{"a", "b"}, Narration: n})
	if !errors.Is(err, models.ErrInputMismatch) {
		t.Fatalf("want ErrInputMismatch, got %v", err)
	}
}

func TestSplitSentences(t *testing.T) {
	got := SplitSentences("你好。今天天气不错！Right? ok")
	want := []string{"你好。", "今天天气不错！", "Right?", "ok"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("want=%q got=%q", want, got)
	}
}

func TestParseSRT(t *testing.T) {
	in := "\ufeff1\n00:00:00,000 --> 00:00:01,200\nHello\n\n2\n00:00:01.500 --> 00:01:05,500\nline one\nline two\n"
	caps, err := ParseSRT(strings.NewReader(in))
	if err != nil {
		t.Fatalf("ParseSRT: %v", err)
	}
	if len(caps) != 2 {
		t.Fatalf("captions: want=2 got=%d", len(caps))
	}
	if caps[0].End != 1.2 || caps[1].Start != 1.5 || caps[1].End != 65.5 {
		t.Fatalf("timestamps: %+v", caps)
	}
	if caps[1].Text != "line one\nline two" {
		t.Fatalf("text: %q", caps[1].Text)
	}
}

func TestParseSRTErrors(t *testing.T) {
	for _, in := range []string{
		"x\n00:00:00,000 --> 00:00:01,000\nHi\n",
		"1\nnot a time\nHi\n",
		"1\n",
	} {
		if _, err := ParseSRT(strings.NewReader(in)); err == nil {
			t.Fatalf("expected error for %q", in)
		}
	}
}

func TestGenerateSubtitles(t *testing.T) {
	dir := t.TempDir()
	caps := []models.Caption{
		{Index: 1, Start: 0, End: 1.2, Text: "Hello"},
		{Index: 2, Start: 65.5, End: 3661.001, Text: "World"},
		{Index: 3, Start: 70, End: 71, Text: "  "},
	}
	srt := filepath.Join(dir, "out", "video.srt")
	vtt := filepath.Join(dir, "out", "video.vtt")
	if err := GenerateSRT(caps, srt); err != nil {
		t.Fatalf("GenerateSRT: %v", err)
	}
	if err := GenerateVTT(caps, vtt); err != nil {
		t.Fatalf("GenerateVTT: %v", err)
	}

	b, _ := os.ReadFile(srt)
	if !strings.Contains(string(b), "00:01:05,500 --> 01:01:01,001") {
		t.Fatalf("srt:\n%s", b)
	}
	b, _ = os.ReadFile(vtt)
	if !strings.HasPrefix(string(b), "WEBVTT\n\n") || !strings.Contains(string(b), "00:00:00.000 --> 00:00:01.200") {
		t.Fatalf("vtt:\n%s", b)
	}

	parsed, err := ParseSRTFile(srt)
	if err != nil {
		t.Fatalf("ParseSRTFile: %v", err)
	}
	if len(parsed) != 2 {
		t.Fatalf("blank captions should be skipped, got %d", len(parsed))
	}
}
