package captions

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/z-wentao/slidecast/pkg/logger"
	"github.com/z-wentao/slidecast/pkg/models"
)

// transcriber go-openai 客户端中用到的部分
type transcriber interface {
	CreateTranscription(ctx context.Context, request openai.AudioRequest) (openai.AudioResponse, error)
}

// 字幕粒度
const (
	GranularityWord    = "word" // 一词一条
	GranularitySegment = "segment"
)

// WhisperOptions Whisper 转写参数
type WhisperOptions struct {
	APIKey       string `yaml:"api_key"`
	BaseURL      string `yaml:"base_url"`
	Model        string `yaml:"model"`
	Granularity  string `yaml:"granularity"`   // word | segment，默认 word
	ChunkSeconds int    `yaml:"chunk_seconds"` // 超过该时长的音频先切片再并发转写
	Concurrency  int    `yaml:"concurrency"`
	MaxRetries   int    `yaml:"max_retries"`
}

// WhisperSource 调用 OpenAI Whisper 对混音做带时间戳的转写
// 文稿作为 prompt 传入，提高专有名词的识别率
type WhisperSource struct {
	client      transcriber
	model       string
	granularity string
	splitter    *Splitter
	concurrency int
	maxRetries  int
	log         *logger.Logger
}

func NewWhisperSource(opts WhisperOptions, log *logger.Logger) *WhisperSource {
	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}
	return newWhisperSource(openai.NewClientWithConfig(cfg), opts, log)
}

func newWhisperSource(client transcriber, opts WhisperOptions, log *logger.Logger) *WhisperSource {
	if opts.Model == "" {
		opts.Model = openai.Whisper1
	}
	if opts.Granularity == "" {
		opts.Granularity = GranularityWord
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 3
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	return &WhisperSource{
		client:      client,
		model:       opts.Model,
		granularity: opts.Granularity,
		splitter:    NewSplitter(opts.ChunkSeconds),
		concurrency: opts.Concurrency,
		maxRetries:  opts.MaxRetries,
		log:         log.With("service", "WhisperSource"),
	}
}

type chunkResult struct {
	chunk    Chunk
	captions []models.Caption
	err      error
}

// Captions 切片 → worker 池并发转写 → 按时间偏移合并
func (ws *WhisperSource) Captions(ctx context.Context, req Request) ([]models.Caption, error) {
	chunks, err := ws.splitter.Split(req.AudioPath)
	if err != nil {
		return nil, fmt.Errorf("切分混音失败: %w", err)
	}
	defer ws.splitter.Cleanup(chunks)

	prompt := strings.Join(req.Transcripts, " ")
	ws.log.Info("开始转写字幕", "audio", req.AudioPath, "chunks", len(chunks), "workers", ws.concurrency, "granularity", ws.granularity)

	tasks := make(chan Chunk, len(chunks))
	results := make(chan chunkResult, len(chunks))
	var wg sync.WaitGroup
	for i := 0; i < min(ws.concurrency, len(chunks)); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for c := range tasks {
				if ctx.Err() != nil {
					results <- chunkResult{chunk: c, err: ctx.Err()}
					continue
				}
				caps, err := ws.transcribeWithRetry(ctx, c, prompt, req.Language)
				results <- chunkResult{chunk: c, captions: caps, err: err}
			}
		}()
	}
	for _, c := range chunks {
		tasks <- c
	}
	close(tasks)
	go func() {
		wg.Wait()
		close(results)
	}()

	byChunk := make(map[int][]models.Caption, len(chunks))
	var firstErr error
	for r := range results {
		if r.err != nil {
			ws.log.Warn("片段转写失败", "chunk", r.chunk.Index, "error", r.err)
			if firstErr == nil {
				firstErr = fmt.Errorf("片段 %d 转写失败: %w", r.chunk.Index, r.err)
			}
			continue
		}
		byChunk[r.chunk.Index] = r.captions
	}
	if firstErr != nil {
		return nil, firstErr
	}

	merged := mergeChunks(chunks, byChunk)
	ws.log.Info("字幕转写完成", "captions", len(merged))
	return merged, nil
}

func (ws *WhisperSource) transcribe(ctx context.Context, c Chunk, prompt, language string) ([]models.Caption, error) {
	req := openai.AudioRequest{
		Model:    ws.model,
		FilePath: c.Path,
		Prompt:   prompt,
		Language: language,
		Format:   openai.AudioResponseFormatVerboseJSON,
	}
	if ws.granularity == GranularityWord {
		req.TimestampGranularities = []openai.TranscriptionTimestampGranularity{
			openai.TranscriptionTimestampGranularityWord,
			openai.TranscriptionTimestampGranularitySegment,
		}
	}
	resp, err := ws.client.CreateTranscription(ctx, req)
	if err != nil {
		return nil, err
	}

	// 兼容接口不一定返回 words，此时退回分段
	if ws.granularity == GranularityWord && len(resp.Words) > 0 {
		caps := make([]models.Caption, 0, len(resp.Words))
		for _, w := range resp.Words {
			caps = appendCaption(caps, c.Offset, w.Start, w.End, w.Word)
		}
		return caps, nil
	}
	caps := make([]models.Caption, 0, len(resp.Segments))
	for _, seg := range resp.Segments {
		caps = appendCaption(caps, c.Offset, seg.Start, seg.End, seg.Text)
	}
	return caps, nil
}

// appendCaption 去掉空白文本，时间加上切片偏移
func appendCaption(caps []models.Caption, offset, start, end float64, text string) []models.Caption {
	text = strings.TrimSpace(text)
	if text == "" {
		return caps
	}
	return append(caps, models.Caption{Start: offset + start, End: offset + end, Text: text})
}

// transcribeWithRetry 失败后指数退避重试：1s, 2s, 4s...
func (ws *WhisperSource) transcribeWithRetry(ctx context.Context, c Chunk, prompt, language string) ([]models.Caption, error) {
	var lastErr error
	for i := 0; i < ws.maxRetries; i++ {
		caps, err := ws.transcribe(ctx, c, prompt, language)
		if err == nil {
			return caps, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, fmt.Errorf("任务被取消: %w", ctx.Err())
		}
		if i < ws.maxRetries-1 {
			select {
			case <-time.After(time.Duration(1<<uint(i)) * time.Second):
			case <-ctx.Done():
				return nil, fmt.Errorf("任务被取消: %w", ctx.Err())
			}
		}
	}
	return nil, fmt.Errorf("重试 %d 次后仍然失败: %w", ws.maxRetries, lastErr)
}

// mergeChunks 按切片顺序拼接并重新编号
func mergeChunks(chunks []Chunk, byChunk map[int][]models.Caption) []models.Caption {
	order := make([]Chunk, len(chunks))
	copy(order, chunks)
	sort.Slice(order, func(i, j int) bool { return order[i].Index < order[j].Index })

	var out []models.Caption
	for _, c := range order {
		out = append(out, byChunk[c.Index]...)
	}
	for i := range out {
		out[i].Index = i + 1
	}
	return out
}
