package pipeline

import (
	"errors"
	"fmt"
)

// Stage 流水线阶段
type Stage string

const (
	StageFetch    Stage = "fetch" // Worker 下载素材
	StageValidate Stage = "validate"
	StageDecode   Stage = "decode"
	StageAccount  Stage = "account"
	StageLoop     Stage = "loop"
	StageMix      Stage = "mix"
	StageCaptions Stage = "captions"
	StageTimeline Stage = "timeline"
	StagePlan     Stage = "plan"
	StageRender   Stage = "render"
	StageUpload   Stage = "upload" // Worker 上传成品
	StageDone     Stage = "done"
)

// 各阶段开始时对应的大致进度（百分比）
var stageProgress = map[Stage]int{
	StageFetch:    2,
	StageValidate: 5,
	StageDecode:   10,
	StageAccount:  15,
	StageLoop:     20,
	StageMix:      30,
	StageCaptions: 40,
	StageTimeline: 50,
	StagePlan:     55,
	StageRender:   60,
	StageUpload:   90,
	StageDone:     100,
}

// Percent 阶段开始时的进度
func (s Stage) Percent() int {
	return stageProgress[s]
}

// StageError 标明失败阶段和底层原因
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s 阶段失败: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

func stageErr(stage Stage, err error) error {
	if err == nil {
		return nil
	}
	return &StageError{Stage: stage, Err: err}
}

// StageOf 取出错误所在阶段
func StageOf(err error) (Stage, bool) {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage, true
	}
	return "", false
}
