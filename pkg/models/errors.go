package models

import "errors"

// 渲染流水线错误分类，各阶段以 %w 包装后向上返回，调用方用 errors.Is 判断
var (
	ErrEmptyInput       = errors.New("输入为空")
	ErrInputMismatch    = errors.New("片段、音频、图片数量不一致")
	ErrMissingAsset     = errors.New("缺少资源文件")
	ErrInvalidDuration  = errors.New("目标时长无效")
	ErrEncoding         = errors.New("视频编码失败")
	ErrDurationMismatch = errors.New("时长计算不一致")
	ErrInvalidCaptions  = errors.New("字幕时间轴无效")
)
