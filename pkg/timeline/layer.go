package timeline

type Kind string

const (
	KindSlide   Kind = "slide"
	KindCaption Kind = "caption"
)

// Size 输出画面尺寸
type Size struct {
	Width  int `yaml:"width" json:"width"`
	Height int `yaml:"height" json:"height"`
}

// Layer 主时钟上的一个可见图层
// 所有时间都以旁白开始为 0 点，单位为秒
type Layer struct {
	Kind    Kind    `json:"kind"`
	Z       int     `json:"z"` // 越大越靠上
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Image   string  `json:"image,omitempty"` // 幻灯片图片路径
	Text    string  `json:"text,omitempty"`  // 字幕文本
	FadeIn  float64 `json:"fade_in"`
	FadeOut float64 `json:"fade_out"`
	Zoom    float64 `json:"zoom"` // 每秒放大比例，scale = 1 + Zoom*t
}

func (l Layer) Duration() float64 {
	return l.End - l.Start
}

// ScaleAt 图层内经过 t 秒时的缩放比例
func (l Layer) ScaleAt(t float64) float64 {
	return 1 + l.Zoom*t
}
