package render

import (
	"fmt"
	"image/color"
	"os"
	"strings"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
)

// CaptionStyle 字幕样式
type CaptionStyle struct {
	FontPath    string  `yaml:"font_path"` // 为空时使用内置 Go Regular
	FontSize    float64 `yaml:"font_size"`
	Color       string  `yaml:"color"` // #RRGGBB
	Width       int     `yaml:"width"` // 换行宽度（像素）
	LineSpacing float64 `yaml:"line_spacing"`
	Padding     int     `yaml:"padding"`
}

func DefaultCaptionStyle() CaptionStyle {
	return CaptionStyle{
		FontSize:    60,
		Color:       "#FF0000",
		Width:       500,
		LineSpacing: 1.2,
		Padding:     10,
	}
}

// CaptionRenderer 把字幕文本栅格化为透明背景 PNG
type CaptionRenderer struct {
	style CaptionStyle
	face  font.Face
	color color.Color
}

func NewCaptionRenderer(style CaptionStyle) (*CaptionRenderer, error) {
	if style.FontSize <= 0 || style.Width <= 0 {
		return nil, fmt.Errorf("无效的字幕样式: size=%v width=%d", style.FontSize, style.Width)
	}
	if style.LineSpacing <= 0 {
		style.LineSpacing = 1.2
	}
	face, err := loadFontFace(style.FontPath, style.FontSize)
	if err != nil {
		return nil, err
	}
	c, err := parseHexColor(style.Color)
	if err != nil {
		return nil, err
	}
	return &CaptionRenderer{style: style, face: face, color: c}, nil
}

// Render 绘制一条字幕并写入 path，返回图片尺寸
func (r *CaptionRenderer) Render(text, path string) (int, int, error) {
	measure := gg.NewContext(1, 1)
	measure.SetFontFace(r.face)
	lines := r.wrap(measure, text)
	if len(lines) == 0 {
		return 0, 0, fmt.Errorf("字幕文本为空")
	}

	lineHeight := measure.FontHeight() * r.style.LineSpacing
	pad := float64(r.style.Padding)
	w := r.style.Width + 2*r.style.Padding
	h := int(float64(len(lines))*lineHeight+2*pad+0.5) + 1

	dc := gg.NewContext(w, h)
	dc.SetFontFace(r.face)
	dc.SetColor(r.color)
	for i, line := range lines {
		y := pad + float64(i)*lineHeight + lineHeight/2
		dc.DrawStringAnchored(line, float64(w)/2, y, 0.5, 0.5)
	}
	if err := dc.SavePNG(path); err != nil {
		return 0, 0, fmt.Errorf("保存字幕图片失败: %w", err)
	}
	return w, h, nil
}

// wrap 先按空格折行，仍然超宽的行（比如中文）再按字符折
func (r *CaptionRenderer) wrap(dc *gg.Context, text string) []string {
	width := float64(r.style.Width)
	var out []string
	for _, para := range strings.Split(strings.TrimSpace(text), "\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		for _, line := range dc.WordWrap(para, width) {
			out = append(out, breakRunes(dc, line, width)...)
		}
	}
	return out
}

func breakRunes(dc *gg.Context, line string, width float64) []string {
	if w, _ := dc.MeasureString(line); w <= width {
		return []string{line}
	}
	var out []string
	var cur []rune
	for _, r := range line {
		next := append(cur, r)
		if w, _ := dc.MeasureString(string(next)); w > width && len(cur) > 0 {
			out = append(out, strings.TrimSpace(string(cur)))
			cur = []rune{r}
			continue
		}
		cur = next
	}
	if len(cur) > 0 {
		out = append(out, strings.TrimSpace(string(cur)))
	}
	return out
}

func loadFontFace(fontPath string, size float64) (font.Face, error) {
	fontBytes := goregular.TTF
	if fontPath != "" {
		b, err := os.ReadFile(fontPath)
		if err != nil {
			return nil, fmt.Errorf("读取字体文件失败: %w", err)
		}
		fontBytes = b
	}
	parsed, err := truetype.Parse(fontBytes)
	if err != nil {
		return nil, fmt.Errorf("解析字体失败: %w", err)
	}
	return truetype.NewFace(parsed, &truetype.Options{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingNone,
	}), nil
}

func parseHexColor(s string) (color.Color, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	if s == "" {
		return color.NRGBA{R: 255, A: 255}, nil
	}
	var r, g, b uint8
	if len(s) != 6 {
		return nil, fmt.Errorf("无效的颜色: %q", s)
	}
	if _, err := fmt.Sscanf(s, "%02x%02x%02x", &r, &g, &b); err != nil {
		return nil, fmt.Errorf("无效的颜色 %q: %w", s, err)
	}
	return color.NRGBA{R: r, G: g, B: b, A: 255}, nil
}
