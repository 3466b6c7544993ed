package render

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"

	_ "image/gif"
	_ "image/jpeg"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"github.com/z-wentao/slidecast/pkg/models"
	"github.com/z-wentao/slidecast/pkg/timeline"
)

// PrepareImage 把幻灯片图片等比缩放到画面内并居中，四周补黑边，输出 PNG
func PrepareImage(srcPath, dstPath string, frame timeline.Size) error {
	f, err := os.Open(srcPath)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("图片 %s: %w", srcPath, models.ErrMissingAsset)
		}
		return fmt.Errorf("打开图片失败: %w", err)
	}
	defer f.Close()

	src, _, err := image.Decode(f)
	if err != nil {
		return fmt.Errorf("解码图片 %s 失败: %w", srcPath, err)
	}

	dst := FitImage(src, frame)

	out, err := os.Create(dstPath)
	if err != nil {
		return fmt.Errorf("创建图片文件失败: %w", err)
	}
	if err := png.Encode(out, dst); err != nil {
		out.Close()
		return fmt.Errorf("编码 PNG 失败: %w", err)
	}
	return out.Close()
}

// FitImage 等比缩放到 frame 内（contain），居中放在黑色画布上
func FitImage(src image.Image, frame timeline.Size) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, frame.Width, frame.Height))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.Black), image.Point{}, draw.Src)

	b := src.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return dst
	}
	scale := min(float64(frame.Width)/float64(b.Dx()), float64(frame.Height)/float64(b.Dy()))
	w := max(1, int(float64(b.Dx())*scale+0.5))
	h := max(1, int(float64(b.Dy())*scale+0.5))
	x0 := (frame.Width - w) / 2
	y0 := (frame.Height - h) / 2

	draw.CatmullRom.Scale(dst, image.Rect(x0, y0, x0+w, y0+h), src, b, draw.Over, nil)
	return dst
}
