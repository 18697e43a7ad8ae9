package refine

import (
	"image"
	"image/draw"
)

// ToNRGBA 转为 NRGBA，方便统一处理
// 没有 alpha 的输入 alpha 全部为 255；灰度图（仅蒙版输出）会复制到 R、G、B
func ToNRGBA(img image.Image) *image.NRGBA {
	if nrgba, ok := img.(*image.NRGBA); ok {
		return nrgba
	}
	b := img.Bounds()
	dst := image.NewNRGBA(b)
	draw.Draw(dst, b, img, b.Min, draw.Src)
	return dst
}

// HasTransparency 只要存在非 255 的 alpha，就认为已经有透明信息
func HasTransparency(img *image.NRGBA) bool {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	for y := 0; y < h; y++ {
		row := y * img.Stride
		for x := 0; x < w; x++ {
			if img.Pix[row+x*4+3] != 255 {
				return true
			}
		}
	}
	return false
}
