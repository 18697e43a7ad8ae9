package refine

import (
	"image"
)

// Thresholds 透明度修正用到的阈值，所有比较都是严格不等
type Thresholds struct {
	White     uint8 `yaml:"white" json:"white"`           // R、G、B 同时 > White 视为近白背景
	LowAlpha  uint8 `yaml:"low_alpha" json:"low_alpha"`   // Alpha < LowAlpha 直接置 0
	EdgeAlpha uint8 `yaml:"edge_alpha" json:"edge_alpha"` // 0 < Alpha < EdgeAlpha 视为半透明边缘
	EdgeMean  uint8 `yaml:"edge_mean" json:"edge_mean"`   // 边缘像素 RGB 均值 > EdgeMean 视为背景渗色
}

// DefaultThresholds 默认阈值
var DefaultThresholds = Thresholds{
	White:     240,
	LowAlpha:  50,
	EdgeAlpha: 200,
	EdgeMean:  200,
}

// Refine 使用默认阈值修正透明度，返回新图，不修改 img
func Refine(img *image.NRGBA) *image.NRGBA {
	return DefaultThresholds.Refine(img)
}

// RefineInPlace 使用默认阈值原地修正透明度
func RefineInPlace(img *image.NRGBA) {
	DefaultThresholds.RefineInPlace(img)
}

// Refine 复制 img 后再修正，输入保持不变
func (t Thresholds) Refine(img *image.NRGBA) *image.NRGBA {
	dst := &image.NRGBA{
		Pix:    make([]uint8, len(img.Pix)),
		Stride: img.Stride,
		Rect:   img.Rect,
	}
	copy(dst.Pix, img.Pix)
	t.RefineInPlace(dst)
	return dst
}

// RefineInPlace 按固定顺序执行三遍修正，每一遍都基于上一遍的结果：
//
//  1. 近白像素 → (255,255,255,0)
//  2. 低 alpha → alpha = 0
//  3. 偏白的半透明边缘 → alpha = 0
//
// 顺序不能交换，也不能都基于原图判断：第 2 遍清零的像素不会再被第 3 遍命中
func (t Thresholds) RefineInPlace(img *image.NRGBA) {
	t.suppressNearWhite(img)
	t.snapLowAlpha(img)
	t.cleanupEdges(img)
}

// suppressNearWhite 去掉模型留下的白色光晕，不管模型自己给的 alpha
func (t Thresholds) suppressNearWhite(img *image.NRGBA) {
	eachPixel(img, func(p []uint8) {
		if p[0] > t.White && p[1] > t.White && p[2] > t.White {
			p[0], p[1], p[2], p[3] = 255, 255, 255, 0
		}
	})
}

// snapLowAlpha 几乎看不见的“鬼影”像素，换背景后会变成污迹
func (t Thresholds) snapLowAlpha(img *image.NRGBA) {
	eachPixel(img, func(p []uint8) {
		if p[3] < t.LowAlpha {
			p[3] = 0
		}
	})
}

// cleanupEdges 半透明且偏白的边缘像素大概率是背景渗色
// 用 int 求和避免 uint8 溢出；sum > 3*mean 与 sum/3 > mean 等价
func (t Thresholds) cleanupEdges(img *image.NRGBA) {
	limit := 3 * int(t.EdgeMean)
	eachPixel(img, func(p []uint8) {
		a := p[3]
		if a == 0 || a >= t.EdgeAlpha {
			return
		}
		if int(p[0])+int(p[1])+int(p[2]) > limit {
			p[3] = 0
		}
	})
}

// eachPixel 按行遍历，p 为单个像素的 4 字节切片
func eachPixel(img *image.NRGBA, fn func(p []uint8)) {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	for y := 0; y < h; y++ {
		row := y * img.Stride
		for x := 0; x < w; x++ {
			i := row + x*4
			fn(img.Pix[i : i+4 : i+4])
		}
	}
}
