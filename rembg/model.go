package rembg

import "strings"

// Model rembg 预训练模型（质量档位）
type Model struct {
	Key         string `json:"key"`  // 菜单编号
	Name        string `json:"name"` // rembg 模型名
	Description string `json:"description"`
}

// Models 菜单顺序即编号顺序
var Models = []Model{
	{Key: "1", Name: "u2net", Description: "Default - Good balance of speed and quality"},
	{Key: "2", Name: "u2netp", Description: "Lightweight - Faster but lower quality"},
	{Key: "3", Name: "u2net_human_seg", Description: "People - Optimized for human subjects"},
	{Key: "4", Name: "u2net_cloth_seg", Description: "Clothing - Best for fashion/clothing"},
	{Key: "5", Name: "isnet-general-use", Description: "High Quality - Best overall quality (slower)"},
}

// DefaultModel 默认选项 "1"
var DefaultModel = Models[0]

// LookupModel 按菜单编号或模型名查找，模型名不区分大小写
func LookupModel(keyOrName string) (Model, bool) {
	s := strings.TrimSpace(keyOrName)
	for _, m := range Models {
		if m.Key == s || strings.EqualFold(m.Name, s) {
			return m, true
		}
	}
	return Model{}, false
}
