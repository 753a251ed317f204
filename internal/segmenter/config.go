package segmenter

// Config 章节切分配置
// 阈值均为经验值，通过配置覆盖而不是硬编码在算法里
type Config struct {
	MinBoundaryGap    int    // 边界去重的最小间距（字符数）
	MinSegmentLength  int    // 章节内容的最小长度，低于该值视为噪声丢弃
	MinPrefixLength   int    // 模糊匹配时标记前缀的最小可用长度
	PrefixStep        int    // 前缀逐步缩短的步长
	LocateWindow      int    // 归一化命中位置前后的重定位窗口半径
	MinDocumentLength int    // 可处理文档的最小长度
	FallbackTitle     string // 无法识别结构时整篇文档的兜底标题
}

// DefaultConfig 返回默认的切分配置
func DefaultConfig() Config {
	return Config{
		MinBoundaryGap:    100,
		MinSegmentLength:  50,
		MinPrefixLength:   16,
		PrefixStep:        8,
		LocateWindow:      200,
		MinDocumentLength: 20,
		FallbackTitle:     "Full Document",
	}
}
