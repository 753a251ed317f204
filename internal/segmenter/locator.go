package segmenter

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// NotFound 表示标记在文档中未找到
const NotFound = -1

// wsRe 匹配连续空白
var wsRe = regexp.MustCompile(`\s+`)

// Locator 模糊文本定位器
// 在长文档中查找短标记文本的字符偏移，容忍文本提取噪声
// 和模型引用不精确带来的空白、换行差异
type Locator struct {
	cfg Config
}

// NewLocator 创建模糊定位器
func NewLocator(cfg Config) *Locator {
	return &Locator{cfg: cfg}
}

// Locate 从from位置起查找marker在document中的偏移
// 找不到时返回NotFound。分三级策略：精确匹配、空白归一化匹配、
// 窗口内的空白容忍正则匹配（前缀逐步缩短）
func (l *Locator) Locate(document, marker string, from int) int {
	if marker == "" {
		return NotFound
	}
	if from < 0 {
		from = 0
	}
	if from >= len(document) {
		return NotFound
	}
	scope := document[from:]

	// 精确子串匹配
	if idx := strings.Index(scope, marker); idx >= 0 {
		return from + idx
	}

	// 归一化后匹配：双方的空白段都折叠为单个空格
	normScope := normalizeWhitespace(scope)
	normMarker := normalizeWhitespace(marker)
	if normMarker == "" {
		return NotFound
	}
	normIdx := strings.Index(normScope, normMarker)
	if normIdx < 0 {
		return NotFound
	}

	// 归一化命中只能给出近似位置：按长度比例折算回原文，
	// 在窗口内用空白容忍的正则重新精确定位
	approx := normIdx
	if len(normScope) > 0 {
		approx = normIdx * len(scope) / len(normScope)
	}
	start := approx - l.cfg.LocateWindow
	if start < 0 {
		start = 0
	}
	end := approx + l.cfg.LocateWindow + len(marker)
	if end > len(scope) {
		end = len(scope)
	}
	window := scope[start:end]

	prefixLen := len(marker)
	for {
		prefixLen = runeBoundary(marker, prefixLen)
		if re := wsTolerantPattern(marker[:prefixLen]); re != nil {
			if loc := re.FindStringIndex(window); loc != nil {
				return from + start + loc[0]
			}
		}
		if prefixLen <= l.cfg.MinPrefixLength {
			break
		}
		prefixLen -= l.cfg.PrefixStep
		if prefixLen < l.cfg.MinPrefixLength {
			prefixLen = l.cfg.MinPrefixLength
		}
	}

	return NotFound
}

// normalizeWhitespace 将连续空白折叠为单个空格并去除首尾空白
func normalizeWhitespace(s string) string {
	return strings.TrimSpace(wsRe.ReplaceAllString(s, " "))
}

// runeBoundary 将字节长度回退到最近的rune边界，避免切断多字节字符
func runeBoundary(s string, n int) int {
	if n >= len(s) {
		return len(s)
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return n
}

// wsTolerantPattern 将标记前缀编译为空白容忍的正则
// 每个词做字面转义，词间用"一个或多个空白"连接
func wsTolerantPattern(prefix string) *regexp.Regexp {
	fields := strings.Fields(prefix)
	if len(fields) == 0 {
		return nil
	}

	quoted := make([]string, len(fields))
	for i, f := range fields {
		quoted[i] = regexp.QuoteMeta(f)
	}

	re, err := regexp.Compile(strings.Join(quoted, `\s+`))
	if err != nil {
		return nil
	}
	return re
}
