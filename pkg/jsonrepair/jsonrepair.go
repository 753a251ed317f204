package jsonrepair

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// MalformedOutputError 模型输出无法修复为合法JSON时返回的错误
// 携带首次解析失败的字节偏移和上下文片段，便于排查问题
type MalformedOutputError struct {
	Offset  int64  // 首次解析失败的字节偏移
	Context string // 失败位置前后约80字符的文本
	Err     error  // 底层解析错误
}

// Error 实现error接口
func (e *MalformedOutputError) Error() string {
	return fmt.Sprintf("malformed model output at offset %d: %v (context: %q)", e.Offset, e.Err, e.Context)
}

// Unwrap 返回底层解析错误
func (e *MalformedOutputError) Unwrap() error {
	return e.Err
}

// contextRadius 诊断上下文在失败位置前后各取的字符数
const contextRadius = 80

// Repair 将模型返回的"类JSON"文本修复为可解析的JSON文本
// 按顺序尝试多种修复策略，每种策略针对模型的一类常见错误：
// 代码块包裹、字符串内未转义的引号和控制字符、多余的反斜杠、
// 输出长度截断导致的括号不平衡。全部失败时返回*MalformedOutputError
func Repair(raw string) (string, error) {
	candidate := stripCodeFence(raw)

	// 直接严格解析
	firstErr := strictParse(candidate)
	if firstErr == nil {
		return candidate, nil
	}

	// 字符串感知扫描：转义字符串内的引号和控制字符
	sanitized := sanitizeStrings(candidate)
	if strictParse(sanitized) == nil {
		return sanitized, nil
	}

	// 激进修复：不跟踪字符串状态，替换非法反斜杠和控制字符，去除尾逗号
	aggressive := sanitizeAggressive(candidate)
	if strictParse(aggressive) == nil {
		return aggressive, nil
	}

	// 截断修复：丢弃末尾不完整片段并补全括号
	repaired := repairTruncation(sanitized)
	if strictParse(repaired) == nil {
		return repaired, nil
	}
	repaired = repairTruncation(aggressive)
	if strictParse(repaired) == nil {
		return repaired, nil
	}

	return "", newMalformedError(candidate, firstErr)
}

// Parse 修复文本并解码到目标结构
func Parse(raw string, v interface{}) error {
	fixed, err := Repair(raw)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(fixed), v); err != nil {
		return newMalformedError(fixed, err)
	}
	return nil
}

// strictParse 严格解析，拒绝任何尾部多余内容
func strictParse(s string) error {
	var v interface{}
	return json.Unmarshal([]byte(s), &v)
}

// newMalformedError 从解析错误构造带上下文的诊断错误
func newMalformedError(text string, err error) *MalformedOutputError {
	var offset int64
	if syntaxErr, ok := err.(*json.SyntaxError); ok {
		offset = syntaxErr.Offset
	}

	start := offset - contextRadius
	if start < 0 {
		start = 0
	}
	end := offset + contextRadius
	if end > int64(len(text)) {
		end = int64(len(text))
	}

	return &MalformedOutputError{
		Offset:  offset,
		Context: text[start:end],
		Err:     err,
	}
}

// fenceRe 匹配Markdown代码块的起始行，如```json
var fenceRe = regexp.MustCompile("^```[a-zA-Z]*\\s*\n?")

// stripCodeFence 去除包裹的代码块标记和首尾空白
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)

	if loc := fenceRe.FindStringIndex(s); loc != nil {
		s = s[loc[1]:]
		if idx := strings.LastIndex(s, "```"); idx >= 0 {
			s = s[:idx]
		}
	}

	return strings.TrimSpace(s)
}

// isStructural 判断字符是否是字符串结束后合法的结构分隔符
func isStructural(b byte) bool {
	return b == ',' || b == '}' || b == ']' || b == ':'
}

// sanitizeStrings 字符串感知的逐字符修复
// 跟踪游标是否在字符串字面量内：字符串内遇到引号时向后看过空白，
// 只有下一个非空白字符是结构分隔符（或文本结束）才认为字符串结束，
// 否则将引号视为内容并转义；字符串内的原始控制字符替换为转义形式
func sanitizeStrings(s string) string {
	var out strings.Builder
	out.Grow(len(s) + 16)

	inString := false
	for i := 0; i < len(s); i++ {
		c := s[i]

		if !inString {
			if c == '"' {
				inString = true
			}
			out.WriteByte(c)
			continue
		}

		switch {
		case c == '\\':
			// 保留转义对
			out.WriteByte(c)
			if i+1 < len(s) {
				i++
				out.WriteByte(s[i])
			}
		case c == '"':
			// 向后看过空白决定引号是结束还是内容
			j := i + 1
			for j < len(s) && (s[j] == ' ' || s[j] == '\t' || s[j] == '\n' || s[j] == '\r') {
				j++
			}
			if j >= len(s) || isStructural(s[j]) {
				inString = false
				out.WriteByte(c)
			} else {
				out.WriteString(`\"`)
			}
		case c < 0x20:
			out.WriteString(escapeControl(c))
		default:
			out.WriteByte(c)
		}
	}

	return out.String()
}

// escapeControl 控制字符的JSON转义形式
func escapeControl(c byte) string {
	switch c {
	case '\n':
		return `\n`
	case '\t':
		return `\t`
	case '\r':
		return `\r`
	default:
		return fmt.Sprintf(`\u%04x`, c)
	}
}

// validEscapes 反斜杠后合法的转义字符
const validEscapes = `"\/bfnrtu`

// trailingCommaRe 匹配闭括号前的多余逗号
var trailingCommaRe = regexp.MustCompile(`,\s*([}\]])`)

// sanitizeAggressive 激进修复，不跟踪字符串状态
// 非法反斜杠加倍（来自文件路径等内容），控制字符统一替换为空格
// （作为token间空白总是合法，在字符串值内是可接受的有损替换），
// 并去除闭括号前的尾逗号
func sanitizeAggressive(s string) string {
	var out strings.Builder
	out.Grow(len(s))

	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '\\':
			if i+1 < len(s) && strings.IndexByte(validEscapes, s[i+1]) >= 0 {
				out.WriteByte(c)
			} else {
				out.WriteString(`\\`)
			}
		case c < 0x20:
			out.WriteByte(' ')
		default:
			out.WriteByte(c)
		}
	}

	return trailingCommaRe.ReplaceAllString(out.String(), "$1")
}

// repairTruncation 修复被输出长度截断的JSON
// 先丢弃末尾不完整的键值片段，再按字符串感知扫描统计括号嵌套，
// 按开括号的逆序补全缺失的闭括号
func repairTruncation(s string) string {
	s = dropDanglingFragment(s)

	// 字符串感知扫描统计未闭合的括号
	var openStack []byte
	inString := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			if c == '\\' {
				i++
			} else if c == '"' {
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{', '[':
			openStack = append(openStack, c)
		case '}', ']':
			if len(openStack) > 0 {
				openStack = openStack[:len(openStack)-1]
			}
		}
	}

	var out strings.Builder
	out.WriteString(s)
	for i := len(openStack) - 1; i >= 0; i-- {
		if openStack[i] == '{' {
			out.WriteByte('}')
		} else {
			out.WriteByte(']')
		}
	}

	return out.String()
}

// dropDanglingFragment 丢弃末尾不完整的键值片段
// 处理两种截断形态：未闭合的字符串值（"key": "...）和缺值的键（"key":）
func dropDanglingFragment(s string) string {
	inString := false
	stringStart := -1
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			if c == '\\' {
				i++
			} else if c == '"' {
				inString = false
			}
			continue
		}
		if c == '"' {
			inString = true
			stringStart = i
		}
	}

	// 截断发生在字符串内部：回退到该字符串的开引号
	if inString && stringStart >= 0 {
		s = s[:stringStart]
	}
	s = strings.TrimRight(s, " \t\n\r")

	// 留下了缺值的键（"key":）：连同键一起丢弃
	if strings.HasSuffix(s, ":") {
		s = strings.TrimRight(s[:len(s)-1], " \t\n\r")
		if strings.HasSuffix(s, `"`) {
			if start := openingQuoteIndex(s, len(s)-1); start >= 0 {
				s = s[:start]
			}
		}
		s = strings.TrimRight(s, " \t\n\r")
	}

	// 末尾的逗号此时必然多余
	s = strings.TrimSuffix(s, ",")

	return strings.TrimRight(s, " \t\n\r")
}

// openingQuoteIndex 从闭引号位置反向查找对应的开引号
func openingQuoteIndex(s string, closing int) int {
	for i := closing - 1; i >= 0; i-- {
		if s[i] != '"' {
			continue
		}
		// 统计前导反斜杠数量，偶数个才是未转义的引号
		backslashes := 0
		for j := i - 1; j >= 0 && s[j] == '\\'; j-- {
			backslashes++
		}
		if backslashes%2 == 0 {
			return i
		}
	}
	return -1
}
