package jsonrepair

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestRepairValidInput 测试合法输入的直接解析
func TestRepairValidInput(t *testing.T) {
	t.Run("plain json", func(t *testing.T) {
		fixed, err := Repair(`{"title": "Chapter 1"}`)
		require.NoError(t, err)
		assert.Equal(t, `{"title": "Chapter 1"}`, fixed)
	})

	t.Run("code fence wrapped", func(t *testing.T) {
		raw := "```json\n{\"title\": \"Chapter 1\"}\n```"
		fixed, err := Repair(raw)
		require.NoError(t, err)
		assert.Equal(t, `{"title": "Chapter 1"}`, fixed)
	})

	t.Run("fence without language tag", func(t *testing.T) {
		raw := "```\n[1, 2, 3]\n```"
		fixed, err := Repair(raw)
		require.NoError(t, err)
		assert.Equal(t, `[1, 2, 3]`, fixed)
	})
}

// TestRepairControlCharacters 测试字符串内原始控制字符的修复
func TestRepairControlCharacters(t *testing.T) {
	t.Run("raw newline inside string value", func(t *testing.T) {
		raw := "```json\n{\"content\": \"line one\nline two\"}\n```"

		var parsed map[string]string
		err := Parse(raw, &parsed)
		require.NoError(t, err)
		assert.Equal(t, "line one\nline two", parsed["content"])
	})

	t.Run("raw tab and carriage return", func(t *testing.T) {
		raw := "{\"a\": \"x\ty\rz\"}"

		var parsed map[string]string
		err := Parse(raw, &parsed)
		require.NoError(t, err)
		assert.Equal(t, "x\ty\rz", parsed["a"])
	})
}

// TestRepairUnescapedQuotes 测试字符串内未转义引号的修复
func TestRepairUnescapedQuotes(t *testing.T) {
	raw := `{"text": "he said "hello world" and left"}`

	var parsed map[string]string
	err := Parse(raw, &parsed)
	require.NoError(t, err)
	assert.Equal(t, `he said "hello world" and left`, parsed["text"])
}

// TestRepairAggressive 测试激进修复策略
func TestRepairAggressive(t *testing.T) {
	t.Run("trailing comma", func(t *testing.T) {
		var parsed map[string]int
		err := Parse(`{"a": 1, "b": 2,}`, &parsed)
		require.NoError(t, err)
		assert.Equal(t, 2, parsed["b"])
	})

	t.Run("stray backslash from file path", func(t *testing.T) {
		var parsed map[string]string
		err := Parse(`{"path": "C:\Users\x"}`, &parsed)
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(parsed["path"], `C:\Users`),
			"backslash should survive as literal content")
	})
}

// TestRepairTruncation 测试截断输出的修复
func TestRepairTruncation(t *testing.T) {
	t.Run("cut mid string value", func(t *testing.T) {
		// 缺少2个闭括号，最后一个元素的snippet被截断
		raw := `{"chapters": [{"title": "One", "snippet": "abc"}, {"title": "Two", "snippet": "de`

		var parsed struct {
			Chapters []map[string]string `json:"chapters"`
		}
		err := Parse(raw, &parsed)
		require.NoError(t, err)
		require.Len(t, parsed.Chapters, 2)
		assert.Equal(t, "abc", parsed.Chapters[0]["snippet"])
		assert.Equal(t, "Two", parsed.Chapters[1]["title"])
	})

	t.Run("cut after key colon", func(t *testing.T) {
		raw := `[{"title": "A"}, {"title":`

		var parsed []map[string]string
		err := Parse(raw, &parsed)
		require.NoError(t, err)
		require.GreaterOrEqual(t, len(parsed), 1)
		assert.Equal(t, "A", parsed[0]["title"])
	})

	t.Run("cut between elements", func(t *testing.T) {
		raw := `{"items": [1, 2, 3`

		var parsed map[string][]int
		err := Parse(raw, &parsed)
		require.NoError(t, err)
		assert.Equal(t, []int{1, 2, 3}, parsed["items"])
	})
}

// TestRepairIdempotent 测试修复结果的幂等性
func TestRepairIdempotent(t *testing.T) {
	inputs := []string{
		"```json\n{\"a\": \"b\nc\"}\n```",
		`{"a": 1,}`,
		`{"chapters": [{"title": "One"`,
	}

	for _, raw := range inputs {
		fixed, err := Repair(raw)
		require.NoError(t, err, "input should be recoverable: %q", raw)

		again, err := Repair(fixed)
		require.NoError(t, err)
		assert.Equal(t, fixed, again, "repairing repaired output should be a no-op")

		var first, second interface{}
		require.NoError(t, json.Unmarshal([]byte(fixed), &first))

		reserialized, err := json.Marshal(first)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(reserialized, &second))
		assert.Equal(t, first, second)
	}
}

// TestRepairUnrecoverable 测试无法修复的输入返回诊断错误
func TestRepairUnrecoverable(t *testing.T) {
	_, err := Repair("sorry, I cannot produce the requested structure")
	require.Error(t, err)

	var malformed *MalformedOutputError
	require.True(t, errors.As(err, &malformed))
	assert.NotEmpty(t, malformed.Context)
	assert.Contains(t, malformed.Context, "sorry")
}

// TestParseDecodeTarget 测试解码到具体结构体
func TestParseDecodeTarget(t *testing.T) {
	raw := "```json\n[{\"title\": \"Intro\", \"snippet\": \"Welcome to\nthe course\"}]\n```"

	var suggestions []struct {
		Title   string `json:"title"`
		Snippet string `json:"snippet"`
	}
	err := Parse(raw, &suggestions)
	require.NoError(t, err)
	require.Len(t, suggestions, 1)
	assert.Equal(t, "Intro", suggestions[0].Title)
	assert.Contains(t, suggestions[0].Snippet, "\n")
}
