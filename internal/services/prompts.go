package services

import (
	"fmt"
	"strings"
)

// 章节探测的系统提示词
// snippet要求逐字摘录，定位阶段靠它在原文中找偏移
const chapterDetectSystemPrompt = `You are a document analysis assistant. Given the full text of a document, identify where its chapters or major sections begin.

Respond with JSON only, no commentary, in exactly this shape:
{"chapters": [{"title": "<short chapter title>", "snippet": "<the first 10-20 words of the chapter, copied verbatim from the document>"}]}

Rules:
- The snippet MUST be copied character for character from the document text.
- List chapters in the order they appear.
- Prefer 3-15 chapters; never invent content that is not in the document.`

// 章节扩充的系统提示词
const chapterEnrichSystemPrompt = `You are a course content assistant. Given the title and text of one chapter, produce a concise summary and the key points a learner should take away.

Respond with JSON only, in exactly this shape:
{"summary": "<2-4 sentence summary>", "key_points": ["<point>", "<point>", "..."]}

Rules:
- Base everything strictly on the chapter text.
- Provide 3-6 key points.`

// 课程大纲生成的系统提示词
const coursePlanSystemPrompt = `You are a curriculum designer. Given the chapter titles and summaries of a document, design a course plan that teaches its content.

Respond with JSON only, in exactly this shape:
{"title": "<course title>", "overview": "<short course overview>", "lessons": [{"title": "<lesson title>", "objectives": ["<objective>", "..."], "chapters": ["<source chapter title>", "..."]}]}

Rules:
- Every lesson must reference at least one source chapter.
- Keep the lesson order aligned with the chapter order.`

// buildChapterDetectPrompt 构造章节探测的用户提示词
func buildChapterDetectPrompt(content string) string {
	return fmt.Sprintf("Document text:\n\n%s", content)
}

// buildChapterEnrichPrompt 构造章节扩充的用户提示词
func buildChapterEnrichPrompt(title, content string) string {
	return fmt.Sprintf("Chapter title: %s\n\nChapter text:\n\n%s", title, content)
}

// buildCoursePlanPrompt 构造课程大纲的用户提示词
func buildCoursePlanPrompt(chapters []planChapterInput) string {
	var b strings.Builder
	b.WriteString("Source chapters:\n")
	for i, ch := range chapters {
		fmt.Fprintf(&b, "\n%d. %s\n", i+1, ch.Title)
		if ch.Summary != "" {
			fmt.Fprintf(&b, "Summary: %s\n", ch.Summary)
		}
	}
	return b.String()
}

// planChapterInput 课程大纲提示词的章节输入
type planChapterInput struct {
	Title   string
	Summary string
}
