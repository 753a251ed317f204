package segmenter

import (
	"strings"

	"github.com/sirupsen/logrus"
)

// ChapterSegment 切分出的章节片段
// Content是原文在两个边界之间的连续切片（已去除首尾空白）
type ChapterSegment struct {
	Title   string // 章节标题
	Content string // 章节正文
	Offset  int    // 在原文档中的起始偏移
}

// Segmenter 章节切分器
// 按已解析的边界把原文档切分为离散的章节记录
type Segmenter struct {
	resolver *Resolver
	cfg      Config
	logger   *logrus.Logger
}

// NewSegmenter 创建章节切分器
func NewSegmenter(cfg Config, logger *logrus.Logger) *Segmenter {
	if logger == nil {
		logger = logrus.New()
	}
	return &Segmenter{
		resolver: NewResolver(cfg, logger),
		cfg:      cfg,
		logger:   logger,
	}
}

// Config 返回切分器当前使用的配置
func (s *Segmenter) Config() Config {
	return s.cfg
}

// DetectChapters 从边界建议出发完成整个切分流程
// 解析建议为边界，再按边界切分文档；任何一步结构识别失败
// 都退回整篇文档作为单个章节，流水线不会因结构不可识别而失败
func (s *Segmenter) DetectChapters(document string, suggestions []BoundarySuggestion) []ChapterSegment {
	boundaries := s.resolver.Resolve(document, suggestions)
	if len(boundaries) == 0 {
		s.logger.Warn("No boundaries resolved, falling back to single segment")
	}
	return s.Segment(document, boundaries)
}

// Segment 按边界切分文档
// 第i段覆盖[boundary[i].Offset, boundary[i+1].Offset)，最后一段到文档末尾；
// 去除首尾空白后长度不足的片段按噪声丢弃，全部被丢弃时退回单章节兜底
func (s *Segmenter) Segment(document string, boundaries []ResolvedBoundary) []ChapterSegment {
	if len(boundaries) == 0 {
		return s.fallbackSegment(document)
	}

	var segments []ChapterSegment
	for i, b := range boundaries {
		end := len(document)
		if i+1 < len(boundaries) {
			end = boundaries[i+1].Offset
		}

		content := strings.TrimSpace(document[b.Offset:end])
		if len(content) < s.cfg.MinSegmentLength {
			s.logger.WithFields(logrus.Fields{
				"title":  b.Title,
				"length": len(content),
			}).Debug("Dropping segment below minimum length")
			continue
		}

		segments = append(segments, ChapterSegment{
			Title:   b.Title,
			Content: content,
			Offset:  b.Offset,
		})
	}

	if len(segments) == 0 {
		return s.fallbackSegment(document)
	}

	return segments
}

// fallbackSegment 整篇文档作为单个章节的兜底结果
func (s *Segmenter) fallbackSegment(document string) []ChapterSegment {
	content := strings.TrimSpace(document)
	if content == "" {
		return nil
	}

	return []ChapterSegment{{
		Title:   s.cfg.FallbackTitle,
		Content: content,
		Offset:  0,
	}}
}
