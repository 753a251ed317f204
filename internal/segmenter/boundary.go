package segmenter

import (
	"sort"

	"github.com/sirupsen/logrus"
)

// BoundarySuggestion 生成服务给出的章节起点建议
// 来自模型的非可信输出：snippet声称是某章开头的原文摘录，
// 可能与原文有出入甚至完全找不到
type BoundarySuggestion struct {
	Title   string `json:"title"`   // 章节标题
	Snippet string `json:"snippet"` // 章节起始位置的原文摘录
}

// ResolvedBoundary 已验证的章节边界
// 建议被成功定位到文档内的具体字符偏移后的产物
type ResolvedBoundary struct {
	Title  string // 章节标题
	Offset int    // 在文档中的字符偏移
}

// Resolver 边界解析器
// 将模型的边界建议转换为有序、去重的文档偏移列表
type Resolver struct {
	locator *Locator
	cfg     Config
	logger  *logrus.Logger
}

// NewResolver 创建边界解析器
func NewResolver(cfg Config, logger *logrus.Logger) *Resolver {
	if logger == nil {
		logger = logrus.New()
	}
	return &Resolver{
		locator: NewLocator(cfg),
		cfg:     cfg,
		logger:  logger,
	}
}

// Resolve 将建议列表解析为有序去重的边界列表
// 单个建议定位失败不是错误；全部失败时返回空列表，由上层兜底
func (r *Resolver) Resolve(document string, suggestions []BoundarySuggestion) []ResolvedBoundary {
	var resolved []ResolvedBoundary

	for _, sg := range suggestions {
		offset := r.locator.Locate(document, sg.Snippet, 0)

		// 摘录定位失败时改用标题重试：PDF提取噪声常出现在正文里，
		// 标题往往更接近原文
		if offset == NotFound {
			offset = r.locator.Locate(document, sg.Title, 0)
			if offset != NotFound {
				r.logger.WithFields(logrus.Fields{
					"title":  sg.Title,
					"offset": offset,
				}).Info("Boundary recovered by title match")
			}
		}

		if offset == NotFound {
			r.logger.WithField("title", sg.Title).Warn("Failed to locate boundary suggestion")
			continue
		}

		resolved = append(resolved, ResolvedBoundary{Title: sg.Title, Offset: offset})
	}

	sort.Slice(resolved, func(i, j int) bool {
		return resolved[i].Offset < resolved[j].Offset
	})

	return r.deduplicate(resolved)
}

// deduplicate 丢弃与前一个保留边界间距小于阈值的边界
// 折叠对同一个物理章节起点的多次近似检测
func (r *Resolver) deduplicate(boundaries []ResolvedBoundary) []ResolvedBoundary {
	if len(boundaries) <= 1 {
		return boundaries
	}

	result := boundaries[:1]
	for _, b := range boundaries[1:] {
		if b.Offset-result[len(result)-1].Offset < r.cfg.MinBoundaryGap {
			r.logger.WithFields(logrus.Fields{
				"title":  b.Title,
				"offset": b.Offset,
			}).Debug("Dropping near-duplicate boundary")
			continue
		}
		result = append(result, b)
	}

	return result
}
