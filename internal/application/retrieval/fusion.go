package retrieval

import (
	"regexp"
	"sort"
)

// DefaultRRFK RRF 常数 k 的默认值
const DefaultRRFK = 60

// FuseOptions 融合参数
type FuseOptions struct {
	// K RRF 常数，0 时取 DefaultRRFK
	K int
	// SemanticWeight ∈ [0,1]：0.5 等价于无权重 RRF；
	// 语义列表贡献乘 2*w，词法列表乘 2*(1-w)
	SemanticWeight float64
	// Limit 截断融合结果，0 表示不截断
	Limit int
}

// Fuse 以 RRF（Reciprocal Rank Fusion）合并词法与语义结果列表
// 每个 chunk 按其在各列表中的 1-based 排名累加 weight/(k+rank)，
// 不在某列表中则该列表贡献 0；无需跨系统分数归一化。
// 并列分数按语义列表中更早出现者优先；未出现在语义列表的排在出现者之后。
func Fuse(lexical, semantic []*Result, opts FuseOptions) []*Fused {
	k := opts.K
	if k <= 0 {
		k = DefaultRRFK
	}
	sw := opts.SemanticWeight
	if sw < 0 {
		sw = 0
	}
	if sw > 1 {
		sw = 1
	}
	wSem := 2 * sw
	wLex := 2 * (1 - sw)

	type acc struct {
		score   float64
		sources []Source
		text    string
		// semRank 语义列表中的 1-based 排名，0 表示不在语义列表
		semRank int
		lexRank int
	}
	byID := make(map[string]*acc)

	admit := func(id string) *acc {
		a, ok := byID[id]
		if !ok {
			a = &acc{}
			byID[id] = a
		}
		return a
	}

	for _, r := range lexical {
		a := admit(r.ChunkID)
		a.score += wLex / float64(k+r.Rank)
		a.sources = append(a.sources, SourceLexical)
		a.lexRank = r.Rank
		if a.text == "" {
			a.text = r.Text
		}
	}
	for _, r := range semantic {
		a := admit(r.ChunkID)
		a.score += wSem / float64(k+r.Rank)
		a.sources = append(a.sources, SourceSemantic)
		a.semRank = r.Rank
		if a.text == "" {
			a.text = r.Text
		}
	}

	fused := make([]*Fused, 0, len(byID))
	ids := make([]string, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		a := byID[id]
		fused = append(fused, &Fused{
			ChunkID: id,
			Score:   a.score,
			Sources: a.sources,
			Text:    a.text,
		})
	}

	sort.SliceStable(fused, func(i, j int) bool {
		fi, fj := fused[i], fused[j]
		if fi.Score != fj.Score {
			return fi.Score > fj.Score
		}
		ai, aj := byID[fi.ChunkID], byID[fj.ChunkID]
		// 并列：语义列表中更早出现者优先，不在语义列表者最后
		switch {
		case ai.semRank > 0 && aj.semRank > 0:
			return ai.semRank < aj.semRank
		case ai.semRank > 0:
			return true
		case aj.semRank > 0:
			return false
		}
		return ai.lexRank < aj.lexRank
	})

	if opts.Limit > 0 && len(fused) > opts.Limit {
		fused = fused[:opts.Limit]
	}
	return fused
}

var (
	// 内嵌字母数字混排的编码，如 T4、RFC7231、req-042
	codePattern = regexp.MustCompile(`\b(?:[A-Za-z]+[-_]?\d+|\d+[-_]?[A-Za-z]+)\w*\b`)
	// 全大写缩写
	acronymPattern = regexp.MustCompile(`\b[A-Z]{2,}\b`)
	// 带单位的数字，如 3000m、2.5kg、50Hz
	unitPattern = regexp.MustCompile(`(?i)\b\d+(?:\.\d+)?\s?(?:mm|cm|km|kg|mg|ms|ns|hz|khz|mhz|ghz|kb|mb|gb|tb|m|g|s|v|a|w)\b`)
)

// LooksLikeIdentifierQuery 用简单词法信号判断查询是否引用精确标识符
// （型号、需求编号、单位数值）。这类查询在嵌入空间被稀释，应上调词法权重
func LooksLikeIdentifierQuery(query string) bool {
	return codePattern.MatchString(query) ||
		acronymPattern.MatchString(query) ||
		unitPattern.MatchString(query)
}

// BiasForIdentifiers 对偏标识符的查询下调语义权重
func BiasForIdentifiers(query string, semanticWeight float64) float64 {
	if !LooksLikeIdentifierQuery(query) {
		return semanticWeight
	}
	biased := semanticWeight * 0.6
	if biased > 0.35 {
		biased = 0.35
	}
	return biased
}
