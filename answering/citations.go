package answering

import (
	"regexp"
	"strconv"

	"github.com/BaSui01/medirag/types"
)

// Citation 回答中的一条引用及其出处。
type Citation struct {
	Index      int    `json:"index"`
	ChunkID    string `json:"chunk_id"`
	DocID      string `json:"doc_id"`
	Chapter    string `json:"chapter,omitempty"`
	Subheading string `json:"subheading,omitempty"`
	PageLabel  string `json:"page_label,omitempty"`
}

var citationPattern = regexp.MustCompile(`\[(\d+)\]`)

// ExtractCitations 从回答文本里解析 [n] 标记，映射回上下文出处。
// 越界或重复的标记忽略。
func ExtractCitations(answer string, context []types.RankedResult) []Citation {
	seen := make(map[int]bool)
	var citations []Citation
	for _, match := range citationPattern.FindAllStringSubmatch(answer, -1) {
		n, err := strconv.Atoi(match[1])
		if err != nil || n < 1 || n > len(context) || seen[n] {
			continue
		}
		seen[n] = true
		r := context[n-1]
		citations = append(citations, Citation{
			Index:      n,
			ChunkID:    r.ChunkID,
			DocID:      r.DocID,
			Chapter:    r.Metadata.Chapter,
			Subheading: r.Metadata.Subheading,
			PageLabel:  r.Metadata.PageLabel,
		})
	}
	return citations
}
