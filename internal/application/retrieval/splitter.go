package retrieval

import (
	"regexp"
	"strings"
	"unicode/utf8"

	apperrors "fixit-rag-api/pkg/errors"
)

const (
	DefaultMaxChunkSize = 1000
	DefaultOverlapSize  = 200
)

// 句子 = 非终止符序列 + 其后连续的终止符
var sentencePattern = regexp.MustCompile(`[^.!?]+[.!?]*`)

type sentence struct {
	text       string
	start, end int
}

// splitSentences 按 . ! ? 切句，保留终止符，丢弃空句
func splitSentences(text string) []sentence {
	locs := sentencePattern.FindAllStringIndex(text, -1)
	out := make([]sentence, 0, len(locs))
	for _, loc := range locs {
		raw := text[loc[0]:loc[1]]
		trimmed := strings.TrimSpace(raw)
		if strings.TrimSpace(strings.TrimRight(trimmed, ".!?")) == "" {
			continue
		}
		lead := len(raw) - len(strings.TrimLeft(raw, " \t\r\n\f\v"))
		start := loc[0] + lead
		out = append(out, sentence{text: trimmed, start: start, end: start + len(trimmed)})
	}
	return out
}

// Chunk 将文本切分为有重叠的分片。长度按 rune 计。
//
// 句子依次追加到缓冲区（以空格分隔）；追加会使缓冲区超过 maxChunkSize 且缓冲区非空时，
// 关闭当前分片，下一缓冲区以上一分片末尾 overlapSize 个字符开头，后接触发溢出的句子。
// 单个分片长度不超过 maxChunkSize + 最长句子长度。
func Chunk(text string, maxChunkSize, overlapSize int) ([]TextChunk, error) {
	if maxChunkSize <= 0 {
		return nil, apperrors.InvalidArgument("maxChunkSize must be positive, got %d", maxChunkSize)
	}
	if overlapSize < 0 || overlapSize >= maxChunkSize {
		return nil, apperrors.InvalidArgument("overlapSize must be in [0, %d), got %d", maxChunkSize, overlapSize)
	}

	sentences := splitSentences(text)
	if len(sentences) == 0 {
		return nil, nil
	}

	var (
		chunks  []TextChunk
		buf     strings.Builder
		bufLen  int
		spanBeg = -1
		spanEnd int
	)

	closeChunk := func() string {
		closed := strings.TrimSpace(buf.String())
		chunks = append(chunks, TextChunk{
			Index:      len(chunks),
			Text:       closed,
			SourceSpan: Span{Start: spanBeg, End: spanEnd},
		})
		buf.Reset()
		bufLen = 0
		spanBeg = -1
		return closed
	}

	for _, s := range sentences {
		sLen := utf8.RuneCountInString(s.text)

		if bufLen > 0 && bufLen+1+sLen > maxChunkSize {
			closed := closeChunk()
			if tail := strings.TrimSpace(lastRunes(closed, overlapSize)); tail != "" {
				buf.WriteString(tail)
				buf.WriteByte(' ')
				bufLen = utf8.RuneCountInString(tail) + 1
			}
		} else if bufLen > 0 {
			buf.WriteByte(' ')
			bufLen++
		}

		buf.WriteString(s.text)
		bufLen += sLen
		if spanBeg < 0 {
			spanBeg = s.start
		}
		spanEnd = s.end
	}

	if bufLen > 0 {
		closeChunk()
	}
	return chunks, nil
}

// lastRunes 返回 s 末尾 n 个字符
func lastRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[len(runes)-n:])
}
