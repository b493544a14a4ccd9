package question

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode"

	"memoir-ai-api/internal/domain/entity"
)

const maxKeywords = 10

// Analysis 单个问题的指纹与分类
type Analysis struct {
	Hash      string                   `json:"hash"`
	Keywords  []string                 `json:"keywords"`
	Type      entity.QuestionType      `json:"type"`
	Sentiment entity.QuestionSentiment `json:"sentiment"`
}

// Extraction 从一段助手回复中抽取出的问题
type Extraction struct {
	Questions       []string `json:"questions"`
	PrimaryQuestion string   `json:"primary_question,omitempty"`
}

var interrogatives = wordSet(
	"what", "when", "where", "who", "whom", "whose", "why", "how", "which",
	"do", "does", "did", "is", "are", "was", "were", "can", "could",
	"would", "will", "should", "have", "has", "had", "may", "might",
)

var followupPhrases = []string{
	"tell me more", "what about", "how about", "you mentioned", "going back to",
	"earlier you", "can you elaborate", "more about", "you said",
}

// promptOpeners 没有问号但在请求作答的祈使句开头
var promptOpeners = []string{
	"tell me", "describe", "share", "walk me through", "talk about", "imagine", "think about",
}

var positiveWords = wordSet(
	"happy", "happiest", "joy", "joyful", "proud", "proudest", "favorite", "favourite",
	"love", "loved", "wonderful", "best", "fond", "fondest", "celebrate", "celebrated",
	"success", "grateful", "delight", "fun", "laugh", "cherish",
)

var probingWords = wordSet(
	"difficult", "difficulty", "challenge", "challenging", "struggle", "struggled",
	"hard", "hardest", "painful", "pain", "loss", "lost", "regret", "fear", "afraid",
	"overcome", "cope", "coped", "conflict", "mistake", "failure", "grief",
)

var stopwords = wordSet(
	"about", "above", "after", "again", "also", "been", "before", "being", "between",
	"both", "could", "does", "doing", "down", "during", "each", "even", "ever", "from",
	"further", "have", "having", "here", "into", "just", "like", "more", "most", "much",
	"only", "other", "over", "really", "same", "should", "some", "such", "than", "that",
	"their", "them", "then", "there", "these", "they", "this", "those", "through", "under",
	"until", "very", "want", "were", "what", "when", "where", "which", "while", "who",
	"whom", "why", "will", "with", "would", "your", "yours", "yourself", "tell", "think",
	"remember", "anything", "something", "things", "thing", "maybe", "perhaps",
)

func wordSet(words ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}

// Analyze 计算问题的指纹、关键词、类型与语气
func Analyze(text string) Analysis {
	normalized := normalize(text)
	words := strings.Fields(normalized)
	return Analysis{
		Hash:      fingerprint(normalized),
		Keywords:  keywords(words),
		Type:      classifyType(normalized, words),
		Sentiment: classifySentiment(words),
	}
}

// Extract 按句切分并保留问句与请求作答的祈使句，顺序与原文一致
func Extract(text string) Extraction {
	var out []string
	for _, s := range splitSentences(text) {
		if isQuestionLike(s) {
			out = append(out, s)
		}
	}
	ex := Extraction{Questions: out}
	if ex.Questions == nil {
		ex.Questions = []string{}
	}
	if len(out) > 0 {
		ex.PrimaryQuestion = out[0]
	}
	return ex
}

// normalize 小写、去标点、合并空白
func normalize(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	space := false
	for _, r := range strings.ToLower(text) {
		switch {
		case r == '\'' || r == '’':
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			space = false
		default:
			if !space && b.Len() > 0 {
				b.WriteByte(' ')
				space = true
			}
		}
	}
	return strings.TrimSpace(b.String())
}

func fingerprint(normalized string) string {
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

func keywords(words []string) []string {
	out := make([]string, 0, maxKeywords)
	seen := make(map[string]struct{}, len(words))
	for _, w := range words {
		if len([]rune(w)) <= 3 {
			continue
		}
		if _, ok := stopwords[w]; ok {
			continue
		}
		if _, ok := seen[w]; ok {
			continue
		}
		seen[w] = struct{}{}
		out = append(out, w)
		if len(out) == maxKeywords {
			break
		}
	}
	return out
}

func classifyType(normalized string, words []string) entity.QuestionType {
	if len(words) > 0 {
		if _, ok := interrogatives[words[0]]; ok {
			return entity.QuestionTypeDirect
		}
	}
	for _, p := range followupPhrases {
		if strings.Contains(normalized, p) {
			return entity.QuestionTypeFollowup
		}
	}
	return entity.QuestionTypeImplied
}

func classifySentiment(words []string) entity.QuestionSentiment {
	for _, w := range words {
		if _, ok := positiveWords[w]; ok {
			return entity.SentimentPositive
		}
	}
	for _, w := range words {
		if _, ok := probingWords[w]; ok {
			return entity.SentimentProbing
		}
	}
	return entity.SentimentNeutral
}

func splitSentences(text string) []string {
	var out []string
	start := 0
	runes := []rune(text)
	flush := func(end int) {
		s := strings.TrimSpace(string(runes[start:end]))
		if s != "" {
			out = append(out, s)
		}
		start = end
	}
	for i, r := range runes {
		switch r {
		case '?', '!', '.', '\n':
			flush(i + 1)
		}
	}
	if start < len(runes) {
		flush(len(runes))
	}
	return out
}

func isQuestionLike(sentence string) bool {
	if strings.HasSuffix(sentence, "?") {
		return true
	}
	lower := strings.ToLower(strings.TrimLeft(sentence, "\"'*- "))
	for _, p := range promptOpeners {
		if strings.HasPrefix(lower, p+" ") {
			return true
		}
	}
	return false
}
