package i18n

import (
	"sort"
	"strings"
	"sync"
)

// Translator retrieves localized messages for Issue codes.
// data provides optional metadata to embed in the message (for example,
// "min" or "field").
type Translator interface {
	Message(code string, data map[string]string) string
}

// dictTranslator is the built-in dictionary-based Translator.
type dictTranslator struct{ lang string }

var catalogue = map[string]map[string]string{
	"en": {
		"invalid_type":   "invalid type",
		"required":       "required element missing",
		"not_nillable":   "value must not be null",
		"unknown_key":    "unknown element",
		"duplicate_key":  "duplicate element",
		"too_small":      "value is below the minimum",
		"too_big":        "value is above the maximum",
		"too_short":      "too short",
		"too_long":       "too long",
		"too_few":        "too few occurrences",
		"too_many":       "too many occurrences",
		"pattern":        "value does not match the pattern",
		"invalid_enum":   "value is not one of the allowed values",
		"invalid_format": "invalid lexical format",
		"invalid_index":  "invalid array index",
	},
	"ja": {
		"invalid_type":   "型が不正です",
		"required":       "必須要素が不足しています",
		"not_nillable":   "null は許可されていません",
		"unknown_key":    "未知の要素です",
		"duplicate_key":  "要素が重複しています",
		"too_small":      "最小値を下回っています",
		"too_big":        "最大値を超えています",
		"too_short":      "短すぎます",
		"too_long":       "長すぎます",
		"too_few":        "出現回数が不足しています",
		"too_many":       "出現回数が多すぎます",
		"pattern":        "パターンに一致しません",
		"invalid_enum":   "許可された値ではありません",
		"invalid_format": "字句形式が不正です",
		"invalid_index":  "配列インデックスが不正です",
	},
}

func (t dictTranslator) Message(code string, data map[string]string) string {
	msg, ok := catalogue[t.lang][code]
	if !ok {
		return code
	}
	if len(data) == 0 {
		return msg
	}
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	b := &strings.Builder{}
	b.WriteString(msg)
	b.WriteString(" (")
	for i, k := range keys {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(k)
		b.WriteString("=")
		b.WriteString(data[k])
	}
	b.WriteString(")")
	return b.String()
}

var (
	mu                sync.RWMutex
	currentTranslator Translator = dictTranslator{lang: "en"}
)

// SetLanguage switches the built-in Translator language ("en"/"ja").
func SetLanguage(lang string) {
	if _, ok := catalogue[lang]; !ok {
		lang = "en"
	}
	mu.Lock()
	currentTranslator = dictTranslator{lang: lang}
	mu.Unlock()
}

// SetTranslator replaces the Translator implementation (not limited to the
// dictionary version).
func SetTranslator(tr Translator) {
	if tr == nil {
		tr = dictTranslator{lang: "en"}
	}
	mu.Lock()
	currentTranslator = tr
	mu.Unlock()
}

// T fetches a message for the given code using the current Translator.
func T(code string, data map[string]string) string {
	mu.RLock()
	tr := currentTranslator
	mu.RUnlock()
	return tr.Message(code, data)
}
