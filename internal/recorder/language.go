package recorder

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Languages with a driver.
const (
	LangLua = "lua"
	LangCPP = "cpp"
)

var languageNames = map[string]string{
	"lua": LangLua,
	"cpp": LangCPP,
	"c++": LangCPP,
	"cxx": LangCPP,
}

var extensions = map[string]string{
	".lua": LangLua,
	".cpp": LangCPP,
	".cc":  LangCPP,
	".cxx": LangCPP,
	".c++": LangCPP,
}

// ParseLanguage returns the canonical name for a language name or alias.
func ParseLanguage(name string) (string, error) {
	if lang, ok := languageNames[strings.ToLower(strings.TrimSpace(name))]; ok {
		return lang, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownLanguage, name)
}

// LanguageOf infers the language of a source file from its extension.
func LanguageOf(path string) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if lang, ok := extensions[ext]; ok {
		return lang, nil
	}
	return "", fmt.Errorf("%w: cannot infer from %q", ErrUnknownLanguage, filepath.Base(path))
}
