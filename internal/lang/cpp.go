package lang

import (
	"github.com/smacker/go-tree-sitter/cpp"
)

func init() {
	Languages["cpp"] = &Language{
		Name:       "cpp",
		Extensions: []string{".h", ".hh", ".hpp", ".hxx", ".h++", ".inl"},
		lang:       cpp.GetLanguage(),
	}
}
