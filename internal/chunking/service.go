package chunking

import (
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/giak/mnemolite/internal/classify"
	"github.com/giak/mnemolite/internal/observability"
)

// ErrFileTooLarge is returned when content exceeds the configured max
// file size; the caller classifies this as PARSE_ERROR.
var ErrFileTooLarge = errors.New("chunking: file exceeds max size")

// LanguageParser parses one file's content into an ordered list of
// chunks. A parser localizes failures at the declaration level: one
// broken declaration must not abort the whole file.
type LanguageParser interface {
	Language() Language
	Parse(repository, filePath string, content []byte) ([]Chunk, []DeclarationError)
}

// DeclarationError is a localized per-declaration failure recorded as a
// CHUNKING_ERROR row; the parser continues to the next top-level node.
type DeclarationError struct {
	StartLine int
	Message   string
}

// Service dispatches file content to the parser registered for its
// detected language, enforcing the file-size ceiling and a stdlib
// extension->language map.
type Service struct {
	parsers     map[Language]LanguageParser
	maxFileSize int
	logger      observability.Logger
}

// NewService builds an empty Service; call RegisterParser for each
// supported language.
func NewService(maxFileSize int, logger observability.Logger) *Service {
	if maxFileSize <= 0 {
		maxFileSize = 2 * 1024 * 1024
	}
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	return &Service{
		parsers:     make(map[Language]LanguageParser),
		maxFileSize: maxFileSize,
		logger:      logger,
	}
}

// RegisterParser wires a language-specific parser into the service.
func (s *Service) RegisterParser(p LanguageParser) {
	s.parsers[p.Language()] = p
}

var extensionLanguage = map[string]Language{
	".py":   LanguagePython,
	".js":   LanguageJavaScript,
	".jsx":  LanguageJavaScript,
	".mjs":  LanguageJavaScript,
	".ts":   LanguageTypeScript,
	".tsx":  LanguageTypeScript,
	".php":  LanguagePHP,
	".vue":  LanguageVue,
}

// DetectLanguage maps a file extension to a supported Language tag.
func DetectLanguage(filePath string) Language {
	ext := strings.ToLower(filepath.Ext(filePath))
	if lang, ok := extensionLanguage[ext]; ok {
		return lang
	}
	return LanguageUnknown
}

// ChunkFile parses one file's content, returning ordered chunks in
// source order plus any localized declaration errors (CHUNKING_ERROR).
// A file over maxFileSize or with no registered parser returns
// ErrFileTooLarge/a wrapped classify.ErrUnsupportedLanguage respectively so the
// Worker can record a file-level PARSE_ERROR and move on.
func (s *Service) ChunkFile(repository, filePath string, content []byte) ([]Chunk, []DeclarationError, error) {
	if len(content) > s.maxFileSize {
		return nil, nil, ErrFileTooLarge
	}

	lang := DetectLanguage(filePath)
	parser, ok := s.parsers[lang]
	if !ok {
		return nil, nil, errors.Wrapf(classify.ErrUnsupportedLanguage, "file %s (language %s)", filePath, lang)
	}

	chunks, declErrs := parser.Parse(repository, filePath, content)
	for i := range chunks {
		chunks[i].ContentHash = HashBody(chunks[i].Body)
	}
	ComputeMetrics(chunks)
	return chunks, declErrs, nil
}
