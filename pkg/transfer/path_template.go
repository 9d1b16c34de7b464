package transfer

import (
	"fmt"
	"path"
	"strconv"
	"strings"

	"github.com/3leaps/zonestore/pkg/provider"
)

type pathTemplatePart interface {
	append(dst *strings.Builder, srcKey string) error
}

type literalPart string

type filenamePart struct{}

type stemPart struct{}

type extPart struct{}

type keyPart struct{}

type dirPart struct{ idx int }

func (p literalPart) append(dst *strings.Builder, _ string) error {
	dst.WriteString(string(p))
	return nil
}

func (filenamePart) append(dst *strings.Builder, srcKey string) error {
	_, filename := splitKey(srcKey)
	dst.WriteString(filename)
	return nil
}

func (stemPart) append(dst *strings.Builder, srcKey string) error {
	_, filename := splitKey(srcKey)
	dst.WriteString(strings.TrimSuffix(filename, path.Ext(filename)))
	return nil
}

func (extPart) append(dst *strings.Builder, srcKey string) error {
	_, filename := splitKey(srcKey)
	dst.WriteString(strings.TrimPrefix(path.Ext(filename), "."))
	return nil
}

func (keyPart) append(dst *strings.Builder, srcKey string) error {
	dst.WriteString(srcKey)
	return nil
}

func (p dirPart) append(dst *strings.Builder, srcKey string) error {
	dirs, _ := splitKey(srcKey)
	if p.idx < 0 || p.idx >= len(dirs) {
		return fmt.Errorf("dir[%d] out of range for %q", p.idx, srcKey)
	}
	dst.WriteString(dirs[p.idx])
	return nil
}

// PathTemplate maps source keys to target keys.
//
// Supported placeholders:
//   - {filename}: final path segment
//   - {stem}: final path segment without its extension
//   - {ext}: extension of the final segment, without the dot
//   - {dir[n]}: nth directory component (0-based)
//   - {key}: full source key
//
// The result always has exactly one leading slash and no doubled slashes.
type PathTemplate struct {
	parts []pathTemplatePart
}

// Apply renders the template for sourceKey.
func (t *PathTemplate) Apply(sourceKey string) (string, error) {
	var b strings.Builder
	for _, part := range t.parts {
		if err := part.append(&b, sourceKey); err != nil {
			return "", err
		}
	}

	out := b.String()
	for strings.Contains(out, "//") {
		out = strings.ReplaceAll(out, "//", "/")
	}
	if provider.IsRootKey(out) || strings.HasSuffix(out, "/") {
		return "", fmt.Errorf("path template produced no file name for %q", sourceKey)
	}
	return provider.NormalizeKey(out), nil
}

// CompilePathTemplate parses a template string into a PathTemplate. The
// empty template maps every key to itself.
func CompilePathTemplate(template string) (*PathTemplate, error) {
	if template == "" {
		return &PathTemplate{parts: []pathTemplatePart{keyPart{}}}, nil
	}

	var parts []pathTemplatePart
	s := template
	for len(s) > 0 {
		open := strings.IndexByte(s, '{')
		if open == -1 {
			parts = append(parts, literalPart(s))
			break
		}
		if open > 0 {
			parts = append(parts, literalPart(s[:open]))
			s = s[open:]
		}

		closeIdx := strings.IndexByte(s, '}')
		if closeIdx == -1 {
			return nil, fmt.Errorf("unclosed placeholder in %q", template)
		}

		placeholder := s[1:closeIdx]
		s = s[closeIdx+1:]

		part, err := parsePlaceholder(placeholder)
		if err != nil {
			return nil, err
		}
		parts = append(parts, part)
	}

	return &PathTemplate{parts: parts}, nil
}

func parsePlaceholder(p string) (pathTemplatePart, error) {
	switch {
	case p == "filename":
		return filenamePart{}, nil
	case p == "stem":
		return stemPart{}, nil
	case p == "ext":
		return extPart{}, nil
	case p == "key":
		return keyPart{}, nil
	case strings.HasPrefix(p, "dir[") && strings.HasSuffix(p, "]"):
		nStr := strings.TrimSuffix(strings.TrimPrefix(p, "dir["), "]")
		idx, err := strconv.Atoi(nStr)
		if err != nil {
			return nil, fmt.Errorf("invalid dir index %q", nStr)
		}
		return dirPart{idx: idx}, nil
	default:
		return nil, fmt.Errorf("unsupported placeholder {%s}", p)
	}
}

// splitKey splits a key into its directory components and file name.
func splitKey(key string) (dirs []string, filename string) {
	trimmed := strings.Trim(key, "/")
	if trimmed == "" {
		return nil, ""
	}
	parts := strings.Split(trimmed, "/")
	return parts[:len(parts)-1], parts[len(parts)-1]
}
