package skills

import (
	"fmt"
	"regexp"

	"gopkg.in/yaml.v3"
)

var frontmatterRe = regexp.MustCompile(`(?s)\A---\s*\n(.*?)\n---\s*\n`)

// splitFrontmatter separates a YAML frontmatter block from the markdown body.
// A document without frontmatter yields an empty metadata map and the whole
// text as body.
func splitFrontmatter(doc string) (map[string]interface{}, string, error) {
	m := frontmatterRe.FindStringSubmatchIndex(doc)
	if m == nil {
		return map[string]interface{}{}, doc, nil
	}

	meta := make(map[string]interface{})
	if err := yaml.Unmarshal([]byte(doc[m[2]:m[3]]), &meta); err != nil {
		return nil, "", fmt.Errorf("frontmatter yaml: %w", err)
	}
	if meta == nil {
		meta = map[string]interface{}{}
	}
	return meta, doc[m[1]:], nil
}
