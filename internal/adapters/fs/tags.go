package fs

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// tagFile is the on-disk layout of the startup tags file:
//
//	[tags]
//	"lifeline:auto_launched" = "true"
//	role = "web"
type tagFile struct {
	Tags map[string]string `toml:"tags"`
}

// TagFileSource implements ports.TagSource from a TOML file written by the
// provisioning layer. Each tag is reported as "key=value".
type TagFileSource struct {
	path string
}

// NewTagFileSource creates a tag source reading path.
func NewTagFileSource(path string) *TagFileSource {
	return &TagFileSource{path: path}
}

// Tags returns the sorted tags. A missing file means no tags.
func (s *TagFileSource) Tags(ctx context.Context) ([]string, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read tags file: %w", err)
	}

	var tf tagFile
	if err := toml.Unmarshal(data, &tf); err != nil {
		return nil, fmt.Errorf("parse tags file %s: %w", s.path, err)
	}

	tags := make([]string, 0, len(tf.Tags))
	for k, v := range tf.Tags {
		tags = append(tags, strings.TrimSpace(k)+"="+strings.TrimSpace(v))
	}
	sort.Strings(tags)
	return tags, nil
}
