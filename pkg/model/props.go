package model

import (
	"time"

	"gopkg.in/yaml.v2"

	"github.com/packline/revstore/pkg/model/status"
)

// Well-known revision property names.
const (
	PropDate   = "date"
	PropAuthor = "author"
	PropLog    = "log"
)

// Properties holds the unversioned metadata of one revision. Unlike
// revision content, properties may be rewritten after commit.
type Properties map[string]string

// EncodeProperties renders a property blob. yaml marshals map keys in
// sorted order, so encoding is deterministic.
func EncodeProperties(p Properties) ([]byte, error) {
	if p == nil {
		p = Properties{}
	}
	return yaml.Marshal(p)
}

// DecodeProperties parses a property blob
func DecodeProperties(data []byte) (Properties, error) {
	p := Properties{}
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, status.ErrBadProperties.Wrap(err)
	}
	return p, nil
}

// NewCommitProperties returns the default properties stamped on a fresh
// revision.
func NewCommitProperties(author string) Properties {
	p := Properties{
		PropDate: time.Now().UTC().Format(time.RFC3339Nano),
	}
	if author != "" {
		p[PropAuthor] = author
	}
	return p
}
