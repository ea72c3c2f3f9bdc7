package store

import (
	"fmt"

	"github.com/ericnething/roll2d6-client/internal/doc"
)

// marshalBody converts a document to the JSON TEXT stored in documents.body.
// The _rev field lives in its own column and is stripped here.
func marshalBody(d doc.Document) (string, error) {
	data, err := d.Body().MarshalJSON()
	if err != nil {
		return "", fmt.Errorf("marshal body: %w", err)
	}
	return string(data), nil
}

// unmarshalBody parses documents.body and restores _rev from its column.
func unmarshalBody(body, rev string) (doc.Document, error) {
	d, err := doc.Parse([]byte(body))
	if err != nil {
		return nil, fmt.Errorf("unmarshal body: %w", err)
	}
	d[doc.FieldRev] = rev
	return d, nil
}
