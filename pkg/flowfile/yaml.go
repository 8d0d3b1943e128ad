package flowfile

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"
)

func decodeYAML(data []byte) (*Document, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var doc Document
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode flow: %w", err)
	}
	return &doc, nil
}

func encodeYAML(doc *Document) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("marshal flow: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("marshal flow: %w", err)
	}
	return buf.Bytes(), nil
}
