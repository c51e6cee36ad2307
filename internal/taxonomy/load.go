package taxonomy

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// document mirrors the taxonomy YAML layout:
//
//	coarse:
//	  1: engine
//	fine:
//	  1:
//	    1: small-sounding-engine
//	    X: engine-of-uncertain-size
//
// Keys are decoded as strings so that the "X" marker and numeric ids share
// one map type.
type document struct {
	Coarse map[string]string            `yaml:"coarse"`
	Fine   map[string]map[string]string `yaml:"fine"`
}

// Load parses a taxonomy YAML document.
func Load(r io.Reader) (*Taxonomy, error) {
	var doc document
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		if err == io.EOF {
			return nil, ErrNoCategories
		}
		return nil, fmt.Errorf("decode taxonomy: %w", err)
	}

	categories := make([]Category, 0, len(doc.Coarse))
	for key, name := range doc.Coarse {
		id, err := parseID(key)
		if err != nil {
			return nil, fmt.Errorf("coarse key %q: %w", key, err)
		}
		c := Category{ID: id, Name: name}
		for fineKey, fineName := range doc.Fine[key] {
			if strings.EqualFold(fineKey, "X") {
				c.IncompleteName = fineName
				continue
			}
			fid, err := parseID(fineKey)
			if err != nil {
				return nil, fmt.Errorf("fine key %q of coarse %q: %w", fineKey, key, err)
			}
			c.Fine = append(c.Fine, Fine{ID: fid, Name: fineName})
		}
		categories = append(categories, c)
	}

	for key := range doc.Fine {
		if _, ok := doc.Coarse[key]; !ok {
			return nil, fmt.Errorf("fine tags listed for unknown coarse category %q", key)
		}
	}

	return New(categories)
}

// LoadFile reads and parses a taxonomy YAML file.
func LoadFile(path string) (*Taxonomy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read taxonomy: %w", err)
	}
	t, err := Load(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return t, nil
}

func parseID(s string) (int, error) {
	id, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid id: %w", err)
	}
	return id, nil
}
