package schema

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// document is the YAML form of a schema description.
type document struct {
	Version string          `yaml:"version"`
	Models  []modelDocument `yaml:"models"`
}

type modelDocument struct {
	Name       string             `yaml:"name"`
	Table      string             `yaml:"table"`
	Fields     []fieldDocument    `yaml:"fields"`
	Relations  []relationDocument `yaml:"relations"`
	PrimaryKey []string           `yaml:"primaryKey"`
	Uniques    []UniqueConstraint `yaml:"uniques"`
}

type fieldDocument struct {
	Name      string     `yaml:"name"`
	Column    string     `yaml:"column"`
	Type      ScalarType `yaml:"type"`
	Nullable  bool       `yaml:"nullable"`
	ID        bool       `yaml:"id"`
	Unique    bool       `yaml:"unique"`
	Default   yaml.Node  `yaml:"default"`
	UpdatedAt bool       `yaml:"updatedAt"`
	Values    []string   `yaml:"values"`
}

type relationDocument struct {
	Name         string            `yaml:"name"`
	Target       string            `yaml:"target"`
	Many         bool              `yaml:"many"`
	RelationName string            `yaml:"relationName"`
	Fields       []string          `yaml:"fields"`
	References   []string          `yaml:"references"`
	OnDelete     ReferentialAction `yaml:"onDelete"`
}

// LoadYAML decodes a versioned schema description and builds it.
//
//	version: "1.0"
//	models:
//	  - name: Customer
//	    fields:
//	      - {name: id, type: Int, id: true, default: autoincrement()}
//	      - {name: email, type: String, unique: true}
//	    relations:
//	      - {name: bookings, target: Booking, many: true}
func LoadYAML(r io.Reader) (*Schema, error) {
	var doc document
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("schema: decode: %w", err)
	}

	models := make([]*Model, 0, len(doc.Models))
	for _, md := range doc.Models {
		m := &Model{
			Name:       md.Name,
			Table:      md.Table,
			PrimaryKey: md.PrimaryKey,
			Uniques:    md.Uniques,
		}
		for _, fd := range md.Fields {
			fd := fd
			def, err := decodeDefault(&fd.Default)
			if err != nil {
				return nil, fmt.Errorf("schema: field %s.%s: %w", md.Name, fd.Name, err)
			}
			m.Fields = append(m.Fields, &Field{
				Name:       fd.Name,
				Column:     fd.Column,
				Type:       fd.Type,
				Nullable:   fd.Nullable,
				IsID:       fd.ID,
				Unique:     fd.Unique,
				Default:    def,
				UpdatedAt:  fd.UpdatedAt,
				EnumValues: fd.Values,
			})
		}
		for _, rd := range md.Relations {
			card := One
			if rd.Many {
				card = Many
			}
			m.Relations = append(m.Relations, &Relation{
				Name:         rd.Name,
				Target:       rd.Target,
				Cardinality:  card,
				RelationName: rd.RelationName,
				Fields:       rd.Fields,
				References:   rd.References,
				OnDelete:     rd.OnDelete,
			})
		}
		models = append(models, m)
	}
	return Build(doc.Version, models...)
}

// LoadFile reads a YAML schema description from fs.
func LoadFile(fs afero.Fs, path string) (*Schema, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("schema: read %s: %w", path, err)
	}
	return LoadYAML(bytes.NewReader(data))
}

// decodeDefault reads a default: value. A zero node means the key was absent.
func decodeDefault(n *yaml.Node) (*Default, error) {
	if n.Kind == 0 {
		return nil, nil
	}
	if n.Kind == yaml.ScalarNode && n.Tag == "!!str" {
		switch strings.TrimSpace(n.Value) {
		case "autoincrement()":
			return &Default{Kind: DefaultAutoincrement}, nil
		case "uuid()":
			return &Default{Kind: DefaultUUID}, nil
		case "now()":
			return &Default{Kind: DefaultNow}, nil
		}
	}
	if n.Kind != yaml.ScalarNode {
		return nil, fmt.Errorf("default must be a scalar, got %s", n.ShortTag())
	}
	var v any
	if err := n.Decode(&v); err != nil {
		return nil, err
	}
	return &Default{Kind: DefaultValue, Value: v}, nil
}
