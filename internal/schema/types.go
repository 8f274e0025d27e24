package schema

import (
	"fmt"
	"strings"
)

// KeyType tells how primary keys are produced for inserted records.
type KeyType string

const (
	KeyUUID   KeyType = "uuid"   // generated by the store when missing
	KeySerial KeyType = "serial" // generated by the engine
	KeyText   KeyType = "text"   // always supplied by the caller
)

type Column struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
}

// IsJSON returns true if the column holds a JSON document.
func (c Column) IsJSON() bool {
	t := strings.ToLower(c.Type)
	return t == "json" || t == "jsonb"
}

// Relation correlates rows of another table: related.ForeignKey = owner.LocalKey.
type Relation struct {
	Table      string `yaml:"table"`
	LocalKey   string `yaml:"local_key"`
	ForeignKey string `yaml:"foreign_key"`
}

type Collection struct {
	Name      string              `yaml:"name"`
	Table     string              `yaml:"table"`
	Key       string              `yaml:"key"`
	KeyType   KeyType             `yaml:"key_type"`
	Columns   []Column            `yaml:"columns"`
	Relations map[string]Relation `yaml:"relations"`
}

// Column finds a column definition by name.
func (c *Collection) Column(name string) (Column, bool) {
	for _, col := range c.Columns {
		if col.Name == name {
			return col, true
		}
	}
	return Column{}, false
}

func (c *Collection) normalize() error {
	if c.Name == "" {
		return fmt.Errorf("collection without name")
	}
	if c.Table == "" {
		c.Table = c.Name
	}
	if c.Key == "" {
		c.Key = "id"
	}
	switch c.KeyType {
	case "":
		c.KeyType = KeySerial
	case KeyUUID, KeySerial, KeyText:
	default:
		return fmt.Errorf("collection %s: unknown key type %q", c.Name, c.KeyType)
	}
	for name, rel := range c.Relations {
		if rel.Table == "" || rel.LocalKey == "" || rel.ForeignKey == "" {
			return fmt.Errorf("collection %s: relation %s is incomplete", c.Name, name)
		}
	}
	return nil
}

// keyTypeFor maps an information_schema data type to a KeyType.
func keyTypeFor(dataType string) KeyType {
	switch strings.ToLower(dataType) {
	case "uuid":
		return KeyUUID
	case "integer", "bigint", "smallint":
		return KeySerial
	}
	return KeyText
}

// relationName derives the belongs-to name of a foreign key column:
// author_id -> author.
func relationName(column string) string {
	if name, ok := strings.CutSuffix(column, "_id"); ok && name != "" {
		return name
	}
	return column
}
