package config

import (
	"github.com/goccy/go-json"
	"github.com/invopop/jsonschema"
)

var fileReflector = jsonschema.Reflector{
	FieldNameTag:   "yaml",
	DoNotReference: true,
}

// Schema describes File for editors and validators.
func Schema() *jsonschema.Schema {
	s := fileReflector.Reflect(&File{})
	s.Title = "blip configuration"
	return s
}

// SchemaJSON renders Schema as indented JSON.
func SchemaJSON() ([]byte, error) {
	return json.MarshalIndent(Schema(), "", "  ")
}
