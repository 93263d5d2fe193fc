package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/kaptinlin/jsonrepair"
	"google.golang.org/genai"

	"github.com/PabloGalante/oneiros/internal/domain"
	"github.com/PabloGalante/oneiros/internal/errorsx"
)

// analysisSchema is the response contract of the analyze call. Every field is
// required, including the fields of each archetype and symbol.
var analysisSchema = &jsonschema.Schema{
	Type: "object",
	Properties: map[string]*jsonschema.Schema{
		"emotionalTheme": {Type: "string"},
		"archetypes": {
			Type: "array",
			Items: &jsonschema.Schema{
				Type: "object",
				Properties: map[string]*jsonschema.Schema{
					"name":        {Type: "string"},
					"description": {Type: "string"},
				},
				Required: []string{"name", "description"},
			},
		},
		"jungianInsight": {Type: "string"},
		"symbolism": {
			Type: "array",
			Items: &jsonschema.Schema{
				Type: "object",
				Properties: map[string]*jsonschema.Schema{
					"symbol":  {Type: "string"},
					"meaning": {Type: "string"},
				},
				Required: []string{"symbol", "meaning"},
			},
		},
	},
	Required: []string{"emotionalTheme", "archetypes", "jungianInsight", "symbolism"},
}

var (
	analysisResolved     = mustResolve(analysisSchema)
	analysisGenaiSchema  = toGenaiSchema(analysisSchema)
	errEmptyAnalysisText = errors.New("empty analysis payload")
)

func mustResolve(s *jsonschema.Schema) *jsonschema.Resolved {
	r, err := s.Resolve(nil)
	if err != nil {
		panic(fmt.Sprintf("resolve analysis schema: %v", err))
	}
	return r
}

// toGenaiSchema converts a JSON schema into the subset the Gemini API takes.
func toGenaiSchema(schema *jsonschema.Schema) *genai.Schema {
	if schema == nil {
		return nil
	}

	enums := make([]string, 0, len(schema.Enum))
	for _, v := range schema.Enum {
		enums = append(enums, fmt.Sprintf("%v", v))
	}

	gs := genai.Schema{
		Format:      schema.Format,
		Description: schema.Description,
		Items:       toGenaiSchema(schema.Items),
		Required:    schema.Required,
	}
	if len(enums) > 0 {
		gs.Enum = enums
	}

	if n := len(schema.Properties); n > 0 {
		gs.Properties = make(map[string]*genai.Schema, n)
		for k, prop := range schema.Properties {
			gs.Properties[k] = toGenaiSchema(prop)
		}
		// Keep the declared order so the model emits fields predictably.
		gs.PropertyOrdering = append([]string(nil), schema.Required...)
	}

	typ := schema.Type
	if typ == "" {
		for _, t := range schema.Types {
			if t != "null" {
				typ = t
				break
			}
		}
	}
	switch typ {
	case "object":
		gs.Type = genai.TypeObject
	case "array":
		gs.Type = genai.TypeArray
	case "string":
		gs.Type = genai.TypeString
	case "number":
		gs.Type = genai.TypeNumber
	case "integer":
		gs.Type = genai.TypeInteger
	case "boolean":
		gs.Type = genai.TypeBoolean
	}
	return &gs
}

// DecodeAnalysis parses a model payload into an analysis. Syntactically broken
// JSON is repaired first; the result must then satisfy analysisSchema.
func DecodeAnalysis(payload string) (*domain.PsychologicalAnalysis, error) {
	payload = stripCodeFence(strings.TrimSpace(payload))
	if payload == "" {
		return nil, parseError(errEmptyAnalysisText)
	}

	var instance any
	if err := unmarshalJSON([]byte(payload), &instance); err != nil {
		return nil, parseError(err)
	}
	if err := analysisResolved.Validate(instance); err != nil {
		return nil, parseError(err)
	}

	normalized, err := json.Marshal(instance)
	if err != nil {
		return nil, parseError(err)
	}
	var out domain.PsychologicalAnalysis
	if err := json.Unmarshal(normalized, &out); err != nil {
		return nil, parseError(err)
	}
	return &out, nil
}

func parseError(err error) error {
	return errorsx.Wrap(fmt.Errorf("failed to parse analysis response: %w", err), errorsx.ReasonAnalysisParse)
}

// unmarshalJSON unmarshals JSON data into v, attempting to repair malformed JSON.
func unmarshalJSON(data []byte, v any) error {
	err := json.Unmarshal(data, v)
	if err == nil {
		return nil
	}
	if _, ok := err.(*json.SyntaxError); ok {
		fixed, err := jsonrepair.JSONRepair(string(data))
		if err != nil {
			return err
		}
		return json.Unmarshal([]byte(fixed), v)
	}
	return err
}

func stripCodeFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
