package fhir

import "fmt"

// TranslateMatch is one $translate result.
type TranslateMatch struct {
	Equivalence string
	System      string
	Code        string
	Display     string
	Source      string // ConceptMap canonical URL the match came from
}

// Parameters is the FHIR Parameters resource returned by $translate.
type Parameters struct {
	ResourceType string      `json:"resourceType"`
	Parameter    []Parameter `json:"parameter"`
}

// Parameter is a named value or a group of parts.
type Parameter struct {
	Name         string      `json:"name"`
	ValueBoolean *bool       `json:"valueBoolean,omitempty"`
	ValueString  string      `json:"valueString,omitempty"`
	ValueCode    string      `json:"valueCode,omitempty"`
	ValueURI     string      `json:"valueUri,omitempty"`
	ValueCoding  *Coding     `json:"valueCoding,omitempty"`
	Part         []Parameter `json:"part,omitempty"`
}

// Get returns the first parameter named name.
func (p *Parameters) Get(name string) (Parameter, bool) {
	for _, param := range p.Parameter {
		if param.Name == name {
			return param, true
		}
	}
	return Parameter{}, false
}

// BuildTranslateParameters renders matches as a $translate response:
// result, message, then one match group per entry.
func BuildTranslateParameters(matches []TranslateMatch) *Parameters {
	found := len(matches) > 0
	message := "No translations found"
	if found {
		message = fmt.Sprintf("Found %d translation(s)", len(matches))
	}

	out := &Parameters{
		ResourceType: "Parameters",
		Parameter: []Parameter{
			{Name: "result", ValueBoolean: &found},
			{Name: "message", ValueString: message},
		},
	}
	for _, m := range matches {
		group := Parameter{Name: "match", Part: []Parameter{
			{Name: "equivalence", ValueCode: m.Equivalence},
			{Name: "concept", ValueCoding: &Coding{System: m.System, Code: m.Code, Display: m.Display}},
		}}
		if m.Source != "" {
			group.Part = append(group.Part, Parameter{Name: "source", ValueURI: m.Source})
		}
		out.Parameter = append(out.Parameter, group)
	}
	return out
}
