package fhir

// CodeSystem is the FHIR R4 CodeSystem subset published for NAMASTE.
type CodeSystem struct {
	ResourceType     string               `json:"resourceType"`
	ID               string               `json:"id"`
	Meta             *Meta                `json:"meta,omitempty"`
	URL              string               `json:"url"`
	Version          string               `json:"version,omitempty"`
	Name             string               `json:"name"`
	Title            string               `json:"title,omitempty"`
	Status           string               `json:"status"`
	Date             string               `json:"date,omitempty"`
	Publisher        string               `json:"publisher,omitempty"`
	Description      string               `json:"description,omitempty"`
	CaseSensitive    bool                 `json:"caseSensitive"`
	HierarchyMeaning string               `json:"hierarchyMeaning,omitempty"`
	Content          string               `json:"content"`
	Count            int                  `json:"count"`
	Property         []CodeSystemProperty `json:"property,omitempty"`
	Concept          []CodeSystemConcept  `json:"concept"`
}

func (cs *CodeSystem) GetResourceType() string { return cs.ResourceType }
func (cs *CodeSystem) GetID() string           { return cs.ID }

type CodeSystemProperty struct {
	Code        string `json:"code"`
	Description string `json:"description,omitempty"`
	Type        string `json:"type"`
}

type CodeSystemConcept struct {
	Code       string            `json:"code"`
	Display    string            `json:"display,omitempty"`
	Definition string            `json:"definition,omitempty"`
	Property   []ConceptProperty `json:"property,omitempty"`
}

// ConceptProperty carries exactly one of ValueCode or ValueString.
type ConceptProperty struct {
	Code        string `json:"code"`
	ValueCode   string `json:"valueCode,omitempty"`
	ValueString string `json:"valueString,omitempty"`
}

// ConceptMap is the FHIR R4 ConceptMap subset used for code translations.
type ConceptMap struct {
	ResourceType string            `json:"resourceType"`
	ID           string            `json:"id"`
	Meta         *Meta             `json:"meta,omitempty"`
	URL          string            `json:"url"`
	Version      string            `json:"version,omitempty"`
	Name         string            `json:"name"`
	Title        string            `json:"title,omitempty"`
	Status       string            `json:"status"`
	Date         string            `json:"date,omitempty"`
	Publisher    string            `json:"publisher,omitempty"`
	SourceURI    string            `json:"sourceUri"`
	TargetURI    string            `json:"targetUri"`
	Group        []ConceptMapGroup `json:"group"`
}

func (cm *ConceptMap) GetResourceType() string { return cm.ResourceType }
func (cm *ConceptMap) GetID() string           { return cm.ID }

type ConceptMapGroup struct {
	Source  string              `json:"source"`
	Target  string              `json:"target"`
	Element []ConceptMapElement `json:"element"`
}

type ConceptMapElement struct {
	Code    string             `json:"code"`
	Display string             `json:"display,omitempty"`
	Target  []ConceptMapTarget `json:"target"`
}

type ConceptMapTarget struct {
	Code        string `json:"code"`
	Display     string `json:"display,omitempty"`
	Equivalence string `json:"equivalence"`
	Comment     string `json:"comment,omitempty"`
}

// Condition is a dual-coded FHIR R4 Condition.
type Condition struct {
	ResourceType       string            `json:"resourceType"`
	ID                 string            `json:"id"`
	Meta               *Meta             `json:"meta,omitempty"`
	ClinicalStatus     CodeableConcept   `json:"clinicalStatus"`
	VerificationStatus CodeableConcept   `json:"verificationStatus"`
	Category           []CodeableConcept `json:"category,omitempty"`
	Code               CodeableConcept   `json:"code"`
	Subject            Reference         `json:"subject"`
	Encounter          *Reference        `json:"encounter,omitempty"`
	OnsetDateTime      string            `json:"onsetDateTime,omitempty"`
	RecordedDate       string            `json:"recordedDate,omitempty"`
	Recorder           *Reference        `json:"recorder,omitempty"`
	Note               []Annotation      `json:"note,omitempty"`
}

func (c *Condition) GetResourceType() string { return c.ResourceType }
func (c *Condition) GetID() string           { return c.ID }
