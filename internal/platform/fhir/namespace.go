package fhir

// Logical system names used by the mapping store.
const (
	SystemNamaste = "NAMASTE"
	SystemICD11   = "ICD-11"
	SystemTM2     = "TM2"
)

// Namespace URIs emitted on the wire.
const (
	URIICD11   = "http://id.who.int/icd/release/11/mms"
	URINamaste = "http://medisutra.in/fhir/CodeSystem/namaste"
	URITM2     = "http://id.who.int/icd/release/11/tm2"
)

// HL7 code systems used by Condition status elements.
const (
	URIConditionClinical = "http://terminology.hl7.org/CodeSystem/condition-clinical"
	URIConditionVerStat  = "http://terminology.hl7.org/CodeSystem/condition-ver-status"
	URIConditionCategory = "http://terminology.hl7.org/CodeSystem/condition-category"
)

// Namespaces resolves logical system names to namespace URIs.
type Namespaces map[string]string

// DefaultNamespaces returns the standard NAMASTE / ICD-11 / TM2 table.
func DefaultNamespaces() Namespaces {
	return Namespaces{
		SystemICD11:   URIICD11,
		SystemNamaste: URINamaste,
		SystemTM2:     URITM2,
	}
}

// WithNamaste returns a copy of the table using uri as the NAMASTE publisher namespace.
func (n Namespaces) WithNamaste(uri string) Namespaces {
	out := make(Namespaces, len(n))
	for k, v := range n {
		out[k] = v
	}
	if uri != "" {
		out[SystemNamaste] = uri
	}
	return out
}

// URI returns the namespace URI for system. Systems outside the table are
// returned unchanged so external coding systems pass through.
func (n Namespaces) URI(system string) string {
	if uri, ok := n[system]; ok {
		return uri
	}
	return system
}

// System is the inverse of URI. Unknown URIs are returned unchanged.
func (n Namespaces) System(uri string) string {
	for sys, u := range n {
		if u == uri {
			return sys
		}
	}
	return uri
}
