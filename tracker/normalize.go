package tracker

import "strings"

// Category is one of the fixed shipment-lifecycle states.
type Category = string

const (
	StatusEntregado    Category = "ENTREGADO"
	StatusEnTransito   Category = "EN_TRANSITO"
	StatusPendiente    Category = "PENDIENTE"
	StatusDevuelto     Category = "DEVUELTO"
	StatusEnAgencia    Category = "EN_AGENCIA"
	StatusGuiaGenerada Category = "GUIA_GENERADA"
)

type keywordRule struct {
	Keyword string
	Status  Category
}

// overrides are exact-substring phrases checked before any dictionary lookup.
// Order matters: the first match wins.
var overrides = []keywordRule{
	{"envío pendiente por admitir", StatusPendiente},
	{"envio pendiente por admitir", StatusPendiente},
	{"pendiente por admitir", StatusPendiente},
}

// heuristics is the built-in fallback keyword table, checked after the loaded
// dictionary. Every category name lowercased also appears here so repeated
// normalization is idempotent.
var heuristics = []keywordRule{
	{"entregado", StatusEntregado},
	{"transito", StatusEnTransito},
	{"tránsito", StatusEnTransito},
	{"camino", StatusEnTransito},
	{"ruta", StatusEnTransito},
	{"centro", StatusEnTransito},
	{"pendiente", StatusPendiente},
	{"origen", StatusPendiente},
	{"recibimos", StatusEnTransito},
	{"devuelto", StatusDevuelto},
	{"devolución", StatusDevuelto},
	{"retorno", StatusDevuelto},
	{"agencia", StatusEnAgencia},
	{"recoger", StatusEnAgencia},
	{"guia_generada", StatusGuiaGenerada},
	{"guía generada", StatusGuiaGenerada},
	{"preparado_para_transportadora", StatusGuiaGenerada},
	{"preparado para transportadora", StatusGuiaGenerada},
}

// Normalizer maps raw free-text statuses onto the fixed category vocabulary.
// The dictionary is optional; a nil dictionary degrades to heuristics only.
type Normalizer struct {
	dict *Dictionary
}

// NewNormalizer creates a normalizer over an optional keyword dictionary.
func NewNormalizer(dict *Dictionary) *Normalizer {
	return &Normalizer{dict: dict}
}

// Normalize maps a raw status to a category. It is total: empty input yields
// PENDIENTE and unmatched non-empty input yields EN_TRANSITO.
func (n *Normalizer) Normalize(raw string) Category {
	return n.Explain(raw).Status
}

// Explanation reports which normalization stage matched.
type Explanation struct {
	Matched bool
	Via     string // "override", "mapping", "heuristic" or "fallback"
	Keyword string
	Status  Category
	Raw     string
}

// Explain runs the normalization stages and reports which one matched.
func (n *Normalizer) Explain(raw string) Explanation {
	if strings.TrimSpace(raw) == "" {
		return Explanation{Via: "fallback", Status: StatusPendiente, Raw: raw}
	}

	text := strings.ToLower(strings.TrimSpace(raw))

	for _, rule := range overrides {
		if strings.Contains(text, rule.Keyword) {
			return Explanation{Matched: true, Via: "override", Keyword: rule.Keyword, Status: rule.Status, Raw: raw}
		}
	}

	if n.dict != nil {
		if status, kw, ok := n.dict.Lookup(text); ok {
			return Explanation{Matched: true, Via: "mapping", Keyword: kw, Status: status, Raw: raw}
		}
	}

	for _, rule := range heuristics {
		if strings.Contains(text, rule.Keyword) {
			return Explanation{Matched: true, Via: "heuristic", Keyword: rule.Keyword, Status: rule.Status, Raw: raw}
		}
	}

	return Explanation{Via: "fallback", Status: StatusEnTransito, Raw: raw}
}
