package tracker

// ComputeAlert decides whether a vendor/carrier status pair needs human
// review. Rules are evaluated in order; the first match wins.
func ComputeAlert(vendor, carrier Category) bool {
	switch {
	case vendor == StatusGuiaGenerada && carrier == StatusEntregado:
		// Delivered before dispatch was confirmed.
		return true
	case vendor == StatusEntregado && carrier != StatusEntregado:
		return true
	case vendor == StatusDevuelto && carrier != StatusDevuelto:
		return true
	case vendor != carrier:
		return true
	default:
		return false
	}
}

// queryable holds the vendor statuses for which a carrier lookup is useful.
var queryable = map[Category]struct{}{
	StatusGuiaGenerada:         {},
	StatusPendiente:            {},
	"EN_PROCESAMIENTO":         {},
	"EN_BODEGA_TRANSPORTADORA": {},
	StatusEnTransito:           {},
	"EN_BODEGA_DESTINO":        {},
	"EN_REPARTO":               {},
	"INTENTO_DE_ENTREGA":       {},
	"NOVEDAD":                  {},
	"REEXPEDICION":             {},
	"REENVIO":                  {},
	StatusEnAgencia:            {},
}

// CanQuery reports whether a shipment in the given vendor status is still
// worth querying against the carrier.
func CanQuery(vendor Category) bool {
	_, ok := queryable[vendor]
	return ok
}

// Terminal reports whether either side has reached a final state.
func Terminal(vendor, carrier Category) bool {
	return vendor == StatusEntregado || carrier == StatusEntregado ||
		vendor == StatusDevuelto || carrier == StatusDevuelto
}
