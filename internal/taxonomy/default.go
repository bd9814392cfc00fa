package taxonomy

import "github.com/sells-group/e1-cli/internal/model"

// Both spellings (with and without accents, different casing) are listed
// where the source registry uses both; lookups never fold them.
var defaultSubcategories = map[string]model.Tier{
	// alto
	"Planta de Tratamiento de Aguas Servidas":           model.TierHigh,
	"Planta de tratamiento de aguas servidas":           model.TierHigh,
	"Planta de tratamiento de RILES":                    model.TierHigh,
	"Relleno sanitario":                                 model.TierHigh,
	"Vertedero":                                         model.TierHigh,
	"Centro de almacenamiento de sustancias peligrosas": model.TierHigh,
	"Transporte de sustancias peligrosas":               model.TierHigh,
	"Estación de servicio":                              model.TierHigh,
	"Estacion de servicio":                              model.TierHigh,
	"Matadero":                                          model.TierHigh,
	"Matadero / frigorìfico":                            model.TierHigh,
	"Matadero / frigorifico":                            model.TierHigh,
	"Planta procesadora de productos pecuarios":         model.TierHigh,
	"Planta de procesamiento no metálicos":              model.TierHigh,
	"Planta de procesamiento no metalicos":              model.TierHigh,
	"Planta de reciclaje":                               model.TierHigh,
	"Central termoeléctrica":                            model.TierHigh,
	"Central termoeléctrica a carbón":                   model.TierHigh,

	// medio
	"Centro de cultivo de salmones":   model.TierMedium,
	"Centro de cultivo de peces":      model.TierMedium,
	"Centro de cultivo de algas":      model.TierMedium,
	"Centro de cultivo de moluscos":   model.TierMedium,
	"Centro de cultivo de crustáceos": model.TierMedium,
	"Astillero":                       model.TierMedium,
	"Puerto":                          model.TierMedium,
	"Terminal marítimo":               model.TierMedium,
	"Central hidroeléctrica":          model.TierMedium,
	"Parque eólico":                   model.TierMedium,
	"Aserradero":                      model.TierMedium,
	"Procesadora de madera":           model.TierMedium,
	"Cementerio":                      model.TierMedium,
	"Línea de transmisión":            model.TierMedium,

	// bajo
	"Centro comercial":            model.TierLow,
	"Proyecto inmobiliario":       model.TierLow,
	"Panadería":                   model.TierLow,
	"Panaderia":                   model.TierLow,
	"Establecimiento educacional": model.TierLow,
	"Centro religioso":            model.TierLow,
	"Centro de culto":             model.TierLow,
	"Restaurante":                 model.TierLow,
	"Restorán":                    model.TierLow,
	"Otros":                       model.TierLow,
}

var defaultCategories = map[string]model.Tier{
	"Saneamiento ambiental": model.TierHigh,
	"Energía":               model.TierMedium,
	"Pesca y acuicultura":   model.TierMedium,
	"Agroindustria":         model.TierMedium,
	"Comercio y servicios":  model.TierLow,
	"Educación":             model.TierLow,
}

// Default returns the built-in taxonomy for the SMA facility registry.
func Default() *Taxonomy {
	t, err := New(defaultSubcategories, defaultCategories, model.TierLow)
	if err != nil {
		// The built-in tables only use valid tiers.
		panic(err)
	}
	return t
}
