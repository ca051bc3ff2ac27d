package model

// Category is the fixed tag used for filtering and colour-coding.
type Category string

const (
	CategoryCurso      Category = "curso"
	CategoryTaller     Category = "taller"
	CategoryGrupo      Category = "grupo"
	CategoryActivacion Category = "activacion"
	CategoryEvento     Category = "evento"
	CategoryOtro       Category = "otro"
)

// Categories lists every category in display order.
var Categories = []Category{
	CategoryCurso,
	CategoryTaller,
	CategoryGrupo,
	CategoryActivacion,
	CategoryEvento,
	CategoryOtro,
}

var categoryLabels = map[Category]string{
	CategoryCurso:      "Curso",
	CategoryTaller:     "Taller",
	CategoryGrupo:      "Grupo",
	CategoryActivacion: "Activación",
	CategoryEvento:     "Evento",
	CategoryOtro:       "Otro",
}

var categoryColors = map[Category]string{
	CategoryCurso:      "#4a90d9",
	CategoryTaller:     "#e67e22",
	CategoryGrupo:      "#27ae60",
	CategoryActivacion: "#c0392b",
	CategoryEvento:     "#8e44ad",
	CategoryOtro:       "#7f8c8d",
}

func (c Category) Valid() bool {
	_, ok := categoryLabels[c]
	return ok
}

// Label is the Spanish display name.
func (c Category) Label() string {
	if l, ok := categoryLabels[c]; ok {
		return l
	}
	return categoryLabels[CategoryOtro]
}

// Color is the CSS colour for calendar markers and badges.
func (c Category) Color() string {
	if col, ok := categoryColors[c]; ok {
		return col
	}
	return categoryColors[CategoryOtro]
}
