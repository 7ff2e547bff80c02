package models

// ProductFilter описывает параметры фильтрации списка продуктов.
// Строковые поля сравниваются без учета регистра по вхождению подстроки.
type ProductFilter struct {
	SKU         string
	Name        string
	Description string
	Active      *bool
}

// IsEmpty сообщает, задан ли хотя бы один фильтр
func (f *ProductFilter) IsEmpty() bool {
	if f == nil {
		return true
	}
	return f.SKU == "" && f.Name == "" && f.Description == "" && f.Active == nil
}
