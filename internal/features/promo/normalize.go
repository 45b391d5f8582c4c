// Package promo — normalize.go приводит пользовательский ввод к
// каноническому виду: код — в нижний регистр, город/район — к
// Title-регистру со схлопыванием пробелов.
package promo

import "strings"

// районы-заглушки, которые пользователи вводят вместо «без района»
var emptyDistrictWords = map[string]bool{
	"none": true, "n/a": true, "na": true, "no": true, "-": true,
	"all": true, "нет": true, "не требуется": true, "nera": true, "nėra": true,
}

// NormalizeCode приводит промокод к каноническому виду.
func NormalizeCode(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

// NormalizeCity схлопывает пробелы и приводит каждое слово к Title-регистру.
func NormalizeCity(raw string) string {
	return titleWords(raw)
}

// NormalizeDistrict — как NormalizeCity, но распознаёт заглушки
// («нет», «-», «all»...) и возвращает nil: район не указан.
func NormalizeDistrict(raw string) *string {
	text := titleWords(raw)
	if text == "" || emptyDistrictWords[strings.ToLower(text)] {
		return nil
	}
	return &text
}

// foldEqual сравнивает строки без учёта регистра и краевых пробелов.
func foldEqual(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

func titleWords(raw string) string {
	fields := strings.Fields(raw)
	for i, f := range fields {
		r := []rune(strings.ToLower(f))
		if len(r) > 0 {
			r[0] = []rune(strings.ToUpper(string(r[0])))[0]
		}
		fields[i] = string(r)
	}
	return strings.Join(fields, " ")
}
