package service

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"

	"kiwigeek/internal/config"
)

func TestBudgetExtractor_Extract(t *testing.T) {
	extractor := NewBudgetExtractor(config.DefaultQuotePolicy())

	tests := []struct {
		name   string
		text   string
		want   string
		wantOK bool
	}{
		{name: "Possession with currency and thousands comma", text: "Tengo S/ 4,500 para una PC", want: "4500", wantOK: true},
		{name: "Budget keyword", text: "mi presupuesto es de 3500 soles", want: "3500", wantOK: true},
		{name: "Budget keyword English", text: "budget of $1200 for gaming", want: "1200", wantOK: true},
		{name: "Currency word", text: "Quiero una PC de 4000 soles", want: "4000", wantOK: true},
		{name: "Accented currency word", text: "unos 900 dólares", want: "900", wantOK: true},
		{name: "Dot thousands separator", text: "cuento con S/. 4.500", want: "4500", wantOK: true},
		{name: "European decimals", text: "tengo 4.500,50 soles", want: "4500.5", wantOK: true},
		{name: "K multiplier", text: "algo de 4k para jugar", want: "4000", wantOK: true},
		{name: "Decimal k multiplier", text: "unos 4.5k", want: "4500", wantOK: true},
		{name: "Mil multiplier", text: "5 mil soles", want: "5000", wantOK: true},
		{name: "Implausible possession skipped", text: "tengo 2 hijos y 3000 soles", want: "3000", wantOK: true},
		{name: "Currency word beats resolution", text: "para jugar en 4k tengo 6000 soles", want: "6000", wantOK: true},
		{name: "Space thousands separator", text: "Presupuesto: 3 500 soles", want: "3500", wantOK: true},
		{name: "Space thousands with currency word", text: "unos 12 500 soles", want: "12500", wantOK: true},
		{name: "Space thousands with decimals", text: "tengo S/ 4 500,50", want: "4500.5", wantOK: true},
		{name: "Model number is not grouped", text: "una RTX 4060 por 3500 soles", want: "3500", wantOK: true},
		{name: "Below window", text: "tengo 50 soles", wantOK: false},
		{name: "Above window", text: "presupuesto de 5000000 soles", wantOK: false},
		{name: "No amount", text: "Hola, quiero una PC gamer", wantOK: false},
		{name: "Empty", text: "", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := extractor.Extract(tt.text)
			if ok != tt.wantOK {
				t.Fatalf("Extract(%q) ok = %v, want %v (got %s)", tt.text, ok, tt.wantOK, got)
			}
			if ok && !got.Equal(decimal.RequireFromString(tt.want)) {
				t.Errorf("Extract(%q) = %s, want %s", tt.text, got, tt.want)
			}
		})
	}
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		token  string
		want   string
		wantOK bool
	}{
		{token: "4,500", want: "4500", wantOK: true},
		{token: "4.500", want: "4500", wantOK: true},
		{token: "4,500.75", want: "4500.75", wantOK: true},
		{token: "4.500,75", want: "4500.75", wantOK: true},
		{token: "1.234.567", want: "1234567", wantOK: true},
		{token: "12.5", want: "12.5", wantOK: true},
		{token: "12,5", want: "12.5", wantOK: true},
		{token: "-300", want: "-300", wantOK: true},
		{token: "", wantOK: false},
		{token: "abc", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.token, func(t *testing.T) {
			got, ok := ParseAmount(tt.token)
			if ok != tt.wantOK {
				t.Fatalf("ParseAmount(%q) ok = %v, want %v", tt.token, ok, tt.wantOK)
			}
			if ok && !got.Equal(decimal.RequireFromString(tt.want)) {
				t.Errorf("ParseAmount(%q) = %s, want %s", tt.token, got, tt.want)
			}
		})
	}
}

func TestParseMoneyJSON(t *testing.T) {
	tests := []struct {
		raw     string
		want    string
		wantErr bool
	}{
		{raw: `1299`, want: "1299"},
		{raw: `1299.90`, want: "1299.9"},
		{raw: `"S/ 1,299.00"`, want: "1299"},
		{raw: `"S/. 899"`, want: "899"},
		{raw: `"1299 soles"`, want: "1299"},
		{raw: `null`, wantErr: true},
		{raw: `"gratis"`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := parseMoneyJSON(json.RawMessage(tt.raw))
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseMoneyJSON(%s) error = %v, wantErr %v", tt.raw, err, tt.wantErr)
			}
			if !tt.wantErr && !got.Equal(decimal.RequireFromString(tt.want)) {
				t.Errorf("parseMoneyJSON(%s) = %s, want %s", tt.raw, got, tt.want)
			}
		})
	}
}
