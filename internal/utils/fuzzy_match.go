package utils

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"kiwigeek/internal/model"
)

// RoleAliases maps a component role to the label fragments that identify it
type RoleAliases struct {
	Role    model.Role
	Aliases []string
}

// DefaultRoleAliases is checked in order and the first match wins, so
// cooling comes before processor ("cpu cooler") and graphics before
// motherboard ("placa de video").
var DefaultRoleAliases = []RoleAliases{
	{Role: model.RoleCooling, Aliases: []string{"cooler", "refrigeracion", "disipador", "water cooling", "watercooling", "enfriamiento", "ventilador", "case fan", "cooling"}},
	{Role: model.RolePowerSupply, Aliases: []string{"fuente", "psu", "power supply", "alimentacion"}},
	{Role: model.RoleGraphicsCard, Aliases: []string{"tarjeta de video", "tarjeta grafica", "placa de video", "grafica", "gpu", "vga", "video", "graphics"}},
	{Role: model.RoleMotherboard, Aliases: []string{"placa madre", "tarjeta madre", "motherboard", "mainboard", "mobo", "placa base", "placa"}},
	{Role: model.RoleProcessor, Aliases: []string{"procesador", "processor", "cpu"}},
	{Role: model.RoleMemory, Aliases: []string{"memoria ram", "ram", "memoria", "memory", "ddr"}},
	{Role: model.RoleStorage, Aliases: []string{"almacenamiento", "ssd", "hdd", "nvme", "disco", "storage", "m.2"}},
	{Role: model.RoleCase, Aliases: []string{"gabinete", "case", "chasis", "torre", "tower", "carcasa", "caja"}},
	{Role: model.RoleMonitor, Aliases: []string{"monitor", "pantalla", "display"}},
	{Role: model.RolePeripheral, Aliases: []string{"periferico", "peripheral", "teclado", "keyboard", "mouse", "raton", "audifono", "auricular", "headset", "parlante", "webcam", "combo", "kit"}},
}

// RoleClassifier maps free-form category labels to canonical roles
type RoleClassifier struct {
	table []RoleAliases
}

// NewRoleClassifier creates a classifier; a nil table uses DefaultRoleAliases
func NewRoleClassifier(table []RoleAliases) *RoleClassifier {
	if table == nil {
		table = DefaultRoleAliases
	}

	folded := make([]RoleAliases, len(table))
	for i, entry := range table {
		aliases := make([]string, len(entry.Aliases))
		for j, alias := range entry.Aliases {
			aliases[j] = FoldText(alias)
		}
		folded[i] = RoleAliases{Role: entry.Role, Aliases: aliases}
	}
	return &RoleClassifier{table: folded}
}

// Classify returns the role for a category label, or RoleOther
func (c *RoleClassifier) Classify(category string) model.Role {
	label := FoldText(category)
	if label == "" {
		return model.RoleOther
	}

	// Exact canonical names first (PROCESSOR, GRAPHICS_CARD, ...)
	if role, ok := canonicalRoles[label]; ok {
		return role
	}

	for _, entry := range c.table {
		for _, alias := range entry.Aliases {
			if strings.Contains(label, alias) {
				return entry.Role
			}
		}
	}
	return model.RoleOther
}

var canonicalRoles = func() map[string]model.Role {
	roles := []model.Role{
		model.RoleProcessor, model.RoleGraphicsCard, model.RoleMotherboard,
		model.RoleMemory, model.RoleStorage, model.RolePowerSupply,
		model.RoleCase, model.RoleCooling, model.RoleMonitor,
		model.RolePeripheral, model.RoleOther,
	}
	m := make(map[string]model.Role, len(roles))
	for _, r := range roles {
		m[FoldText(string(r))] = r
		m[FoldText(strings.ReplaceAll(string(r), "_", " "))] = r
	}
	return m
}()

// FoldText lowercases s, strips diacritics and collapses whitespace:
// "  Tarjeta  Gráfica " -> "tarjeta grafica"
func FoldText(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	return strings.Join(strings.Fields(strings.ToLower(folded)), " ")
}
