// Package catalog is the read-only service code reference data. It is loaded
// once at startup and shared by the structuring prompt, the night-shift
// normalizer and the Q&A hour totals.
package catalog

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// NightServiceCode is the canonical code of the night slot.
const NightServiceCode = "X"

//go:embed catalog.yaml
var defaultCatalog []byte

// Service is a canonical service code.
type Service struct {
	Code    string  `yaml:"code" json:"code"`
	Label   string  `yaml:"label" json:"label"`
	Creneau string  `yaml:"creneau,omitempty" json:"creneau,omitempty"`
	Work    bool    `yaml:"work,omitempty" json:"work"`
	Hours   float64 `yaml:"hours,omitempty" json:"hours,omitempty"`
}

// Entry maps a code as printed on a bulletin to its canonical service and poste.
type Entry struct {
	Code        string `yaml:"code" json:"code"`
	PosteCode   string `yaml:"poste,omitempty" json:"poste_code,omitempty"`
	ServiceCode string `yaml:"service" json:"service_code"`
	Description string `yaml:"description" json:"description"`
	HoraireType string `yaml:"horaire,omitempty" json:"horaire_type,omitempty"`
}

type file struct {
	Services []Service `yaml:"services"`
	Codes    []Entry   `yaml:"codes"`
}

type Catalog struct {
	services []Service
	entries  []Entry
	byCode   map[string]Entry
	byServ   map[string]Service
}

// Default returns the catalog embedded in the binary.
func Default() (*Catalog, error) {
	return Parse(defaultCatalog)
}

// Load reads a YAML catalog from path. An empty path loads the embedded default.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Catalog, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}

	c := &Catalog{
		services: f.Services,
		entries:  f.Codes,
		byCode:   make(map[string]Entry, len(f.Codes)),
		byServ:   make(map[string]Service, len(f.Services)),
	}
	for _, s := range f.Services {
		if s.Code == "" {
			return nil, fmt.Errorf("parse catalog: service with empty code")
		}
		c.byServ[s.Code] = s
	}
	for _, e := range f.Codes {
		key := strings.ToUpper(strings.TrimSpace(e.Code))
		if key == "" {
			return nil, fmt.Errorf("parse catalog: entry with empty code")
		}
		if _, ok := c.byServ[e.ServiceCode]; !ok {
			return nil, fmt.Errorf("parse catalog: code %s references unknown service %q", e.Code, e.ServiceCode)
		}
		if _, dup := c.byCode[key]; dup {
			return nil, fmt.Errorf("parse catalog: duplicate code %s", e.Code)
		}
		c.byCode[key] = e
	}
	return c, nil
}

// Lookup finds a bulletin code, ignoring case and surrounding spaces.
func (c *Catalog) Lookup(code string) (Entry, bool) {
	e, ok := c.byCode[strings.ToUpper(strings.TrimSpace(code))]
	return e, ok
}

func (c *Catalog) Service(code string) (Service, bool) {
	s, ok := c.byServ[code]
	return s, ok
}

func (c *Catalog) IsKnownService(code string) bool {
	_, ok := c.byServ[code]
	return ok
}

// IsWork reports whether a canonical service code is a worked shift.
func (c *Catalog) IsWork(serviceCode string) bool {
	return c.byServ[serviceCode].Work
}

// Hours is the paid duration of a canonical service code, 0 for rest codes.
func (c *Catalog) Hours(serviceCode string) float64 {
	return c.byServ[serviceCode].Hours
}

// WorkCodes lists canonical codes that count as worked shifts.
func (c *Catalog) WorkCodes() []string {
	var out []string
	for _, s := range c.services {
		if s.Work {
			out = append(out, s.Code)
		}
	}
	return out
}

// CodesForCreneau lists the canonical codes in a time band (nuit, matin, soir, journee).
func (c *Catalog) CodesForCreneau(creneau string) []string {
	var out []string
	for _, s := range c.services {
		if s.Creneau == creneau {
			out = append(out, s.Code)
		}
	}
	return out
}

func (c *Catalog) Services() []Service {
	return append([]Service(nil), c.services...)
}

// Entries returns bulletin codes sorted by code.
func (c *Catalog) Entries() []Entry {
	out := append([]Entry(nil), c.entries...)
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// PromptTable renders the catalog as the reference table given to the
// structuring model so that it never invents codes.
func (c *Catalog) PromptTable() string {
	var sb strings.Builder
	sb.WriteString("Canonical service codes:\n")
	for _, s := range c.services {
		fmt.Fprintf(&sb, "- %q: %s", s.Code, s.Label)
		if s.Creneau != "" {
			fmt.Fprintf(&sb, " (%s)", s.Creneau)
		}
		sb.WriteString("\n")
	}
	sb.WriteString("\nBulletin codes (code | poste | service | description):\n")
	for _, e := range c.Entries() {
		poste := e.PosteCode
		if poste == "" {
			poste = "-"
		}
		fmt.Fprintf(&sb, "%s | %s | %s | %s\n", e.Code, poste, e.ServiceCode, e.Description)
	}
	return sb.String()
}
