// Package formulary provides a read-only drug knowledge base loaded from JSON.
// The embedded seed is illustrative reference content, not clinical guidance.
package formulary

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/medication-safety-cds/internal/domain"
)

//go:embed seed.json
var seedData []byte

// Interaction is one entry of the interaction table. The pair is unordered.
type Interaction struct {
	DrugA string `json:"drug_a"`
	DrugB string `json:"drug_b"`
	domain.InteractionDescriptor
}

// Document is the on-disk shape of a formulary.
type Document struct {
	Version      string              `json:"version"`
	Drugs        []domain.DrugRecord `json:"drugs"`
	Interactions []Interaction       `json:"interactions"`
}

// Formulary implements domain.ReferenceProvider over an in-memory index.
// It is immutable after loading and safe for concurrent use.
type Formulary struct {
	version      string
	drugs        map[string]*domain.DrugRecord // by lowercase id and generic name
	interactions map[string]domain.InteractionDescriptor
	ids          []string
}

// Default returns the formulary built from the embedded seed.
func Default() (*Formulary, error) {
	return Parse(seedData)
}

// LoadFile reads a formulary document from path.
func LoadFile(path string) (*Formulary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open formulary: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Load reads a formulary document from r.
func Load(r io.Reader) (*Formulary, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read formulary: %w", err)
	}
	return Parse(data)
}

// Parse builds a formulary from a JSON document.
func Parse(data []byte) (*Formulary, error) {
	doc, err := ParseDocument(data)
	if err != nil {
		return nil, err
	}
	return New(doc)
}

// ParseDocument decodes a formulary document without indexing it.
func ParseDocument(data []byte) (Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return Document{}, fmt.Errorf("failed to parse formulary: %w", err)
	}
	return doc, nil
}

// SeedDocument returns the embedded seed document.
func SeedDocument() (Document, error) {
	return ParseDocument(seedData)
}

// New indexes a document. Interactions listed on drug records and in the
// interaction table are merged; the table wins on conflict.
func New(doc Document) (*Formulary, error) {
	f := &Formulary{
		version:      doc.Version,
		drugs:        make(map[string]*domain.DrugRecord, len(doc.Drugs)*2),
		interactions: make(map[string]domain.InteractionDescriptor),
	}

	for i := range doc.Drugs {
		record := doc.Drugs[i]
		if strings.TrimSpace(record.ID) == "" {
			return nil, domain.NewValidationError("drugs.id", "drug id is required", record.GenericName)
		}
		if record.GenericName == "" {
			record.GenericName = record.ID
		}
		for pop, severity := range record.Contraindications {
			if !severity.IsValid() {
				return nil, domain.NewValidationError("drugs.contraindications", fmt.Sprintf("invalid severity for %s", pop), severity)
			}
		}

		f.drugs[normalize(record.ID)] = &record
		f.drugs[normalize(record.GenericName)] = &record
		f.ids = append(f.ids, record.ID)
	}

	// Partners may be named by ID, so they are indexed once every drug is known.
	for _, id := range f.ids {
		record := f.drugs[normalize(id)]
		for partner, descriptor := range record.InteractionPartners {
			severity, err := domain.ParseSeverity(string(descriptor.Severity))
			if err != nil {
				return nil, fmt.Errorf("interaction %s/%s: %w", record.ID, partner, err)
			}
			descriptor.Severity = severity
			record.InteractionPartners[partner] = descriptor
			f.interactions[pairKey(record.GenericName, f.canonicalName(partner))] = descriptor
		}
	}

	for _, entry := range doc.Interactions {
		severity, err := domain.ParseSeverity(string(entry.Severity))
		if err != nil {
			return nil, fmt.Errorf("interaction %s/%s: %w", entry.DrugA, entry.DrugB, err)
		}
		descriptor := entry.InteractionDescriptor
		descriptor.Severity = severity
		f.interactions[pairKey(f.canonicalName(entry.DrugA), f.canonicalName(entry.DrugB))] = descriptor
	}

	sort.Strings(f.ids)
	return f, nil
}

// Version returns the document version.
func (f *Formulary) Version() string {
	return f.version
}

// DrugIDs lists every drug id in sorted order.
func (f *Formulary) DrugIDs() []string {
	return append([]string(nil), f.ids...)
}

// InteractionCount returns the number of indexed pairs.
func (f *Formulary) InteractionCount() int {
	return len(f.interactions)
}

// LookupDrug implements domain.ReferenceProvider. Ids and generic names both resolve.
func (f *Formulary) LookupDrug(_ context.Context, drugID string) (*domain.DrugRecord, error) {
	record, ok := f.drugs[normalize(drugID)]
	if !ok {
		return nil, fmt.Errorf("drug %q: %w", drugID, domain.ErrNotFound)
	}
	copied := *record
	return &copied, nil
}

// LookupInteraction implements domain.ReferenceProvider. The lookup is symmetric.
func (f *Formulary) LookupInteraction(_ context.Context, drugA, drugB string) (*domain.InteractionDescriptor, error) {
	descriptor, ok := f.interactions[pairKey(f.canonicalName(drugA), f.canonicalName(drugB))]
	if !ok {
		return nil, fmt.Errorf("interaction %q/%q: %w", drugA, drugB, domain.ErrNotFound)
	}
	return &descriptor, nil
}

// LookupTherapeuticClass implements domain.ReferenceProvider.
func (f *Formulary) LookupTherapeuticClass(_ context.Context, drugID string) (string, error) {
	record, ok := f.drugs[normalize(drugID)]
	if !ok || record.TherapeuticClass == "" {
		return "", fmt.Errorf("class of %q: %w", drugID, domain.ErrNotFound)
	}
	return record.TherapeuticClass, nil
}

// canonicalName maps an id or name to the indexed generic name when the drug is known.
func (f *Formulary) canonicalName(name string) string {
	if record, ok := f.drugs[normalize(name)]; ok {
		return record.GenericName
	}
	return name
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func pairKey(a, b string) string {
	a, b = normalize(a), normalize(b)
	if a > b {
		a, b = b, a
	}
	return a + "|" + b
}
