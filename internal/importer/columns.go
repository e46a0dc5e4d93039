package importer

import (
	"sort"
	"strings"

	"wedding-rsvp/internal/models"
	"wedding-rsvp/internal/textnorm"
)

// Row is one spreadsheet line keyed by its column header
type Row map[string]any

// Sheet is a batch of rows with the layout they were read from
type Sheet struct {
	Header []string // column order of the header line
	Rows   []Row
	Lines  []int // spreadsheet line of each row, the header being line 1
}

// line returns the spreadsheet line of Rows[i]. Rows without a recorded
// line (JSON input) are numbered as if they followed a header on line 1.
func (s *Sheet) line(i int) int {
	if i < len(s.Lines) {
		return s.Lines[i]
	}
	return firstDataLine + i
}

type field int

const (
	fieldFirstName field = iota
	fieldLastName
	fieldEmail
	fieldPhone
	fieldFamily
	fieldCountry
)

// Header candidates per field, tried in order. Matching ignores case,
// accents and separators.
var fieldHeaders = map[field][]string{
	fieldFirstName: {"prénom", "prenom", "first name", "firstname", "first", "given name"},
	fieldLastName:  {"nom", "nom de famille", "last name", "lastname", "surname", "last", "family name"},
	fieldEmail:     {"email", "e-mail", "mail", "courriel", "adresse email", "adresse mail"},
	fieldPhone:     {"téléphone", "telephone", "tél", "tel", "phone", "portable", "mobile"},
	fieldFamily:    {"famille", "family", "côté", "cote", "side"},
	fieldCountry:   {"pays", "country", "provenance"},
}

var eventHeaders = [len(models.Events)][]string{
	models.EventMairie:     {"mairie", "la mairie", "civil"},
	models.EventVinHonneur: {"vin d'honneur", "vin d’honneur", "vin honneur", "vin d'honneur / henné", "henné", "henne"},
	models.EventChabbat:    {"chabbat", "le chabbat", "shabbat"},
	models.EventHouppa:     {"houppa", "houppa / soirée", "soirée", "soiree", "reception"},
}

// headerKey folds a header for comparison: "Prénom", "PRENOM " and "pré_nom"
// variants of the same word compare equal.
func headerKey(h string) string {
	f := textnorm.Fold(h)
	f = strings.NewReplacer("_", " ", "-", " ", ".", " ").Replace(f)
	return strings.Join(strings.Fields(f), " ")
}

// foldedRow indexes a row's cells by folded header
type foldedRow map[string]any

// foldRow folds the row's headers. When two headers fold to the same key the
// leftmost column wins; headers missing from header are taken in sorted order.
func foldRow(r Row, header []string) foldedRow {
	out := make(foldedRow, len(r))
	put := func(k string) {
		v, ok := r[k]
		if !ok {
			return
		}
		key := headerKey(k)
		if _, dup := out[key]; !dup {
			out[key] = v
		}
	}

	for _, h := range header {
		put(h)
	}
	rest := make([]string, 0, len(r))
	for k := range r {
		rest = append(rest, k)
	}
	sort.Strings(rest)
	for _, k := range rest {
		put(k)
	}
	return out
}

func (r foldedRow) lookup(candidates []string) (any, bool) {
	for _, c := range candidates {
		if v, ok := r[headerKey(c)]; ok {
			return v, true
		}
	}
	return nil, false
}

func (r foldedRow) text(f field) string {
	v, _ := r.lookup(fieldHeaders[f])
	return textnorm.CellString(v)
}

func (r foldedRow) invited() models.EventSet {
	var set models.EventSet
	for _, e := range models.Events {
		v, _ := r.lookup(eventHeaders[e])
		set.Set(e, textnorm.Truthy(v))
	}
	return set
}
