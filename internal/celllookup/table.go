package celllookup

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/lvonguyen/cdrforge/internal/cdr"
	"github.com/lvonguyen/cdrforge/internal/ingestion"
	"github.com/lvonguyen/cdrforge/internal/normalization"
	"github.com/lvonguyen/cdrforge/internal/schema"
)

// Header aliases recognized in cell table files.
var (
	cellIDAliases  = []string{"cgi", "cell global id", "cell_id", "cell id", "cellid", "ci"}
	lacAliases     = []string{"lac", "location area code", "tac"}
	mccAliases     = []string{"mcc"}
	mncAliases     = []string{"mnc", "net"}
	latAliases     = []string{"lat", "latitude"}
	lonAliases     = []string{"lon", "long", "lng", "longitude"}
	addressAliases = []string{"address", "bts location", "site address", "location"}
)

// StaticTable is an immutable in-memory cell table.
type StaticTable struct {
	name  string
	cells map[string]cdr.Coordinate
}

// NewStaticTable indexes cells by full key, by LAC and cell ID, and by cell
// ID alone, so partially identified records still resolve.
func NewStaticTable(name string, cells []Cell) *StaticTable {
	t := &StaticTable{name: name, cells: make(map[string]cdr.Coordinate, len(cells)*3)}
	for _, c := range cells {
		coord := c.Coordinate
		if coord.Source == "" {
			coord.Source = name
		}
		for _, k := range lookupKeys(c.Key) {
			if _, exists := t.cells[k]; !exists {
				t.cells[k] = coord
			}
		}
	}
	return t
}

// LoadStaticTable reads a CSV, TSV or XLSX cell table.
func LoadStaticTable(path string) (*StaticTable, error) {
	cells, err := ReadCells(path)
	if err != nil {
		return nil, err
	}
	return NewStaticTable("table", cells), nil
}

// Name implements Source.
func (t *StaticTable) Name() string { return t.name }

// Len returns the number of index entries.
func (t *StaticTable) Len() int { return len(t.cells) }

// Locate implements Source.
func (t *StaticTable) Locate(_ context.Context, key cdr.CellKey) (cdr.Coordinate, bool, error) {
	for _, k := range lookupKeys(key) {
		if c, ok := t.cells[k]; ok {
			return c, true, nil
		}
	}
	return cdr.Coordinate{}, false, nil
}

// lookupKeys lists index keys from most to least specific.
func lookupKeys(k cdr.CellKey) []string {
	if k.CellID == "" {
		return nil
	}
	var keys []string
	if k.MCC > 0 && k.LAC > 0 {
		keys = append(keys, k.String())
	}
	if k.LAC > 0 {
		keys = append(keys, fmt.Sprintf("lac:%d:%s", k.LAC, k.CellID))
	}
	return append(keys, "cell:"+strings.ToUpper(k.CellID))
}

// ReadCells parses a cell table file. The cell column may hold a plain cell
// ID or a full CGI ("404-45-1234-5678"); rows without a cell ID or valid
// coordinates are skipped.
func ReadCells(path string) ([]Cell, error) {
	tbl, err := ingestion.Open(path, ingestion.DefaultOptions())
	if err != nil {
		return nil, fmt.Errorf("reading cell table: %w", err)
	}
	return CellsFromTable(tbl)
}

// CellsFromTable maps a raw table onto cells.
func CellsFromTable(tbl *ingestion.Table) ([]Cell, error) {
	col := func(aliases []string) int {
		for _, a := range aliases {
			fa := schema.FoldHeader(a)
			for i, h := range tbl.Headers {
				if schema.FoldHeader(h) == fa {
					return i
				}
			}
		}
		return -1
	}
	iCell, iLat, iLon := col(cellIDAliases), col(latAliases), col(lonAliases)
	if iCell < 0 || iLat < 0 || iLon < 0 {
		return nil, fmt.Errorf("cell table needs cell id, latitude and longitude columns, got %v", tbl.Headers)
	}
	iLAC, iMCC, iMNC, iAddr := col(lacAliases), col(mccAliases), col(mncAliases), col(addressAliases)

	cells := make([]Cell, 0, len(tbl.Rows))
	for _, row := range tbl.Rows {
		id := cellValue(row, iCell)
		lat, errLat := strconv.ParseFloat(cellValue(row, iLat), 64)
		lon, errLon := strconv.ParseFloat(cellValue(row, iLon), 64)
		if id == "" || errLat != nil || errLon != nil || lat < -90 || lat > 90 || lon < -180 || lon > 180 {
			continue
		}

		key := cdr.CellKey{CellID: id}
		if mcc, mnc, lac, cell, ok := normalization.SplitCGI(id); ok {
			key = cdr.CellKey{MCC: mcc, MNC: mnc, LAC: lac, CellID: cell}
		}
		if key.LAC == 0 {
			key.LAC = atoi(cellValue(row, iLAC))
		}
		if key.MCC == 0 {
			key.MCC = atoi(cellValue(row, iMCC))
			key.MNC = atoi(cellValue(row, iMNC))
		}
		cells = append(cells, Cell{
			Key:        key,
			Coordinate: cdr.Coordinate{Lat: lat, Lon: lon, Address: cellValue(row, iAddr)},
		})
	}
	return cells, nil
}

func cellValue(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSuffix(strings.TrimSpace(row[i]), ".0")
}

func atoi(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
