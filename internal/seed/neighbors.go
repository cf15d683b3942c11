package seed

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/safe-zone/internal/fetcher"
	"github.com/sells-group/safe-zone/internal/model"
)

var columnAliases = map[string]string{
	"id":         "id",
	"neighbor":   "id",
	"parcel_id":  "id",
	"completion": "completion",
	"score":      "completion",
	"latitude":   "latitude",
	"lat":        "latitude",
	"longitude":  "longitude",
	"lon":        "longitude",
	"lng":        "longitude",
}

var requiredColumns = []string{"id", "completion", "latitude", "longitude"}

// LoadNeighbors reads a neighbor roster from YAML, JSON, CSV or XLSX,
// chosen by file extension. Tabular files need a header row naming the
// id, completion, latitude and longitude columns.
func LoadNeighbors(ctx context.Context, path string) ([]model.Neighbor, error) {
	var (
		neighbors []model.Neighbor
		err       error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		neighbors, err = loadYAMLNeighbors(path)
	case ".json":
		neighbors, err = loadJSONNeighbors(ctx, path)
	case ".csv":
		neighbors, err = loadCSVNeighbors(ctx, path)
	case ".xlsx":
		neighbors, err = loadXLSXNeighbors(path)
	default:
		return nil, eris.Errorf("seed: unsupported neighbor file %q", filepath.Ext(path))
	}
	if err != nil {
		return nil, err
	}
	if err := validateNeighbors(neighbors); err != nil {
		return nil, eris.Wrapf(err, "seed: %s", path)
	}

	zap.L().Debug("seed: loaded neighbors", zap.String("path", path), zap.Int("count", len(neighbors)))
	return neighbors, nil
}

func loadYAMLNeighbors(path string) ([]model.Neighbor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "seed: read %s", path)
	}

	var list []model.Neighbor
	if err := yaml.Unmarshal(data, &list); err == nil {
		return list, nil
	}
	var doc struct {
		Neighbors []model.Neighbor `yaml:"neighbors"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, eris.Wrapf(err, "seed: parse %s", path)
	}
	return doc.Neighbors, nil
}

func loadJSONNeighbors(ctx context.Context, path string) ([]model.Neighbor, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "seed: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	items, errs := fetcher.DecodeJSONArray[model.Neighbor](ctx, f)
	var out []model.Neighbor
	for n := range items {
		out = append(out, n)
	}
	if err := <-errs; err != nil {
		return nil, eris.Wrapf(err, "seed: decode %s", path)
	}
	return out, nil
}

func loadCSVNeighbors(ctx context.Context, path string) ([]model.Neighbor, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "seed: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	headerCh := make(chan []string, 1)
	rowCh, errCh := fetcher.StreamCSV(ctx, f, fetcher.CSVOptions{
		HasHeader: true,
		HeaderCh:  headerCh,
		TrimSpace: true,
		Comment:   '#',
	})

	var rows [][]string
	for row := range rowCh {
		rows = append(rows, row)
	}
	if err := <-errCh; err != nil {
		return nil, eris.Wrapf(err, "seed: read %s", path)
	}

	var header []string
	select {
	case header = <-headerCh:
	default:
		return nil, nil
	}
	return neighborsFromRows(header, rows)
}

func loadXLSXNeighbors(path string) ([]model.Neighbor, error) {
	rows, err := fetcher.ReadXLSX(path, fetcher.XLSXOptions{})
	if err != nil {
		return nil, eris.Wrapf(err, "seed: read %s", path)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return neighborsFromRows(rows[0], rows[1:])
}

func neighborsFromRows(header []string, rows [][]string) ([]model.Neighbor, error) {
	idx := make(map[string]int, len(requiredColumns))
	for i, h := range header {
		if col, ok := columnAliases[strings.ToLower(strings.TrimSpace(h))]; ok {
			if _, dup := idx[col]; !dup {
				idx[col] = i
			}
		}
	}
	for _, col := range requiredColumns {
		if _, ok := idx[col]; !ok {
			return nil, eris.Errorf("seed: neighbor header missing %q column", col)
		}
	}

	cell := func(row []string, col string) string {
		i := idx[col]
		if i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	out := make([]model.Neighbor, 0, len(rows))
	for line, row := range rows {
		completion, err := strconv.Atoi(cell(row, "completion"))
		if err != nil {
			return nil, eris.Wrapf(err, "seed: row %d completion", line+2)
		}
		lat, err := strconv.ParseFloat(cell(row, "latitude"), 64)
		if err != nil {
			return nil, eris.Wrapf(err, "seed: row %d latitude", line+2)
		}
		lon, err := strconv.ParseFloat(cell(row, "longitude"), 64)
		if err != nil {
			return nil, eris.Wrapf(err, "seed: row %d longitude", line+2)
		}
		out = append(out, model.Neighbor{
			ID:         cell(row, "id"),
			Completion: completion,
			Center:     model.Coordinate{Latitude: lat, Longitude: lon},
		})
	}
	return out, nil
}
