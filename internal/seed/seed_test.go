package seed

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/safe-zone/internal/model"
	"github.com/sells-group/safe-zone/internal/scorer"
)

func TestDefault(t *testing.T) {
	s, err := Default()
	require.NoError(t, err)
	require.NoError(t, s.Validate())

	assert.Equal(t, "parcel-12345", s.Property.ID)
	assert.Len(t, s.Property.Coordinates, 4)
	require.Len(t, s.Property.Tasks, 5)
	for _, task := range s.Property.Tasks {
		assert.False(t, task.Completed)
	}
	assert.Equal(t, "I've cleared my gutters.", s.Property.Tasks[0].Text)
	assert.Equal(t, model.Coordinate{Latitude: 37.7879, Longitude: -122.4314}, s.Region.Center)
	assert.InDelta(t, 0.005, s.Region.LatitudeDelta, 1e-12)

	completions := map[string]int{}
	for _, n := range s.Neighbors {
		completions[n.ID] = n.Completion
	}
	assert.Equal(t, map[string]int{"neighbor-A": 3, "neighbor-B": 5, "neighbor-C": 1, "neighbor-D": 4}, completions)
}

func TestDefault_ScoresLikeTheDemo(t *testing.T) {
	s, err := Default()
	require.NoError(t, err)

	sum, err := scorer.Summarize(s.Property, s.Neighbors)
	require.NoError(t, err)
	assert.Equal(t, 0, sum.UserScore)
	// (0+3+5+1+4)/5 = 2.6 rounds to 3.
	assert.Equal(t, 3, sum.NeighborhoodScore)
}

func TestDefault_Independent(t *testing.T) {
	a, err := Default()
	require.NoError(t, err)
	a.Property.Tasks[0].Completed = true

	b, err := Default()
	require.NoError(t, err)
	assert.False(t, b.Property.Tasks[0].Completed)
}

func TestLoad(t *testing.T) {
	s, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "parcel-12345", s.Property.ID)

	path := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
neighbors:
  - {id: n1, completion: 2, center: {latitude: 1, longitude: 2}}
`), 0o644))

	s, err = Load(path)
	require.NoError(t, err)
	assert.Equal(t, "parcel-12345", s.Property.ID, "property keeps the built-in value")
	require.Len(t, s.Neighbors, 1)
	assert.Equal(t, "n1", s.Neighbors[0].ID)
}

func TestLoad_Invalid(t *testing.T) {
	dir := t.TempDir()
	tests := map[string]string{
		"bad yaml":      "property: [",
		"short ring":    "property: {id: p, coordinates: [{latitude: 1, longitude: 1}]}",
		"bad neighbor":  "neighbors: [{id: x, completion: 9}]",
		"dup neighbors": "neighbors: [{id: x, completion: 1}, {id: x, completion: 2}]",
		"six tasks": "property: {id: p, coordinates: [{latitude: 1, longitude: 1}, {latitude: 1, longitude: 2}, {latitude: 2, longitude: 2}], " +
			"tasks: [{id: 1}, {id: 2}, {id: 3}, {id: 4}, {id: 5}, {id: 6}]}",
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name+".yaml")
			require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
			_, err := Load(path)
			assert.Error(t, err)
		})
	}

	_, err := Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestLoad_RangeErrorMatchable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte("neighbors: [{id: x, completion: -1}]"), 0o644))

	_, err := Load(path)
	var re *scorer.RangeError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, -1, re.Value)
}

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadNeighbors_Formats(t *testing.T) {
	want := []model.Neighbor{
		{ID: "neighbor-A", Completion: 3, Center: model.Coordinate{Latitude: 37.79, Longitude: -122.432}},
		{ID: "neighbor-B", Completion: 5, Center: model.Coordinate{Latitude: 37.786, Longitude: -122.433}},
	}

	xlsxPath := func() string {
		f := xlsx.NewFile()
		sheet, err := f.AddSheet("Sheet1")
		require.NoError(t, err)
		for _, r := range [][]string{
			{"ID", "Completion", "Lat", "Lng"},
			{"neighbor-A", "3", "37.79", "-122.432"},
			{"neighbor-B", "5", "37.786", "-122.433"},
		} {
			row := sheet.AddRow()
			for _, v := range r {
				row.AddCell().SetString(v)
			}
		}
		path := filepath.Join(t.TempDir(), "roster.xlsx")
		require.NoError(t, f.Save(path))
		return path
	}()

	paths := map[string]string{
		"yaml list": writeFile(t, "n.yaml", `
- {id: neighbor-A, completion: 3, center: {latitude: 37.79, longitude: -122.432}}
- {id: neighbor-B, completion: 5, center: {latitude: 37.786, longitude: -122.433}}
`),
		"yaml doc": writeFile(t, "n.yml", `
neighbors:
  - {id: neighbor-A, completion: 3, center: {latitude: 37.79, longitude: -122.432}}
  - {id: neighbor-B, completion: 5, center: {latitude: 37.786, longitude: -122.433}}
`),
		"json": writeFile(t, "n.json", `[
  {"id": "neighbor-A", "completion": 3, "center": {"latitude": 37.79, "longitude": -122.432}},
  {"id": "neighbor-B", "completion": 5, "center": {"latitude": 37.786, "longitude": -122.433}}
]`),
		"csv": writeFile(t, "n.csv", "# roster\nid,completion,latitude,longitude\nneighbor-A, 3, 37.79, -122.432\nneighbor-B,5,37.786,-122.433\n"),
		"xlsx": xlsxPath,
	}

	for name, path := range paths {
		t.Run(name, func(t *testing.T) {
			got, err := LoadNeighbors(context.Background(), path)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}
}

func TestLoadNeighbors_Errors(t *testing.T) {
	ctx := context.Background()
	tests := map[string]string{
		"unsupported":    writeFile(t, "n.txt", ""),
		"missing column": writeFile(t, "n.csv", "id,completion,latitude\nA,1,2\n"),
		"bad number":     writeFile(t, "n.csv", "id,completion,latitude,longitude\nA,lots,1,2\n"),
		"out of range":   writeFile(t, "n.csv", "id,completion,latitude,longitude\nA,6,1,2\n"),
		"bad json":       writeFile(t, "n.json", `{"id": "A"}`),
		"missing file":   filepath.Join(t.TempDir(), "none.csv"),
	}
	for name, path := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := LoadNeighbors(ctx, path)
			assert.Error(t, err)
		})
	}
}

func TestLoadNeighbors_EmptyCSV(t *testing.T) {
	got, err := LoadNeighbors(context.Background(), writeFile(t, "n.csv", ""))
	require.NoError(t, err)
	assert.Empty(t, got)
}
