package cmd

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MikeSquared-Agency/SaddleSum/internal/enrich"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"WARN":  slog.LevelWarn,
		"error": slog.LevelError,
		"info":  slog.LevelInfo,
		"":      slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, parseLevel(in), in)
	}
}

func TestSplitTermFile(t *testing.T) {
	ns, path := splitTermFile("BP:/data/go_bp.gmt")
	assert.Equal(t, "BP", ns)
	assert.Equal(t, "/data/go_bp.gmt", path)

	ns, path = splitTermFile("/data/kegg.gmt")
	assert.Equal(t, "kegg", ns)
	assert.Equal(t, "/data/kegg.gmt", path)
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func runCLI(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func fixtureFiles(t *testing.T) (dir, b, a string) {
	dir = t.TempDir()
	b = writeFile(t, dir, "B.gmt",
		"T0\tdesc T0\te8\te9\te10\n"+
			"T1\tdesc T1\te1\te2\te3\n"+
			"T4\tdesc T4\te10\te9\te8\n")
	a = writeFile(t, dir, "A.gmt",
		"T2\tdesc T2\te1\te2\n"+
			"T3\tdesc T3\te7\te9\te10\n"+
			"T5\tdesc T5\te4\te5\te6\n")
	return dir, b, a
}

const tenWeights = "e1 1\ne2 2\ne3 3\ne4 4\ne5 5\ne6 6\ne7 7\ne8 8\ne9 9\ne10 10\n"

func TestRunJSON(t *testing.T) {
	_, b, a := fixtureFiles(t)

	out, err := runCLI(t, tenWeights, "run", "-F", "json", "-e", "1", "-", b, a)
	require.NoError(t, err)

	var res enrich.Result
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, enrich.StatWSum, res.Statistic)
	assert.Equal(t, 6, res.NumTerms)

	var ids []string
	for _, h := range res.Hits {
		ids = append(ids, h.ID)
	}
	assert.Equal(t, []string{"T0", "T4", "T3"}, ids)
	assert.Equal(t, "B", res.Hits[0].Namespace)
	assert.Equal(t, "A", res.Hits[2].Namespace)
}

func TestRunSingleTermToFile(t *testing.T) {
	dir, b, a := fixtureFiles(t)
	w := writeFile(t, dir, "weights.txt", tenWeights)
	dest := filepath.Join(dir, "out.txt")

	_, err := runCLI(t, "", "run", "-T", "T3", "-O", dest, w, "BP:"+b, "MF:"+a)
	require.NoError(t, err)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Contains(t, string(data), "T3")
	assert.Contains(t, string(data), "e7")
}

func TestRunErrors(t *testing.T) {
	dir, b, _ := fixtureFiles(t)
	w := writeFile(t, dir, "weights.txt", tenWeights)

	_, err := runCLI(t, "", "run", "-T", "NOPE", w, b)
	assert.ErrorContains(t, err, "NOPE")

	_, err = runCLI(t, "", "run", "-s", "hgem", w, b)
	assert.Error(t, err, "hgem needs a cutoff")

	_, err = runCLI(t, "", "run", "-F", "xml", w, b)
	assert.Error(t, err)

	_, err = runCLI(t, "e1 one\n", "run", "-", b)
	assert.Error(t, err)

	_, err = runCLI(t, "e1 1\ne2 NaN\n", "run", "-", b)
	assert.ErrorContains(t, err, "line 2")

	_, err = runCLI(t, "", "run", w)
	assert.Error(t, err)
}
