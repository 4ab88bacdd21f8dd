package builtin_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/fwojciec/relay/builtin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecuteThink(t *testing.T) {
	t.Parallel()

	t.Run("acknowledges a thought", func(t *testing.T) {
		t.Parallel()
		result, err := builtin.ExecuteThink(context.Background(), json.RawMessage(`{"thought":"check the schema first"}`))
		require.NoError(t, err)
		assert.False(t, result.IsError)
		assert.Equal(t, "noted", result.Value)
	})

	t.Run("finished thought", func(t *testing.T) {
		t.Parallel()
		result, err := builtin.ExecuteThink(context.Background(), json.RawMessage(`{"thought":"ready","finished":true}`))
		require.NoError(t, err)
		assert.Equal(t, "reasoning complete", result.Value)
	})

	t.Run("empty thought", func(t *testing.T) {
		t.Parallel()
		result, err := builtin.ExecuteThink(context.Background(), json.RawMessage(`{}`))
		require.NoError(t, err)
		assert.True(t, result.IsError)
	})

	t.Run("invalid JSON", func(t *testing.T) {
		t.Parallel()
		result, err := builtin.ExecuteThink(context.Background(), json.RawMessage(`{`))
		require.NoError(t, err)
		assert.True(t, result.IsError)
		assert.Contains(t, result.Value, "invalid arguments")
	})
}

func TestExecuteCreateFiles(t *testing.T) {
	t.Parallel()

	t.Run("creates nested files", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		args := json.RawMessage(`{"files":[
			{"path":"report/summary.md","content":"# Summary","language":"markdown"},
			{"path":"data.csv","content":"a,b\n1,2\n"}
		]}`)
		result, err := builtin.ExecuteCreateFiles(context.Background(), dir, args)
		require.NoError(t, err)
		require.False(t, result.IsError)
		assert.Equal(t, map[string]any{"written": []string{"report/summary.md", "data.csv"}}, result.Value)

		data, err := os.ReadFile(filepath.Join(dir, "report", "summary.md"))
		require.NoError(t, err)
		assert.Equal(t, "# Summary", string(data))
	})

	t.Run("preserves existing permissions", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		path := filepath.Join(dir, "run.sh")
		require.NoError(t, os.WriteFile(path, []byte("old"), 0o755))

		result, err := builtin.ExecuteCreateFiles(context.Background(), dir, json.RawMessage(`{"files":[{"path":"run.sh","content":"new"}]}`))
		require.NoError(t, err)
		require.False(t, result.IsError)

		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0o755), info.Mode().Perm())
	})

	t.Run("rejects paths outside the workspace before writing", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		args := json.RawMessage(`{"files":[{"path":"ok.txt","content":"x"},{"path":"../escape.txt","content":"x"}]}`)
		result, err := builtin.ExecuteCreateFiles(context.Background(), dir, args)
		require.NoError(t, err)
		assert.True(t, result.IsError)
		assert.NoFileExists(t, filepath.Join(dir, "ok.txt"))
	})

	t.Run("rejects absolute paths", func(t *testing.T) {
		t.Parallel()
		result, err := builtin.ExecuteCreateFiles(context.Background(), t.TempDir(), json.RawMessage(`{"files":[{"path":"/etc/passwd","content":"x"}]}`))
		require.NoError(t, err)
		assert.True(t, result.IsError)
	})

	t.Run("empty files", func(t *testing.T) {
		t.Parallel()
		result, err := builtin.ExecuteCreateFiles(context.Background(), t.TempDir(), json.RawMessage(`{"files":[]}`))
		require.NoError(t, err)
		assert.True(t, result.IsError)
	})
}

func TestExecuteFindFiles(t *testing.T) {
	t.Parallel()

	setup := func(t *testing.T) string {
		t.Helper()
		dir := t.TempDir()
		for _, p := range []string{"a.csv", "sub/b.csv", "sub/c.json", "sub/deep/d.csv"} {
			path := filepath.Join(dir, p)
			require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
			require.NoError(t, os.WriteFile(path, nil, 0o644))
		}
		return dir
	}

	t.Run("matches recursively and sorts", func(t *testing.T) {
		t.Parallel()
		dir := setup(t)
		result, err := builtin.ExecuteFindFiles(context.Background(), dir, json.RawMessage(`{"patterns":["**/*.csv"]}`))
		require.NoError(t, err)
		require.False(t, result.IsError)
		want := []string{"a.csv", filepath.Join("sub", "b.csv"), filepath.Join("sub", "deep", "d.csv")}
		assert.Equal(t, map[string]any{"files": want, "truncated": false}, result.Value)
	})

	t.Run("de-duplicates across patterns", func(t *testing.T) {
		t.Parallel()
		dir := setup(t)
		result, err := builtin.ExecuteFindFiles(context.Background(), dir, json.RawMessage(`{"patterns":["*.csv","**/a.csv","sub/*.json"]}`))
		require.NoError(t, err)
		files := result.Value.(map[string]any)["files"]
		assert.Equal(t, []string{"a.csv", filepath.Join("sub", "c.json")}, files)
	})

	t.Run("no matches is an empty list", func(t *testing.T) {
		t.Parallel()
		result, err := builtin.ExecuteFindFiles(context.Background(), setup(t), json.RawMessage(`{"patterns":["*.parquet"]}`))
		require.NoError(t, err)
		assert.False(t, result.IsError)
		assert.Equal(t, []string{}, result.Value.(map[string]any)["files"])
	})

	t.Run("invalid pattern", func(t *testing.T) {
		t.Parallel()
		result, err := builtin.ExecuteFindFiles(context.Background(), setup(t), json.RawMessage(`{"patterns":["[invalid"]}`))
		require.NoError(t, err)
		assert.True(t, result.IsError)
		assert.Contains(t, result.Value, "invalid glob pattern")
	})

	t.Run("missing workspace", func(t *testing.T) {
		t.Parallel()
		result, err := builtin.ExecuteFindFiles(context.Background(), filepath.Join(t.TempDir(), "missing"), json.RawMessage(`{"patterns":["*"]}`))
		require.NoError(t, err)
		assert.True(t, result.IsError)
	})
}

func TestExecuteCreateChart(t *testing.T) {
	t.Parallel()

	t.Run("valid chart", func(t *testing.T) {
		t.Parallel()
		args := json.RawMessage(`{"title":"Sales","type":"bar","labels":["Q1","Q2"],"datasets":[{"label":"2024","data":[1,2]}]}`)
		result, err := builtin.ExecuteCreateChart(context.Background(), args)
		require.NoError(t, err)
		require.False(t, result.IsError)
		assert.Equal(t, map[string]any{"title": "Sales", "type": "bar", "series": 1, "points": 2}, result.Value)
	})

	t.Run("mismatched series", func(t *testing.T) {
		t.Parallel()
		args := json.RawMessage(`{"title":"Sales","type":"line","labels":["Q1","Q2"],"datasets":[{"label":"2024","data":[1]}]}`)
		result, err := builtin.ExecuteCreateChart(context.Background(), args)
		require.NoError(t, err)
		assert.True(t, result.IsError)
		assert.Equal(t, `series "2024" has 1 points for 2 labels`, result.Value)
	})

	t.Run("unsupported type", func(t *testing.T) {
		t.Parallel()
		args := json.RawMessage(`{"title":"x","type":"radar","labels":[],"datasets":[{"label":"a","data":[]}]}`)
		result, err := builtin.ExecuteCreateChart(context.Background(), args)
		require.NoError(t, err)
		assert.True(t, result.IsError)
	})
}

func TestFinishingTools(t *testing.T) {
	t.Parallel()

	t.Run("done accepts summary only", func(t *testing.T) {
		t.Parallel()
		result, err := builtin.ExecuteDone(context.Background(), json.RawMessage(`{"summary":"ok"}`))
		require.NoError(t, err)
		assert.False(t, result.IsError)
	})

	t.Run("done without message", func(t *testing.T) {
		t.Parallel()
		result, err := builtin.ExecuteDone(context.Background(), json.RawMessage(`{}`))
		require.NoError(t, err)
		assert.True(t, result.IsError)
	})

	t.Run("respond without analysis requires response", func(t *testing.T) {
		t.Parallel()
		result, err := builtin.ExecuteRespondWithoutAnalysis(context.Background(), json.RawMessage(`{"response":""}`))
		require.NoError(t, err)
		assert.True(t, result.IsError)
	})
}
