package main

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/poiesic/guarded/ingestion"
	"github.com/poiesic/guarded/partition"
	"github.com/poiesic/guarded/reembed"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

func TestSetupLogger(t *testing.T) {
	newTestApp := func() *cli.App {
		return &cli.App{
			Name: "test",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "log-level", Aliases: []string{"l"}, Value: "info"},
				&cli.StringFlag{Name: "log-format", Value: "text"},
			},
			Before: setupLogger,
			Action: func(c *cli.Context) error { return nil },
		}
	}
	defer slog.SetDefault(slog.Default())

	t.Run("valid log levels", func(t *testing.T) {
		for _, level := range []string{"debug", "info", "warn", "error", "DEBUG", "WaRn"} {
			t.Run(level, func(t *testing.T) {
				err := newTestApp().Run([]string{"test", "--log-level", level})
				require.NoError(t, err)
			})
		}
	})

	t.Run("json format", func(t *testing.T) {
		err := newTestApp().Run([]string{"test", "--log-format", "json"})
		require.NoError(t, err)
	})

	t.Run("invalid log level returns error", func(t *testing.T) {
		err := newTestApp().Run([]string{"test", "--log-level", "invalid"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid log level")
	})

	t.Run("invalid log format returns error", func(t *testing.T) {
		err := newTestApp().Run([]string{"test", "--log-format", "xml"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid log format")
	})

	t.Run("log-level flag has alias -l", func(t *testing.T) {
		app := newTestApp()
		app.Action = func(c *cli.Context) error {
			assert.Equal(t, "debug", c.String("log-level"))
			return nil
		}
		require.NoError(t, app.Run([]string{"test", "-l", "debug"}))
	})
}

func TestLoadEnvFile(t *testing.T) {
	t.Run("missing file is ignored", func(t *testing.T) {
		assert.NoError(t, loadEnvFile(filepath.Join(t.TempDir(), ".env")))
		assert.NoError(t, loadEnvFile(""))
	})

	t.Run("variables are loaded", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), ".env")
		require.NoError(t, os.WriteFile(path, []byte("GUARDED_TEST_SECRET=s3cret\n"), 0o600))
		t.Cleanup(func() { os.Unsetenv("GUARDED_TEST_SECRET") })

		require.NoError(t, loadEnvFile(path))
		assert.Equal(t, "s3cret", os.Getenv("GUARDED_TEST_SECRET"))
	})
}

func TestParseReplaceMode(t *testing.T) {
	tests := []struct {
		input   string
		want    ingestion.ReplaceMode
		wantErr bool
	}{
		{"", ingestion.ReplaceDeferred, false},
		{"deferred", ingestion.ReplaceDeferred, false},
		{"UPFRONT", ingestion.ReplaceUpfront, false},
		{"sometimes", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := parseReplaceMode(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestCollectFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.txt"), "a")
	writeFile(t, filepath.Join(root, "docs", "b.md"), "b")
	writeFile(t, filepath.Join(root, "docs", "c.bin"), "c")
	writeFile(t, filepath.Join(root, "vendor", "d.txt"), "d")
	single := filepath.Join(t.TempDir(), "single.bin")
	writeFile(t, single, "s")

	files, err := collectFiles([]string{root, single}, []string{"**/*.txt", "**/*.md"}, []string{"vendor/**"})
	require.NoError(t, err)

	var ids []string
	for _, f := range files {
		ids = append(ids, f.sourceID)
	}
	assert.Equal(t, []string{"a.txt", "docs/b.md", "single.bin"}, ids)

	_, err = collectFiles([]string{filepath.Join(root, "missing")}, nil, nil)
	assert.Error(t, err)
}

func TestSnippet(t *testing.T) {
	assert.Equal(t, "a b c", snippet("a\n b\t\tc", 10))
	assert.Equal(t, "abc...", snippet("abcdef", 3))
}

func TestDemoPartitioner(t *testing.T) {
	tests := []struct {
		path string
		want partition.Partitioner
	}{
		{"demo.pdf", &partition.Text{}},
		{"notes.md", &partition.Markdown{}},
		{"page.html", &partition.HTML{}},
		{"plain", &partition.Text{}},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			p, err := demoPartitioner(tt.path)
			require.NoError(t, err)
			assert.IsType(t, tt.want, p)
		})
	}
}

func TestNewReporter(t *testing.T) {
	var buf bytes.Buffer
	r := newReporter(&buf, "Ingesting", 1)
	require.IsType(t, &reembed.LineReporter{}, r)

	r.Start(2)
	r.Add(1)
	r.Add(1)
	r.Finish()
	assert.Equal(t, 2, bytes.Count(buf.Bytes(), []byte("\n")))
	assert.Contains(t, buf.String(), "Ingesting: 2/2")

	f, err := os.CreateTemp(t.TempDir(), "progress")
	require.NoError(t, err)
	defer f.Close()
	assert.IsType(t, &reembed.LineReporter{}, newReporter(f, "Reembedding", 100))
}

// cliEnv runs the guarded app against a temporary database and a fake
// embedding service that returns the same vector for every text.
type cliEnv struct {
	t      *testing.T
	config string
	db     string
	dir    string
}

func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Input []string `json:"input"`
			Model string   `json:"model"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		data := make([]map[string]any, len(req.Input))
		for i := range req.Input {
			data[i] = map[string]any{"object": "embedding", "embedding": []float32{1, 0}, "index": i}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data":   data,
			"model":  req.Model,
			"usage":  map[string]int{"prompt_tokens": 1, "total_tokens": 1},
		})
	}))
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	env := &cliEnv{
		t:      t,
		config: filepath.Join(dir, "guarded.yaml"),
		db:     filepath.Join(dir, "db"),
		dir:    dir,
	}
	writeFile(t, env.config, "embedding:\n  host: "+srv.URL+"\n  model: test-model\n  max_attempts: 1\n")
	return env
}

func (e *cliEnv) run(args ...string) (string, error) {
	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	app.ErrWriter = io.Discard
	base := []string{"guarded", "--log-level", "error", "--env-file", "", "--config", e.config, "--db", e.db}
	err := app.Run(append(base, args...))
	return out.String(), err
}

func (e *cliEnv) mustRun(args ...string) string {
	e.t.Helper()
	out, err := e.run(args...)
	require.NoError(e.t, err)
	return out
}

func TestCLI_IngestSearchAndAccess(t *testing.T) {
	env := newCLIEnv(t)
	docs := filepath.Join(env.dir, "docs")
	writeFile(t, filepath.Join(docs, "notes.txt"), "First test paragraph.\n\nSecond test paragraph.\n")
	writeFile(t, filepath.Join(docs, "image.png"), "not indexed")

	out := env.mustRun("ingest", "--owner", "alice", docs)
	assert.Contains(t, out, "Indexed 1 of 1 files: 2 chunks, 0 skipped")

	out = env.mustRun("search", "--user", "alice", "test")
	assert.Contains(t, out, "notes.txt #0")
	assert.Contains(t, out, "notes.txt #1")

	out = env.mustRun("search", "--user", "bob", "test")
	assert.Contains(t, out, "No results")

	env.mustRun("grant", "--user", "bob", "notes.txt")
	out = env.mustRun("search", "--user", "bob", "--limit", "1", "test")
	assert.Contains(t, out, "1. ")
	assert.NotContains(t, out, "2. ")

	env.mustRun("revoke", "--user", "bob", "notes.txt")
	out = env.mustRun("search", "--user", "bob", "test")
	assert.Contains(t, out, "No results")

	out = env.mustRun("health")
	assert.Contains(t, out, "Status: ok")
	assert.Contains(t, out, "Chunks: 2")
	assert.Contains(t, out, "notes.txt: 2 chunks, owners [alice]")

	out = env.mustRun("reembed", "--embedding-model", "test-model-2", "--batch-size", "1")
	assert.Contains(t, out, "Reembedded 2 of 2 chunks")

	out = env.mustRun("remove", "notes.txt")
	assert.Contains(t, out, "Removed notes.txt (2 chunks)")

	out = env.mustRun("search", "--user", "alice", "test")
	assert.Contains(t, out, "No results")
}

func TestCLI_Demo(t *testing.T) {
	env := newCLIEnv(t)
	file := filepath.Join(env.dir, "demo.pdf")
	writeFile(t, file, "This is a test document.\n\nIt mentions the test twice.\n")

	out := env.mustRun("demo", "--file", file)
	assert.Contains(t, out, "Ingested demo.pdf: 2 chunks (0 skipped), granted to demo_user")
	assert.Contains(t, out, "Results for demo_user (2)")
	assert.Contains(t, out, "Results for demo_user-denyme (0)")
}

func TestCLI_ArgumentErrors(t *testing.T) {
	env := newCLIEnv(t)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"search requires user", []string{"search", "test"}, "user"},
		{"search requires query", []string{"search", "--user", "alice"}, "query is required"},
		{"ingest requires owner", []string{"ingest", env.dir}, "owner"},
		{"ingest requires path", []string{"ingest", "--owner", "alice"}, "at least one path"},
		{"ingest rejects replace mode", []string{"ingest", "--owner", "alice", "--replace", "never", env.dir}, "invalid replace mode"},
		{"grant requires source", []string{"grant", "--user", "bob"}, "exactly one source ID"},
		{"reembed requires model", []string{"reembed"}, "embedding-model"},
		{"reembed validates batch size", []string{"reembed", "--embedding-model", "m", "--batch-size", "0"}, "batch-size"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.run(tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
