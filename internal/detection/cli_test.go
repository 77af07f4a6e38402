package detection

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d-singer/batdetect2-CLI/internal/discovery"
	"github.com/d-singer/batdetect2-CLI/internal/errors"
)

// useHelperProcess routes model invocations to TestHelperProcess in the given
// mode and returns a pointer to the captured arguments.
func useHelperProcess(t *testing.T, mode string) *[]string {
	t.Helper()

	var captured []string
	original := commandContext
	commandContext = func(ctx context.Context, name string, args ...string) *exec.Cmd {
		captured = append([]string{name}, args...)
		helperArgs := append([]string{"-test.run=TestHelperProcess", "--"}, args...)
		cmd := exec.CommandContext(ctx, os.Args[0], helperArgs...)
		cmd.Env = append(os.Environ(), "GO_WANT_HELPER_PROCESS=1", "BATDETECT_HELPER_MODE="+mode)
		return cmd
	}
	t.Cleanup(func() {
		commandContext = original
	})
	return &captured
}

func makeFiles(t *testing.T, names ...string) []discovery.AudioFile {
	t.Helper()

	dir := t.TempDir()
	files := make([]discovery.AudioFile, 0, len(names))
	for _, n := range names {
		p := filepath.Join(dir, filepath.FromSlash(n))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte("RIFF"), 0o600))
		files = append(files, discovery.AudioFile{Path: p, Key: n})
	}
	return files
}

// These tests swap the package-level commandContext and must not run in parallel.

func TestCLIDetectSuccess(t *testing.T) {
	captured := useHelperProcess(t, "success")

	files := makeFiles(t, "a.wav", "quiet_b.wav", "night/a.wav")
	cfg := DefaultConfig()
	cfg.ModelPath = "/models/uk.pth.tar"
	cfg.ExtraArgs = []string{"--spec_slices"}

	results, err := NewCLI(WithWorkDir(t.TempDir())).Detect(context.Background(), files, cfg)
	require.NoError(t, err)
	require.Len(t, results, 3)

	for i, r := range results {
		assert.Equal(t, files[i].Key, r.File.Key)
		assert.True(t, r.OK(), "file %s: %v", r.File.Key, r.Err)
	}
	assert.Len(t, results[0].Detections, 2)
	assert.Empty(t, results[1].Detections)
	assert.Len(t, results[2].Detections, 2)

	d := results[0].Detections[0]
	assert.Equal(t, "Pipistrellus pipistrellus", d.Class)
	assert.InDelta(t, 0.1215, d.StartTime, 1e-9)
	assert.InDelta(t, 45312.5, d.LowFreq, 1e-9)
	assert.Equal(t, "-1", d.Individual)
	assert.Equal(t, "Echolocation", d.Event)

	args := *captured
	require.GreaterOrEqual(t, len(args), 6)
	assert.Equal(t, DefaultBinary, args[0])
	assert.Equal(t, "detect", args[1])
	assert.Equal(t, "0.1", args[4])
	assert.Contains(t, args, "--save_preds_if_empty")
	i := slices.Index(args, "--time_expansion_factor")
	require.NotEqual(t, -1, i)
	assert.Equal(t, "1", args[i+1])
	i = slices.Index(args, "--model_path")
	require.NotEqual(t, -1, i)
	assert.Equal(t, "/models/uk.pth.tar", args[i+1])
	assert.Equal(t, "--spec_slices", args[len(args)-1])
}

func TestCLIDetectMissingInputIsPerFile(t *testing.T) {
	useHelperProcess(t, "success")

	files := makeFiles(t, "a.wav")
	files = append(files, discovery.AudioFile{Path: "/does/not/exist.wav", Key: "exist.wav"})

	results, err := NewCLI(WithWorkDir(t.TempDir())).Detect(context.Background(), files, DefaultConfig())
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.True(t, results[0].OK())
	assert.False(t, results[1].OK())
	assert.True(t, errors.IsCategory(results[1].Err, errors.CategoryDetection))
}

func TestCLIDetectPartialOutput(t *testing.T) {
	useHelperProcess(t, "partial")

	files := makeFiles(t, "a.wav", "b.wav", "c.wav")
	results, err := NewCLI(WithWorkDir(t.TempDir())).Detect(context.Background(), files, DefaultConfig())
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.True(t, results[0].OK())
	assert.False(t, results[1].OK())
	assert.False(t, results[2].OK())
}

func TestCLIDetectCrashFailsInvocation(t *testing.T) {
	useHelperProcess(t, "crash")

	files := makeFiles(t, "a.wav", "b.wav")
	results, err := NewCLI(WithWorkDir(t.TempDir())).Detect(context.Background(), files, DefaultConfig())
	require.Error(t, err)
	assert.Nil(t, results)
	assert.True(t, errors.IsCategory(err, errors.CategoryDetection))

	var ee *errors.EnhancedError
	require.True(t, errors.As(err, &ee))
	assert.Contains(t, ee.GetContext()["output_tail"], "CUDA out of memory")
}

func TestCLIDetectInvalidJSONIsPerFile(t *testing.T) {
	useHelperProcess(t, "badjson")

	files := makeFiles(t, "a.wav")
	results, err := NewCLI(WithWorkDir(t.TempDir())).Detect(context.Background(), files, DefaultConfig())
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.False(t, results[0].OK())
}

func TestCLIDetectTimeout(t *testing.T) {
	useHelperProcess(t, "sleep")

	cfg := DefaultConfig()
	cfg.Timeout = 200 * time.Millisecond

	files := makeFiles(t, "a.wav")
	_, err := NewCLI(WithWorkDir(t.TempDir())).Detect(context.Background(), files, cfg)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryDetection))

	var timeout *errors.EnhancedError
	require.True(t, errors.As(errors.Unwrap(err), &timeout))
	assert.Equal(t, errors.CategoryTimeout, timeout.Category)
	ctx := timeout.GetContext()
	assert.Equal(t, "run_model", ctx["operation"])
	assert.Contains(t, ctx, "duration_ms")
	assert.Equal(t, 1, ctx["files"])
}

func TestCLIDetectCancelled(t *testing.T) {
	useHelperProcess(t, "sleep")

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	files := makeFiles(t, "a.wav")
	_, err := NewCLI(WithWorkDir(t.TempDir())).Detect(ctx, files, DefaultConfig())
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryCancellation))
}

func TestCLIDetectCleansStaging(t *testing.T) {
	useHelperProcess(t, "success")

	work := t.TempDir()
	_, err := NewCLI(WithWorkDir(work)).Detect(context.Background(), makeFiles(t, "a.wav"), DefaultConfig())
	require.NoError(t, err)

	entries, err := os.ReadDir(work)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

const helperAnnotation = `{"start_time": 0.1215, "end_time": 0.1275, "low_freq": 45312.5, "high_freq": 61093.75,` +
	` "class": "Pipistrellus pipistrellus", "class_prob": 0.55, "det_prob": 0.658, "individual": "-1", "event": "Echolocation"}`

// TestHelperProcess stands in for the batdetect2 binary. Arguments after
// "--" mirror the real command line: detect <in> <out> <threshold> ...
func TestCheckBinary(t *testing.T) {
	original := lookPath
	t.Cleanup(func() { lookPath = original })

	var asked string
	lookPath = func(file string) (string, error) {
		asked = file
		if file == "batdetect2" {
			return "/opt/venv/bin/batdetect2", nil
		}
		return "", exec.ErrNotFound
	}

	resolved, err := CheckBinary("")
	require.NoError(t, err)
	assert.Equal(t, "batdetect2", asked)
	assert.Equal(t, "/opt/venv/bin/batdetect2", resolved)

	_, err = CheckBinary("missing-model")
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
	assert.ErrorIs(t, err, exec.ErrNotFound)
}

func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}

	args := os.Args
	for i, a := range args {
		if a == "--" {
			args = args[i+1:]
			break
		}
	}
	if len(args) < 3 || args[0] != "detect" {
		fmt.Fprintln(os.Stderr, "usage: detect <in> <out> <threshold>")
		os.Exit(2)
	}
	inDir, outDir := args[1], args[2]

	entries, err := os.ReadDir(inDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)

	writePred := func(name, body string) {
		if err := os.WriteFile(filepath.Join(outDir, name+".json"), []byte(body), 0o600); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(2)
		}
	}
	doc := func(name string) string {
		if strings.Contains(name, "quiet") {
			return `{"id": "` + name + `", "annotated": false, "annotation": []}`
		}
		return `{"id": "` + name + `", "annotated": false, "annotation": [` + helperAnnotation + `, ` + helperAnnotation + `]}`
	}

	switch os.Getenv("BATDETECT_HELPER_MODE") {
	case "success":
		for _, n := range names {
			writePred(n, doc(n))
		}
		os.Exit(0)
	case "partial":
		writePred(names[0], doc(names[0]))
		fmt.Fprintln(os.Stderr, "Traceback: decoding failed")
		os.Exit(1)
	case "crash":
		fmt.Fprintln(os.Stderr, "RuntimeError: CUDA out of memory")
		os.Exit(1)
	case "badjson":
		for _, n := range names {
			writePred(n, "not json")
		}
		os.Exit(0)
	case "sleep":
		time.Sleep(10 * time.Second)
		os.Exit(0)
	default:
		os.Exit(0)
	}
}
