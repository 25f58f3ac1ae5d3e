package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/evanschultz/cardclock/internal/adapters/server"
	"github.com/evanschultz/cardclock/internal/adapters/trello"
	"github.com/evanschultz/cardclock/internal/app"
	"github.com/evanschultz/cardclock/internal/config"
	"github.com/evanschultz/cardclock/internal/domain"
)

// TestMain sets deterministic environment defaults for CLI tests.
func TestMain(m *testing.M) {
	_ = os.Setenv("CARDCLOCK_DEV_MODE", "false")
	for _, key := range []string{"CARDCLOCK_TRELLO_TOKEN", "CARDCLOCK_TRELLO_API_KEY", "CARDCLOCK_CONFIG", "CARDCLOCK_DB_PATH", "CARDCLOCK_LOG_LEVEL"} {
		_ = os.Unsetenv(key)
	}
	os.Exit(m.Run())
}

var createdAt = time.Date(2025, time.June, 2, 9, 0, 0, 0, time.UTC)

func cardID(n int) string {
	return fmt.Sprintf("%08x%016x", createdAt.Unix(), n)
}

// fakeReader serves one board with two lists.
type fakeReader struct {
	lists   []domain.List
	cards   map[string]domain.Card
	actions map[string][]domain.Action
	members map[string]domain.Member
	failGet error
}

func newFakeReader() *fakeReader {
	doing := cardID(1)
	loose := cardID(2)
	return &fakeReader{
		lists: []domain.List{
			{ID: "l-doing", BoardID: "b1", Name: "Doing"},
			{ID: "l-released", BoardID: "b1", Name: "Released"},
			{ID: "l-blocked", BoardID: "b1", Name: "Blocked"},
		},
		cards: map[string]domain.Card{
			doing: {ID: doing, BoardID: "b1", ListID: "l-doing", Name: "Ship badge", MemberIDs: []string{"m1"}},
			loose: {ID: loose, BoardID: "b1", ListID: "l-doing", Name: "Loose end"},
		},
		actions: map[string][]domain.Action{
			doing: {{Kind: domain.ActionCreated, Date: createdAt, List: domain.ListRef{ID: "l-doing", Name: "Doing"}}},
			loose: {{Kind: domain.ActionCreated, Date: createdAt, List: domain.ListRef{ID: "l-doing", Name: "Doing"}}},
		},
		members: map[string]domain.Member{"m1": {ID: "m1", FullName: "Ann Example"}},
	}
}

func (f *fakeReader) GetList(_ context.Context, listID string) (domain.List, error) {
	for _, l := range f.lists {
		if l.ID == listID {
			return l, nil
		}
	}
	return domain.List{}, app.ErrNotFound
}

func (f *fakeReader) ListLists(context.Context, string) ([]domain.List, error) {
	return f.lists, nil
}

func (f *fakeReader) ListCards(_ context.Context, listID string) ([]domain.Card, error) {
	out := []domain.Card{}
	for _, id := range []string{cardID(1), cardID(2)} {
		if card := f.cards[id]; card.ListID == listID {
			out = append(out, card)
		}
	}
	return out, nil
}

func (f *fakeReader) GetCard(_ context.Context, id string) (domain.Card, error) {
	if f.failGet != nil {
		return domain.Card{}, f.failGet
	}
	card, ok := f.cards[id]
	if !ok {
		return domain.Card{}, app.ErrNotFound
	}
	return card, nil
}

func (f *fakeReader) ListCardActions(_ context.Context, id string) ([]domain.Action, error) {
	return f.actions[id], nil
}

func (f *fakeReader) ListCustomFields(context.Context, string) ([]domain.CustomFieldDefinition, error) {
	return nil, nil
}

func (f *fakeReader) ListCardCustomFieldValues(context.Context, string) ([]domain.CustomFieldValue, error) {
	return nil, nil
}

func (f *fakeReader) GetMember(_ context.Context, id string) (domain.Member, error) {
	member, ok := f.members[id]
	if !ok {
		return domain.Member{}, app.ErrNotFound
	}
	return member, nil
}

// cliEnv isolates one CLI invocation set to temp config/db paths and a fake reader.
type cliEnv struct {
	dir     string
	cfgPath string
	dbPath  string
	reader  *fakeReader
	tokens  []string
}

func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "xdg-config"))
	t.Setenv("XDG_DATA_HOME", filepath.Join(dir, "xdg-data"))
	env := &cliEnv{
		dir:     dir,
		cfgPath: filepath.Join(dir, "config.toml"),
		dbPath:  filepath.Join(dir, "cardclock.db"),
		reader:  newFakeReader(),
	}
	origFactory := boardReaderFactory
	t.Cleanup(func() { boardReaderFactory = origFactory })
	boardReaderFactory = func(_ config.Config, token string, _ *trello.Metrics) app.BoardReader {
		env.tokens = append(env.tokens, token)
		return env.reader
	}
	return env
}

func (e *cliEnv) run(args ...string) (string, string, error) {
	var stdout, stderr bytes.Buffer
	root := newRootCommand(&stdout, &stderr)
	root.SetArgs(append([]string{"--config", e.cfgPath, "--db", e.dbPath}, args...))
	err := root.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func TestRunPathsCommand(t *testing.T) {
	env := newCLIEnv(t)
	out, _, err := env.run("--app", "cardclock-test", "paths")
	if err != nil {
		t.Fatalf("paths error = %v", err)
	}
	for _, want := range []string{"app: cardclock-test", "dev_mode: false", "config: " + env.cfgPath, "db: ", "reports: "} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in paths output, got %q", want, out)
		}
	}
	if _, err := os.Stat(env.dbPath); !os.IsNotExist(err) {
		t.Fatalf("paths must not open the database, stat error = %v", err)
	}
}

func TestRunUnknownCommand(t *testing.T) {
	env := newCLIEnv(t)
	if _, _, err := env.run("frobnicate"); err == nil {
		t.Fatal("expected unknown command error")
	}
}

func TestAuthSetTokenFeedsBoardReader(t *testing.T) {
	env := newCLIEnv(t)
	out, _, err := env.run("auth", "set-token", "tok-1")
	if err != nil {
		t.Fatalf("auth set-token error = %v", err)
	}
	if !strings.Contains(out, "token stored") {
		t.Fatalf("unexpected output %q", out)
	}

	if _, _, err := env.run("badge", cardID(1)); err != nil {
		t.Fatalf("badge error = %v", err)
	}
	if got := env.tokens[len(env.tokens)-1]; got != "tok-1" {
		t.Fatalf("expected stored token to reach the reader, got %q", got)
	}
}

func TestConfiguredTokenWinsOverStoredToken(t *testing.T) {
	env := newCLIEnv(t)
	if _, _, err := env.run("auth", "set-token", "stored"); err != nil {
		t.Fatalf("auth set-token error = %v", err)
	}
	if err := os.WriteFile(env.cfgPath, []byte("[trello]\ntoken = \"from-file\"\n"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	if _, _, err := env.run("badge", cardID(1)); err != nil {
		t.Fatalf("badge error = %v", err)
	}
	if got := env.tokens[len(env.tokens)-1]; got != "from-file" {
		t.Fatalf("expected configured token, got %q", got)
	}
}

func TestBadgeAndToggleCommands(t *testing.T) {
	env := newCLIEnv(t)
	out, _, err := env.run("badge", cardID(1))
	if err != nil {
		t.Fatalf("badge error = %v", err)
	}
	for _, want := range []string{"Ship badge", "Doing", "Active"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in badge output, got %q", want, out)
		}
	}

	out, _, err = env.run("toggle", cardID(1))
	if err != nil {
		t.Fatalf("toggle error = %v", err)
	}
	if !strings.Contains(out, "Paused(manual)") {
		t.Fatalf("expected manual pause, got %q", out)
	}
	out, _, err = env.run("badge", cardID(1))
	if err != nil {
		t.Fatalf("badge error = %v", err)
	}
	if !strings.Contains(out, "Paused(manual)") {
		t.Fatalf("expected paused badge after toggle, got %q", out)
	}
	out, _, err = env.run("toggle", cardID(1))
	if err != nil {
		t.Fatalf("toggle error = %v", err)
	}
	if !strings.Contains(out, "Active") {
		t.Fatalf("expected resumed timer, got %q", out)
	}
}

func TestBadgeSurfacesReaderErrors(t *testing.T) {
	env := newCLIEnv(t)
	env.reader.failGet = app.ErrAuthRequired
	_, _, err := env.run("badge", cardID(1))
	if !errors.Is(err, app.ErrAuthRequired) {
		t.Fatalf("expected auth error, got %v", err)
	}
}

func TestBoardConfigureAndShow(t *testing.T) {
	env := newCLIEnv(t)
	out, _, err := env.run("board", "configure", "b1",
		"--current-work", "doing",
		"--released", "Released",
		"--auto-pause", "Blocked",
		"--persist-config",
	)
	if err != nil {
		t.Fatalf("board configure error = %v", err)
	}
	if !strings.Contains(out, "l-doing") || !strings.Contains(out, "l-released") || !strings.Contains(out, "l-blocked") {
		t.Fatalf("expected resolved list ids, got %q", out)
	}

	content, err := os.ReadFile(env.cfgPath)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if !strings.Contains(string(content), "l-released") {
		t.Fatalf("expected persisted board config, got %s", content)
	}

	out, _, err = env.run("board", "show", "b1")
	if err != nil {
		t.Fatalf("board show error = %v", err)
	}
	if !strings.Contains(out, "l-doing") || !strings.Contains(out, "(unset)") {
		t.Fatalf("unexpected board show output %q", out)
	}

	if _, _, err := env.run("board", "configure", "b1", "--released", "Nowhere"); !errors.Is(err, app.ErrInvalidInput) {
		t.Fatalf("expected invalid input for unknown list, got %v", err)
	}
}

func TestReportCommandWritesFileAndHistory(t *testing.T) {
	env := newCLIEnv(t)
	outDir := filepath.Join(env.dir, "reports")
	out, _, err := env.run("report", "l-doing", "--out", outDir)
	if err != nil {
		t.Fatalf("report error = %v", err)
	}
	path := strings.TrimSpace(out)
	if filepath.Dir(path) != outDir || !strings.HasPrefix(filepath.Base(path), "list-report-doing-") {
		t.Fatalf("unexpected report path %q", path)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if !strings.HasPrefix(string(content), "Member,On Time,Past Due,Total Cards") {
		t.Fatalf("unexpected csv %q", content)
	}
	if !strings.Contains(string(content), "Ann Example") || !strings.Contains(string(content), "Unassigned") {
		t.Fatalf("expected member rows in csv, got %q", content)
	}

	out, _, err = env.run("report", "history", "l-doing")
	if err != nil {
		t.Fatalf("report history error = %v", err)
	}
	if !strings.Contains(out, filepath.Base(path)) {
		t.Fatalf("expected history to list %s, got %q", filepath.Base(path), out)
	}
}

func TestReportCommandStdoutAndClipboard(t *testing.T) {
	env := newCLIEnv(t)
	var copied string
	origClipboard := clipboardWriter
	t.Cleanup(func() { clipboardWriter = origClipboard })
	clipboardWriter = func(text string) error {
		copied = text
		return nil
	}

	out, stderr, err := env.run("report", "l-doing", "--out", "-", "--copy")
	if err != nil {
		t.Fatalf("report error = %v", err)
	}
	if !strings.HasPrefix(out, "Member,") {
		t.Fatalf("expected csv on stdout, got %q", out)
	}
	if copied == "" || !strings.HasPrefix(out, copied) {
		t.Fatalf("expected clipboard to receive the csv, got %q", copied)
	}
	if strings.Contains(stderr, "report generated") {
		t.Fatalf("expected console logs muted while streaming csv, got %q", stderr)
	}
}

func TestReportCommandUnknownList(t *testing.T) {
	env := newCLIEnv(t)
	_, _, err := env.run("report", "missing", "--out", "-")
	if !errors.Is(err, app.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestServeCommandWiresDependencies(t *testing.T) {
	env := newCLIEnv(t)
	var (
		gotCfg  server.Config
		gotDeps server.Dependencies
	)
	origRunner := serveCommandRunner
	t.Cleanup(func() { serveCommandRunner = origRunner })
	serveCommandRunner = func(ctx context.Context, cfg server.Config, deps server.Dependencies) error {
		gotCfg = cfg
		gotDeps = deps
		return deps.Ready(ctx)
	}

	if _, _, err := env.run("serve", "--bind", "127.0.0.1:9191"); err != nil {
		t.Fatalf("serve error = %v", err)
	}
	if gotCfg.HTTPBind != "127.0.0.1:9191" || gotCfg.APIEndpoint != "/api/v1" || gotCfg.MCPEndpoint != "/mcp" {
		t.Fatalf("unexpected server config %#v", gotCfg)
	}
	if gotDeps.Service == nil || gotDeps.Metrics == nil {
		t.Fatalf("expected service and metrics dependencies, got %#v", gotDeps)
	}
	families, err := gotDeps.Metrics.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	found := false
	for _, mf := range families {
		if mf.GetName() == "go_goroutines" {
			found = true
		}
	}
	if !found {
		t.Fatal("expected go collector metrics in registry")
	}

	badge, err := gotDeps.Service.CardBadge(context.Background(), cardID(1))
	if err != nil {
		t.Fatalf("CardBadge() error = %v", err)
	}
	if badge.CardName != "Ship badge" {
		t.Fatalf("unexpected badge %#v", badge)
	}
}

func TestRunRejectsInvalidLoggingLevelFromConfig(t *testing.T) {
	env := newCLIEnv(t)
	if err := os.WriteFile(env.cfgPath, []byte("[logging]\nlevel = \"loud\"\n"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	_, _, err := env.run("badge", cardID(1))
	if err == nil || !strings.Contains(err.Error(), "logging.level") {
		t.Fatalf("expected logging level error, got %v", err)
	}
}

func TestRunDevModeCreatesWorkspaceLogFile(t *testing.T) {
	env := newCLIEnv(t)
	t.Chdir(env.dir)
	if _, _, err := env.run("--dev", "badge", cardID(1)); err != nil {
		t.Fatalf("badge error = %v", err)
	}

	logDir := filepath.Join(env.dir, ".cardclock", "log")
	entries, err := os.ReadDir(logDir)
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	var logPath string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".log") {
			logPath = filepath.Join(logDir, entry.Name())
		}
	}
	if logPath == "" {
		t.Fatalf("expected a .log file in %s, got %v", logDir, entries)
	}
	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if !strings.Contains(string(content), "command flow complete") {
		t.Fatalf("expected flow events in dev log, got %q", content)
	}
}

func TestBoardDefaultsFromConfig(t *testing.T) {
	got := boardDefaultsFrom(map[string]config.BoardConfig{
		"b1": {CurrentWorkList: "Doing", ReleasedList: "Done", AutoPauseLists: []string{"Blocked"}},
	})
	if got["b1"].CurrentWork != "Doing" || got["b1"].Released != "Done" || got["b1"].AutoPause[0] != "Blocked" {
		t.Fatalf("unexpected defaults %#v", got)
	}
}

func TestParseBoolEnv(t *testing.T) {
	t.Setenv("CARDCLOCK_TEST_BOOL", "true")
	if v, ok := parseBoolEnv("CARDCLOCK_TEST_BOOL"); !ok || !v {
		t.Fatalf("parseBoolEnv(true) = %v, %v", v, ok)
	}
	t.Setenv("CARDCLOCK_TEST_BOOL", "nope")
	if _, ok := parseBoolEnv("CARDCLOCK_TEST_BOOL"); ok {
		t.Fatal("expected invalid bool to be ignored")
	}
	t.Setenv("CARDCLOCK_TEST_BOOL", "")
	if _, ok := parseBoolEnv("CARDCLOCK_TEST_BOOL"); ok {
		t.Fatal("expected empty value to be ignored")
	}
}

func TestWorkspaceRootFromUsesNearestMarker(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "go.mod"), []byte("module example.com/test\n"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	nested := filepath.Join(root, "cmd", "cardclock")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}
	if got := workspaceRootFrom(nested); filepath.Clean(got) != filepath.Clean(root) {
		t.Fatalf("expected workspace root %q, got %q", root, got)
	}
}

func TestDevLogFilePathUsesStemAndDay(t *testing.T) {
	dir := t.TempDir()
	got, err := devLogFilePath(dir, "card clock/x", time.Date(2026, 2, 22, 12, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("devLogFilePath() error = %v", err)
	}
	if want := filepath.Join(dir, "card-clock-x-20260222.log"); got != want {
		t.Fatalf("devLogFilePath() = %q, want %q", got, want)
	}
	if sanitizeLogFileStem("  ") != "cardclock" {
		t.Fatal("expected blank stem to fall back to cardclock")
	}
}

func TestRuntimeLoggerCanMuteConsoleSink(t *testing.T) {
	var console bytes.Buffer
	cfg := config.Default("/tmp/cardclock.db").Logging
	logger, err := newRuntimeLogger(&console, "cardclock", false, cfg, nil)
	if err != nil {
		t.Fatalf("newRuntimeLogger() error = %v", err)
	}

	logger.Info("before")
	logger.MuteConsole(true)
	logger.Info("during")
	logger.MuteConsole(false)
	logger.Warn("after")

	out := console.String()
	if !strings.Contains(out, "before") || !strings.Contains(out, "after") {
		t.Fatalf("expected console log to include before and after, got %q", out)
	}
	if strings.Contains(out, "during") {
		t.Fatalf("expected muted console log to omit 'during', got %q", out)
	}
}
