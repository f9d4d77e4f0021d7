package mclog

import (
	"compress/gzip"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"craftbot/pkg/logx"
)

const serverPrefix = "[Server thread/INFO] [net.minecraft.server.MinecraftServer/]: "

func chatLine(ts, msg string) string {
	return "[" + ts + "] " + serverPrefix + msg
}

func writeLog(t *testing.T, dir, name string, lines []string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	content := strings.Join(lines, "\n") + "\n"
	if strings.HasSuffix(name, ".gz") {
		f, err := os.Create(path)
		if err != nil {
			t.Fatal(err)
		}
		zw := gzip.NewWriter(f)
		if _, err := zw.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
		if err := zw.Close(); err != nil {
			t.Fatal(err)
		}
		if err := f.Close(); err != nil {
			t.Fatal(err)
		}
		return path
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestParseLineTimestamp(t *testing.T) {
	t.Parallel()
	ev := ParseLine(chatLine("19Jan2025 20:04:15.335", "<jonshard> test5"))
	if ev.Kind != KindChat {
		t.Fatalf("kind = %v", ev.Kind)
	}
	want := time.Date(2025, time.January, 19, 20, 4, 15, 335_000_000, time.Local)
	if !ev.Time.Equal(want) {
		t.Fatalf("time = %v, want %v", ev.Time, want)
	}
	if ev.Message != "<jonshard> test5" {
		t.Fatalf("message = %q", ev.Message)
	}
}

func TestParseLineDottedMonthNoMillis(t *testing.T) {
	t.Parallel()
	ev := ParseLine("[19Jan.2025 20:04:15] [Server thread/WARN] [x/]: Failed to store chunk")
	if !ev.HasTime() {
		t.Fatal("expected parsed timestamp")
	}
	if ev.Time.Month() != time.January || ev.Time.Second() != 15 {
		t.Fatalf("time = %v", ev.Time)
	}
}

func TestParseLineVariants(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		line string
		kind Kind
	}{
		{"rcon chat", chatLine("19Jan2025 20:04:15.335", "[Rcon] jonshard: hi"), KindChat},
		{"server chat", chatLine("19Jan2025 20:04:15.335", "[Server] restarting soon"), KindChat},
		{"join", "[19Jan2025 20:05:00.001] " + serverPrefix + "Alice joined the game", KindJoin},
		{"leave", "[19Jan2025 20:06:00.001] " + serverPrefix + "Alice left the game", KindLeave},
		{"lag", "[19Jan2025 20:07:00.001] [Server thread/WARN] [minecraft/MinecraftServer]: Running 2000ms or 40 ticks behind", KindLagWarning},
		{"oversized", "[19Jan2025 20:08:00.001] [Server thread/WARN] [minecraft/ChunkSerializer]: Saving oversized chunk [-16, -18]", KindOversizedChunk},
		{"noise", "[19Jan2025 20:09:00.001] [Server thread/INFO] [somemod/]: loaded 12 recipes", KindOther},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			ev := ParseLine(tt.line)
			if ev.Kind != tt.kind {
				t.Fatalf("kind = %v, want %v", ev.Kind, tt.kind)
			}
		})
	}
	if ev := ParseLine("[19Jan2025 20:07:00.001] [x]: Running 2000ms or 40 ticks behind"); ev.BehindMS != 2000 {
		t.Fatalf("BehindMS = %d", ev.BehindMS)
	}
}

func TestExtractChatChronological(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	// two sources, interleaved times, one garbage-timestamp line
	writeLog(t, dir, "latest.log", []string{
		chatLine("19Jan2025 20:10:00.000", "<b> second"),
		"garbage preamble " + serverPrefix + "<z> no timestamp",
		chatLine("19Jan2025 20:30:00.000", "<d> fourth"),
	})
	writeLog(t, dir, "2025-01-19-1.log.gz", []string{
		chatLine("19Jan2025 20:00:00.000", "<a> first"),
		chatLine("19Jan2025 20:20:00.000", "<c> third"),
	})

	sources, err := Sources(dir)
	if err != nil {
		t.Fatal(err)
	}
	x := NewExtractor(logx.Nop())
	got := x.ExtractChat(sources, 50)

	want := []string{
		"<z> no timestamp",
		"20:00 <a> first",
		"20:10 <b> second",
		"20:20 <c> third",
		"20:30 <d> fourth",
	}
	if len(got) != len(want) {
		t.Fatalf("got %d lines: %v", len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("line %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestExtractChatLimit(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := writeLog(t, dir, "latest.log", []string{
		chatLine("19Jan2025 20:00:00.000", "<a> one"),
		chatLine("19Jan2025 20:01:00.000", "<a> two"),
		chatLine("19Jan2025 20:02:00.000", "<a> three"),
	})
	x := NewExtractor(logx.Nop())
	got := x.ExtractChat([]string{path}, 2)
	if len(got) != 2 || got[0] != "20:01 <a> two" || got[1] != "20:02 <a> three" {
		t.Fatalf("got %v", got)
	}
}

func TestExtractChatPlaceholder(t *testing.T) {
	t.Parallel()
	x := NewExtractor(logx.Nop())

	got := x.ExtractChat(nil, 10)
	if len(got) != 1 || got[0] != NoChatPlaceholder {
		t.Fatalf("got %v", got)
	}

	dir := t.TempDir()
	path := writeLog(t, dir, "latest.log", []string{
		"[19Jan2025 20:00:00.000] [Server thread/INFO] [somemod/]: nothing chatty here",
	})
	got = x.ExtractChat([]string{path}, 10)
	if len(got) != 1 || got[0] != NoChatPlaceholder {
		t.Fatalf("got %v", got)
	}
}

func TestExtractChatUnreadableSourceSkipped(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	ok := writeLog(t, dir, "latest.log", []string{chatLine("19Jan2025 20:00:00.000", "<a> hi")})
	got := NewExtractor(logx.Nop()).ExtractChat([]string{filepath.Join(dir, "missing.log"), ok}, 10)
	if len(got) != 1 || got[0] != "20:00 <a> hi" {
		t.Fatalf("got %v", got)
	}
}

func TestSourcesExcludesDebug(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeLog(t, dir, "latest.log", []string{"x"})
	writeLog(t, dir, "debug.log", []string{"x"})
	writeLog(t, dir, "2025-01-18-3.log.gz", []string{"x"})
	writeLog(t, dir, "notes.txt", []string{"x"})

	sources, err := Sources(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(sources) != 2 {
		t.Fatalf("sources = %v", sources)
	}
	for _, s := range sources {
		if strings.Contains(s, "debug") || strings.Contains(s, "txt") {
			t.Fatalf("unexpected source %q", s)
		}
	}
}

func TestExtractJoinLeave(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := writeLog(t, dir, "latest.log", []string{
		"[19Jan2025 20:00:00.000] " + serverPrefix + "Alice joined the game",
		chatLine("19Jan2025 20:01:00.000", "<Alice> hello"),
		"[19Jan2025 20:02:00.000] " + serverPrefix + "Alice left the game",
	})
	events := NewExtractor(logx.Nop()).ExtractJoinLeave(path)
	if len(events) != 2 {
		t.Fatalf("events = %v", events)
	}
	if events[0].Kind != KindJoin || events[0].User != "Alice" {
		t.Fatalf("first = %+v", events[0])
	}
	if events[1].Kind != KindLeave {
		t.Fatalf("second = %+v", events[1])
	}
}

func TestExtractLagWarningsSince(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := writeLog(t, dir, "latest.log", []string{
		"[19Jan2025 20:00:00.000] [Server thread/WARN] [minecraft/MinecraftServer]: Running 3000ms or 60 ticks behind",
		"[19Jan2025 20:30:00.000] [Server thread/WARN] [minecraft/MinecraftServer]: Running 1500ms or 30 ticks behind",
	})
	since := time.Date(2025, time.January, 19, 20, 15, 0, 0, time.Local)
	events := NewExtractor(logx.Nop()).ExtractLagWarnings(path, since)
	if len(events) != 1 {
		t.Fatalf("events = %v", events)
	}
	if events[0].BehindMS != 1500 {
		t.Fatalf("BehindMS = %d", events[0].BehindMS)
	}
}

func TestExtractGenericErrors(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := writeLog(t, dir, "latest.log", []string{
		"[19Jan2025 20:00:00.000] [Server thread/ERROR] [minecraft/ChunkMap/]: Failed to store chunk [1, 2]",
		"[19Jan2025 20:30:00.000] [Server thread/ERROR] [minecraft/ChunkMap/]: Failed to store chunk [3, 4]",
		"[19Jan2025 20:31:00.000] [Server thread/INFO] [minecraft/MinecraftServer/]: all fine",
	})
	patterns := map[string]string{
		"Failed to store chunk": "The server couldn't save a chunk properly.",
	}
	since := time.Date(2025, time.January, 19, 20, 15, 0, 0, time.Local)
	matches := NewExtractor(logx.Nop()).ExtractGenericErrors(path, since, patterns)
	if len(matches) != 1 {
		t.Fatalf("matches = %v", matches)
	}
	if matches[0].Line != "Failed to store chunk [3, 4]" {
		t.Fatalf("line = %q, want the in-window line", matches[0].Line)
	}
	if matches[0].Explanation == "" {
		t.Fatal("missing explanation")
	}
}

func TestCountOversizedChunks(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := writeLog(t, dir, "latest.log", []string{
		"[19Jan2025 20:00:00.000] [x/]: Saving oversized chunk [-16, -18]",
		"[19Jan2025 20:01:00.000] [x/]: Saving oversized chunk [-16, -19]",
		"[19Jan2025 20:02:00.000] [x/]: something else",
	})
	if n := NewExtractor(logx.Nop()).CountOversizedChunks(path); n != 2 {
		t.Fatalf("count = %d", n)
	}
}

func TestLatestLagWarning(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := writeLog(t, dir, "latest.log", []string{
		"[19Jan2025 20:30:00.000] [x]: Running 1500ms or 30 ticks behind",
		"[19Jan2025 20:00:00.000] [x]: Running 3000ms or 60 ticks behind",
	})
	ev, ok := NewExtractor(logx.Nop()).LatestLagWarning(path)
	if !ok {
		t.Fatal("expected a lag warning")
	}
	if ev.BehindMS != 1500 {
		t.Fatalf("BehindMS = %d", ev.BehindMS)
	}
}
