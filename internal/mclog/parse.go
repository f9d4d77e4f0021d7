package mclog

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Log lines look like
//
//	[19Jan2025 20:04:15.335] [Server thread/INFO] [net.minecraft.server.MinecraftServer/]: <jonshard> hello
//
// Some forge builds write the month with a trailing dot ("19Jan.2025") and
// omit fractional seconds; the preamble regex tolerates both.
var (
	preambleRe = regexp.MustCompile(`^\[(\d{1,2})([A-Za-z]{3})\.?(\d{4}) (\d{2}):(\d{2}):(\d{2})(?:\.(\d+))?\]\s*(.*)$`)

	chatSignatureRe = regexp.MustCompile(`Server thread/INFO\] \[net\.minecraft\.server\.MinecraftServer/\]:\s+(\[Rcon\]|<|\[Server\])`)
	serverMessageRe = regexp.MustCompile(`^.*MinecraftServer/\]:\s+`)

	joinLeaveRe = regexp.MustCompile(`\]:\s+([A-Za-z0-9_]{1,16}) (joined|left) the game`)
	lagRe       = regexp.MustCompile(`Running (\d+)ms or \d+ ticks behind`)

	// errorPreambleRe strips the bracketed prefix groups from an arbitrary line.
	errorPreambleRe = regexp.MustCompile(`^.*\[.*?\] \[.*?\] \[.*?/?\]:\s*`)
)

const oversizedChunkMarker = "Saving oversized chunk"

var monthsByAbbrev = map[string]time.Month{
	"jan": time.January, "feb": time.February, "mar": time.March,
	"apr": time.April, "may": time.May, "jun": time.June,
	"jul": time.July, "aug": time.August, "sep": time.September,
	"oct": time.October, "nov": time.November, "dec": time.December,
}

// ParseLine tokenizes one raw log line into an Event. It never fails: lines
// with no parseable timestamp produce an Event with the zero Time, and lines
// matching no known signature come back as KindOther.
func ParseLine(line string) Event {
	ev := Event{Kind: KindOther, Raw: line}

	rest := line
	if m := preambleRe.FindStringSubmatch(line); m != nil {
		ev.Time = buildTimestamp(m)
		rest = m[8]
	}

	switch {
	case strings.Contains(line, oversizedChunkMarker):
		ev.Kind = KindOversizedChunk
	case lagRe.MatchString(rest):
		ev.Kind = KindLagWarning
		ms := lagRe.FindStringSubmatch(rest)
		ev.BehindMS, _ = strconv.Atoi(ms[1])
	case joinLeaveRe.MatchString(line):
		m := joinLeaveRe.FindStringSubmatch(line)
		ev.User = m[1]
		if m[2] == "joined" {
			ev.Kind = KindJoin
		} else {
			ev.Kind = KindLeave
		}
	case chatSignatureRe.MatchString(line):
		ev.Kind = KindChat
		ev.Message = strings.TrimSpace(serverMessageRe.ReplaceAllString(line, ""))
	}

	return ev
}

// buildTimestamp assembles a local-time timestamp from preamble submatches.
// Returns the zero time when any component is malformed.
func buildTimestamp(m []string) time.Time {
	day, err := strconv.Atoi(m[1])
	if err != nil {
		return time.Time{}
	}
	mon, ok := monthsByAbbrev[strings.ToLower(m[2])]
	if !ok {
		return time.Time{}
	}
	year, _ := strconv.Atoi(m[3])
	hour, _ := strconv.Atoi(m[4])
	minute, _ := strconv.Atoi(m[5])
	sec, _ := strconv.Atoi(m[6])

	nsec := 0
	if frac := m[7]; frac != "" {
		// decimal fraction of a second, e.g. "335" -> 335ms
		if len(frac) > 9 {
			frac = frac[:9]
		}
		if n, err := strconv.Atoi(frac); err == nil {
			for i := len(frac); i < 9; i++ {
				n *= 10
			}
			nsec = n
		}
	}

	t := time.Date(year, mon, day, hour, minute, sec, nsec, time.Local)
	if t.Day() != day || t.Hour() != hour {
		// components were out of range and normalized away
		return time.Time{}
	}
	return t
}

// StripPreamble removes the bracketed log prefix, leaving the message text.
func StripPreamble(line string) string {
	return strings.TrimSpace(errorPreambleRe.ReplaceAllString(line, ""))
}
