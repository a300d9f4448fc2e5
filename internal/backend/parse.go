package backend

import (
	"fmt"
	"strconv"
	"strings"
)

// moduleEntry is one row of `pactl list short modules`.
type moduleEntry struct {
	ID   int
	Name string
	Args string
}

// parseModuleID parses the module index printed by `pactl load-module`.
func parseModuleID(out string) (int, error) {
	s := strings.TrimSpace(out)
	id, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("unexpected load-module output %q", s)
	}
	return id, nil
}

// parseShortModules parses `pactl list short modules` output:
// one tab-separated row per module: index, name, arguments.
func parseShortModules(out string) []moduleEntry {
	var entries []moduleEntry
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			continue
		}
		fields := strings.SplitN(line, "\t", 3)
		if len(fields) < 2 {
			continue
		}
		id, err := strconv.Atoi(strings.TrimSpace(fields[0]))
		if err != nil {
			continue
		}
		e := moduleEntry{ID: id, Name: strings.TrimSpace(fields[1])}
		if len(fields) == 3 {
			e.Args = strings.TrimSpace(fields[2])
		}
		entries = append(entries, e)
	}
	return entries
}

// parseLoopbackArgs extracts the (sink, device) pair from a module-loopback
// argument string like "source=MusicSink.monitor sink=alsa_output.pci...".
// The loopback source is always the virtual sink's monitor.
func parseLoopbackArgs(args string) (sink, device string, ok bool) {
	for _, arg := range strings.Fields(args) {
		if v, found := strings.CutPrefix(arg, "source="); found {
			sink, ok = strings.CutSuffix(v, ".monitor")
			if !ok {
				return "", "", false
			}
		} else if v, found := strings.CutPrefix(arg, "sink="); found {
			device = v
		}
	}
	if sink == "" || device == "" {
		return "", "", false
	}
	return sink, device, true
}

// parseModuleArg extracts a single key=value argument from a module
// argument string.
func parseModuleArg(args, key string) (string, bool) {
	for _, arg := range strings.Fields(args) {
		if v, found := strings.CutPrefix(arg, key+"="); found {
			return v, true
		}
	}
	return "", false
}

// parseSinks parses the verbose `pactl list sinks` output into SinkInfo
// records. Only the Name, Mute and Volume lines of each "Sink #N" section
// are consumed; the volume is taken from the first percentage in the
// Volume line (channels are kept uniform by SetVolume).
func parseSinks(out string) []SinkInfo {
	var sinks []SinkInfo
	var cur *SinkInfo
	for _, line := range strings.Split(out, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "Sink #"):
			if cur != nil && cur.Name != "" {
				sinks = append(sinks, *cur)
			}
			cur = &SinkInfo{}
		case cur == nil:
			continue
		case strings.HasPrefix(trimmed, "Name: "):
			cur.Name = strings.TrimPrefix(trimmed, "Name: ")
		case strings.HasPrefix(trimmed, "Mute: "):
			cur.Muted = strings.TrimPrefix(trimmed, "Mute: ") == "yes"
		case strings.HasPrefix(trimmed, "Volume: "):
			if pct, ok := firstPercentage(trimmed); ok {
				cur.Volume = float64(pct) / 100.0
			}
		}
	}
	if cur != nil && cur.Name != "" {
		sinks = append(sinks, *cur)
	}
	return sinks
}

// firstPercentage finds the first "<n>%" token in a pactl volume line.
func firstPercentage(line string) (int, bool) {
	for _, tok := range strings.Fields(line) {
		if v, found := strings.CutSuffix(tok, "%"); found {
			if n, err := strconv.Atoi(v); err == nil {
				return n, true
			}
		}
	}
	return 0, false
}
