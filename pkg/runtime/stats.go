package runtime

import (
	"strconv"
	"strings"
)

// parsePercent parses a runtime-reported CPU percentage string like
// "1.23%" into 1.23. Unparseable input defaults to 0 rather than failing —
// stats parsing must degrade gracefully and never error out.
func parsePercent(s string) float64 {
	s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "%"))
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

// parseUsageLimit parses a "used / limit" pair, as used by both the memory
// ("46.5MiB / 256MiB") and network I/O ("1.2kB / 3.4kB") stats fields.
func parseUsageLimit(s string) (used, limit int64) {
	parts := strings.SplitN(s, "/", 2)
	if len(parts) != 2 {
		return 0, 0
	}
	return parseSize(strings.TrimSpace(parts[0])), parseSize(strings.TrimSpace(parts[1]))
}

// parseSize parses a human size string such as "46.5MiB", "1.2kB", "256B",
// "1.5GiB" into bytes. Decimal units (kB, MB, GB, TB) use powers of 1000;
// binary units (KiB, MiB, GiB, TiB) use powers of 1024. An unrecognized
// unit defaults to a 1x multiplier (treated as bytes); unparseable numeric
// parts default to 0 — unparseable fields never fail the overall parse.
func parseSize(s string) int64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}

	numEnd := 0
	for numEnd < len(s) {
		c := s[numEnd]
		if (c >= '0' && c <= '9') || c == '.' || c == '-' {
			numEnd++
			continue
		}
		break
	}

	value, err := strconv.ParseFloat(s[:numEnd], 64)
	if err != nil {
		return 0
	}

	unit := strings.ToLower(strings.TrimSpace(s[numEnd:]))
	multiplier := 1.0
	switch unit {
	case "b", "":
		multiplier = 1
	case "kb":
		multiplier = 1_000
	case "kib":
		multiplier = 1_024
	case "mb":
		multiplier = 1_000_000
	case "mib":
		multiplier = 1_048_576
	case "gb":
		multiplier = 1_000_000_000
	case "gib":
		multiplier = 1_073_741_824
	case "tb":
		multiplier = 1_000_000_000_000
	case "tib":
		multiplier = 1_099_511_627_776
	default:
		multiplier = 1
	}

	return int64(value * multiplier)
}

// parsePIDs parses the runtime's PID-count field, defaulting to 0 on any
// parse failure.
func parsePIDs(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0
	}
	return n
}
