package utils

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

func GetRandomUserAgent() string {
	return userAgents[time.Now().UnixNano()%int64(len(userAgents))]
}

func ParseHeaderArgs(headers []string) map[string]string {
	result := make(map[string]string)
	for _, header := range headers {
		parts := strings.SplitN(header, ":", 2)
		if len(parts) == 2 {
			key := strings.TrimSpace(parts[0])
			value := strings.TrimSpace(parts[1])
			result[key] = value
		}
	}
	return result
}

func FormatBytes(bytes uint64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := uint64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.2f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

func FormatSpeed(bytes int64, elapsed float64) string {
	if elapsed == 0 {
		return "0 B/s"
	}
	bps := float64(bytes) / elapsed
	formatted := FormatBytes(uint64(bps))
	return formatted[:len(formatted)-1] + "B/s" // Slice off "B" and add "B/s"
}

// ParseBytes reads sizes like "512", "64KB", "1.5MB" using 1024 multiples.
func ParseBytes(s string) (int64, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	var multiplier float64 = 1
	for _, suffix := range []struct {
		unit string
		mult float64
	}{
		{"TB", 1 << 40}, {"GB", 1 << 30}, {"MB", 1 << 20}, {"KB", 1 << 10}, {"B", 1},
	} {
		if strings.HasSuffix(s, suffix.unit) {
			multiplier = suffix.mult
			s = strings.TrimSpace(strings.TrimSuffix(s, suffix.unit))
			break
		}
	}
	value, err := strconv.ParseFloat(s, 64)
	if err != nil || value < 0 || math.IsNaN(value) {
		return 0, fmt.Errorf("invalid byte size: %q", s)
	}
	// float64(math.MaxInt64) rounds up to 2^63, which no int64 can hold
	if value*multiplier >= float64(math.MaxInt64) {
		return 0, fmt.Errorf("byte size out of range: %q", s)
	}
	return int64(value * multiplier), nil
}

// CleanPartials removes the partial files of fileName (<fileName>.<N>.<i>
// with i < N) and its stale assembly temp file from dir. A file name is
// required since unrelated files such as libssl.so.3.0 share the pattern.
func CleanPartials(dir, fileName string) ([]string, error) {
	if fileName == "" || fileName != filepath.Base(fileName) {
		return nil, fmt.Errorf("%w: %q", ErrNoFileName, fileName)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var removed []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasSuffix(name, AssemblingSuffix) {
			if strings.TrimSuffix(name, AssemblingSuffix) != fileName {
				continue
			}
		} else {
			matches := PartialFileRegex.FindStringSubmatch(name)
			if matches == nil {
				continue
			}
			if matches[1] != fileName {
				continue
			}
			total, err1 := strconv.Atoi(matches[2])
			index, err2 := strconv.Atoi(matches[3])
			if err1 != nil || err2 != nil || total < 1 || index >= total {
				continue
			}
		}
		path := filepath.Join(dir, name)
		if err := os.Remove(path); err != nil {
			return removed, err
		}
		removed = append(removed, path)
	}
	return removed, nil
}
