package marketdata

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Accepted datetime layouts, tried in order. Broker exports carry either a
// timezone suffix or nothing; ClickHouse exports are plain.
var datetimeLayouts = []string{
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05-07:00",
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// LoadCSV reads a bar series from a CSV file. Two layouts are understood:
// epoch-millisecond exports (timestamp,open,high,low,close,volume) and
// datetime-indexed exports with a header row naming at least
// Datetime/open/high/low/close/volume. UTF-8/UTF-16 BOMs are stripped.
// Rows that fail to parse are skipped. The returned series is normalized
// (sorted, duplicate timestamps dropped keeping the first).
func LoadCSV(path, symbol string, g Granularity) (*Series, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()

	// BOMOverride keeps plain UTF-8 untouched and decodes UTF-16 dumps.
	dec := unicode.BOMOverride(unicode.UTF8.NewDecoder())
	r := csv.NewReader(bufio.NewReader(transform.NewReader(file, dec)))
	r.ReuseRecord = false
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	series := &Series{Symbol: symbol, Granularity: g, Bars: make([]Bar, 0, 1_000)}
	cols := map[string]int{"timestamp": 0, "open": 1, "high": 2, "low": 3, "close": 4, "volume": 5}
	first := true
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue
		}
		if len(rec) < 6 {
			continue
		}
		if first {
			first = false
			if header := headerColumns(rec); header != nil {
				cols = header
				continue
			}
		}
		bar, ok := parseBarRecord(rec, cols)
		if !ok {
			continue
		}
		series.Bars = append(series.Bars, bar)
	}

	series.Normalize()
	if len(series.Bars) == 0 {
		return nil, &ShapeError{Symbol: symbol, Reason: fmt.Sprintf("no parsable bars in %s", path)}
	}
	return series, nil
}

// headerColumns returns a column map if the record looks like a header row.
func headerColumns(rec []string) map[string]int {
	cols := make(map[string]int)
	for i, name := range rec {
		switch strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "﻿"))) {
		case "datetime", "date", "timestamp", "timestamp_ms", "open_time_ms", "ts":
			cols["timestamp"] = i
		case "open", "high", "low", "close", "volume":
			cols[strings.ToLower(strings.TrimSpace(name))] = i
		}
	}
	for _, want := range []string{"timestamp", "open", "high", "low", "close", "volume"} {
		if _, ok := cols[want]; !ok {
			return nil
		}
	}
	return cols
}

func parseBarRecord(rec []string, cols map[string]int) (Bar, bool) {
	field := func(name string) string {
		i := cols[name]
		if i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	ts, err := parseTimestamp(field("timestamp"))
	if err != nil {
		return Bar{}, false
	}
	open, err := decimal.NewFromString(field("open"))
	if err != nil {
		return Bar{}, false
	}
	high, err := decimal.NewFromString(field("high"))
	if err != nil {
		return Bar{}, false
	}
	low, err := decimal.NewFromString(field("low"))
	if err != nil {
		return Bar{}, false
	}
	closePx, err := decimal.NewFromString(field("close"))
	if err != nil {
		return Bar{}, false
	}
	volume, err := decimal.NewFromString(field("volume"))
	if err != nil {
		volume = decimal.Zero
	}
	return Bar{Timestamp: ts, Open: open, High: high, Low: low, Close: closePx, Volume: volume}, true
}

// parseTimestamp accepts epoch milliseconds, epoch seconds, or a datetime
// string. Naive datetimes are taken as UTC.
func parseTimestamp(s string) (int64, error) {
	s = strings.TrimPrefix(s, "﻿")
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n < 1_000_000_000_000 { // seconds
			return n * 1000, nil
		}
		return n, nil
	}
	for _, layout := range datetimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC().UnixMilli(), nil
		}
	}
	return 0, fmt.Errorf("unparsable timestamp %q", s)
}
