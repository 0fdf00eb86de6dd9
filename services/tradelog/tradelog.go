// Package tradelog reads and writes the trade-log wire format. The column set
// is a contract shared with downstream storage: Symbol, Datetime, Action,
// Price, Shares, Cash_Remaining.
package tradelog

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"tradesim/services/sim"
)

var header = []string{"Symbol", "Datetime", "Action", "Price", "Shares", "Cash_Remaining"}

const datetimeLayout = "2006-01-02 15:04:05"

// Write serializes trade events in log order.
func Write(w io.Writer, trades []sim.TradeEvent) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, t := range trades {
		rec := []string{
			t.Symbol,
			time.UnixMilli(t.Timestamp).UTC().Format(datetimeLayout),
			string(t.Action),
			t.Price.String(),
			strconv.FormatInt(t.Shares, 10),
			t.CashRemaining.String(),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteFile writes the trade log to path, creating or truncating it.
func WriteFile(path string, trades []sim.TradeEvent) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer file.Close()
	return Write(file, trades)
}

// Read parses a trade log. Serialization is lossless for every field, so
// statistics computed from a re-read log match the original run exactly.
func Read(r io.Reader) ([]sim.TradeEvent, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	var trades []sim.TradeEvent
	line := 0
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("trade log line %d: %w", line+1, err)
		}
		line++
		if line == 1 && strings.EqualFold(rec[0], "symbol") {
			continue
		}
		if len(rec) < 6 {
			return nil, fmt.Errorf("trade log line %d: %d fields, want 6", line, len(rec))
		}

		ts, err := parseDatetime(rec[1])
		if err != nil {
			return nil, fmt.Errorf("trade log line %d: %w", line, err)
		}
		action := sim.Action(strings.ToUpper(strings.TrimSpace(rec[2])))
		if action != sim.ActionBuy && action != sim.ActionSell {
			return nil, fmt.Errorf("trade log line %d: unknown action %q", line, rec[2])
		}
		price, err := decimal.NewFromString(strings.TrimSpace(rec[3]))
		if err != nil {
			return nil, fmt.Errorf("trade log line %d: price: %w", line, err)
		}
		shares, err := strconv.ParseInt(strings.TrimSpace(rec[4]), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("trade log line %d: shares: %w", line, err)
		}
		if shares < 0 {
			return nil, fmt.Errorf("trade log line %d: negative shares %d", line, shares)
		}
		cash, err := decimal.NewFromString(strings.TrimSpace(rec[5]))
		if err != nil {
			return nil, fmt.Errorf("trade log line %d: cash: %w", line, err)
		}

		trades = append(trades, sim.TradeEvent{
			Symbol:        strings.TrimSpace(rec[0]),
			Timestamp:     ts,
			Action:        action,
			Price:         price,
			Shares:        shares,
			CashRemaining: cash,
		})
	}
	return trades, nil
}

// ReadFile reads a trade log from path.
func ReadFile(path string) ([]sim.TradeEvent, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()
	return Read(file)
}

func parseDatetime(s string) (int64, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{datetimeLayout, time.RFC3339, "2006-01-02 15:04:05Z07:00", "2006-01-02 15:04:05.999999Z07:00"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC().UnixMilli(), nil
		}
	}
	return 0, fmt.Errorf("unparsable datetime %q", s)
}
