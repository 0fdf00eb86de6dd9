package tradelog

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"tradesim/services/sim"
)

// WriteEquity serializes an equity curve for downstream storage or charting.
func WriteEquity(w io.Writer, symbol string, curve []sim.EquityPoint) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"Symbol", "Datetime", "Equity", "PnL", "Return"}); err != nil {
		return err
	}
	for _, p := range curve {
		rec := []string{
			symbol,
			time.UnixMilli(p.Timestamp).UTC().Format(datetimeLayout),
			p.Equity.String(),
			p.PnL.String(),
			strconv.FormatFloat(p.Return, 'f', -1, 64),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteEquityFile writes the equity curve to path.
func WriteEquityFile(path, symbol string, curve []sim.EquityPoint) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer file.Close()
	return WriteEquity(file, symbol, curve)
}
