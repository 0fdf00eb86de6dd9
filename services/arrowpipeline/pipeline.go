// Package arrowpipeline serializes bar and equity series to Arrow IPC for the
// metrics sink and any columnar consumer downstream.
package arrowpipeline

import (
	"bytes"
	"fmt"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/ipc"
	"github.com/apache/arrow/go/v14/arrow/memory"
	"github.com/shopspring/decimal"

	"tradesim/services/marketdata"
	"tradesim/services/sim"
)

var barSchema = arrow.NewSchema([]arrow.Field{
	{Name: "symbol", Type: arrow.BinaryTypes.String},
	{Name: "timestamp", Type: arrow.PrimitiveTypes.Int64},
	{Name: "open", Type: arrow.PrimitiveTypes.Float64},
	{Name: "high", Type: arrow.PrimitiveTypes.Float64},
	{Name: "low", Type: arrow.PrimitiveTypes.Float64},
	{Name: "close", Type: arrow.PrimitiveTypes.Float64},
	{Name: "volume", Type: arrow.PrimitiveTypes.Float64},
}, nil)

var equitySchema = arrow.NewSchema([]arrow.Field{
	{Name: "symbol", Type: arrow.BinaryTypes.String},
	{Name: "timestamp", Type: arrow.PrimitiveTypes.Int64},
	{Name: "equity", Type: arrow.PrimitiveTypes.Float64},
	{Name: "pnl", Type: arrow.PrimitiveTypes.Float64},
	{Name: "return", Type: arrow.PrimitiveTypes.Float64},
}, nil)

// Pipeline owns the allocator shared by encode and decode paths.
type Pipeline struct {
	pool memory.Allocator
}

// NewPipeline returns a pipeline backed by the Go allocator.
func NewPipeline() *Pipeline {
	return &Pipeline{pool: memory.NewGoAllocator()}
}

// EncodeBars serializes a bar series as one Arrow IPC stream record.
func (p *Pipeline) EncodeBars(series *marketdata.Series) ([]byte, error) {
	if len(series.Bars) == 0 {
		return nil, fmt.Errorf("no bars to encode")
	}
	b := array.NewRecordBuilder(p.pool, barSchema)
	defer b.Release()

	for _, bar := range series.Bars {
		b.Field(0).(*array.StringBuilder).Append(series.Symbol)
		b.Field(1).(*array.Int64Builder).Append(bar.Timestamp)
		b.Field(2).(*array.Float64Builder).Append(bar.Open.InexactFloat64())
		b.Field(3).(*array.Float64Builder).Append(bar.High.InexactFloat64())
		b.Field(4).(*array.Float64Builder).Append(bar.Low.InexactFloat64())
		b.Field(5).(*array.Float64Builder).Append(bar.Close.InexactFloat64())
		b.Field(6).(*array.Float64Builder).Append(bar.Volume.InexactFloat64())
	}
	return writeRecord(b, barSchema)
}

// DecodeBars reads back a bar series encoded with EncodeBars.
func (p *Pipeline) DecodeBars(data []byte, g marketdata.Granularity) (*marketdata.Series, error) {
	reader, err := ipc.NewReader(bytes.NewReader(data), ipc.WithAllocator(p.pool), ipc.WithSchema(barSchema))
	if err != nil {
		return nil, fmt.Errorf("open bar stream: %w", err)
	}
	defer reader.Release()

	series := &marketdata.Series{Granularity: g}
	for reader.Next() {
		rec := reader.Record()
		symbols := rec.Column(0).(*array.String)
		timestamps := rec.Column(1).(*array.Int64)
		opens := rec.Column(2).(*array.Float64)
		highs := rec.Column(3).(*array.Float64)
		lows := rec.Column(4).(*array.Float64)
		closes := rec.Column(5).(*array.Float64)
		volumes := rec.Column(6).(*array.Float64)
		for i := 0; i < int(rec.NumRows()); i++ {
			if series.Symbol == "" {
				series.Symbol = symbols.Value(i)
			}
			series.Bars = append(series.Bars, marketdata.Bar{
				Timestamp: timestamps.Value(i),
				Open:      decimal.NewFromFloat(opens.Value(i)),
				High:      decimal.NewFromFloat(highs.Value(i)),
				Low:       decimal.NewFromFloat(lows.Value(i)),
				Close:     decimal.NewFromFloat(closes.Value(i)),
				Volume:    decimal.NewFromFloat(volumes.Value(i)),
			})
		}
	}
	if err := reader.Err(); err != nil {
		return nil, fmt.Errorf("read bar stream: %w", err)
	}
	return series, nil
}

// EncodeEquity serializes an equity curve as one Arrow IPC stream record.
func (p *Pipeline) EncodeEquity(symbol string, curve []sim.EquityPoint) ([]byte, error) {
	if len(curve) == 0 {
		return nil, fmt.Errorf("no equity points to encode")
	}
	b := array.NewRecordBuilder(p.pool, equitySchema)
	defer b.Release()

	for _, point := range curve {
		b.Field(0).(*array.StringBuilder).Append(symbol)
		b.Field(1).(*array.Int64Builder).Append(point.Timestamp)
		b.Field(2).(*array.Float64Builder).Append(point.Equity.InexactFloat64())
		b.Field(3).(*array.Float64Builder).Append(point.PnL.InexactFloat64())
		b.Field(4).(*array.Float64Builder).Append(point.Return)
	}
	return writeRecord(b, equitySchema)
}

// DecodeEquity reads back an equity curve encoded with EncodeEquity.
func (p *Pipeline) DecodeEquity(data []byte) (string, []sim.EquityPoint, error) {
	reader, err := ipc.NewReader(bytes.NewReader(data), ipc.WithAllocator(p.pool), ipc.WithSchema(equitySchema))
	if err != nil {
		return "", nil, fmt.Errorf("open equity stream: %w", err)
	}
	defer reader.Release()

	var (
		symbol string
		curve  []sim.EquityPoint
	)
	for reader.Next() {
		rec := reader.Record()
		symbols := rec.Column(0).(*array.String)
		timestamps := rec.Column(1).(*array.Int64)
		equities := rec.Column(2).(*array.Float64)
		pnls := rec.Column(3).(*array.Float64)
		returns := rec.Column(4).(*array.Float64)
		for i := 0; i < int(rec.NumRows()); i++ {
			if symbol == "" {
				symbol = symbols.Value(i)
			}
			curve = append(curve, sim.EquityPoint{
				Timestamp: timestamps.Value(i),
				Equity:    decimal.NewFromFloat(equities.Value(i)),
				PnL:       decimal.NewFromFloat(pnls.Value(i)),
				Return:    returns.Value(i),
			})
		}
	}
	if err := reader.Err(); err != nil {
		return "", nil, fmt.Errorf("read equity stream: %w", err)
	}
	return symbol, curve, nil
}

func writeRecord(b *array.RecordBuilder, schema *arrow.Schema) ([]byte, error) {
	rec := b.NewRecord()
	defer rec.Release()

	var buf bytes.Buffer
	w := ipc.NewWriter(&buf, ipc.WithSchema(schema))
	if err := w.Write(rec); err != nil {
		return nil, fmt.Errorf("write record: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("close writer: %w", err)
	}
	return buf.Bytes(), nil
}
