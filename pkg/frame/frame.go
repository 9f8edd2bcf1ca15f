// pkg/frame/frame.go
package frame

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"

	"github.com/David-Botos/experiment-cleaning/pkg/converter"
	"github.com/David-Botos/experiment-cleaning/pkg/model"
)

// ErrEmptyTable is returned for tables without columns
var ErrEmptyTable = errors.New("table has no columns")

// ToDataFrame converts a cleaned table into a gota DataFrame. Missing cells
// become NaN and timestamps are rendered with layout.
func ToDataFrame(t *model.Table, layout string) (dataframe.DataFrame, error) {
	if t == nil || t.NumCols() == 0 {
		return dataframe.DataFrame{}, ErrEmptyTable
	}

	columns := make([]series.Series, t.NumCols())
	for i, name := range t.Columns {
		values := make([]model.Value, t.NumRows())
		for r, row := range t.Rows {
			values[r] = row[i]
		}
		columns[i] = toSeries(name, values, layout)
	}

	df := dataframe.New(columns...)
	if df.Err != nil {
		return dataframe.DataFrame{}, fmt.Errorf("failed to build frame for %s: %w", t.Name, df.Err)
	}
	return df, nil
}

// MissingCounts returns the number of NaN cells per column
func MissingCounts(df dataframe.DataFrame) map[string]int {
	counts := make(map[string]int, df.Ncol())
	for _, name := range df.Names() {
		missing := 0
		for _, nan := range df.Col(name).IsNaN() {
			if nan {
				missing++
			}
		}
		counts[name] = missing
	}
	return counts
}

func toSeries(name string, values []model.Value, layout string) series.Series {
	kind := converter.InferColumnKind(values)

	elems := make([]interface{}, len(values))
	for i, v := range values {
		if v.IsNull() {
			elems[i] = nil
			continue
		}
		elems[i] = element(v.Interface(), kind, layout)
	}

	switch kind {
	case converter.KindInteger:
		return series.New(elems, series.Int, name)
	case converter.KindFloat:
		return series.New(elems, series.Float, name)
	case converter.KindBoolean:
		return series.New(elems, series.Bool, name)
	default:
		return series.New(elems, series.String, name)
	}
}

// element adapts a cell to a type gota elements accept
func element(raw interface{}, kind converter.ColumnKind, layout string) interface{} {
	switch v := raw.(type) {
	case int64:
		if kind == converter.KindFloat {
			return float64(v)
		}
		return int(v)
	case uint:
		return int(v)
	case uint8:
		return int(v)
	case uint16:
		return int(v)
	case uint32:
		return int(v)
	case uint64:
		return int(v)
	case time.Time:
		return v.Format(layout)
	case string, float64, bool:
		return v
	default:
		return fmt.Sprint(v)
	}
}
