package cleaner

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/David-Botos/experiment-cleaning/pkg/model"
)

func TestFilterIncompletePartitionsRows(t *testing.T) {
	columns := []string{"client_id", "a", "b", "c", "d", "e", "f", "g", "h", "i"}
	rows := [][]interface{}{
		{"1", nil, nil, nil, nil, nil, nil, nil, nil, nil}, // 9 missing
		{"2", 1, nil, nil, nil, nil, nil, nil, nil, nil},   // 8 missing
		{"3", 1, 1, nil, nil, nil, nil, nil, nil, nil},     // 7 missing
		{"4", 1, 1, 1, 1, 1, 1, 1, 1, 1},                   // 0 missing
		{nil, nil, nil, nil, nil, nil, nil, nil, nil, nil}, // 10 missing
	}
	tbl := mustTable(t, "clients", columns, rows)

	kept, discarded, ops := FilterIncomplete(tbl, 7, "client_id")

	assert.Equal(t, tbl.NumRows(), kept.NumRows()+discarded.NumRows())
	for i := 0; i < kept.NumRows(); i++ {
		assert.LessOrEqual(t, kept.MissingCount(i), 7)
	}
	for i := 0; i < discarded.NumRows(); i++ {
		assert.Greater(t, discarded.MissingCount(i), 7)
	}

	keptIDs, err := kept.Column("client_id")
	require.NoError(t, err)
	assert.Equal(t, "3", keptIDs[0].Interface())
	assert.Equal(t, "4", keptIDs[1].Interface())

	require.Len(t, ops, 3)
	assert.Equal(t, "1", ops[0].RowIdentifier)
	assert.Equal(t, "row:4", ops[2].RowIdentifier)
	assert.Equal(t, "missing_values_exceeded: 9 > 7", ops[0].CleaningReason)
	assert.Equal(t, model.OperationRowDiscarded, ops[1].CleaningOperation)
}

func TestFilterIncompleteNarrowTable(t *testing.T) {
	// With fewer columns than the threshold no row can be discarded
	tbl := mustTable(t, "clients", []string{"client_id", "a"}, [][]interface{}{
		{nil, nil},
	})

	kept, discarded, _ := FilterIncomplete(tbl, 7, "client_id")
	assert.Equal(t, 1, kept.NumRows())
	assert.Equal(t, 0, discarded.NumRows())
}

func TestDeduplicateIsIdempotent(t *testing.T) {
	tbl := mustTable(t, "trace", []string{"client_id", "step", "date_time"}, [][]interface{}{
		{"1", "start", "2017-04-12 20:19:36"},
		{"1", "start", "2017-04-12 20:19:36"},
		{"1", nil, "2017-04-12 20:19:36"},
		{"1", nil, "2017-04-12 20:19:36"},
		{"1", "", "2017-04-12 20:19:36"},
		{"2", "start", "2017-04-12 20:19:36"},
	})

	once, ops := Deduplicate(tbl, "client_id")
	twice, opsAgain := Deduplicate(once, "client_id")

	assert.Equal(t, 4, once.NumRows())
	assert.Len(t, ops, 2)
	assert.Equal(t, "duplicate_of_row_0", ops[0].CleaningReason)
	assert.Equal(t, once, twice)
	assert.Empty(t, opsAgain)

	seen := map[string]bool{}
	for _, row := range once.Rows {
		key := model.RowKey(row)
		assert.False(t, seen[key], "rows must be unique")
		seen[key] = true
	}
}

func TestDeduplicateKeepsRowsWithSeparatorLikeText(t *testing.T) {
	tbl := mustTable(t, "trace", []string{"client_id", "step"}, [][]interface{}{
		{"x\x1fstring=y", "z"},
		{"x", "y\x1fstring=z"},
	})

	out, ops := Deduplicate(tbl, "client_id")
	assert.Equal(t, 2, out.NumRows())
	assert.Empty(t, ops)
}

func TestFillMissing(t *testing.T) {
	tbl := mustTable(t, "roster", []string{"Client_ID", "Variation"}, [][]interface{}{
		{1, nil},
		{2, "Test"},
		{3, int64(2)},
		{4, ""},
		{5, 2.0},
		{6, "nan"},
	})

	out, ops, err := FillMissing(tbl, "variation", "Undefined", "client_id")
	require.NoError(t, err)

	values, err := out.Column("Variation")
	require.NoError(t, err)
	assert.Equal(t, "Undefined", values[0].Interface())
	assert.Equal(t, "Test", values[1].Interface())
	assert.Equal(t, "2", values[2].Interface(), "numeric labels become text")
	assert.Equal(t, "", values[3].Interface(), "empty text is not missing")
	assert.Equal(t, "2", values[4].Interface(), "whole floats render without a fraction")
	assert.Equal(t, "nan", values[5].Interface(), "a literal nan label is kept")

	require.Len(t, ops, 1)
	assert.Equal(t, "1", ops[0].RowIdentifier)
	assert.Equal(t, "Variation", ops[0].ColumnName)
	assert.Nil(t, ops[0].OriginalValue)
	assert.Equal(t, "Undefined", ops[0].NewValue)

	_, _, err = FillMissing(tbl, "group", "Undefined", "client_id")
	assert.ErrorIs(t, err, model.ErrMissingColumn)
}

func TestLowercaseHeadersIsIdempotent(t *testing.T) {
	tbl := model.NewTable("roster", "Client_ID", "Variation", "already_lower")

	once, ops, err := LowercaseHeaders(tbl)
	require.NoError(t, err)
	twice, opsAgain, err := LowercaseHeaders(once)
	require.NoError(t, err)

	assert.Equal(t, []string{"client_id", "variation", "already_lower"}, once.Columns)
	assert.Equal(t, once.Columns, twice.Columns)
	assert.Len(t, ops, 2)
	assert.Empty(t, opsAgain)
	require.NotNil(t, ops[0].OriginalValue)
	assert.Equal(t, "Client_ID", *ops[0].OriginalValue)
	assert.Equal(t, "Client_ID", tbl.Columns[0], "input headers are untouched")
}

func TestLowercaseHeadersRenamesMetadata(t *testing.T) {
	tbl := model.NewTable("roster", "Client_ID", "Variation")
	tbl.Metadata = &model.TableMetadata{
		Table:   "roster",
		Columns: []model.Column{{Name: "Client_ID", DataType: "TEXT"}, {Name: "Variation", DataType: "TEXT"}},
	}

	out, _, err := LowercaseHeaders(tbl)
	require.NoError(t, err)

	require.NotNil(t, out.Metadata)
	assert.Equal(t, []string{"client_id", "variation"}, out.Metadata.ColumnNames())
	assert.Equal(t, "TEXT", out.Metadata.Columns[0].DataType)
	assert.Equal(t, []string{"Client_ID", "Variation"}, tbl.Metadata.ColumnNames(), "input metadata is untouched")
}

func TestCoerceText(t *testing.T) {
	ts := time.Date(2017, 4, 12, 20, 19, 36, 0, time.UTC)
	tbl := mustTable(t, "clients", []string{"client_id"}, [][]interface{}{
		{int64(836976)},
		{836976.0},
		{"abc"},
		{nil},
		{ts},
		{true},
	})

	out, err := CoerceText(tbl, "client_id")
	require.NoError(t, err)

	ids, err := out.Column("client_id")
	require.NoError(t, err)
	assert.Equal(t, "836976", ids[0].Interface())
	assert.Equal(t, "836976", ids[1].Interface())
	assert.Equal(t, "abc", ids[2].Interface())
	assert.True(t, ids[3].IsNull())
	assert.Equal(t, "2017-04-12T20:19:36Z", ids[4].Interface())
	assert.Equal(t, "true", ids[5].Interface())

	_, err = CoerceText(tbl, "missing")
	assert.ErrorIs(t, err, model.ErrMissingColumn)
}

func TestCoerceInteger(t *testing.T) {
	tests := []struct {
		name     string
		input    interface{}
		want     int64
		target   error
		category ErrorCategory
	}{
		{name: "integral float", input: 3.0, want: 3},
		{name: "negative integral float", input: -2.0, want: -2},
		{name: "int64", input: int64(12), want: 12},
		{name: "uint8", input: uint8(4), want: 4},
		{name: "integer text", input: " 42 ", want: 42},
		{name: "integral float text", input: "6.0", want: 6},
		{name: "bool", input: true, want: 1},
		{name: "fractional float", input: 3.5, target: ErrNotIntegral, category: ErrorCategoryConversion},
		{name: "fractional text", input: "3.5", target: ErrNotIntegral, category: ErrorCategoryParse},
		{name: "non numeric text", input: "many", target: ErrNotIntegral, category: ErrorCategoryParse},
		{name: "empty text", input: "", target: ErrNotIntegral, category: ErrorCategoryParse},
		{name: "overflow", input: 1e19, target: ErrNotIntegral, category: ErrorCategoryConversion},
		{name: "uint64 overflow", input: uint64(1 << 63), target: ErrNotIntegral, category: ErrorCategoryConversion},
		{name: "missing", input: nil, target: ErrMissingValue, category: ErrorCategoryConversion},
		{name: "timestamp", input: time.Now(), target: ErrUnsupportedType, category: ErrorCategoryConversion},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tbl := mustTable(t, "clients", []string{"client_id", "num_accts"}, [][]interface{}{
				{"1", tt.input},
			})

			out, err := CoerceInteger(tbl, "num_accts")
			if tt.target != nil {
				require.Error(t, err)
				assert.Nil(t, out)
				assert.ErrorIs(t, err, tt.target)
				assert.Equal(t, tt.category, CategorizeError(err))
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, out.Rows[0][1].Interface())
		})
	}
}

func TestCoerceIntegerMultipleColumns(t *testing.T) {
	tbl := mustTable(t, "clients", []string{"a", "b", "c"}, [][]interface{}{
		{1.0, 2.0, 3.5},
	})

	out, err := CoerceInteger(tbl, "a", "b")
	require.NoError(t, err)
	assert.Equal(t, int64(1), out.Rows[0][0].Interface())
	assert.Equal(t, int64(2), out.Rows[0][1].Interface())
	assert.Equal(t, 3.5, out.Rows[0][2].Interface())
	assert.Equal(t, 1.0, tbl.Rows[0][0].Interface(), "input is untouched")

	_, err = CoerceInteger(tbl, "a", "z")
	assert.ErrorIs(t, err, model.ErrMissingColumn)
}

func TestCoerceTimestamp(t *testing.T) {
	existing := time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC)
	tbl := mustTable(t, "trace", []string{"date_time"}, [][]interface{}{
		{"2017-04-12 20:19:36"},
		{nil},
		{existing},
	})

	out, err := CoerceTimestamp(tbl, "date_time", "2006-01-02 15:04:05")
	require.NoError(t, err)

	values, err := out.Column("date_time")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2017, 4, 12, 20, 19, 36, 0, time.UTC), values[0].Interface())
	assert.True(t, values[1].IsNull())
	assert.Equal(t, existing, values[2].Interface())

	for _, bad := range []interface{}{"2017-04-12T20:19:36", "12/04/2017 20:19:36", "2017-04-12", " 2017-04-12 20:19:36",
		"2017-04-17 15:27:07.123", "2017-04-17 15:27:07,5"} {
		tbl := mustTable(t, "trace", []string{"date_time"}, [][]interface{}{{bad}})
		_, err := CoerceTimestamp(tbl, "date_time", "2006-01-02 15:04:05")
		assert.ErrorIs(t, err, ErrTimestampFormat, "value %v", bad)
		assert.Equal(t, ErrorCategoryParse, CategorizeError(err))
	}

	tbl = mustTable(t, "trace", []string{"date_time"}, [][]interface{}{{int64(1491991176)}})
	_, err = CoerceTimestamp(tbl, "date_time", "2006-01-02 15:04:05")
	assert.ErrorIs(t, err, ErrUnsupportedType)
	assert.Equal(t, ErrorCategoryConversion, CategorizeError(err))
}
