package cleaner

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/David-Botos/experiment-cleaning/pkg/config"
	"github.com/David-Botos/experiment-cleaning/pkg/model"
)

var clientColumns = []string{
	"client_id", "clnt_tenure_yr", "clnt_tenure_mnth", "clnt_age", "gendr",
	"num_accts", "bal", "calls_6_mnth", "logons_6_mnth", "region",
}

func newTestCleaner(t *testing.T) *DatasetCleaner {
	t.Helper()
	c, err := NewDatasetCleaner(config.DefaultPolicy(), zap.NewNop())
	require.NoError(t, err)
	return c
}

func mustTable(t *testing.T, name string, columns []string, rows [][]interface{}) *model.Table {
	t.Helper()
	tbl, err := model.FromRows(name, columns, rows)
	require.NoError(t, err)
	return tbl
}

func testInput(t *testing.T) Input {
	t.Helper()

	clients := mustTable(t, "clients", clientColumns, [][]interface{}{
		// only the identifier is present: 9 missing cells
		{int64(836976), nil, nil, nil, nil, nil, nil, nil, nil, nil},
		// 2 missing cells
		{int64(2304905), 7.0, 94.0, 58.0, nil, 2.0, nil, 3.0, 6.0, "north"},
		// 0 missing cells
		{int64(1439522), 5.0, 64.0, 79.0, "U", 2.0, 189023.86, 1.0, 4.0, "south"},
	})

	trace := mustTable(t, "trace", []string{"client_id", "visitor_id", "process_step", "date_time"}, [][]interface{}{
		{int64(9988021), "580560515_7732621733", "step_3", "2017-04-17 15:27:07"},
		{int64(9988021), "580560515_7732621733", "step_2", "2017-04-17 15:26:51"},
		{int64(9988021), "580560515_7732621733", "step_3", "2017-04-17 15:27:07"},
		{int64(8320017), "39393514_33118319366", "confirm", "2017-04-05 13:10:05"},
	})

	roster := mustTable(t, "roster", []string{"Client_ID", "Variation"}, [][]interface{}{
		{int64(9988021), "Test"},
		{int64(8320017), nil},
		{int64(4033851), "Control"},
		{int64(1982004), nil},
	})

	return Input{Clients: clients, Trace: trace, Roster: roster}
}

func TestNewDatasetCleaner(t *testing.T) {
	_, err := NewDatasetCleaner(config.DefaultPolicy(), nil)
	assert.EqualError(t, err, "logger cannot be nil")

	p := config.DefaultPolicy()
	p.MaxMissing = -1
	_, err = NewDatasetCleaner(p, zap.NewNop())
	assert.ErrorContains(t, err, "invalid cleaning policy")

	c := newTestCleaner(t)
	assert.Equal(t, 7, c.Policy().MaxMissing)
}

func TestCleanExampleScenario(t *testing.T) {
	c := newTestCleaner(t)
	in := testInput(t)

	res, err := c.Clean(in)
	require.NoError(t, err)

	_, err = uuid.Parse(res.RunID)
	assert.NoError(t, err)

	// Row with 9 missing cells out of 10 is discarded unmodified
	require.Equal(t, 1, res.ClientsDiscarded.NumRows())
	assert.Equal(t, clientColumns, res.ClientsDiscarded.Columns)
	assert.Equal(t, int64(836976), res.ClientsDiscarded.Rows[0][0].Interface())

	// Rows with 2 and 0 missing cells are kept and coerced
	require.Equal(t, 2, res.Clients.NumRows())
	kept := res.Clients.Rows[0]
	assert.Equal(t, "2304905", kept[0].Interface())
	assert.Equal(t, int64(7), kept[1].Interface())
	assert.Equal(t, int64(94), kept[2].Interface())
	assert.Equal(t, 58.0, kept[3].Interface(), "non-metric columns are left alone")
	assert.True(t, kept[4].IsNull())
	assert.Equal(t, int64(2), kept[5].Interface())
	assert.True(t, kept[6].IsNull())
	assert.Equal(t, int64(3), kept[7].Interface())
	assert.Equal(t, int64(6), kept[8].Interface())
	assert.Equal(t, "north", kept[9].Interface())

	assert.Equal(t, Summary{
		ClientsIn:         3,
		ClientsKept:       2,
		ClientsDiscarded:  1,
		TraceIn:           4,
		TraceKept:         3,
		DuplicatesRemoved: 1,
		RosterRows:        4,
		VariationsFilled:  2,
		HeadersRenamed:    2,
		Duration:          res.Summary.Duration,
	}, res.Summary)
}

func TestCleanTrace(t *testing.T) {
	c := newTestCleaner(t)

	res, err := c.Clean(testInput(t))
	require.NoError(t, err)

	require.Equal(t, 3, res.Trace.NumRows())
	steps, err := res.Trace.Column("process_step")
	require.NoError(t, err)
	assert.Equal(t, "step_3", steps[0].Interface(), "first occurrence is kept")
	assert.Equal(t, "step_2", steps[1].Interface())
	assert.Equal(t, "confirm", steps[2].Interface())

	ids, err := res.Trace.Column("client_id")
	require.NoError(t, err)
	for _, id := range ids {
		assert.IsType(t, "", id.Interface())
	}

	times, err := res.Trace.Column("date_time")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2017, 4, 17, 15, 27, 7, 0, time.UTC), times[0].Interface())
}

func TestCleanRoster(t *testing.T) {
	c := newTestCleaner(t)

	res, err := c.Clean(testInput(t))
	require.NoError(t, err)

	assert.Equal(t, []string{"client_id", "variation"}, res.Roster.Columns)

	variations, err := res.Roster.Column("variation")
	require.NoError(t, err)
	got := make([]interface{}, len(variations))
	for i, v := range variations {
		require.False(t, v.IsNull())
		got[i] = v.Interface()
	}
	assert.Equal(t, []interface{}{"Test", "Undefined", "Control", "Undefined"}, got)

	ids, err := res.Roster.Column("client_id")
	require.NoError(t, err)
	assert.Equal(t, "9988021", ids[0].Interface())
}

func TestCleanOperationsAreStamped(t *testing.T) {
	c := newTestCleaner(t)

	res, err := c.Clean(testInput(t))
	require.NoError(t, err)

	counts := map[string]int{}
	for _, op := range res.Operations {
		assert.Equal(t, res.RunID, op.RunID)
		assert.False(t, op.CleanedAt.IsZero())
		counts[op.CleaningOperation]++
	}

	assert.Equal(t, map[string]int{
		model.OperationRowDiscarded:     1,
		model.OperationDuplicateRemoved: 1,
		model.OperationNullFilled:       2,
		model.OperationColumnRenamed:    2,
	}, counts)
}

func TestCleanDoesNotModifyInputs(t *testing.T) {
	c := newTestCleaner(t)
	in := testInput(t)
	before := testInput(t)

	_, err := c.Clean(in)
	require.NoError(t, err)

	assert.Equal(t, before.Clients, in.Clients)
	assert.Equal(t, before.Trace, in.Trace)
	assert.Equal(t, before.Roster, in.Roster)
}

func TestCleanEmptyTables(t *testing.T) {
	c := newTestCleaner(t)
	in := Input{
		Clients: model.NewTable("clients", clientColumns...),
		Trace:   model.NewTable("trace", "client_id", "date_time"),
		Roster:  model.NewTable("roster", "Client_ID", "Variation"),
	}

	res, err := c.Clean(in)
	require.NoError(t, err)

	assert.Equal(t, 0, res.Clients.NumRows())
	assert.Equal(t, 0, res.ClientsDiscarded.NumRows())
	assert.Equal(t, 0, res.Trace.NumRows())
	assert.Equal(t, 0, res.Roster.NumRows())
	assert.Equal(t, []string{"client_id", "variation"}, res.Roster.Columns)
	assert.Len(t, res.Operations, 2, "only the header renames")
}

func TestCleanShapeErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(in *Input)
		target error
		errMsg string
	}{
		{
			name:   "nil clients",
			mutate: func(in *Input) { in.Clients = nil },
			target: ErrNilTable,
		},
		{
			name:   "nil roster",
			mutate: func(in *Input) { in.Roster = nil },
			target: ErrNilTable,
		},
		{
			name: "clients missing metric",
			mutate: func(in *Input) {
				in.Clients = model.NewTable("clients", "client_id", "clnt_tenure_yr")
			},
			target: model.ErrMissingColumn,
			errMsg: "clients.clnt_tenure_mnth",
		},
		{
			name: "trace missing date_time",
			mutate: func(in *Input) {
				in.Trace = model.NewTable("trace", "client_id")
			},
			target: model.ErrMissingColumn,
			errMsg: "trace.date_time",
		},
		{
			name: "roster missing variation",
			mutate: func(in *Input) {
				in.Roster = model.NewTable("roster", "Client_ID")
			},
			target: model.ErrMissingColumn,
			errMsg: "roster.Variation",
		},
		{
			name: "roster headers collide",
			mutate: func(in *Input) {
				in.Roster = model.NewTable("roster", "Client_ID", "client_id", "Variation")
			},
			target: ErrDuplicateColumn,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestCleaner(t)
			in := testInput(t)
			tt.mutate(&in)

			res, err := c.Clean(in)
			require.Error(t, err)
			assert.Nil(t, res)
			assert.ErrorIs(t, err, tt.target)
			assert.Equal(t, ErrorCategoryShape, CategorizeError(err))
			if tt.errMsg != "" {
				assert.Contains(t, err.Error(), tt.errMsg)
			}
		})
	}
}

func TestCleanMalformedTimestampIsFatal(t *testing.T) {
	c := newTestCleaner(t)
	in := testInput(t)
	require.NoError(t, in.Trace.AppendRow(int64(1), "v", "start", "2017/04/17 15:27:07"))

	res, err := c.Clean(in)
	require.Error(t, err)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, ErrTimestampFormat)

	var coercionErr *CoercionError
	require.True(t, errors.As(err, &coercionErr))
	assert.Equal(t, "trace", coercionErr.Table)
	assert.Equal(t, "date_time", coercionErr.Column)
	assert.Equal(t, 3, coercionErr.Row, "row index after deduplication")
	assert.Equal(t, ErrorCategoryParse, CategorizeError(err))
}

func TestCleanFractionalMetricIsFatal(t *testing.T) {
	c := newTestCleaner(t)
	in := testInput(t)
	in.Clients.Rows[2][5] = model.ValueOf(2.5)

	res, err := c.Clean(in)
	require.Error(t, err)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, ErrNotIntegral)
	assert.Contains(t, err.Error(), "clients.num_accts")
	assert.Equal(t, ErrorCategoryConversion, CategorizeError(err))
}

func TestCleanMissingMetricInKeptRowIsFatal(t *testing.T) {
	c := newTestCleaner(t)
	in := testInput(t)
	in.Clients.Rows[2][7] = model.Null()

	_, err := c.Clean(in)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingValue)
}

func TestCleanCustomThreshold(t *testing.T) {
	p := config.DefaultPolicy()
	p.MaxMissing = 1
	c, err := NewDatasetCleaner(p, zap.NewNop())
	require.NoError(t, err)

	in := testInput(t)
	// Only the complete row survives a threshold of 1
	res, err := c.Clean(in)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Clients.NumRows())
	assert.Equal(t, 2, res.ClientsDiscarded.NumRows())
}

func TestCategorizeError(t *testing.T) {
	assert.Equal(t, ErrorCategoryNone, CategorizeError(nil))
	assert.Equal(t, ErrorCategoryNone, CategorizeError(errors.New("boom")))
	assert.Equal(t, "Shape", ErrorCategoryShape.String())
	assert.Equal(t, "Unknown(42)", ErrorCategory(42).String())
}
