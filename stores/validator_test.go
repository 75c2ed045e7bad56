package stores_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/jrsteele09/retail-session/stores"
	"github.com/stretchr/testify/require"
)

var (
	storeA = stores.Ref{ID: "1", Name: "Central"}
	storeB = stores.Ref{ID: "2", Name: "Harbour"}
)

func lookupReturning(a *stores.Assignment, calls *int) stores.LookupFunc {
	return func(_ context.Context, username string) (*stores.Assignment, error) {
		if calls != nil {
			*calls++
		}
		if a == nil {
			return nil, nil
		}
		cp := *a
		cp.Username = username
		return &cp, nil
	}
}

func TestNewValidator_RequiresLookup(t *testing.T) {
	_, err := stores.NewValidator(nil)
	require.Error(t, err)
}

func TestValidate_DecisionTable(t *testing.T) {
	tests := []struct {
		name         string
		assignment   *stores.Assignment
		requested    stores.ID
		wantStore    stores.ID
		wantAuto     bool
		wantErr      error
		wantChoices  int
		wantMismatch bool
	}{
		{
			name:       "no assignment",
			assignment: &stores.Assignment{Assigned: false},
			requested:  "1",
			wantErr:    stores.ErrNotAssigned,
		},
		{
			name:       "assigned flag set but empty list",
			assignment: &stores.Assignment{Assigned: true},
			wantErr:    stores.ErrNotAssigned,
		},
		{
			name:       "nil assignment",
			assignment: nil,
			wantErr:    stores.ErrNotAssigned,
		},
		{
			name:       "unassigned ignores stale list",
			assignment: &stores.Assignment{Assigned: false, Stores: []stores.Ref{storeA}},
			wantErr:    stores.ErrNotAssigned,
		},
		{
			name:       "single store auto selected",
			assignment: &stores.Assignment{Assigned: true, Stores: []stores.Ref{storeA}},
			wantStore:  "1",
			wantAuto:   true,
		},
		{
			name:       "single store matches",
			assignment: &stores.Assignment{Assigned: true, Stores: []stores.Ref{storeA}},
			requested:  "1",
			wantStore:  "1",
		},
		{
			name:       "single store requested with whitespace",
			assignment: &stores.Assignment{Assigned: true, Stores: []stores.Ref{storeA}},
			requested:  " 1 ",
			wantStore:  "1",
		},
		{
			name:         "single store differs",
			assignment:   &stores.Assignment{Assigned: true, Stores: []stores.Ref{storeA}},
			requested:    "2",
			wantErr:      stores.ErrStoreMismatch,
			wantMismatch: true,
		},
		{
			name:        "several stores none requested",
			assignment:  &stores.Assignment{Assigned: true, Stores: []stores.Ref{storeA, storeB}},
			wantErr:     stores.ErrStoreSelectionRequired,
			wantChoices: 2,
		},
		{
			name:       "several stores matches one",
			assignment: &stores.Assignment{Assigned: true, Stores: []stores.Ref{storeA, storeB}},
			requested:  "2",
			wantStore:  "2",
		},
		{
			name:         "several stores matches none",
			assignment:   &stores.Assignment{Assigned: true, Stores: []stores.Ref{storeA, storeB}},
			requested:    "9",
			wantErr:      stores.ErrStoreMismatch,
			wantMismatch: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			v, err := stores.NewValidator(lookupReturning(tt.assignment, &calls))
			require.NoError(t, err)

			res, err := v.Validate(context.Background(), "sam", tt.requested)
			require.Equal(t, 1, calls)

			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				require.Nil(t, res)
				if tt.wantChoices > 0 {
					var sel stores.SelectionRequiredError
					require.True(t, errors.As(err, &sel))
					require.Len(t, sel.Choices, tt.wantChoices)
				}
				if tt.wantMismatch {
					var mm stores.MismatchError
					require.True(t, errors.As(err, &mm))
					require.NotEmpty(t, mm.Authorized)
				}
				return
			}

			require.NoError(t, err)
			require.Equal(t, tt.wantStore, res.StoreID)
			require.Equal(t, tt.wantStore, res.Store.ID)
			require.Equal(t, tt.wantAuto, res.AutoSelected)
		})
	}
}

func TestValidate_LookupError(t *testing.T) {
	boom := errors.New("lookup down")
	v, err := stores.NewValidator(stores.LookupFunc(func(context.Context, string) (*stores.Assignment, error) {
		return nil, boom
	}))
	require.NoError(t, err)

	_, err = v.Validate(context.Background(), "sam", "")
	require.ErrorIs(t, err, boom)
	require.NotErrorIs(t, err, stores.ErrNotAssigned)
}

func TestID_JSON(t *testing.T) {
	var ref stores.Ref
	require.NoError(t, json.Unmarshal([]byte(`{"id": 7, "name": "North"}`), &ref))
	require.Equal(t, stores.ID("7"), ref.ID)

	require.NoError(t, json.Unmarshal([]byte(`{"id": "8", "name": "South"}`), &ref))
	require.Equal(t, stores.ID("8"), ref.ID)

	var holder struct {
		Store stores.ID `json:"store"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"store": null}`), &holder))
	require.True(t, holder.Store.IsZero())

	require.Error(t, json.Unmarshal([]byte(`{"store": 1.5}`), &holder))

	out, err := json.Marshal(holder)
	require.NoError(t, err)
	require.JSONEq(t, `{"store": null}`, string(out))

	holder.Store = "12"
	out, err = json.Marshal(holder)
	require.NoError(t, err)
	require.JSONEq(t, `{"store": "12"}`, string(out))
}
