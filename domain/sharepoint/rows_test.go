package sharepoint

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestItemTable_RenamesAndInjectsListID(t *testing.T) {
	table := NewItemTable([]Column{{Name: "Title", DisplayName: "Title"}})

	row, err := table.Row(ItemFields{"id": "7", "Title": "Report", "@odata.etag": "\"x\""}, "list-1")
	require.NoError(t, err)

	assert.Equal(t, map[string]string{"id": "7", "Title": "Report", "list_id": "list-1"}, row)
	assert.Equal(t, []string{"id", "Title", "list_id"}, table.Columns)
	assert.Equal(t, []string{"id", "list_id"}, table.PrimaryKey)
}

func TestItemTable_UsesIDColumnAsKey(t *testing.T) {
	cols := ResolveColumns([]Column{
		{Name: "ID", DisplayName: "ID"},
		{Name: "field_1", DisplayName: "Due Date"},
	}, false, true)
	table := NewItemTable(cols)

	row, err := table.Row(ItemFields{"id": "12", "field_1": "2024-01-01"}, "L")
	require.NoError(t, err)

	assert.Equal(t, []string{"ID", "Due Date", "list_id"}, table.Columns)
	assert.Equal(t, []string{"ID", "list_id"}, table.PrimaryKey)
	assert.Equal(t, "12", row["ID"])
	assert.Equal(t, "2024-01-01", row["Due Date"])
}

func TestItemTable_RenamesColumnsClashingWithInjectedOnes(t *testing.T) {
	tests := []struct {
		name        string
		cols        []Column
		fields      ItemFields
		wantColumns []string
		wantPK      []string
		wantRow     map[string]string
	}{
		{
			name:        "display name list_id",
			cols:        []Column{{Name: "ParentList", DisplayName: "list_id"}},
			fields:      ItemFields{"id": "3", "ParentList": "legacy"},
			wantColumns: []string{"id", "list_id_ParentList", "list_id"},
			wantPK:      []string{"id", "list_id"},
			wantRow:     map[string]string{"id": "3", "list_id_ParentList": "legacy", "list_id": "L"},
		},
		{
			name:        "display name id without an ID column",
			cols:        []Column{{Name: "ExternalId", DisplayName: "id"}},
			fields:      ItemFields{"id": "3", "ExternalId": "X-9"},
			wantColumns: []string{"id", "id_ExternalId", "list_id"},
			wantPK:      []string{"id", "list_id"},
			wantRow:     map[string]string{"id": "3", "id_ExternalId": "X-9", "list_id": "L"},
		},
		{
			name: "ID column keeps its name and stays the key",
			cols: []Column{
				{Name: "ID", DisplayName: "Ref"},
				{Name: "Code", DisplayName: "Ref"},
			},
			fields:      ItemFields{"id": "3", "Code": "C"},
			wantColumns: []string{"Ref", "Ref_Code", "list_id"},
			wantPK:      []string{"Ref", "list_id"},
			wantRow:     map[string]string{"Ref": "3", "Ref_Code": "C", "list_id": "L"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			table := NewItemTable(tt.cols)
			assert.Equal(t, tt.wantColumns, table.Columns)
			assert.Equal(t, tt.wantPK, table.PrimaryKey)

			row, err := table.Row(tt.fields, "L")
			require.NoError(t, err)
			assert.Equal(t, tt.wantRow, row)
		})
	}
}

func TestItemTable_PersonLookupValue(t *testing.T) {
	cols := ResolveColumns([]Column{
		{Name: "Owner", DisplayName: "Owner", PersonOrGroup: &PersonOrGroupColumn{}},
	}, false, true)
	table := NewItemTable(cols)

	row, err := table.Row(ItemFields{"id": "1", "OwnerLookupId": "15"}, "L")
	require.NoError(t, err)
	assert.Equal(t, "15", row["Owner"])
}

func TestItemTable_SerializesArraysAndObjects(t *testing.T) {
	table := NewItemTable([]Column{
		{Name: "Tags", DisplayName: "Tags"},
		{Name: "Location", DisplayName: "Location"},
	})

	dec := json.NewDecoder(strings.NewReader(`{"id":"1","Tags":["a","b"],"Location":{"lat":1.5}}`))
	dec.UseNumber()
	var fields ItemFields
	require.NoError(t, dec.Decode(&fields))

	row, err := table.Row(fields, "L")
	require.NoError(t, err)
	assert.Equal(t, `["a","b"]`, row["Tags"])
	assert.Equal(t, `{"lat":1.5}`, row["Location"])
}

func TestFormatValue(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want string
	}{
		{"nil", nil, ""},
		{"string", "x", "x"},
		{"number", json.Number("10.50"), "10.50"},
		{"float", 3.25, "3.25"},
		{"whole float", float64(4), "4"},
		{"bool", true, "true"},
		{"array", []any{"a", json.Number("1")}, `["a",1]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FormatValue(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestList_CreatorDisplayName(t *testing.T) {
	l := &List{Name: "Tasks", DisplayName: "Team Tasks"}
	assert.Equal(t, "", l.CreatorDisplayName())

	l.CreatedBy.User = &Identity{DisplayName: "Jane"}
	assert.Equal(t, "Jane", l.CreatorDisplayName())
}

func TestJoinLocation(t *testing.T) {
	assert.Equal(t, "contoso.sharepoint.com/sites/Team", JoinLocation("contoso.sharepoint.com", "/sites/Team"))
	assert.Equal(t, "contoso.sharepoint.com", JoinLocation("contoso.sharepoint.com", ""))
}
