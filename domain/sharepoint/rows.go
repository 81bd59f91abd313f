package sharepoint

import (
	"encoding/json"
	"fmt"
	"strconv"
)

const (
	// ListIDColumn is the foreign key injected into every item row.
	ListIDColumn = "list_id"
	// ItemIDField is the item identifier key in the fields payload.
	ItemIDField = "id"
)

// ItemFields is one list item keyed by internal field name.
type ItemFields map[string]any

// ItemTable describes the output schema derived from resolved columns.
type ItemTable struct {
	Columns    []string
	PrimaryKey []string
	// keys maps each output column to the item field it is read from.
	keys map[string]string
}

// NewItemTable builds the output schema for a list: one column per resolved
// column, the item id when no ID column survived resolution, and list_id.
// A display name that is already taken, by an injected column or an earlier
// column, gets the internal name appended.
func NewItemTable(cols []Column) *ItemTable {
	t := &ItemTable{keys: make(map[string]string, len(cols)+1)}

	hasID := false
	for _, c := range cols {
		if c.FieldKey() == ItemIDField {
			hasID = true
		}
	}

	taken := map[string]bool{ListIDColumn: true}
	idColumn := ""
	if !hasID {
		idColumn = ItemIDField
		taken[ItemIDField] = true
		t.Columns = append(t.Columns, ItemIDField)
		t.keys[ItemIDField] = ItemIDField
	}

	for _, c := range cols {
		name := uniqueColumnName(taken, c)
		taken[name] = true
		if c.FieldKey() == ItemIDField {
			idColumn = name
		}
		t.Columns = append(t.Columns, name)
		t.keys[name] = c.FieldKey()
	}
	t.Columns = append(t.Columns, ListIDColumn)
	t.PrimaryKey = []string{idColumn, ListIDColumn}
	return t
}

func uniqueColumnName(taken map[string]bool, c Column) string {
	if !taken[c.DisplayName] {
		return c.DisplayName
	}
	base := c.DisplayName + "_" + c.Name
	name := base
	for n := 2; taken[name]; n++ {
		name = base + "_" + strconv.Itoa(n)
	}
	return name
}

// Row renames an item's fields from internal keys to output columns, flattens
// each value to a scalar cell and injects the list id. Fields without a
// matching column are dropped.
func (t *ItemTable) Row(fields ItemFields, listID string) (map[string]string, error) {
	row := make(map[string]string, len(t.Columns))
	for column, key := range t.keys {
		v, ok := fields[key]
		if !ok {
			continue
		}
		cell, err := FormatValue(v)
		if err != nil {
			return nil, fmt.Errorf("format field %q: %w", key, err)
		}
		row[column] = cell
	}
	row[ListIDColumn] = listID
	return row, nil
}

// FormatValue renders a decoded JSON value as a single cell. Arrays and
// objects are serialized back to JSON.
func FormatValue(v any) (string, error) {
	switch val := v.(type) {
	case nil:
		return "", nil
	case string:
		return val, nil
	case json.Number:
		return val.String(), nil
	case bool:
		return strconv.FormatBool(val), nil
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), nil
	case int:
		return strconv.Itoa(val), nil
	case int64:
		return strconv.FormatInt(val, 10), nil
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
}
