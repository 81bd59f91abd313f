package sharepoint

import "strings"

// LookupIDSuffix is appended to single-selection person/group columns: the
// API keys their item values as "<Name>LookupId" rather than "<Name>".
const LookupIDSuffix = "LookupId"

// systemColumns are platform-reserved columns dropped unless explicitly requested.
// Modified, Created, Author and Editor are deliberately kept.
var systemColumns = map[string]struct{}{
	"ComplianceAssetId": {},
	"ContentType":       {},
	"Attachments":       {},
	"Edit":              {},
	"LinkTitleNoMenu":   {},
	"LinkTitle":         {},
	"DocIcon":           {},
	"ItemChildCount":    {},
	"FolderChildCount":  {},
	"AppAuthor":         {},
	"AppEditor":         {},
}

// PersonOrGroupColumn is present on columns that hold users or groups.
type PersonOrGroupColumn struct {
	AllowMultipleSelection bool   `json:"allowMultipleSelection"`
	ChooseFromType         string `json:"chooseFromType,omitempty"`
	DisplayAs              string `json:"displayAs,omitempty"`
}

// Column is a list column definition.
type Column struct {
	Name          string               `json:"name"`
	DisplayName   string               `json:"displayName"`
	Description   string               `json:"description"`
	PersonOrGroup *PersonOrGroupColumn `json:"personOrGroup,omitempty"`
}

// IsSystem reports whether the column is platform-reserved.
func (c Column) IsSystem() bool {
	if strings.HasPrefix(c.Name, "_") {
		return true
	}
	_, ok := systemColumns[c.Name]
	return ok
}

// IsSinglePersonOrGroup reports whether the column holds exactly one user or group.
func (c Column) IsSinglePersonOrGroup() bool {
	return c.PersonOrGroup != nil && !c.PersonOrGroup.AllowMultipleSelection
}

// FieldKey is the key under which item field values for this column arrive.
func (c Column) FieldKey() string {
	if c.Name == "ID" {
		return "id"
	}
	return c.Name
}

// ResolveColumns turns raw column definitions into the ordered output schema.
// The input slice is not modified. Order is preserved.
func ResolveColumns(cols []Column, includeSystem, useDisplayNames bool) []Column {
	resolved := make([]Column, 0, len(cols))
	for _, c := range cols {
		if !includeSystem && c.IsSystem() {
			continue
		}
		if c.IsSinglePersonOrGroup() {
			c.Name += LookupIDSuffix
		}
		resolved = append(resolved, c)
	}

	if !useDisplayNames {
		for i := range resolved {
			resolved[i].DisplayName = resolved[i].Name
		}
		return resolved
	}

	DedupeDisplayNames(resolved)
	return resolved
}

// DedupeDisplayNames suffixes every member of a colliding display-name group
// with "_" + internal name, in place. Suffixing can itself produce a new
// collision (e.g. "X"+"_a" against an existing "X_a"), so passes repeat until
// the set is unique. Names fixed by an earlier pass keep their suffix.
func DedupeDisplayNames(cols []Column) {
	// Internal names are unique per list, so members of a group always diverge.
	// The pass bound only guards against malformed input with repeated names.
	for pass := 0; pass <= len(cols); pass++ {
		counts := make(map[string]int, len(cols))
		for _, c := range cols {
			counts[c.DisplayName]++
		}

		changed := false
		for i := range cols {
			if counts[cols[i].DisplayName] > 1 {
				cols[i].DisplayName = cols[i].DisplayName + "_" + cols[i].Name
				changed = true
			}
		}
		if !changed {
			return
		}
	}
}
