package spclient

import (
	"encoding/json"

	"spextract/domain/sharepoint"
)

// Page is one response of a paged collection endpoint.
type Page struct {
	Value    []json.RawMessage `json:"value"`
	NextLink string            `json:"@odata.nextLink,omitempty"`
}

// HasNext reports whether another page follows. An absent nextLink is the
// only termination signal.
func (p *Page) HasNext() bool {
	return p.NextLink != ""
}

// listItemJSON is an item with its expanded fields.
type listItemJSON struct {
	ID     string          `json:"id"`
	ETag   string          `json:"eTag,omitempty"`
	Fields json.RawMessage `json:"fields"`
}

// columnJSON mirrors the columnDefinition resource.
type columnJSON struct {
	Name          string                          `json:"name"`
	DisplayName   string                          `json:"displayName"`
	Description   string                          `json:"description"`
	PersonOrGroup *sharepoint.PersonOrGroupColumn `json:"personOrGroup,omitempty"`
}

func (c columnJSON) toDomain() sharepoint.Column {
	return sharepoint.Column{
		Name:          c.Name,
		DisplayName:   c.DisplayName,
		Description:   c.Description,
		PersonOrGroup: c.PersonOrGroup,
	}
}
