package spclient

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"spextract/domain/sharepoint"
)

// buildURL joins a relative endpoint onto the base URL and merges params.
// Absolute URLs (continuation links) are returned unchanged and params are
// ignored for them.
func buildURL(base, endpoint string, params url.Values) (string, error) {
	if strings.HasPrefix(endpoint, "https://") || strings.HasPrefix(endpoint, "http://") {
		return endpoint, nil
	}

	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse base url %q: %w", base, err)
	}
	rel, err := url.Parse(strings.TrimPrefix(endpoint, "/"))
	if err != nil {
		return "", fmt.Errorf("parse endpoint %q: %w", endpoint, err)
	}
	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	u = u.ResolveReference(rel)

	if len(params) > 0 {
		q := u.Query()
		for k, vs := range params {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// escapePath escapes each segment of a site relative path, keeping slashes.
func escapePath(p string) string {
	segments := strings.Split(strings.Trim(p, "/"), "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.Join(segments, "/")
}

// siteEndpoint addresses a site by hostname and server relative path.
func siteEndpoint(hostname, relPath string) string {
	path := escapePath(relPath)
	if path == "" {
		return "sites/" + url.PathEscape(hostname)
	}
	return "sites/" + url.PathEscape(hostname) + ":/" + path
}

// decodeItemFields unpacks an item's fields with numbers kept verbatim. The
// item id is copied into the fields when the payload leaves it out.
func decodeItemFields(raw json.RawMessage) (sharepoint.ItemFields, error) {
	var item listItemJSON
	if err := json.Unmarshal(raw, &item); err != nil {
		return nil, fmt.Errorf("decode list item: %w", err)
	}

	fields := sharepoint.ItemFields{}
	if len(item.Fields) > 0 && string(item.Fields) != "null" {
		dec := json.NewDecoder(strings.NewReader(string(item.Fields)))
		dec.UseNumber()
		if err := dec.Decode(&fields); err != nil {
			return nil, fmt.Errorf("decode fields of item %s: %w", item.ID, err)
		}
	}
	if _, ok := fields[sharepoint.ItemIDField]; !ok && item.ID != "" {
		fields[sharepoint.ItemIDField] = item.ID
	}
	return fields, nil
}
