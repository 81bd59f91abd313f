package sharepoint

// Site represents a SharePoint site addressed by hostname and relative path.
type Site struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	DisplayName  string `json:"displayName"`
	WebURL       string `json:"webUrl"`
	Hostname     string `json:"-"`
	RelativePath string `json:"-"`
}

// Location renders the hostname/path pair used in log and error messages.
func (s *Site) Location() string {
	return JoinLocation(s.Hostname, s.RelativePath)
}

// JoinLocation joins a hostname and a site relative path with a single slash.
func JoinLocation(hostname, relPath string) string {
	for len(relPath) > 0 && relPath[0] == '/' {
		relPath = relPath[1:]
	}
	if relPath == "" {
		return hostname
	}
	return hostname + "/" + relPath
}

// IdentitySet is the Graph "who did it" envelope; only the user is kept.
type IdentitySet struct {
	User *Identity `json:"user,omitempty"`
}

// Identity is a user or application reference.
type Identity struct {
	ID          string `json:"id,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
	Email       string `json:"email,omitempty"`
}

// List represents a SharePoint list scoped to a site.
// Output rows are identified by (ID, WebURL).
type List struct {
	ID                   string      `json:"id"`
	Name                 string      `json:"name"`
	DisplayName          string      `json:"displayName"`
	Description          string      `json:"description"`
	ETag                 string      `json:"eTag"`
	CreatedDateTime      string      `json:"createdDateTime"`
	LastModifiedDateTime string      `json:"lastModifiedDateTime"`
	WebURL               string      `json:"webUrl"`
	CreatedBy            IdentitySet `json:"createdBy"`
}

// CreatorDisplayName flattens createdBy.user.displayName, empty when absent.
func (l *List) CreatorDisplayName() string {
	if l.CreatedBy.User == nil {
		return ""
	}
	return l.CreatedBy.User.DisplayName
}
