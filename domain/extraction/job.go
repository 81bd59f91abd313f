package extraction

const (
	// MetadataTableName is the output table holding one row per extracted list.
	MetadataTableName = "list_metadata"
	// DataTableSuffix is appended to result_table_name for a list's item table.
	DataTableSuffix = "_data"
)

// JobConfig is the validated job definition for one run.
type JobConfig struct {
	Parameters    Parameters    `mapstructure:"parameters"`
	Authorization Authorization `mapstructure:"authorization"`
}

// Parameters holds the extraction parameters.
type Parameters struct {
	BaseHostName string     `mapstructure:"base_host_name" validate:"required,hostname"`
	Debug        bool       `mapstructure:"debug"`
	Lists        []ListSpec `mapstructure:"lists" validate:"required,min=1,dive"`
}

// ListSpec describes one list to extract.
type ListSpec struct {
	SiteRelPath           string    `mapstructure:"site_url_rel_path"`
	ListName              string    `mapstructure:"list_name" validate:"required"`
	IncludeAdditionalCols bool      `mapstructure:"include_additional_cols"`
	UseDisplayNames       *bool     `mapstructure:"use_display_names"`
	LoadSetup             LoadSetup `mapstructure:"load_setup"`
}

// LoadSetup is consumed by the table writer, not by extraction itself.
type LoadSetup struct {
	Incremental     bool   `mapstructure:"load_mode_incremental"`
	ResultTableName string `mapstructure:"result_table_name" validate:"required,tablename"`
}

// DataTableName is the item table a list is written to. The configured
// result_table_name itself is only recorded in the metadata row.
func (l LoadSetup) DataTableName() string {
	return l.ResultTableName + DataTableSuffix
}

// DisplayNames reports whether display names should be used as output headers.
// Defaults to true when unset.
func (s ListSpec) DisplayNames() bool {
	if s.UseDisplayNames == nil {
		return true
	}
	return *s.UseDisplayNames
}

// Authorization carries the OAuth app credentials and tokens.
type Authorization struct {
	AppKey       string `mapstructure:"app_key"`
	AppSecret    string `mapstructure:"app_secret"`
	RefreshToken string `mapstructure:"refresh_token"`
	APIToken     string `mapstructure:"api_token"`
}

// UsesStaticToken reports whether a long-lived access token replaces the
// refresh_token flow.
func (a Authorization) UsesStaticToken() bool {
	return a.APIToken != "" && a.RefreshToken == ""
}

// Credential builds the initial credential from the authorization block.
func (a Authorization) Credential() Credential {
	return Credential{
		AccessToken:  a.APIToken,
		RefreshToken: a.RefreshToken,
		ClientID:     a.AppKey,
		ClientSecret: a.AppSecret,
		Scope:        DefaultScope,
	}
}
