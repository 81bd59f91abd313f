package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"spextract/domain/extraction"
	"spextract/infrastructure/tablewriter"
)

// Environment variables that override the authorization block, so secrets
// can stay out of the job file.
var authorizationEnv = map[string]string{
	"authorization.app_key":       "SPX_APP_KEY",
	"authorization.app_secret":    "SPX_APP_SECRET",
	"authorization.refresh_token": "SPX_REFRESH_TOKEN",
	"authorization.api_token":     "SPX_API_TOKEN",
}

// LoadJobConfig reads a JSON or YAML job file, applies environment overrides
// and validates the result. Every failure is a ConfigurationError.
func LoadJobConfig(path string) (*extraction.JobConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	for key, env := range authorizationEnv {
		if err := v.BindEnv(key, env); err != nil {
			return nil, &extraction.ConfigurationError{Field: key, Reason: "cannot bind environment override", Err: err}
		}
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, &extraction.ConfigurationError{Field: "config", Reason: fmt.Sprintf("cannot read job configuration %s", path), Err: err}
	}

	var cfg extraction.JobConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, &extraction.ConfigurationError{Field: "config", Reason: "malformed job configuration", Err: err}
	}

	if err := ValidateJobConfig(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// JobValidator validates job configurations.
type JobValidator struct {
	validate *validator.Validate
}

// NewJobValidator creates a validator with the extractor's custom rules.
func NewJobValidator() *JobValidator {
	v := validator.New()

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("mapstructure"), ",", 2)[0]
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})

	_ = v.RegisterValidation("tablename", func(fl validator.FieldLevel) bool {
		return tablewriter.ValidTableName(fl.Field().String())
	})

	v.RegisterStructValidation(func(sl validator.StructLevel) {
		auth := sl.Current().Interface().(extraction.Authorization)
		if auth.APIToken != "" {
			return
		}
		if auth.AppKey == "" {
			sl.ReportError(auth.AppKey, "app_key", "AppKey", "required_without_api_token", "")
		}
		if auth.AppSecret == "" {
			sl.ReportError(auth.AppSecret, "app_secret", "AppSecret", "required_without_api_token", "")
		}
	}, extraction.Authorization{})

	return &JobValidator{validate: v}
}

// Validate checks cfg and reports every violation in one ConfigurationError.
func (jv *JobValidator) Validate(cfg *extraction.JobConfig) error {
	err := jv.validate.Struct(cfg)
	if err == nil {
		return checkUniqueTables(cfg)
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return &extraction.ConfigurationError{Field: "config", Err: err}
	}

	fields := make([]string, 0, len(verrs))
	reasons := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.TrimPrefix(fe.Namespace(), "JobConfig.")
		fields = append(fields, field)
		reasons = append(reasons, describe(field, fe))
	}
	return &extraction.ConfigurationError{
		Field:  strings.Join(fields, ", "),
		Reason: strings.Join(reasons, "; "),
	}
}

// ValidateJobConfig validates cfg with a default validator.
func ValidateJobConfig(cfg *extraction.JobConfig) error {
	return NewJobValidator().Validate(cfg)
}

func describe(field string, fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "min":
		return fmt.Sprintf("%s needs at least %s entries", field, fe.Param())
	case "hostname":
		return fmt.Sprintf("%s %q is not a hostname", field, fe.Value())
	case "tablename":
		return fmt.Sprintf("%s %q is not a valid table name", field, fe.Value())
	case "required_without_api_token":
		return field + " is required unless api_token is set"
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}

// checkUniqueTables rejects jobs where two lists would write the same table.
func checkUniqueTables(cfg *extraction.JobConfig) error {
	seen := make(map[string]int, len(cfg.Parameters.Lists))
	for i, l := range cfg.Parameters.Lists {
		name := l.LoadSetup.ResultTableName
		if prev, dup := seen[name]; dup {
			return &extraction.ConfigurationError{
				Field:  fmt.Sprintf("parameters.lists[%d].load_setup.result_table_name", i),
				Reason: fmt.Sprintf("table %q is already used by lists[%d]", name, prev),
			}
		}
		seen[name] = i
	}
	return nil
}
