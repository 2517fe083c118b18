package config

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/pders01/newsroom/internal/validation"
)

// ValidationError lists every invalid key, named by its config path.
type ValidationError struct {
	Errors map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Errors))
	for k := range e.Errors {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	messages := make([]string, 0, len(keys))
	for _, k := range keys {
		messages = append(messages, fmt.Sprintf("%s: %s", k, e.Errors[k]))
	}
	return "invalid config: " + strings.Join(messages, ", ")
}

// Accepted by debuglog.ParseLogLevel; empty means INFO.
var logLevels = map[string]bool{
	"": true, "DEBUG": true, "INFO": true, "WARN": true, "WARNING": true, "ERROR": true, "OFF": true,
}

func newValidator() *validator.Validate {
	validate := validator.New()

	// Report mapstructure names so messages match the TOML keys.
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("mapstructure"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	_ = validate.RegisterValidation("loglevel", func(fl validator.FieldLevel) bool {
		return logLevels[strings.ToUpper(strings.TrimSpace(fl.Field().String()))]
	})

	return validate
}

// Validate checks field constraints and normalizes every feed URL in place.
func Validate(cfg *Config) error {
	verr := &ValidationError{Errors: map[string]string{}}

	if err := newValidator().Struct(cfg); err != nil {
		fieldErrs, ok := err.(validator.ValidationErrors)
		if !ok {
			return fmt.Errorf("validating config: %w", err)
		}
		for _, fe := range fieldErrs {
			verr.Errors[configPath(fe.Namespace())] = message(fe)
		}
	}

	urlValidator := validation.NewFeedURLValidator()
	if cfg.Feed.AllowPrivateHosts {
		urlValidator = validation.NewPermissiveFeedURLValidator()
	}
	seen := make(map[string]bool, len(cfg.Feeds))
	for i := range cfg.Feeds {
		key := fmt.Sprintf("feeds[%d].url", i)
		if cfg.Feeds[i].URL == "" {
			continue
		}
		normalized, err := urlValidator.ValidateAndNormalize(cfg.Feeds[i].URL)
		if err != nil {
			verr.Errors[key] = err.Error()
			continue
		}
		if seen[normalized] {
			verr.Errors[key] = "duplicate feed URL"
			continue
		}
		seen[normalized] = true
		cfg.Feeds[i].URL = normalized
	}

	if len(verr.Errors) > 0 {
		return verr
	}
	return nil
}

// configPath turns "Config.oracle.timeout" into "oracle.timeout".
func configPath(namespace string) string {
	if i := strings.IndexByte(namespace, '.'); i >= 0 {
		return namespace[i+1:]
	}
	return namespace
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return "must be at least " + fe.Param()
	case "gt":
		return "must be greater than " + fe.Param()
	case "url":
		return "must be a valid URL"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "loglevel":
		return "must be one of DEBUG, INFO, WARN, ERROR, OFF"
	default:
		return "is invalid"
	}
}
