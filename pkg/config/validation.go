package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	// Report fields by their config key rather than the Go field name.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("mapstructure"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks cfg against its struct tags and the cross-field rules
// that tags cannot express.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, describe(fe))
			}
			return errors.New(strings.Join(msgs, "; "))
		}
		return err
	}

	if cfg.Metrics.Enabled && !cfg.API.Enabled {
		return fmt.Errorf("metrics.enabled requires api.enabled: metrics are served on the API port")
	}
	if cfg.Server.ChunkSize > cfg.Server.MaxFileSize {
		return fmt.Errorf("server.chunk_size (%s) exceeds server.max_file_size (%s)",
			cfg.Server.ChunkSize, cfg.Server.MaxFileSize)
	}
	return nil
}

// describe turns a field error into a one-line message keyed by the dotted
// config path, e.g. "server.max_workers: must be at least 1".
func describe(fe validator.FieldError) string {
	key := fe.Namespace()
	if i := strings.IndexByte(key, '.'); i >= 0 {
		key = key[i+1:] // drop the root struct name
	}

	switch fe.Tag() {
	case "required", "required_if":
		return fmt.Sprintf("%s: is required", key)
	case "oneof":
		return fmt.Sprintf("%s: must be one of [%s], got %q", key, fe.Param(), fmt.Sprint(fe.Value()))
	case "min", "gte":
		return fmt.Sprintf("%s: must be at least %s", key, fe.Param())
	case "max", "lte":
		return fmt.Sprintf("%s: must be at most %s", key, fe.Param())
	case "gt":
		return fmt.Sprintf("%s: must be greater than %s", key, fe.Param())
	case "gtefield":
		return fmt.Sprintf("%s: must not be less than %s", key, fe.Param())
	case "ip":
		return fmt.Sprintf("%s: must be an IP address", key)
	case "url":
		return fmt.Sprintf("%s: must be a URL", key)
	default:
		return fmt.Sprintf("%s: failed %q validation", key, fe.Tag())
	}
}
