package postgres

import (
	"fmt"
	"net/url"

	"github.com/ekaya-inc/ekaya-ask/pkg/config"
	"github.com/ekaya-inc/ekaya-ask/pkg/models"
)

// DefaultSSLMode is used when a target does not set ssl_mode.
const DefaultSSLMode = "require"

// buildConnectionString builds a PostgreSQL URL with proper escaping.
// All user-provided fields are URL-escaped so special characters in
// passwords (e.g., @, /, #, ?) cannot break URL parsing.
func buildConnectionString(target models.TargetDescriptor) string {
	sslMode := target.SSLMode
	if sslMode == "" {
		sslMode = DefaultSSLMode
	}

	query := url.Values{}
	query.Set("sslmode", sslMode)
	for k, v := range target.Options {
		query.Set(k, v)
	}

	return fmt.Sprintf(
		"postgresql://%s:%s@%s:%d/%s?%s",
		url.QueryEscape(target.User),
		url.QueryEscape(target.Password()),
		config.ResolveHostForDocker(target.Host),
		target.Port,
		url.PathEscape(target.Database),
		query.Encode(),
	)
}
