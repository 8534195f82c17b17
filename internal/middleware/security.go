package middleware

import (
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
)

// SecurityConfig lists the response headers every API response carries.
type SecurityConfig struct {
	HSTS                  bool
	HSTSMaxAge            int
	HSTSIncludeSubdomains bool
	FrameOptions          string
	ContentTypeOptions    string
	ReferrerPolicy        string
	CrossOriginResource   string
	CSPDirectives         []string
	// NoStore forbids caching. Responses carry patient data and differ per
	// bearer token, so shared caches must never keep them.
	NoStore bool
}

// DefaultSecurityConfig suits a JSON-only API.
func DefaultSecurityConfig() SecurityConfig {
	return SecurityConfig{
		HSTS:                  true,
		HSTSMaxAge:            31536000,
		HSTSIncludeSubdomains: true,
		FrameOptions:          "DENY",
		ContentTypeOptions:    "nosniff",
		ReferrerPolicy:        "no-referrer",
		CrossOriginResource:   "same-origin",
		CSPDirectives: []string{
			"default-src 'none'",
			"frame-ancestors 'none'",
		},
		NoStore: true,
	}
}

// SecurityHeaders sets the headers before the handler runs so error
// responses written by later middleware carry them too.
func SecurityHeaders(config SecurityConfig) gin.HandlerFunc {
	csp := strings.Join(config.CSPDirectives, "; ")
	hsts := fmt.Sprintf("max-age=%d", config.HSTSMaxAge)
	if config.HSTSIncludeSubdomains {
		hsts += "; includeSubDomains"
	}

	return func(c *gin.Context) {
		h := c.Writer.Header()
		if config.HSTS {
			h.Set("Strict-Transport-Security", hsts)
		}
		h.Set("X-Frame-Options", config.FrameOptions)
		h.Set("X-Content-Type-Options", config.ContentTypeOptions)
		h.Set("Referrer-Policy", config.ReferrerPolicy)
		if config.CrossOriginResource != "" {
			h.Set("Cross-Origin-Resource-Policy", config.CrossOriginResource)
		}
		if csp != "" {
			h.Set("Content-Security-Policy", csp)
		}
		if config.NoStore {
			h.Set("Cache-Control", "no-store")
			h.Set("Pragma", "no-cache")
			h.Add("Vary", "Authorization")
		}

		c.Next()
	}
}
