package main

import (
	"errors"
	"flag"
	"fmt"

	"github.com/linnemanlabs/go-core/httpmw"
	"github.com/linnemanlabs/go-core/httpserver"
	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/opshttp"
	"github.com/linnemanlabs/go-core/otelx"
	"github.com/linnemanlabs/go-core/prof"

	vc "github.com/linnemanlabs/helpdesk/internal/cfg"
)

// envPrefix namespaces environment overrides, e.g. HELPDESK_CLAUDE_API_KEY.
const envPrefix = "HELPDESK_"

// config gathers the flag-registered settings of every package main wires.
type config struct {
	app    vc.Config
	http   httpserver.Config
	httpmw httpmw.Config
	log    log.Config
	ops    opshttp.Config
	prof   prof.Config
	trace  otelx.Config

	showVersion bool
}

func (c *config) registerFlags(fs *flag.FlagSet) {
	c.app.RegisterFlags(fs)
	c.http.RegisterFlags(fs)
	c.httpmw.RegisterFlags(fs)
	c.log.RegisterFlags(fs)
	c.ops.RegisterFlags(fs)
	c.prof.RegisterFlags(fs)
	c.trace.RegisterFlags(fs)
	fs.BoolVar(&c.showVersion, "V", false, "Print version+build information and exit")
}

// validate runs every package's checks plus the cross-package ones only
// main can see, and reports all problems at once.
func (c *config) validate() error {
	errs := []error{
		c.app.Validate(),
		c.http.Validate(),
		c.httpmw.Validate(),
		c.log.Validate(),
		c.ops.Validate(),
		c.prof.Validate(),
		c.trace.Validate(),
	}
	if c.app.APIPort == c.ops.Port {
		errs = append(errs, fmt.Errorf("http and admin ports must differ (both %d)", c.app.APIPort))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	return nil
}
