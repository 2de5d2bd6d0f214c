// Package plugin provides the CloudQuery plugin wiring for cq-source-bulk.
package plugin

import (
	"github.com/infobloxopen/cq-source-bulk/client"

	"github.com/cloudquery/plugin-sdk/v4/plugin"
)

// Version is set at build time via ldflags.
var (
	Version = "development"
)

// Plugin returns a new CloudQuery source plugin syncing bulk entities.
func Plugin() *plugin.Plugin {
	return plugin.NewPlugin(
		"cq-source-bulk",
		Version,
		client.Configure,
	)
}
