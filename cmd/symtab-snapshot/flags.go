package main

import (
	"encoding/json"
	"io"
	"strings"

	flag "github.com/spf13/pflag"

	"github.com/DeusData/symtab-snapshot/internal/pipeline"
)

// orgFlags selects the org and container a command works on.
type orgFlags struct {
	OrgID       string
	Namespace   string
	ContainerID string
}

func (o *orgFlags) flagSet() *flag.FlagSet {
	fs := flag.NewFlagSet("org", flag.ContinueOnError)
	fs.StringVar(&o.OrgID, "org", "", "org id (overrides org.id)")
	fs.StringVar(&o.Namespace, "namespace", "", "org namespace (overrides org.namespace)")
	fs.StringVar(&o.ContainerID, "container", "", "input container id")
	return fs
}

// apply overlays non-empty flags on configured pipeline options.
func (o *orgFlags) apply(opts *pipeline.Options) {
	if v := strings.TrimSpace(o.OrgID); v != "" {
		opts.OrgID = v
	}
	if v := strings.TrimSpace(o.Namespace); v != "" {
		opts.OrgNamespace = v
	}
	if v := strings.TrimSpace(o.ContainerID); v != "" {
		opts.ContainerID = v
	}
}

func jsonEncoder(w io.Writer) *json.Encoder {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc
}
