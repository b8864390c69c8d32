package cli

import "io"

// GlobalFlags holds flags available to all subcommands.
type GlobalFlags struct {
	DatabaseURL string `long:"database-url" env:"DATABASE_URL" description:"Postgres connection string for migrate and prune"`
	JSON        bool   `long:"json" description:"Output in JSON format"`
	Version     bool   `long:"version" description:"Show version and exit"`
}

// environment is shared by every subcommand.
type environment struct {
	globals *GlobalFlags
	version string
	stdout  io.Writer
	stdin   io.Reader
}

// ScanCommand runs the rule engine over local content.
type ScanCommand struct {
	Text   string `long:"text" description:"Inline content to scan"`
	File   string `long:"file" description:"Path of a file to scan, or - for stdin"`
	FailOn string `long:"fail-on" description:"Exit non-zero when the static score reaches this level (Low, Medium, High, Critical)"`

	env *environment
}

// MigrateCommand applies the embedded goose migrations.
type MigrateCommand struct {
	env *environment
}

// PruneCommand deletes expired url_cache rows.
type PruneCommand struct {
	env *environment
}
