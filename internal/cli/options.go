package cli

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"pos_data_layer/internal/config"
)

var ErrUnknownCommand = errors.New("unknown command")

type Options struct {
	Backend     string
	SupabaseURL string
	SupabaseKey string
	DatabaseURL string
	JSON        bool
	Debug       bool
	LogFile     string
	Timeout     time.Duration
	LLMBaseURL  string
	LLMAPIKey   string
	LLMModel    string

	Command string
	Args    []string

	set map[string]bool
}

// ParseArgs reads the global flags and the command name. Only flags given on
// the command line override the loaded configuration.
func ParseArgs(args []string) (Options, error) {
	return parseArgs(args, os.Stderr)
}

func parseArgs(args []string, output io.Writer) (Options, error) {
	defaults := config.Default()
	opts := Options{}
	var timeoutSeconds int

	fs := flag.NewFlagSet("pos-cli", flag.ContinueOnError)
	fs.SetOutput(output)
	fs.Usage = func() {
		fmt.Fprintf(output, "Usage: %s [flags] <command> [command flags]\n\nCommands:\n", fs.Name())
		for _, name := range commandNames() {
			fmt.Fprintf(output, "  %-16s %s\n", name, commands[name].summary)
		}
		fmt.Fprintln(output, "\nFlags:")
		fs.PrintDefaults()
	}

	fs.StringVar(&opts.Backend, "backend", defaults.Backend, "Backend kind: rest, postgres or memory (BACKEND)")
	fs.StringVar(&opts.SupabaseURL, "url", defaults.SupabaseURL, "Supabase project URL (SUPABASE_URL)")
	fs.StringVar(&opts.SupabaseKey, "key", "", "Supabase anon key (SUPABASE_ANON_KEY)")
	fs.StringVar(&opts.DatabaseURL, "db", "", "Postgres connection string for -backend=postgres (DATABASE_URL)")
	fs.BoolVar(&opts.JSON, "json", false, "Output JSON format")
	fs.BoolVar(&opts.Debug, "debug", defaults.Debug, "Enable debug logging")
	fs.StringVar(&opts.LogFile, "log-file", defaults.LogFile, "Log file path")
	fs.IntVar(&timeoutSeconds, "timeout", int(defaults.Timeout.Seconds()), "Timeout in seconds")
	fs.StringVar(&opts.LLMBaseURL, "llm-base-url", "", "LLM base URL (LLM_BASE_URL)")
	fs.StringVar(&opts.LLMAPIKey, "llm-api-key", "", "LLM API key (LLM_API_KEY)")
	fs.StringVar(&opts.LLMModel, "llm-model", "", "LLM model (LLM_MODEL)")

	if err := fs.Parse(args); err != nil {
		return Options{}, err
	}

	if timeoutSeconds > 0 {
		opts.Timeout = time.Duration(timeoutSeconds) * time.Second
	}

	opts.set = map[string]bool{}
	fs.Visit(func(f *flag.Flag) { opts.set[f.Name] = true })

	rest := fs.Args()
	if len(rest) == 0 {
		fs.Usage()
		return Options{}, flag.ErrHelp
	}
	opts.Command = strings.TrimSpace(rest[0])
	opts.Args = rest[1:]
	if _, ok := commands[opts.Command]; !ok {
		return Options{}, fmt.Errorf("%w: %s", ErrUnknownCommand, opts.Command)
	}

	return opts, nil
}

// Apply overrides cfg with the flags that were set explicitly.
func (o Options) Apply(cfg config.Config) config.Config {
	if o.set["backend"] {
		cfg.Backend = o.Backend
	}
	if o.set["url"] {
		cfg.SupabaseURL = o.SupabaseURL
	}
	if o.set["key"] {
		cfg.SupabaseAnonKey = o.SupabaseKey
	}
	if o.set["db"] {
		cfg.DatabaseURL = o.DatabaseURL
	}
	if o.set["debug"] {
		cfg.Debug = o.Debug
	}
	if o.set["log-file"] {
		cfg.LogFile = o.LogFile
	}
	if o.set["timeout"] && o.Timeout > 0 {
		cfg.Timeout = o.Timeout
	}
	if o.set["llm-base-url"] {
		cfg.LLMBaseURL = o.LLMBaseURL
	}
	if o.set["llm-api-key"] {
		cfg.LLMAPIKey = o.LLMAPIKey
	}
	if o.set["llm-model"] {
		cfg.LLMModel = o.LLMModel
	}
	return cfg
}
