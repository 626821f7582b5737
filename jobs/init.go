package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/case-framework/case-backend/pkg/utils"
	"gopkg.in/yaml.v2"
)

// Environment variables
const (
	ENV_CONFIG_FILE_PATH = "CONFIG_FILE_PATH"

	// Variables to provide connection strings without putting them on the command line
	ENV_MONGO_URI = "MIGRATION_MONGO_URI"
	ENV_SQL_DSN   = "MIGRATION_SQL_DSN"
)

var errUsage = errors.New("missing required options")

// config holds the optional runtime settings read from ENV_CONFIG_FILE_PATH.
type config struct {
	// Logging configs
	Logging utils.LoggerConfig `json:"logging" yaml:"logging"`

	BatchSize   int    `json:"batch_size" yaml:"batch_size"`
	MarkerField string `json:"marker_field" yaml:"marker_field"`
	ModelsFile  string `json:"models_file" yaml:"models_file"`
}

// options are the command line arguments.
type options struct {
	MappingFile string
	MongoURI    string
	SQLDSN      string
	ModelsFile  string
	Verbose     bool
}

func parseArgs(args []string, stderr io.Writer) (options, error) {
	var opts options
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	fs.SetOutput(stderr)

	fs.StringVar(&opts.MappingFile, "c", "", "Collections config file")
	fs.StringVar(&opts.MappingFile, "config", "", "Collections config file")
	fs.StringVar(&opts.MongoURI, "m", os.Getenv(ENV_MONGO_URI), "Mongo connection string (env "+ENV_MONGO_URI+")")
	fs.StringVar(&opts.MongoURI, "mongo", os.Getenv(ENV_MONGO_URI), "Mongo connection string (env "+ENV_MONGO_URI+")")
	fs.StringVar(&opts.SQLDSN, "s", os.Getenv(ENV_SQL_DSN), "SQL connection string (env "+ENV_SQL_DSN+")")
	fs.StringVar(&opts.SQLDSN, "sql", os.Getenv(ENV_SQL_DSN), "SQL connection string (env "+ENV_SQL_DSN+")")
	fs.StringVar(&opts.ModelsFile, "models", "", "Destination models file (tables not listed are read from the database catalog)")
	fs.BoolVar(&opts.Verbose, "v", false, "Verbose logging")
	fs.BoolVar(&opts.Verbose, "verbose", false, "Verbose logging")

	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: %s [options]\n\n", fs.Name())
		fmt.Fprintf(fs.Output(), "Example:\n  %s -c ./collections.yaml -m mongodb://localhost/source_db -s postgres://localhost/dest_db\n\n", fs.Name())
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return opts, err
	}

	var missing []string
	if opts.MappingFile == "" {
		missing = append(missing, "-c")
	}
	if opts.MongoURI == "" {
		missing = append(missing, "-m")
	}
	if opts.SQLDSN == "" {
		missing = append(missing, "-s")
	}
	if len(missing) > 0 {
		fmt.Fprintf(fs.Output(), "Missing required arguments: %v\n", missing)
		fs.Usage()
		return opts, errUsage
	}
	return opts, nil
}

// readConfig loads the runtime settings. An empty path yields the defaults.
func readConfig(path string) (config, error) {
	var conf config
	if path == "" {
		return conf, nil
	}

	yamlFile, err := os.ReadFile(path)
	if err != nil {
		return conf, err
	}
	if err := yaml.UnmarshalStrict(yamlFile, &conf); err != nil {
		return conf, err
	}
	return conf, nil
}

func initLogger(conf config, verbose bool) {
	utils.InitLogger(
		conf.Logging.LogLevel,
		conf.Logging.IncludeSrc,
		conf.Logging.LogToFile,
		conf.Logging.Filename,
		conf.Logging.MaxSize,
		conf.Logging.MaxAge,
		conf.Logging.MaxBackups,
		conf.Logging.CompressOldLogs,
		conf.Logging.IncludeBuildInfo,
	)

	if verbose {
		enableDebug()
	}
}
