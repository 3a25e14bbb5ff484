package config

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/Hellohistory/ErrorFile/prefilter"
)

// Version is reported by --version.
const Version = "1.0.0"

type Config struct {
	Paths               []string          `json:"paths"`
	Mode                string            `json:"mode"`
	Workers             int               `json:"workers"`
	ProcessPool         bool              `json:"process_pool"`
	StagedDeep          bool              `json:"staged_deep"`
	StagedExtensions    []string          `json:"staged_extensions"`
	UseCache            bool              `json:"use_cache"`
	CacheSize           int               `json:"cache_size"`
	SignaturePrecheck   bool              `json:"signature_precheck"`
	PrecheckAllowlist   []string          `json:"precheck_allowlist"`
	PrecheckDenylist    []string          `json:"precheck_denylist"`
	IncludePatterns     []string          `json:"include_patterns"`
	ExcludePatterns     []string          `json:"exclude_patterns"`
	SkipHidden          bool              `json:"skip_hidden"`
	FollowSymlinks      bool              `json:"follow_symlinks"`
	MaxFileSize         int64             `json:"max_file_size"`
	OutputFileName      string            `json:"output_file_name"`
	OutputFormat        string            `json:"output_format"`
	OnlyFailures        bool              `json:"only_failures"`
	MaxOutputFileSize   int64             `json:"max_output_file_size"`
	Progress            bool              `json:"progress"`
	LogLevel            string            `json:"log_level"`
	MaxPerSecond        int               `json:"max_per_second"`
	AutoTune            bool              `json:"auto_tune"`
	AutoTuneInterval    time.Duration     `json:"auto_tune_interval"`
	AutoTuneTargetCPU   float64           `json:"auto_tune_target_cpu"`
	FailExitCode        int               `json:"fail_exit_code"`
	DiagStallThreshold  time.Duration     `json:"diag_stall_threshold"`
	DiagDir             string            `json:"diag_dir"`
	OtelEndpoint        string            `json:"otel_endpoint"`
	OtelHeaders         map[string]string `json:"otel_headers"`
	OtelServiceName     string            `json:"otel_service_name"`
	OtelTimeout         time.Duration     `json:"otel_timeout"`
	OtelExportPaths     bool              `json:"otel_export_paths"`
	TraceFile           string            `json:"trace_file"`
	TraceFlight         bool              `json:"trace_flight"`
	TraceFlightFile     string            `json:"trace_flight_file"`
	TraceFlightMaxBytes uint64            `json:"trace_flight_max_bytes"`
	TraceFlightMinAge   time.Duration     `json:"trace_flight_min_age"`
	ConfigFile          string            `json:"-"`
	WorkersSet          bool              `json:"-"`
}

// LoadConfig parses the command line. Paths come from positional arguments
// or --path; a JSON file named by --config supplies values that explicit
// flags then override.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Mode:              "deep",
		Workers:           runtime.NumCPU(),
		UseCache:          true,
		CacheSize:         1024,
		SignaturePrecheck: true,
		IncludePatterns:   []string{},
		ExcludePatterns:   []string{},
		OutputFormat:      "json",
		MaxOutputFileSize: 104857600,
		LogLevel:          "info",
		AutoTune:          false,
		AutoTuneInterval:  5 * time.Second,
		AutoTuneTargetCPU: 60,
		FailExitCode:      1,
		DiagDir:           ".",
		OtelHeaders:       map[string]string{},
		OtelServiceName:   "errorfile",
		OtelTimeout:       5 * time.Second,
		TraceFlightFile:   "trace-flight.out",
	}

	paths := flag.String("path", "", "Comma-separated list of files or directories to inspect (positional arguments are appended).")
	mode := flag.String("mode", cfg.Mode, fmt.Sprintf("Inspection mode: fast or deep (default: %s).", cfg.Mode))
	workers := flag.Int("workers", cfg.Workers, fmt.Sprintf("Number of concurrent inspections (default: %d).", cfg.Workers))
	processPool := flag.Bool("process-pool", cfg.ProcessPool, "Inspect each file in a child process; disables the result cache (default: false).")
	stagedDeep := flag.Bool("staged-deep", cfg.StagedDeep, "Run the fast check before the deep check for expensive formats (default: false).")
	stagedExtensions := flag.String("staged-extensions", "", "Comma-separated extensions eligible for staged deep checks (default: built-in list).")
	useCache := flag.Bool("cache", cfg.UseCache, fmt.Sprintf("Cache results by path, size and mtime (default: %t).", cfg.UseCache))
	cacheSize := flag.Int("cache-size", cfg.CacheSize, fmt.Sprintf("Maximum cached results (default: %d).", cfg.CacheSize))
	precheck := flag.Bool("signature-precheck", cfg.SignaturePrecheck, fmt.Sprintf("Reject files whose leading bytes do not match their extension (default: %t).", cfg.SignaturePrecheck))
	allowlist := flag.String("precheck-allow", "", "Comma-separated extensions the signature precheck is limited to (default: all).")
	denylist := flag.String("precheck-deny", "", "Comma-separated extensions the signature precheck skips (default: none).")
	includes := flag.String("include", "", "Comma-separated list of include patterns (default: none).")
	excludes := flag.String("exclude", "", "Comma-separated list of exclude patterns (default: none).")
	skipHidden := flag.Bool("skip-hidden", cfg.SkipHidden, "Skip dot files and dot directories while walking (default: false).")
	followSymlinks := flag.Bool("follow-symlinks", cfg.FollowSymlinks, "Inspect symlinked files whose target stays under a scanned root (default: false).")
	maxFileSize := flag.Int64("max-file-size", cfg.MaxFileSize, "Skip walked files larger than this many bytes (default: 0, unlimited).")
	output := flag.String("output", cfg.OutputFileName, "Output file name (default: stdout).")
	format := flag.String("format", cfg.OutputFormat, fmt.Sprintf("Output format: json, ndjson or csv (default: %s).", cfg.OutputFormat))
	onlyFailures := flag.Bool("only-failures", cfg.OnlyFailures, "Write only failing reports (default: false).")
	maxOutputFileSize := flag.Int64("max-output-file-size", cfg.MaxOutputFileSize, fmt.Sprintf("Maximum output file size before rotation in bytes (default: %d).", cfg.MaxOutputFileSize))
	progress := flag.Bool("progress", cfg.Progress, "Show a progress bar on stderr (default: false).")
	logLevel := flag.String("log-level", cfg.LogLevel, fmt.Sprintf("Log level: debug, info, warn, error, fatal, or panic (default: %s).", cfg.LogLevel))
	maxPerSecond := flag.Int("max-per-second", cfg.MaxPerSecond, "Maximum inspections started per second (default: 0, unlimited).")
	autoTune := flag.Bool("auto-tune", cfg.AutoTune, fmt.Sprintf("Adjust the inspection rate to a CPU target (default: %t).", cfg.AutoTune))
	autoTuneInterval := flag.Duration("auto-tune-interval", cfg.AutoTuneInterval, "Auto-tune interval (default: 5s).")
	autoTuneTargetCPU := flag.Float64("auto-tune-target-cpu", cfg.AutoTuneTargetCPU, "Auto-tune target CPU percent (default: 60).")
	failExitCode := flag.Int("fail-exit-code", cfg.FailExitCode, fmt.Sprintf("Exit code when any report fails (default: %d).", cfg.FailExitCode))
	diagStall := flag.Duration(
		"diag-stall-threshold",
		cfg.DiagStallThreshold,
		"If positive, emit diagnostics when no inspection completes for this duration (default: 0/off).",
	)
	diagDir := flag.String("diag-dir", cfg.DiagDir, "Diagnostics output directory (default: current directory).")
	otelEndpoint := flag.String("otel-endpoint", cfg.OtelEndpoint, "OTLP/HTTP logs endpoint (default: none).")
	otelHeaders := flag.String("otel-headers", "", "Comma-separated OTEL headers (key=value) for export (default: none).")
	otelServiceName := flag.String("otel-service-name", cfg.OtelServiceName, "OTEL service name for export (default: errorfile).")
	otelTimeout := flag.Duration("otel-timeout", cfg.OtelTimeout, "OTEL export timeout (default: 5s).")
	otelExportPaths := flag.Bool("otel-export-paths", cfg.OtelExportPaths, "Include file paths in OTEL payloads (default: false).")
	traceFile := flag.String("trace", cfg.TraceFile, "Write a runtime execution trace to this file (default: none).")
	traceFlight := flag.Bool("trace-flight", cfg.TraceFlight, fmt.Sprintf("Enable flight recorder tracing (default: %t).", cfg.TraceFlight))
	traceFlightFile := flag.String("trace-flight-file", cfg.TraceFlightFile, fmt.Sprintf("Flight recorder output file (default: %s).", cfg.TraceFlightFile))
	traceFlightMaxBytes := flag.Uint64("trace-flight-max-bytes", cfg.TraceFlightMaxBytes, "Max bytes for flight recorder buffer (default: 0 for runtime default).")
	traceFlightMinAge := flag.Duration("trace-flight-min-age", cfg.TraceFlightMinAge, "Minimum age of trace events to retain (default: 0).")
	configFile := flag.String("config", "", "Path to JSON configuration file (default: none).")
	showVersion := flag.Bool("version", false, "Print version and exit")

	flag.Usage = displayHelp
	flag.Parse()

	if *showVersion {
		fmt.Printf("ErrorFile version %s\n", Version)
		os.Exit(0)
	}

	if *configFile != "" {
		cfg.ConfigFile = *configFile
		if err := cfg.loadFromFile(cfg.ConfigFile); err != nil {
			return nil, err
		}
	}

	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "path":
			cfg.Paths = parseCommaSeparated(*paths)
		case "mode":
			cfg.Mode = *mode
		case "workers":
			cfg.Workers = *workers
			cfg.WorkersSet = true
		case "process-pool":
			cfg.ProcessPool = *processPool
		case "staged-deep":
			cfg.StagedDeep = *stagedDeep
		case "staged-extensions":
			cfg.StagedExtensions = parseCommaSeparated(*stagedExtensions)
		case "cache":
			cfg.UseCache = *useCache
		case "cache-size":
			cfg.CacheSize = *cacheSize
		case "signature-precheck":
			cfg.SignaturePrecheck = *precheck
		case "precheck-allow":
			cfg.PrecheckAllowlist = parseCommaSeparated(*allowlist)
		case "precheck-deny":
			cfg.PrecheckDenylist = parseCommaSeparated(*denylist)
		case "include":
			cfg.IncludePatterns = parseCommaSeparated(*includes)
		case "exclude":
			cfg.ExcludePatterns = parseCommaSeparated(*excludes)
		case "skip-hidden":
			cfg.SkipHidden = *skipHidden
		case "follow-symlinks":
			cfg.FollowSymlinks = *followSymlinks
		case "max-file-size":
			cfg.MaxFileSize = *maxFileSize
		case "output":
			cfg.OutputFileName = *output
		case "format":
			cfg.OutputFormat = *format
		case "only-failures":
			cfg.OnlyFailures = *onlyFailures
		case "max-output-file-size":
			cfg.MaxOutputFileSize = *maxOutputFileSize
		case "progress":
			cfg.Progress = *progress
		case "log-level":
			cfg.LogLevel = *logLevel
		case "max-per-second":
			cfg.MaxPerSecond = *maxPerSecond
		case "auto-tune":
			cfg.AutoTune = *autoTune
		case "auto-tune-interval":
			cfg.AutoTuneInterval = *autoTuneInterval
		case "auto-tune-target-cpu":
			cfg.AutoTuneTargetCPU = *autoTuneTargetCPU
		case "fail-exit-code":
			cfg.FailExitCode = *failExitCode
		case "diag-stall-threshold":
			cfg.DiagStallThreshold = *diagStall
		case "diag-dir":
			cfg.DiagDir = strings.TrimSpace(*diagDir)
		case "otel-endpoint":
			cfg.OtelEndpoint = strings.TrimSpace(*otelEndpoint)
		case "otel-headers":
			cfg.OtelHeaders = parseHeaders(*otelHeaders)
		case "otel-service-name":
			cfg.OtelServiceName = strings.TrimSpace(*otelServiceName)
		case "otel-timeout":
			cfg.OtelTimeout = *otelTimeout
		case "otel-export-paths":
			cfg.OtelExportPaths = *otelExportPaths
		case "trace":
			cfg.TraceFile = *traceFile
		case "trace-flight":
			cfg.TraceFlight = *traceFlight
		case "trace-flight-file":
			cfg.TraceFlightFile = *traceFlightFile
		case "trace-flight-max-bytes":
			cfg.TraceFlightMaxBytes = *traceFlightMaxBytes
		case "trace-flight-min-age":
			cfg.TraceFlightMinAge = *traceFlightMinAge
		}
	})
	cfg.Paths = append(cfg.Paths, flag.Args()...)
	cfg.normalize()

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func displayHelp() {
	fmt.Println("ErrorFile - file integrity inspector")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  errorfile [options] <path>...")
	fmt.Println()
	fmt.Println("Options:")
	flag.PrintDefaults()
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  errorfile --mode fast ./downloads")
	fmt.Println("  errorfile --staged-deep --format ndjson --output report.ndjson /srv/archive")
	fmt.Println("  errorfile --only-failures --exclude \"*.tmp\" photo.jpg backup.zip")
}

func (cfg *Config) loadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("could not read config file: %v", err)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("invalid config file format: %v", err)
	}
	if _, ok := raw["workers"]; ok {
		cfg.WorkersSet = true
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("invalid config file format: %v", err)
	}
	return nil
}

func (cfg *Config) normalize() {
	cfg.Mode = strings.TrimSpace(cfg.Mode)
	cfg.OutputFormat = strings.ToLower(strings.TrimSpace(cfg.OutputFormat))
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	cfg.StagedExtensions = prefilter.NormalizeList(cfg.StagedExtensions)
	cfg.PrecheckAllowlist = prefilter.NormalizeList(cfg.PrecheckAllowlist)
	cfg.PrecheckDenylist = prefilter.NormalizeList(cfg.PrecheckDenylist)
	if cfg.Mode == "" {
		cfg.Mode = "deep"
	}
	if cfg.OutputFormat == "" {
		cfg.OutputFormat = "json"
	}
	if cfg.DiagDir == "" {
		cfg.DiagDir = "."
	}
	if cfg.TraceFlight && cfg.TraceFlightFile == "" {
		cfg.TraceFlightFile = "trace-flight.out"
	}
	if cfg.OtelServiceName == "" {
		cfg.OtelServiceName = "errorfile"
	}
}

func (cfg *Config) validate() error {
	if len(cfg.Paths) == 0 {
		return fmt.Errorf("at least one path must be given")
	}
	// Mode is matched exactly; the engine reports anything else as
	// invalid_mode per file, but the CLI refuses it up front.
	if cfg.Mode != "fast" && cfg.Mode != "deep" {
		return fmt.Errorf("invalid mode: %s (expected fast or deep)", cfg.Mode)
	}
	if cfg.Workers <= 0 {
		return fmt.Errorf("workers must be positive")
	}
	if cfg.CacheSize < 0 {
		return fmt.Errorf("cache-size must be zero or positive")
	}
	if cfg.MaxFileSize < 0 {
		return fmt.Errorf("max-file-size must be zero or positive")
	}
	if cfg.MaxOutputFileSize < 0 {
		return fmt.Errorf("max-output-file-size must be zero or positive")
	}
	switch cfg.OutputFormat {
	case "json", "ndjson", "csv":
	default:
		return fmt.Errorf("invalid output format: %s", cfg.OutputFormat)
	}
	if cfg.MaxPerSecond < 0 {
		return fmt.Errorf("max-per-second must be zero or positive")
	}
	if cfg.AutoTune {
		if cfg.AutoTuneInterval <= 0 {
			return fmt.Errorf("auto-tune-interval must be positive")
		}
		if cfg.AutoTuneTargetCPU <= 0 || cfg.AutoTuneTargetCPU > 100 {
			return fmt.Errorf("auto-tune-target-cpu must be between 1 and 100")
		}
	}
	if cfg.FailExitCode < 0 || cfg.FailExitCode > 125 {
		return fmt.Errorf("fail-exit-code must be between 0 and 125")
	}
	if cfg.DiagStallThreshold < 0 {
		return fmt.Errorf("diag-stall-threshold must be zero or positive")
	}
	if cfg.TraceFlightMinAge < 0 {
		return fmt.Errorf("trace-flight-min-age must be zero or positive")
	}
	if cfg.OtelTimeout < 0 {
		return fmt.Errorf("otel-timeout must be zero or positive")
	}
	if cfg.OtelEndpoint != "" {
		if !strings.HasPrefix(cfg.OtelEndpoint, "http://") && !strings.HasPrefix(cfg.OtelEndpoint, "https://") {
			return fmt.Errorf("otel-endpoint must include scheme (http or https)")
		}
	}
	if cfg.LogLevel != "debug" && cfg.LogLevel != "info" && cfg.LogLevel != "warn" &&
		cfg.LogLevel != "error" && cfg.LogLevel != "fatal" && cfg.LogLevel != "panic" {
		return fmt.Errorf("invalid log level: %s", cfg.LogLevel)
	}
	return nil
}

func parseCommaSeparated(input string) []string {
	if input == "" {
		return []string{}
	}
	items := strings.Split(input, ",")
	out := items[:0]
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func parseHeaders(input string) map[string]string {
	headers := make(map[string]string)
	if input == "" {
		return headers
	}
	for _, item := range strings.Split(input, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(item), "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		headers[key] = strings.TrimSpace(value)
	}
	return headers
}
