package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ternarybob/arbor"

	"github.com/okzoomer/okzoomer/internal/common"
)

// configPaths is a custom flag type that allows multiple -config flags
type configPaths []string

func (c *configPaths) String() string {
	return fmt.Sprintf("%v", *c)
}

func (c *configPaths) Set(value string) error {
	*c = append(*c, value)
	return nil
}

var (
	// Command-line flags
	configFiles  configPaths // Multiple -config flags supported
	headful      = flag.Bool("headful", false, "Run the browser with a visible window")
	manual2FA    = flag.Bool("manual-2fa", false, "Wait for a manual Duo approval instead of submitting a passcode")
	rosterPath   = flag.String("input", "", "Roster CSV for matching recordings to students (recording-links)")
	outputPath   = flag.String("output", "meetings.csv", "Output CSV path (recording-links with -input)")
	deviceName   = flag.String("device-name", "", "Name for the enrolled Duo device (duo-enroll)")
	showVersion  = flag.Bool("version", false, "Print version information")
	showVersionV = flag.Bool("v", false, "Print version information (shorthand)")

	// Global state
	config     *common.Config
	configPath string
	logger     arbor.ILogger
)

func init() {
	// Register custom flag for multiple config files
	flag.Var(&configFiles, "config", "Configuration file path (can be specified multiple times, later files override earlier ones)")
	flag.Var(&configFiles, "c", "Configuration file path (shorthand)")
}

func usage() {
	fmt.Fprintf(os.Stderr, `ok-zoomer: automation for CalNet-authenticated Zoom workflows

Usage: %s [flags] <command> [args]

Commands:
  check                      verify configured CalNet credentials
  duo-enroll <payload|file>  activate a Duo device from an activation code or QR image
  recording-links            batch-fetch Zoom recording share links
  version                    print version information

Flags:
`, os.Args[0])
	flag.PrintDefaults()
}

func main() {
	flag.Usage = usage
	flag.Parse()

	if *showVersion || *showVersionV {
		fmt.Printf("ok-zoomer version %s\n", common.GetFullVersion())
		os.Exit(0)
	}

	// Startup sequence (REQUIRED ORDER):
	// 1. Load config (defaults -> file1 -> file2 -> ... -> env)
	// 2. Apply CLI overrides (highest priority)
	// 3. Initialize logger
	// 4. Print banner

	// Auto-discover config file if not specified
	if len(configFiles) == 0 {
		if _, err := os.Stat("okzoomer.toml"); err == nil {
			configFiles = append(configFiles, "okzoomer.toml")
		}
	}

	var err error
	config, err = common.LoadFromFiles(configFiles...)
	if err != nil {
		tempLogger := arbor.NewLogger()
		tempLogger.Fatal().Strs("paths", configFiles).Err(err).Msg("Failed to load configuration")
		os.Exit(1)
	}

	// OTP counter advances write back to the first config file
	configPath = "okzoomer.toml"
	if len(configFiles) > 0 {
		configPath = configFiles[0]
	}

	if *headful {
		config.Browser.Headless = false
	}
	if *manual2FA {
		config.CalNet.Duo.Manual = true
	}

	common.InstallCrashHandler("")
	defer common.RecoverWithCrashFile()

	logger = common.InitLogger(config)
	common.PrintBanner(common.GetVersion())

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	switch flag.Arg(0) {
	case "check":
		err = runCheck(ctx)
	case "duo-enroll":
		err = runDuoEnroll(ctx, flag.Arg(1))
	case "recording-links":
		err = runRecordingLinks(ctx)
	case "version":
		fmt.Printf("ok-zoomer version %s\n", common.GetFullVersion())
	case "":
		usage()
		os.Exit(2)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", flag.Arg(0))
		usage()
		os.Exit(2)
	}

	if err != nil {
		logger.Error().Err(err).Msg("Command failed")
		os.Exit(1)
	}
}
