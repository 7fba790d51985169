package main

import (
	"fmt"
	"os"

	"github.com/pterm/pterm"

	"github.com/jnakagawa/loggy/internal/banner"
	"github.com/jnakagawa/loggy/internal/certs"
	"github.com/jnakagawa/loggy/internal/config"
	"github.com/jnakagawa/loggy/internal/nativehost"
	"github.com/jnakagawa/loggy/internal/platform"
	"github.com/jnakagawa/loggy/internal/proxy"
)

func main() {
	cfg := config.Load()

	if len(os.Args) < 2 {
		stat, _ := os.Stdin.Stat()
		if (stat.Mode() & os.ModeCharDevice) == 0 {
			// No TTY on stdin: we were spawned by a browser as a native
			// messaging host. Stdout is the wire, so logs go to stderr.
			logger := newLogger(cfg.LogLevel, os.Stderr)
			nativehost.New(cfg, logger).Run()
			return
		}
		printHelp()
		return
	}

	switch os.Args[1] {
	case "proxy":
		logger := newLogger(cfg.LogLevel, os.Stderr)
		banner.Print(cfg.ProxyPort, cfg.APIPort)
		if err := proxy.Run(cfg, logger); err != nil {
			logger.WithCaller().Error("Fatal startup error", logger.Args("error", err))
			os.Exit(1)
		}

	case "install":
		runInstall()

	case "trust-cert":
		runTrustCert(cfg)

	case "help", "-h", "--help":
		printHelp()

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printHelp()
		os.Exit(1)
	}
}

func newLogger(level string, w *os.File) *pterm.Logger {
	lvl := pterm.LogLevelInfo
	switch level {
	case "trace":
		lvl = pterm.LogLevelTrace
	case "debug":
		lvl = pterm.LogLevelDebug
	case "warn":
		lvl = pterm.LogLevelWarn
	case "error":
		lvl = pterm.LogLevelError
	}
	return pterm.DefaultLogger.WithLevel(lvl).WithWriter(w)
}

func runInstall() {
	var extensionID string
	if len(os.Args) > 2 {
		extensionID = os.Args[2]
	} else {
		fmt.Print("Enter your Loggy extension ID (from chrome://extensions): ")
		fmt.Scanln(&extensionID)
	}

	if extensionID == "" {
		fmt.Fprintln(os.Stderr, "Error: extension ID is required")
		os.Exit(1)
	}

	if err := nativehost.Install(extensionID); err != nil {
		fmt.Fprintf(os.Stderr, "Error installing native host: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Native messaging host installed.")
	fmt.Println("The Loggy extension can now start and stop the proxy.")
}

func runTrustCert(cfg config.Config) {
	logger := newLogger(cfg.LogLevel, os.Stderr)
	store := certs.NewStore(cfg.CACertPath(), cfg.CAKeyPath(), logger)
	if _, _, err := store.Ensure(); err != nil {
		fmt.Fprintf(os.Stderr, "Error preparing CA: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Adding the Loggy root certificate to the trust store...")
	fmt.Println("You may be prompted for your password.")
	if err := platform.TrustRoot(cfg.CACertPath()); err != nil {
		fmt.Fprintf(os.Stderr, "Error trusting certificate: %v\n", err)
		fmt.Printf("You can import it manually from %s\n", cfg.CACertPath())
		os.Exit(1)
	}
	fmt.Println("Root certificate trusted.")
}

func printHelp() {
	fmt.Println(`Loggy Proxy - analytics event interception proxy

Usage:
  loggy-proxy [command]

Commands:
  proxy       Run the MITM proxy (port 8888) and control API (port 8889)
  install     Install the browser native messaging host manifest
  trust-cert  Trust the root CA certificate in the platform trust store
  help        Show this help

When run without arguments and stdin is not a TTY, loggy-proxy operates
as a native messaging host for the Loggy browser extension.`)
}
