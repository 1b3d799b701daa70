//go:build ignore

// build.go - G.Lab Assets build system
// Usage: go run build.go [-target=TARGET] [-version=X.Y.Z]
// Targets: all, app, keygen, test, release, clean

package main

import (
	"flag"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

const module = "glabassets"

var (
	distDir = "dist"

	// key = cmd directory, value = output base name
	executables = map[string]string{
		"glab-assets": "glab-assets",
		"keygen":      "glab-keygen",
	}

	// release platforms; asset names must contain the keyword the updater
	// matches (windows, macos, linux)
	releasePlatforms = []struct {
		GOOS, GOARCH, Keyword string
	}{
		{"windows", "amd64", "windows"},
		{"darwin", "arm64", "macos"},
		{"darwin", "amd64", "macos"},
		{"linux", "amd64", "linux"},
	}

	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorBlue   = "\033[34m"
)

// BuildContext holds configuration for the build process
type BuildContext struct {
	Verbose bool
	Version string
	GOOS    string
	GOARCH  string
}

func main() {
	target := flag.String("target", "all", "Build target")
	verbose := flag.Bool("v", false, "Verbose output")
	version := flag.String("version", "dev", "Version stamped into the binaries")
	flag.Parse()

	startTime := time.Now()
	ctx := &BuildContext{
		Verbose: *verbose,
		Version: *version,
		GOOS:    runtime.GOOS,
		GOARCH:  runtime.GOARCH,
	}

	switch *target {
	case "all":
		buildAll(ctx)
	case "app":
		buildExecutable("glab-assets", ctx, "")
	case "keygen":
		buildExecutable("keygen", ctx, "")
	case "test":
		runTests(ctx.Verbose)
	case "release":
		buildRelease(ctx)
	case "clean":
		clean()
	default:
		showHelp()
		os.Exit(1)
	}

	printSuccess(fmt.Sprintf("Build completed in %s", time.Since(startTime).Round(time.Millisecond)))
}

func printInfo(msg string) {
	fmt.Printf("%s[INFO]%s %s\n", colorBlue, colorReset, msg)
}

func printSuccess(msg string) {
	fmt.Printf("%s[SUCCESS]%s %s\n", colorGreen, colorReset, msg)
}

func printError(msg string) {
	fmt.Printf("%s[ERROR]%s %s\n", colorRed, colorReset, msg)
}

func printWarning(msg string) {
	fmt.Printf("%s[WARNING]%s %s\n", colorYellow, colorReset, msg)
}

func buildAll(ctx *BuildContext) {
	printInfo("Building all executables...")
	if err := os.MkdirAll(distDir, 0755); err != nil {
		printError(fmt.Sprintf("Failed to create %s: %v", distDir, err))
		os.Exit(1)
	}
	for name := range executables {
		buildExecutable(name, ctx, "")
	}
}

// buildExecutable compiles ./cmd/<name>. suffix is appended to the output
// base name for release builds.
func buildExecutable(name string, ctx *BuildContext, suffix string) string {
	base, ok := executables[name]
	if !ok {
		printError(fmt.Sprintf("Unknown executable: %s", name))
		os.Exit(1)
	}

	outName := base + suffix
	if ctx.GOOS == "windows" {
		outName += ".exe"
	}
	outputPath := filepath.Join(distDir, outName)

	ldflags := fmt.Sprintf("-s -w -X %s/pkg/contracts.Version=%s -X %s/pkg/contracts.BuildTime=%s -X %s/pkg/contracts.GitCommit=%s",
		module, ctx.Version,
		module, time.Now().UTC().Format(time.RFC3339),
		module, gitCommit())

	args := []string{"build", "-trimpath", "-ldflags", ldflags, "-o", outputPath, "./cmd/" + name}
	if ctx.Verbose {
		args = append([]string{"build", "-v"}, args[1:]...)
		fmt.Printf("go %s\n", strings.Join(args, " "))
	}

	cmd := exec.Command("go", args...)
	cmd.Env = append(os.Environ(), "GOOS="+ctx.GOOS, "GOARCH="+ctx.GOARCH, "CGO_ENABLED=0")
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		printError(fmt.Sprintf("Failed to build %s: %v", name, err))
		os.Exit(1)
	}

	if info, err := os.Stat(outputPath); err == nil {
		printSuccess(fmt.Sprintf("Built %s (%.1f MB)", outName, float64(info.Size())/1024/1024))
	}
	return outputPath
}

// buildRelease cross-compiles the app once per release platform.
func buildRelease(ctx *BuildContext) {
	if ctx.Version == "dev" {
		printError("release builds need -version")
		os.Exit(1)
	}

	printInfo(fmt.Sprintf("Building release %s...", ctx.Version))
	if err := os.MkdirAll(distDir, 0755); err != nil {
		printError(fmt.Sprintf("Failed to create %s: %v", distDir, err))
		os.Exit(1)
	}

	for _, p := range releasePlatforms {
		pctx := *ctx
		pctx.GOOS, pctx.GOARCH = p.GOOS, p.GOARCH
		buildExecutable("glab-assets", &pctx, fmt.Sprintf("-%s-%s-%s", ctx.Version, p.Keyword, p.GOARCH))
	}
}

func runTests(verbose bool) {
	printInfo("Running tests...")
	args := []string{"test", "-race", "./..."}
	if verbose {
		args = append(args, "-v")
	}
	cmd := exec.Command("go", args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		printError("Tests failed")
		os.Exit(1)
	}
}

func clean() {
	printInfo("Cleaning build artifacts...")
	if err := os.RemoveAll(distDir); err != nil {
		printWarning(fmt.Sprintf("Failed to remove %s: %v", distDir, err))
	}
}

func gitCommit() string {
	out, err := exec.Command("git", "rev-parse", "--short", "HEAD").Output()
	if err != nil {
		return "unknown"
	}
	return strings.TrimSpace(string(out))
}

func showHelp() {
	fmt.Println("Usage: go run build.go -target=TARGET [-version=X.Y.Z] [-v]")
	fmt.Println()
	fmt.Println("Targets:")
	fmt.Println("  all      Build glab-assets and keygen for this platform")
	fmt.Println("  app      Build glab-assets only")
	fmt.Println("  keygen   Build the license key tool")
	fmt.Println("  test     Run all tests with the race detector")
	fmt.Println("  release  Cross-compile versioned app binaries into dist/")
	fmt.Println("  clean    Remove dist/")
}
