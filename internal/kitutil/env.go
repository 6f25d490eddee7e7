// Package kitutil holds the process plumbing shared by the service
// binaries: flags backed by the environment, logging, the database, consul
// registration, request metrics and the run group.
package kitutil

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"
	"time"
)

func Getenv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

// GetenvInt falls back when key is unset or not an integer.
func GetenvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	if v, err := strconv.Atoi(value); err == nil {
		return v
	}
	return fallback
}

// GetenvMillis reads key as a number of milliseconds.
func GetenvMillis(key string, fallback time.Duration) time.Duration {
	return time.Duration(GetenvInt(key, int(fallback/time.Millisecond))) * time.Millisecond
}

// Retry registers the retry.max and retry.timeout flags used by every
// consul-backed client.
func Retry(fs *flag.FlagSet) (retryMax *int, timeout *time.Duration) {
	retryMax = fs.Int("retry.max", GetenvInt("RETRY_MAX", 3), "per-request retries to different instances")
	timeout = fs.Duration("retry.timeout", GetenvMillis("RETRY_TIMEOUT", 500*time.Millisecond), "per-request timeout, including retries")
	return retryMax, timeout
}

// UsageFor renders the flag set as an aligned table on w.
func UsageFor(fs *flag.FlagSet, w io.Writer, short string) func() {
	return func() {
		fmt.Fprintf(w, "USAGE\n")
		fmt.Fprintf(w, "  %s\n", short)
		fmt.Fprintf(w, "\n")
		fmt.Fprintf(w, "FLAGS\n")
		tw := tabwriter.NewWriter(w, 0, 2, 2, ' ', 0)
		fs.VisitAll(func(f *flag.Flag) {
			fmt.Fprintf(tw, "\t-%s %s\t%s\n", f.Name, f.DefValue, f.Usage)
		})
		tw.Flush()
		fmt.Fprintf(w, "\n")
	}
}
