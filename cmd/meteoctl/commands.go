package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/xtxerr/meteolog/internal/client"
	"github.com/xtxerr/meteolog/internal/export"
	"github.com/xtxerr/meteolog/internal/reading"
)

type app struct {
	client *client.Client
}

func (a *app) dispatch(args []string) error {
	cmd, rest := args[0], args[1:]
	ctx := context.Background()

	switch cmd {
	case "status":
		return a.runStatus(ctx)
	case "latest":
		return a.runLatest(ctx)
	case "recent":
		return a.runRecent(ctx, rest)
	case "ingest":
		return a.runIngest(ctx, rest)
	case "average":
		return a.runAverage(ctx, rest)
	case "summary":
		return a.runSummary(ctx, rest)
	case "simulate":
		return a.runSimulate(ctx, rest)
	case "clear":
		return a.runClear(ctx)
	case "export":
		return a.runExport(ctx, rest)
	case "help":
		printHelp()
		return nil
	default:
		return fmt.Errorf("unknown command %q (try help)", cmd)
	}
}

// windowArg reads an optional leading minutes argument. Zero means the
// server default window.
func windowArg(rest []string) (time.Duration, error) {
	if len(rest) == 0 {
		return 0, nil
	}
	minutes, err := strconv.Atoi(rest[0])
	if err != nil || minutes <= 0 {
		return 0, fmt.Errorf("minutes must be a positive integer, got %q", rest[0])
	}
	return time.Duration(minutes) * time.Minute, nil
}

func (a *app) runStatus(ctx context.Context) error {
	h, err := a.client.Status(ctx)
	if err != nil {
		return err
	}

	st := h.Stats
	fmt.Printf("status    %s\n", h.Status)
	if h.Error != "" {
		fmt.Printf("problem   %s\n", h.Error)
	}
	fmt.Printf("uptime    %s\n", time.Duration(st.UptimeSec)*time.Second)
	fmt.Printf("storage   %s (%s)\n", st.Store.Driver, st.Store.Path)
	fmt.Printf("ingested  %d accepted, %d rejected\n", st.Ingested, st.Rejected)
	fmt.Printf("cache     %d/%d readings, %d recorded, %d evicted\n",
		st.Cache.Size, st.Cache.Capacity, st.Cache.RecordCount, st.Cache.EvictCount)
	fmt.Printf("pool      %d idle, %d active, %d/%d open, %d timeouts\n",
		st.Pool.Idle, st.Pool.Active, st.Pool.Total, st.Pool.Max, st.Pool.TimeoutCount)
	fmt.Printf("queries   %d executed, %d rows, %d writes, %d errors\n",
		st.Queries.Queries, st.Queries.Rows, st.Queries.Writes, st.Queries.Errors)
	fmt.Printf("analytics %d cache hits, %d storage queries (threshold %d)\n",
		st.Aggregate.CacheHits, st.Aggregate.StorageQueries, st.Aggregate.Threshold)
	return nil
}

func (a *app) runLatest(ctx context.Context) error {
	r, source, err := a.client.Latest(ctx)
	if err != nil {
		if client.IsNotFound(err) {
			fmt.Println("no readings yet")
			return nil
		}
		return err
	}
	fmt.Printf("%s  %s  %.2f°C  (from %s)\n",
		r.Timestamp.Format(time.RFC3339), r.SensorID, r.Temperature, source)
	return nil
}

func (a *app) runRecent(ctx context.Context, rest []string) error {
	limit := 0
	if len(rest) > 0 {
		n, err := strconv.Atoi(rest[0])
		if err != nil {
			return fmt.Errorf("limit must be an integer, got %q", rest[0])
		}
		limit = n
	}

	rs, err := a.client.Recent(ctx, limit)
	if err != nil {
		return err
	}
	if len(rs) == 0 {
		fmt.Println("no readings yet")
		return nil
	}
	printReadings(rs)
	return nil
}

func printReadings(rs []reading.Reading) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TIMESTAMP\tSENSOR\t°C")
	for _, r := range rs {
		fmt.Fprintf(w, "%s\t%s\t%.2f\n", r.Timestamp.Format(time.RFC3339), r.SensorID, r.Temperature)
	}
	w.Flush()
}

func (a *app) runIngest(ctx context.Context, rest []string) error {
	if len(rest) != 2 {
		return fmt.Errorf("usage: ingest <sensor> <temperature>")
	}
	temp, err := strconv.ParseFloat(rest[1], 64)
	if err != nil {
		return fmt.Errorf("temperature must be a number, got %q", rest[1])
	}

	stored, err := a.client.Ingest(ctx, reading.Reading{SensorID: rest[0], Temperature: temp})
	if err != nil {
		return err
	}
	fmt.Printf("accepted %s %.2f°C at %s\n",
		stored.SensorID, stored.Temperature, stored.Timestamp.Format(time.RFC3339))
	return nil
}

func (a *app) runAverage(ctx context.Context, rest []string) error {
	window, err := windowArg(rest)
	if err != nil {
		return err
	}

	res, err := a.client.Average(ctx, window)
	if err != nil {
		if client.IsNotFound(err) {
			fmt.Println("no readings in window")
			return nil
		}
		return err
	}
	if res.Average == nil {
		fmt.Println("no readings in window")
		return nil
	}
	fmt.Printf("average %.2f°C over %d readings (%s to %s, from %s)\n",
		*res.Average, res.Count,
		res.WindowStart.Format(time.RFC3339), res.WindowEnd.Format(time.RFC3339), res.Source)
	return nil
}

func (a *app) runSummary(ctx context.Context, rest []string) error {
	window, err := windowArg(rest)
	if err != nil {
		return err
	}

	sum, err := a.client.Summary(ctx, window)
	if err != nil {
		return err
	}
	if sum.Count == 0 {
		fmt.Println("no readings in window")
		return nil
	}

	fmt.Printf("window   %s to %s (from %s)\n",
		sum.WindowStart.Format(time.RFC3339), sum.WindowEnd.Format(time.RFC3339), sum.Source)
	fmt.Printf("count    %d\n", sum.Count)
	if sum.Average != nil {
		fmt.Printf("average  %.2f°C\n", *sum.Average)
	}
	fmt.Printf("range    %.2f to %.2f°C\n", sum.Min, sum.Max)
	fmt.Printf("stddev   %.3f\n", sum.StdDev)
	fmt.Printf("p50/p90  %.2f / %.2f\n", sum.P50, sum.P90)
	fmt.Printf("p95/p99  %.2f / %.2f\n", sum.P95, sum.P99)
	return nil
}

func (a *app) runSimulate(ctx context.Context, rest []string) error {
	sensors, perSensor := 0, 0
	var err error
	if len(rest) > 0 {
		if sensors, err = strconv.Atoi(rest[0]); err != nil {
			return fmt.Errorf("sensors must be an integer, got %q", rest[0])
		}
	}
	if len(rest) > 1 {
		if perSensor, err = strconv.Atoi(rest[1]); err != nil {
			return fmt.Errorf("per-sensor count must be an integer, got %q", rest[1])
		}
	}

	n, err := a.client.Simulate(ctx, sensors, perSensor)
	if err != nil {
		return err
	}
	fmt.Printf("generated %d readings\n", n)
	return nil
}

func (a *app) runClear(ctx context.Context) error {
	n, err := a.client.Clear(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("deleted %d readings\n", n)
	return nil
}

func (a *app) runExport(ctx context.Context, rest []string) error {
	if len(rest) == 0 {
		return fmt.Errorf("usage: export <file> [minutes] [compression]")
	}
	path := rest[0]

	window, err := windowArg(rest[1:])
	if err != nil {
		return err
	}
	compression := ""
	if len(rest) > 2 {
		compression = rest[2]
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	n, err := a.client.Export(ctx, window, compression, f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return err
	}

	// Re-read the file to catch a truncated download.
	rows, err := export.ReadFile(path)
	if err != nil {
		return fmt.Errorf("verify %s: %w", path, err)
	}
	fmt.Printf("wrote %s: %d rows, %d bytes\n", path, len(rows), n)
	return nil
}

func printHelp() {
	fmt.Println(`commands:
  status                          server health and statistics
  latest                          most recent reading
  recent [n]                      newest n readings (default 10)
  ingest <sensor> <temp>          submit one reading
  average [minutes]               average over the trailing window
  summary [minutes]               full statistics over the window
  simulate [sensors] [per]        generate synthetic readings
  export <file> [minutes] [comp]  download a Parquet export (comp: zstd, snappy, gzip, lz4, none)
  clear                           delete all readings
  exit                            leave the prompt`)
}
