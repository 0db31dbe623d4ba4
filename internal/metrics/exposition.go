package metrics

import (
	"bufio"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
)

// Handler renders every registered series in the Prometheus text format.
// Families and series are written in sorted order.
func (r *Registry) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		bw := bufio.NewWriter(w)
		r.WriteTo(bw)
		bw.Flush()
	}
}

type seriesSnapshot struct {
	labels string
	value  any
}

type familySnapshot struct {
	name, help string
	kind       kind
	series     []seriesSnapshot
}

// snapshot copies the family index under the lock. Values are read later
// through their own atomics or mutex.
func (r *Registry) snapshot() []familySnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]familySnapshot, 0, len(r.families))
	for _, f := range r.families {
		fs := familySnapshot{name: f.name, help: f.help, kind: f.kind}
		for labels, s := range f.series {
			fs.series = append(fs.series, seriesSnapshot{labels: labels, value: s})
		}
		sort.Slice(fs.series, func(i, j int) bool { return fs.series[i].labels < fs.series[j].labels })
		out = append(out, fs)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}

// WriteTo writes the exposition text to w, starting with an uptime gauge.
func (r *Registry) WriteTo(w io.Writer) (int64, error) {
	cw := &countingWriter{w: w}
	fmt.Fprintf(cw, "# HELP searchbot_uptime_seconds Time since start in seconds\n")
	fmt.Fprintf(cw, "# TYPE searchbot_uptime_seconds gauge\n")
	fmt.Fprintf(cw, "searchbot_uptime_seconds %d\n", int64(r.Uptime().Seconds()))

	for _, f := range r.snapshot() {
		fmt.Fprintf(cw, "# HELP %s %s\n# TYPE %s %s\n", f.name, f.help, f.name, f.kind)
		for _, s := range f.series {
			switch v := s.value.(type) {
			case *Counter:
				fmt.Fprintf(cw, "%s %d\n", seriesName(f.name, s.labels, ""), v.Value())
			case *Gauge:
				fmt.Fprintf(cw, "%s %d\n", seriesName(f.name, s.labels, ""), v.Value())
			case *Histogram:
				writeHistogram(cw, f.name, s.labels, v.snapshot())
			}
		}
	}
	return cw.n, cw.err
}

func writeHistogram(w io.Writer, name, labels string, h histogramSnapshot) {
	for i, le := range h.bounds {
		fmt.Fprintf(w, "%s %d\n", seriesName(name+"_bucket", labels, strconv.FormatFloat(le, 'g', -1, 64)), h.counts[i])
	}
	fmt.Fprintf(w, "%s %d\n", seriesName(name+"_bucket", labels, "+Inf"), h.count)
	fmt.Fprintf(w, "%s %g\n", seriesName(name+"_sum", labels, ""), h.sum)
	fmt.Fprintf(w, "%s %d\n", seriesName(name+"_count", labels, ""), h.count)
}

// seriesName renders name{labels,le="..."}.
func seriesName(name, labels, le string) string {
	if le != "" {
		if labels != "" {
			labels += ","
		}
		labels += `le="` + le + `"`
	}
	if labels == "" {
		return name
	}
	return name + "{" + labels + "}"
}

type countingWriter struct {
	w   io.Writer
	n   int64
	err error
}

func (c *countingWriter) Write(p []byte) (int, error) {
	if c.err != nil {
		return 0, c.err
	}
	n, err := c.w.Write(p)
	c.n += int64(n)
	c.err = err
	return n, err
}
