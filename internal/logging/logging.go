// Package logging writes one JSON object per line, the format every component
// of the service (migrations, tracing setup, request pipeline) logs in.
package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

var (
	mu  sync.Mutex
	out io.Writer = os.Stdout
	loc           = time.UTC
)

// SetOutput redirects log lines. It returns the previous writer.
func SetOutput(w io.Writer) io.Writer {
	mu.Lock()
	defer mu.Unlock()
	prev := out
	out = w
	return prev
}

// SetLocation sets the timezone used for the "ts" field.
func SetLocation(l *time.Location) {
	if l == nil {
		return
	}
	mu.Lock()
	defer mu.Unlock()
	loc = l
}

// Info writes an info-level line with the given fields.
func Info(msg string, fields map[string]any) {
	write("info", msg, fields)
}

// Error writes an error-level line with the given fields.
func Error(msg string, fields map[string]any) {
	write("error", msg, fields)
}

// Event writes a free-form entry. When no "level" is given it is derived from
// "status": "error" becomes level error, anything else info.
func Event(data map[string]any) {
	entry := make(map[string]any, len(data)+2)
	for k, v := range data {
		entry[k] = v
	}
	if _, ok := entry["level"]; !ok {
		if entry["status"] == "error" {
			entry["level"] = "error"
		} else {
			entry["level"] = "info"
		}
	}
	emit(entry)
}

func write(level, msg string, fields map[string]any) {
	entry := make(map[string]any, len(fields)+3)
	for k, v := range fields {
		entry[k] = v
	}
	entry["level"] = level
	entry["msg"] = msg
	emit(entry)
}

func emit(entry map[string]any) {
	mu.Lock()
	defer mu.Unlock()

	entry["ts"] = time.Now().In(loc).Format(time.RFC3339Nano)
	b, err := json.Marshal(entry)
	if err != nil {
		fmt.Fprintf(out, `{"ts":%q,"level":"error","msg":"log marshal failed","error":%q}`+"\n",
			time.Now().In(loc).Format(time.RFC3339Nano), err.Error())
		return
	}
	out.Write(append(b, '\n'))
}
