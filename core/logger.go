package core

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

// logLevel ordering for filtering
var logLevels = map[string]int{
	"debug": 0,
	"info":  1,
	"warn":  2,
	"error": 3,
}

// ProductionLogger writes structured log records to a single output.
// JSON format for aggregation, text for local development. Safe for
// concurrent use; one write per record.
type ProductionLogger struct {
	mu         sync.Mutex
	out        io.Writer
	level      int
	format     string
	timeFormat string
	component  string
}

// NewProductionLogger creates a logger from LoggingConfig. The component
// name is attached to every record for attribution across shared services.
func NewProductionLogger(cfg LoggingConfig, component string) *ProductionLogger {
	var out io.Writer
	switch cfg.Output {
	case "", "stdout":
		out = os.Stdout
	case "stderr":
		out = os.Stderr
	default:
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			out = os.Stdout
		} else {
			out = f
		}
	}

	level, ok := logLevels[strings.ToLower(cfg.Level)]
	if !ok {
		level = logLevels["info"]
	}

	timeFormat := cfg.TimeFormat
	if timeFormat == "" {
		timeFormat = time.RFC3339
	}

	return &ProductionLogger{
		out:        out,
		level:      level,
		format:     cfg.Format,
		timeFormat: timeFormat,
		component:  component,
	}
}

// WithComponent returns a copy of the logger attributed to component.
func (l *ProductionLogger) WithComponent(component string) Logger {
	return &ProductionLogger{
		out:        l.out,
		level:      l.level,
		format:     l.format,
		timeFormat: l.timeFormat,
		component:  component,
	}
}

func (l *ProductionLogger) Debug(msg string, fields map[string]interface{}) {
	l.log("debug", msg, fields)
}

func (l *ProductionLogger) Info(msg string, fields map[string]interface{}) {
	l.log("info", msg, fields)
}

func (l *ProductionLogger) Warn(msg string, fields map[string]interface{}) {
	l.log("warn", msg, fields)
}

func (l *ProductionLogger) Error(msg string, fields map[string]interface{}) {
	l.log("error", msg, fields)
}

func (l *ProductionLogger) log(level, msg string, fields map[string]interface{}) {
	if logLevels[level] < l.level {
		return
	}

	record := make(map[string]interface{}, len(fields)+4)
	for k, v := range fields {
		record[k] = v
	}
	record["time"] = time.Now().Format(l.timeFormat)
	record["level"] = level
	record["msg"] = msg
	if l.component != "" {
		record["component"] = l.component
	}

	var line []byte
	if l.format == "text" {
		line = []byte(l.renderText(record))
	} else {
		var err error
		line, err = json.Marshal(record)
		if err != nil {
			// Fall back to the message alone rather than dropping the record.
			line = []byte(fmt.Sprintf(`{"level":%q,"msg":%q}`, level, msg))
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	_, _ = l.out.Write(append(line, '\n'))
}

func (l *ProductionLogger) renderText(record map[string]interface{}) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("%s %s %s", record["time"], strings.ToUpper(record["level"].(string)), record["msg"]))

	keys := make([]string, 0, len(record))
	for k := range record {
		if k == "time" || k == "level" || k == "msg" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteString(fmt.Sprintf(" %s=%v", k, record[k]))
	}
	return b.String()
}
