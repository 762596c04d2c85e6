package obs

import (
	"encoding/json"
	"log"
	"os"
	"sync"
)

var (
	loggerOnce sync.Once
	logger     *log.Logger
)

// Logger returns the process-wide logger for the registration service. Output
// is one JSON object per line on stdout so the festival ops scripts can grep
// and ship it unchanged.
func Logger() *log.Logger {
	loggerOnce.Do(func() {
		logger = log.New(os.Stdout, "", 0)
	})
	return logger
}

// LogRequest serializes the entry as a single JSON line. Callers supply the
// fields; nothing is added or reordered here.
func LogRequest(entry map[string]any) {
	data, err := json.Marshal(entry)
	if err != nil {
		Logger().Printf(`{"level":"error","msg":"log entry not serializable","error":%q}`, err.Error())
		return
	}
	Logger().Println(string(data))
}
