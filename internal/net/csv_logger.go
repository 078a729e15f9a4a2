package net

import (
	"encoding/csv"
	"os"
	"sort"
	"strconv"
	"time"

	"k8s.io/klog/v2"
)

// CSVLogger streams epoch metrics to a CSV file.
// Columns are epoch, the sorted metric names of the first epoch, time_seconds.
type CSVLogger struct {
	BaseCallback
	Filename string
	Append   bool

	file   *os.File
	writer *csv.Writer
	keys   []string
	start  time.Time
}

// NewCSVLogger creates a new CSVLogger.
func NewCSVLogger(filename string, append bool) *CSVLogger {
	return &CSVLogger{
		Filename: filename,
		Append:   append,
	}
}

func (c *CSVLogger) OnTrainBegin(n *Network) {
	mode := os.O_CREATE | os.O_WRONLY
	if c.Append {
		mode |= os.O_APPEND
	} else {
		mode |= os.O_TRUNC
	}

	file, err := os.OpenFile(c.Filename, mode, 0644)
	if err != nil {
		klog.ErrorS(err, "CSVLogger: open", "file", c.Filename)
		return
	}
	c.file = file
	c.writer = csv.NewWriter(file)
	c.keys = nil
	c.start = time.Now()
}

func (c *CSVLogger) OnEpochEnd(epoch int, logs Logs, n *Network) {
	if c.writer == nil {
		return
	}

	if c.keys == nil {
		for k := range logs {
			c.keys = append(c.keys, k)
		}
		sort.Strings(c.keys)
		if info, err := c.file.Stat(); err == nil && info.Size() == 0 {
			header := append([]string{"epoch"}, c.keys...)
			c.writer.Write(append(header, "time_seconds"))
		}
	}

	record := []string{strconv.Itoa(epoch)}
	for _, k := range c.keys {
		record = append(record, strconv.FormatFloat(logs[k], 'f', 6, 64))
	}
	record = append(record, strconv.FormatFloat(time.Since(c.start).Seconds(), 'f', 2, 64))

	if err := c.writer.Write(record); err != nil {
		klog.ErrorS(err, "CSVLogger: write record")
	}
	c.writer.Flush()
}

func (c *CSVLogger) OnTrainEnd(n *Network) {
	if c.file != nil {
		c.writer.Flush()
		c.file.Close()
		c.file = nil
		c.writer = nil
	}
}
