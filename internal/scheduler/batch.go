package scheduler

import (
	"fmt"
	"os"

	"github.com/tanq16/vdl/internal/types"
	"gopkg.in/yaml.v3"
)

// BatchFile is the YAML layout accepted by the batch command:
//
//	threads: 4
//	headers:
//	  Referer: https://example.com
//	downloads:
//	  - url: https://example.com/a.mp4
//	    name: first.mp4
//	  - url: s3://bucket/b.mp4
//	    threads: 8
type BatchFile struct {
	Threads   int               `yaml:"threads"`
	Headers   map[string]string `yaml:"headers"`
	Downloads []types.Task      `yaml:"downloads"`
}

func LoadBatch(path string) ([]types.Task, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading batch file: %v", err)
	}
	return ParseBatch(data)
}

// ParseBatch applies the file level threads and headers to every entry that
// does not set its own.
func ParseBatch(data []byte) ([]types.Task, error) {
	var file BatchFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("error parsing batch file: %v", err)
	}
	var tasks []types.Task
	for i, task := range file.Downloads {
		if task.URL == "" {
			return nil, fmt.Errorf("batch entry %d has no url", i+1)
		}
		if task.ThreadCount <= 0 {
			task.ThreadCount = file.Threads
		}
		if len(file.Headers) > 0 {
			merged := make(map[string]string, len(file.Headers)+len(task.Headers))
			for k, v := range file.Headers {
				merged[k] = v
			}
			for k, v := range task.Headers {
				merged[k] = v
			}
			task.Headers = merged
		}
		tasks = append(tasks, task)
	}
	if len(tasks) == 0 {
		return nil, fmt.Errorf("no downloads found in batch file")
	}
	return tasks, nil
}
