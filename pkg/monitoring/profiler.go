/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: profiler.go
Description: Profiling support for parser runs. Captures CPU, heap and goroutine profiles
around a run and writes them in pprof format, together with a short memory summary.
*/

package monitoring

import (
	"fmt"
	"path/filepath"
	"runtime"
	"runtime/pprof"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

// ProfilerType represents the type of profiling
type ProfilerType string

const (
	ProfilerTypeCPU       ProfilerType = "cpu"
	ProfilerTypeMemory    ProfilerType = "memory"
	ProfilerTypeGoroutine ProfilerType = "goroutine"
)

// ProfilerConfig selects the profiles to capture
type ProfilerConfig struct {
	OutputDir        string `json:"output_dir" mapstructure:"output_dir"`
	CPUProfile       bool   `json:"cpu_profile" mapstructure:"cpu"`
	MemoryProfile    bool   `json:"memory_profile" mapstructure:"memory"`
	GoroutineProfile bool   `json:"goroutine_profile" mapstructure:"goroutine"`
}

// Enabled reports whether any profile is selected
func (c ProfilerConfig) Enabled() bool {
	return c.CPUProfile || c.MemoryProfile || c.GoroutineProfile
}

// ProfileResult describes one written profile
type ProfileResult struct {
	Type       ProfilerType  `json:"type"`
	OutputFile string        `json:"output_file"`
	Duration   time.Duration `json:"duration"`
}

// PerformanceSummary is a snapshot of runtime memory statistics
type PerformanceSummary struct {
	Goroutines int    `json:"goroutines"`
	HeapAlloc  uint64 `json:"heap_alloc"`
	HeapSys    uint64 `json:"heap_sys"`
	TotalAlloc uint64 `json:"total_alloc"`
	GCs        uint32 `json:"gcs"`
}

// Profiler captures profiles between Start and Stop
type Profiler struct {
	config ProfilerConfig
	fs     afero.Fs
	logger logrus.FieldLogger

	mu        sync.Mutex
	running   bool
	startTime time.Time
	cpuFile   afero.File
	cpuPath   string
}

// NewProfiler creates a profiler writing to config.OutputDir on fs
func NewProfiler(config ProfilerConfig, fs afero.Fs, logger logrus.FieldLogger) *Profiler {
	return &Profiler{config: config, fs: fs, logger: logger}
}

// Start begins profiling. Only one CPU profile can run per process.
func (p *Profiler) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return fmt.Errorf("profiler already running")
	}
	if err := p.fs.MkdirAll(p.config.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create profile directory: %w", err)
	}
	p.startTime = time.Now()

	if p.config.CPUProfile {
		path := p.path(ProfilerTypeCPU)
		file, err := p.fs.Create(path)
		if err != nil {
			return fmt.Errorf("failed to create CPU profile file: %w", err)
		}
		if err := pprof.StartCPUProfile(file); err != nil {
			file.Close()
			return fmt.Errorf("failed to start CPU profile: %w", err)
		}
		p.cpuFile, p.cpuPath = file, path
		p.logger.Debug("CPU profiling started")
	}
	p.running = true
	return nil
}

// Stop ends profiling and writes the snapshot profiles
func (p *Profiler) Stop() ([]ProfileResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return nil, fmt.Errorf("profiler not running")
	}
	p.running = false
	elapsed := time.Since(p.startTime)

	var results []ProfileResult
	if p.cpuFile != nil {
		pprof.StopCPUProfile()
		err := p.cpuFile.Close()
		p.cpuFile = nil
		if err != nil {
			return nil, fmt.Errorf("failed to close CPU profile: %w", err)
		}
		results = append(results, ProfileResult{Type: ProfilerTypeCPU, OutputFile: p.cpuPath, Duration: elapsed})
	}
	if p.config.MemoryProfile {
		runtime.GC()
		path, err := p.writeLookup(ProfilerTypeMemory, "heap")
		if err != nil {
			return nil, err
		}
		results = append(results, ProfileResult{Type: ProfilerTypeMemory, OutputFile: path, Duration: elapsed})
	}
	if p.config.GoroutineProfile {
		path, err := p.writeLookup(ProfilerTypeGoroutine, "goroutine")
		if err != nil {
			return nil, err
		}
		results = append(results, ProfileResult{Type: ProfilerTypeGoroutine, OutputFile: path, Duration: elapsed})
	}

	for _, r := range results {
		p.logger.WithFields(logrus.Fields{
			"type":     r.Type,
			"file":     r.OutputFile,
			"duration": r.Duration,
		}).Info("Profile written")
	}
	return results, nil
}

func (p *Profiler) writeLookup(t ProfilerType, name string) (string, error) {
	path := p.path(t)
	file, err := p.fs.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create %s profile file: %w", t, err)
	}
	defer file.Close()
	if err := pprof.Lookup(name).WriteTo(file, 0); err != nil {
		return "", fmt.Errorf("failed to write %s profile: %w", t, err)
	}
	return path, nil
}

func (p *Profiler) path(t ProfilerType) string {
	return filepath.Join(p.config.OutputDir, fmt.Sprintf("%s_%d.prof", t, p.startTime.Unix()))
}

// Summary returns current runtime memory statistics
func Summary() PerformanceSummary {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return PerformanceSummary{
		Goroutines: runtime.NumGoroutine(),
		HeapAlloc:  m.HeapAlloc,
		HeapSys:    m.HeapSys,
		TotalAlloc: m.TotalAlloc,
		GCs:        m.NumGC,
	}
}
