package metrics

import (
	"io/fs"
	"os"
	"path/filepath"
	"runtime"

	"github.com/dustin/go-humanize"
)

// SysHealth represents real-time process and storage figures.
type SysHealth struct {
	AllocMB    uint64
	SysMB      uint64
	NumGC      uint32
	Goroutines int
	Storage    []PathUsage
}

// PathUsage is the on-disk size of a data path.
type PathUsage struct {
	Path  string
	Bytes int64
}

// Human formats the size for display.
func (u PathUsage) Human() string {
	return humanize.Bytes(uint64(u.Bytes))
}

// GetSysHealth collects runtime stats and the size of each data path.
// Missing paths report zero bytes.
func GetSysHealth(paths ...string) SysHealth {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	health := SysHealth{
		AllocMB:    m.Alloc / 1024 / 1024,
		SysMB:      m.Sys / 1024 / 1024,
		NumGC:      m.NumGC,
		Goroutines: runtime.NumGoroutine(),
	}
	for _, p := range paths {
		health.Storage = append(health.Storage, PathUsage{Path: p, Bytes: diskUsage(p)})
	}
	return health
}

func diskUsage(path string) int64 {
	var size int64
	_ = filepath.WalkDir(path, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		size += info.Size()
		return nil
	})
	return size
}
